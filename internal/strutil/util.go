// Package strutil contains functions to help handling strings.
package strutil

import (
	"crypto/rand"
	"math/big"
	"slices"
	"strings"
)

const charset string = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// userCodeCharset avoids vowels and look-alike characters so user codes are
// easy to type.
const userCodeCharset string = "BCDFGHJKLMNPQRSTVWXZ"

func ContainsOpenID(scopes string) bool {
	return slices.Contains(SplitWithSpaces(scopes), "openid")
}

func ContainsOfflineAccess(scopes string) bool {
	return slices.Contains(SplitWithSpaces(scopes), "offline_access")
}

func SplitWithSpaces(s string) []string {
	return strings.Fields(s)
}

// IsSubset reports whether every space separated scope in sub is in scopes.
func IsSubset(sub, scopes string) bool {
	all := SplitWithSpaces(scopes)
	for _, s := range SplitWithSpaces(sub) {
		if !slices.Contains(all, s) {
			return false
		}
	}
	return true
}

func Random(length int) string {
	return random(charset, length)
}

// UserCode returns a random code in the format XXXX-XXXX.
func UserCode() string {
	code := random(userCodeCharset, 8)
	return code[:4] + "-" + code[4:]
}

func random(set string, length int) string {
	result := strings.Builder{}
	setLength := big.NewInt(int64(len(set)))

	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, setLength)
		if err != nil {
			panic(err)
		}
		result.WriteByte(set[n.Int64()])
	}

	return result.String()
}
