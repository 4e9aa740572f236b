package strutil_test

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/luikyv/go-authority/internal/strutil"
)

func TestRandom(t *testing.T) {
	// When.
	s1 := strutil.Random(30)
	s2 := strutil.Random(30)

	// Then.
	if len(s1) != 30 {
		t.Errorf("len = %d, want 30", len(s1))
	}
	if s1 == s2 {
		t.Errorf("two random strings are equal: %s", s1)
	}
}

func TestUserCode(t *testing.T) {
	// When.
	code := strutil.UserCode()

	// Then.
	if !regexp.MustCompile(`^[B-Z]{4}-[B-Z]{4}$`).MatchString(code) {
		t.Errorf("invalid user code %s", code)
	}
}

func TestIsSubset(t *testing.T) {
	// Given.
	testCases := []struct {
		sub    string
		scopes string
		want   bool
	}{
		{"openid", "openid email", true},
		{"openid email", "email openid", true},
		{"", "openid", true},
		{"profile", "openid email", false},
		{"openid", "", false},
	}

	for i, testCase := range testCases {
		t.Run(fmt.Sprintf("case %d", i), func(t *testing.T) {
			// When.
			got := strutil.IsSubset(testCase.sub, testCase.scopes)

			// Then.
			if got != testCase.want {
				t.Errorf("IsSubset(%q, %q) = %t, want %t", testCase.sub, testCase.scopes, got, testCase.want)
			}
		})
	}
}

func TestContainsOpenID(t *testing.T) {
	if !strutil.ContainsOpenID("email openid") {
		t.Error("openid should be found")
	}
	if strutil.ContainsOpenID("email openid_like") {
		t.Error("openid should not be found")
	}
}
