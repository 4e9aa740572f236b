package token

import (
	"errors"
	"testing"

	"github.com/luikyv/go-authority/internal/clientutil"
	"github.com/luikyv/go-authority/internal/oidctest"
	"github.com/luikyv/go-authority/pkg/goidc"
)

func credentials() clientutil.Credentials {
	return clientutil.Credentials{
		ID:     oidctest.ClientID,
		Secret: oidctest.ClientSecret,
	}
}

func assertErrorCode(t *testing.T, err error, code goidc.ErrorCode) {
	t.Helper()

	if err == nil {
		t.Fatalf("an error with code %s was expected", code)
	}

	var oidcErr goidc.Error
	if !errors.As(err, &oidcErr) {
		t.Fatalf("got %v, want a goidc.Error", err)
	}

	if oidcErr.Code != code {
		t.Errorf("Code = %s, want %s", oidcErr.Code, code)
	}
}
