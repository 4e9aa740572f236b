package clientutil

import (
	"errors"
	"testing"
)

func TestSeal(t *testing.T) {
	// Given.
	key := []byte("master_key")

	// When.
	sealed, err := Seal(key, "client_id", "secret")

	// Then.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sealed == "secret" {
		t.Fatal("the secret was not sealed")
	}

	secret, err := Open(key, "client_id", sealed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if secret != "secret" {
		t.Errorf("got %s, want secret", secret)
	}
}

func TestSeal_NonceIsRandom(t *testing.T) {
	key := []byte("master_key")

	first, _ := Seal(key, "client_id", "secret")
	second, _ := Seal(key, "client_id", "secret")

	if first == second {
		t.Error("sealing twice must not produce the same output")
	}
}

func TestOpen_BoundToTheClient(t *testing.T) {
	// Given.
	key := []byte("master_key")
	sealed, err := Seal(key, "client_id", "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// When.
	_, err = Open(key, "another_client_id", sealed)

	// Then.
	if err == nil {
		t.Error("a secret sealed for one client must not open for another")
	}
}

func TestOpen_WrongKey(t *testing.T) {
	sealed, _ := Seal([]byte("master_key"), "client_id", "secret")

	if _, err := Open([]byte("another_key"), "client_id", sealed); err == nil {
		t.Error("an error was expected")
	}
}

func TestSeal_NoKey(t *testing.T) {
	_, err := Seal(nil, "client_id", "secret")
	if !errors.Is(err, errNoSealKey) {
		t.Errorf("got %v, want %v", err, errNoSealKey)
	}
}
