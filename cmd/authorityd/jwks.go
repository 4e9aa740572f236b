package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
	"github.com/luikyv/go-authority/internal/joseutil"
	"github.com/spf13/cobra"
)

// loadPrivateJWKS reads a JWK Set holding the private server keys.
func loadPrivateJWKS(path string) (jose.JSONWebKeySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("could not read the signing keys: %w", err)
	}

	var jwks jose.JSONWebKeySet
	if err := json.Unmarshal(data, &jwks); err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("could not parse the signing keys: %w", err)
	}

	if len(jwks.Keys) == 0 {
		return jose.JSONWebKeySet{}, errors.New("the signing keys file has no keys")
	}

	for _, jwk := range jwks.Keys {
		if jwk.IsPublic() {
			return jose.JSONWebKeySet{}, fmt.Errorf("the key %s is not private", jwk.KeyID)
		}
	}
	return jwks, nil
}

// generatePrivateJWKS creates one key per algorithm.
func generatePrivateJWKS(algs []string) (jose.JSONWebKeySet, error) {
	keys := joseutil.NewMemoryKeyStore()
	p := joseutil.NewProvider(keys, nil)
	for _, alg := range algs {
		if _, err := p.GenerateKey(alg, 0); err != nil {
			return jose.JSONWebKeySet{}, err
		}
	}

	jwks := jose.JSONWebKeySet{}
	for _, k := range keys.Keys() {
		jwks.Keys = append(jwks.Keys, k.JWK)
	}
	return jwks, nil
}

func newKeygenCmd() *cobra.Command {
	var (
		algs []string
		out  string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a private JWK Set to sign with",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jwks, err := generatePrivateJWKS(algs)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(jwks, "", "  ")
			if err != nil {
				return fmt.Errorf("could not encode the keys: %w", err)
			}

			if out == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return os.WriteFile(out, data, 0o600)
		},
	}

	cmd.Flags().StringSliceVar(&algs, "alg", []string{string(jose.RS256)}, "Algorithms to generate keys for")
	cmd.Flags().StringVar(&out, "out", "", "File to write the keys to, stdout when empty")
	return cmd
}
