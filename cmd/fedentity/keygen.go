package main

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

func keygenCommand(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	out := fs.String("out", "entity-key.jwk", "Destination for the private JWK")
	public := fs.String("public", "", "Optional destination for the public JWK Set")
	if err := fs.Parse(args); err != nil {
		return err
	}

	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	key, err := jwk.FromRaw(raw)
	if err != nil {
		return fmt.Errorf("failed to wrap key: %w", err)
	}

	// Kid is the RFC 7638 thumbprint so it is stable across exports.
	thumb, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return fmt.Errorf("failed to compute thumbprint: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, base64.RawURLEncoding.EncodeToString(thumb)); err != nil {
		return err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
		return err
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return err
	}

	if err := writeJSON(*out, key, 0o600); err != nil {
		return err
	}
	fmt.Printf("wrote private key %s (kid %s)\n", *out, key.KeyID())

	if *public != "" {
		pub, err := jwk.PublicKeyOf(key)
		if err != nil {
			return fmt.Errorf("failed to derive public key: %w", err)
		}
		set := jwk.NewSet()
		if err := set.AddKey(pub); err != nil {
			return err
		}
		if err := writeJSON(*public, set, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote public key set %s\n", *public)
	}
	return nil
}

func writeJSON(path string, v any, mode os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
