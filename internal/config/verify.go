package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	minisign "github.com/jedisct1/go-minisign"
)

// Verifier validates a config file against a detached Minisign signature
// before it is applied, so a tampered targets file is rejected at load time.
type Verifier struct {
	publicKey minisign.PublicKey
}

// NewVerifier parses the provided Minisign public key and returns a verifier
// configured to validate signatures created with the associated secret key.
func NewVerifier(pubKey string) (*Verifier, error) {
	pubKey = strings.TrimSpace(pubKey)
	if pubKey == "" {
		return nil, errors.New("minisign public key is required")
	}
	publicKey, err := minisign.DecodePublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("parse minisign public key: %w", err)
	}
	return &Verifier{publicKey: publicKey}, nil
}

// NewVerifierFromFile reads the public key from disk.
func NewVerifierFromFile(path string) (*Verifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key %q: %w", path, err)
	}
	return NewVerifier(string(data))
}

// SignaturePath returns the conventional location of a config file's
// detached signature.
func SignaturePath(configPath string) string {
	return configPath + ".minisig"
}

// VerifyFile reads the config file and detached signature from disk and
// validates the signature contents.
func (v *Verifier) VerifyFile(ctx context.Context, configPath, signaturePath string) error {
	if v == nil {
		return errors.New("config verifier not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(configPath) == "" {
		return errors.New("config path is required")
	}
	if strings.TrimSpace(signaturePath) == "" {
		return errors.New("signature path is required")
	}

	signatureBytes, err := os.ReadFile(signaturePath)
	if err != nil {
		return fmt.Errorf("read signature %q: %w", signaturePath, err)
	}
	signature, err := minisign.DecodeSignature(string(signatureBytes))
	if err != nil {
		return fmt.Errorf("decode signature %q: %w", signaturePath, err)
	}
	configBytes, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config %q: %w", configPath, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := v.publicKey.Verify(configBytes, signature)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("signature verification failed")
	}
	return nil
}
