package policyserver

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/panthersecurity/panther/pkg/canonicalize"
	"github.com/panthersecurity/panther/pkg/wire"
)

// policyHash is the canonical hash of the policy document with the signature
// field cleared, so the signature never covers itself.
func policyHash(p *wire.Policy) (string, error) {
	stripped := *p
	stripped.Signature = ""
	hash, err := canonicalize.CanonicalHash(&stripped)
	if err != nil {
		return "", fmt.Errorf("failed to hash policy: %w", err)
	}
	return hash, nil
}

// SignPolicy mints the HS256 JWS accepted by servers configured with the
// same verification key. The admin tooling and tests use it; servers only
// ever verify.
func SignPolicy(key []byte, p *wire.Policy) (string, error) {
	hash, err := policyHash(p)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"policy_hash": hash})
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign policy: %w", err)
	}
	return signed, nil
}

func verifyPolicySignature(key []byte, p *wire.Policy) error {
	want, err := policyHash(p)
	if err != nil {
		return err
	}

	token, err := jwt.Parse(p.Signature, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return fmt.Errorf("policy signature is not a valid JWS: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("policy signature claims are malformed")
	}
	hash, _ := claims["policy_hash"].(string)
	if hash != want {
		return errors.New("policy_hash claim does not match policy contents")
	}
	return nil
}
