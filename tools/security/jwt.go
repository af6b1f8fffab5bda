package security

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Verifier checks bearer access tokens and yields the user they belong to.
// Token issuance lives in the auth service; the gateway only verifies.
type Verifier struct {
	Secret []byte
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{Secret: secret}
}

// Verify parses an HMAC-signed access token and returns its userId claim.
// Malformed, expired or wrongly-signed tokens all fail here.
func (v *Verifier) Verify(token string) (string, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return v.Secret, nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return "", errors.New("claims type mismatch")
	}
	userID, _ := claims["userId"].(string)
	if userID == "" {
		return "", errors.New("token missing userId claim")
	}
	return userID, nil
}

// Sign issues a short-lived HMAC token carrying the userId claim.
// Kept for tooling and tests; the production issuer is external.
func Sign(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtlib.MapClaims{
		"userId": userID,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
}
