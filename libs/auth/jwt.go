package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are issued by the upstream identity service. Only sub and role matter here.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// KeySource resolves RS256 verification keys by kid.
type KeySource interface {
	Get(keyID string) (*rsa.PublicKey, error)
}

// Verifier accepts HS256 tokens signed with a shared secret and, when a KeySource
// is configured, RS256 tokens published through JWKS.
type Verifier struct {
	secret []byte
	keys   KeySource
	issuer string
	leeway time.Duration
}

type VerifierConfig struct {
	HS256Secret string
	Keys        KeySource
	Issuer      string
	Leeway      time.Duration
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.HS256Secret) == "" && cfg.Keys == nil {
		return nil, errors.New("auth: either an HS256 secret or a JWKS source is required")
	}
	return &Verifier{
		secret: []byte(cfg.HS256Secret),
		keys:   cfg.Keys,
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
	}, nil
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods()),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, v.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, fmt.Errorf("%w: sub and role are required", ErrInvalidToken)
	}
	return &claims, nil
}

func (v *Verifier) methods() []string {
	var out []string
	if len(v.secret) > 0 {
		out = append(out, jwt.SigningMethodHS256.Alg())
	}
	if v.keys != nil {
		out = append(out, jwt.SigningMethodRS256.Alg())
	}
	return out
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return v.keys.Get(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
}

// SignHS256 issues a token; used by tests and local tooling.
func SignHS256(subject, role, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
