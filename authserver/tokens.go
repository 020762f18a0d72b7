package authserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token fails signature or claim checks.
	ErrInvalidToken = errors.New("authserver: invalid token")
	// ErrNotRefreshToken is returned when a token lacks the refresh type claim.
	ErrNotRefreshToken = errors.New("authserver: token is not a refresh token")
)

// AccessClaims are the validated claims of an access token.
type AccessClaims struct {
	Subject  string
	Audience string
	Scope    string
	IssuedAt time.Time
	Expires  time.Time
}

// TokenIssuer signs and validates the server's JWTs using HS256.
type TokenIssuer struct {
	issuer string
	secret []byte
}

// NewTokenIssuer creates a TokenIssuer for the given issuer URL and signing
// secret.
func NewTokenIssuer(issuer string, secret []byte) *TokenIssuer {
	return &TokenIssuer{issuer: issuer, secret: secret}
}

// IssueAccessToken produces a signed access token with iss, sub, aud, scope,
// iat and exp claims.
func (t *TokenIssuer) IssueAccessToken(subject, audience, scope string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   t.issuer,
		"sub":   subject,
		"aud":   audience,
		"scope": scope,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// IssueRefreshToken produces a signed refresh token carrying type "refresh"
// and a unique jti.
func (t *TokenIssuer) IssueRefreshToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":  t.issuer,
		"sub":  subject,
		"type": "refresh",
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// VerifyAccessToken validates signature and expiry, and the audience when an
// expectation is supplied.
func (t *TokenIssuer) VerifyAccessToken(token, expectedAudience string) (*AccessClaims, error) {
	claims, err := t.parse(token)
	if err != nil {
		return nil, err
	}
	audience, _ := claims["aud"].(string)
	if expectedAudience != "" && audience != expectedAudience {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	subject, _ := claims["sub"].(string)
	scope, _ := claims["scope"].(string)
	ret := &AccessClaims{Subject: subject, Audience: audience, Scope: scope}
	if iat, ok := claims["iat"].(float64); ok {
		ret.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := claims["exp"].(float64); ok {
		ret.Expires = time.Unix(int64(exp), 0)
	}
	return ret, nil
}

// VerifyRefreshToken validates signature, expiry and the refresh type claim,
// returning the subject.
func (t *TokenIssuer) VerifyRefreshToken(token string) (string, error) {
	claims, err := t.parse(token)
	if err != nil {
		return "", err
	}
	if tokenType, _ := claims["type"].(string); tokenType != "refresh" {
		return "", ErrNotRefreshToken
	}
	subject, _ := claims["sub"].(string)
	return subject, nil
}

func (t *TokenIssuer) parse(token string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, func(parsed *jwt.Token) (interface{}, error) {
		if _, ok := parsed.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", parsed.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
