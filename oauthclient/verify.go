package oauthclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// VerifyConfig configures standalone JWT verification against a JWKS
// endpoint.
type VerifyConfig struct {
	JWKSURL    string
	Issuer     string
	Audience   string
	HTTPClient *http.Client
}

// Verifier validates JWTs with keys fetched from a JWKS endpoint. The key set
// is cached in-process and refreshed by the JWKS provider.
type Verifier struct {
	config VerifyConfig
	cache  *jwk.Cache

	registrationMu  sync.Mutex
	registered      bool
	registrationErr error
}

// NewVerifier creates a Verifier with a background-refreshing JWKS cache.
func NewVerifier(ctx context.Context, config VerifyConfig) (*Verifier, error) {
	if config.JWKSURL == "" {
		return nil, errors.New("oauthclient: jwks url is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cache, err := jwk.NewCache(ctx, httprc.NewClient(httprc.WithHTTPClient(httpClient)))
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}
	return &Verifier{config: config, cache: cache}, nil
}

// VerifyJWT validates signature, expiration and, when configured, issuer and
// audience. Failures are categorized via TokenError.
func (v *Verifier) VerifyJWT(ctx context.Context, token string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, func(parsed *jwt.Token) (interface{}, error) {
		return v.keyFor(ctx, parsed)
	})
	if err != nil {
		return nil, categorize(err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, newTokenError(TokenErrorInvalid, "token claims are invalid", nil)
	}
	if err := v.validateClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *Verifier) ensureRegistered(ctx context.Context) error {
	v.registrationMu.Lock()
	defer v.registrationMu.Unlock()
	if v.registered {
		return v.registrationErr
	}
	registrationCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := v.cache.Register(registrationCtx, v.config.JWKSURL); err != nil {
		v.registrationErr = fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	v.registered = true
	return v.registrationErr
}

func (v *Verifier) keyFor(ctx context.Context, token *jwt.Token) (interface{}, error) {
	if err := v.ensureRegistered(ctx); err != nil {
		return nil, err
	}
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, errors.New("token header missing kid")
	}
	keySet, err := v.cache.Lookup(ctx, v.config.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup JWKS: %w", err)
	}
	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key ID %s not found in JWKS", kid)
	}
	var rawKey interface{}
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("failed to export raw key: %w", err)
	}
	return rawKey, nil
}

func (v *Verifier) validateClaims(claims jwt.MapClaims) error {
	if v.config.Issuer != "" {
		issuer, err := claims.GetIssuer()
		if err != nil || strings.TrimSpace(issuer) != strings.TrimSpace(v.config.Issuer) {
			return newTokenError(TokenErrorInvalid, "issuer mismatch", err)
		}
	}
	if v.config.Audience != "" {
		audiences, err := claims.GetAudience()
		if err != nil {
			return newTokenError(TokenErrorInvalid, "audience claim missing", err)
		}
		for _, audience := range audiences {
			if audience == v.config.Audience {
				return nil
			}
		}
		return newTokenError(TokenErrorInvalid, "audience mismatch", nil)
	}
	return nil
}

func categorize(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return newTokenError(TokenErrorExpired, "token has expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return newTokenError(TokenErrorSignatureInvalid, "token signature is invalid", err)
	default:
		return newTokenError(TokenErrorInvalid, "token validation failed", err)
	}
}
