package oauthclient

import "fmt"

// OAuthError is a structured error returned by an OAuth endpoint.
type OAuthError struct {
	Code        string
	Description string
	URI         string
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth error %s: %s", e.Code, e.Description)
	}
	return "oauth error " + e.Code
}

// Well-known OAuth error codes.
const (
	ErrCodeInvalidGrant   = "invalid_grant"
	ErrCodeInvalidClient  = "invalid_client"
	ErrCodeInvalidScope   = "invalid_scope"
	ErrCodeAccessDenied   = "access_denied"
	ErrCodeServerError    = "server_error"
	ErrCodeSessionExpired = "session_expired"
	ErrCodeInvalidState   = "invalid_state"
)

// TokenErrorKind categorizes token manager failures.
type TokenErrorKind string

const (
	TokenErrorNoToken          TokenErrorKind = "no_token"
	TokenErrorExpired          TokenErrorKind = "token_expired"
	TokenErrorInvalid          TokenErrorKind = "token_invalid"
	TokenErrorSignatureInvalid TokenErrorKind = "signature_invalid"
	TokenErrorRefreshFailed    TokenErrorKind = "refresh_failed"
)

// TokenError is a categorized token validation or refresh failure.
type TokenError struct {
	Kind    TokenErrorKind
	Message string
	Cause   error
}

func (e *TokenError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *TokenError) Unwrap() error {
	return e.Cause
}

func newTokenError(kind TokenErrorKind, message string, cause error) *TokenError {
	return &TokenError{Kind: kind, Message: message, Cause: cause}
}
