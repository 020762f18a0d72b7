package authserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mcpref/mcpserver/pkce"
)

// Authenticator resolves the resource owner behind an authorization request.
// The reference implementation reads a form field; production deployments
// replace it with a real login flow.
type Authenticator func(r *http.Request) (subject string, err error)

// Options configure the authorization server.
type Options struct {
	Issuer        string
	Secret        []byte
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	CodeTTL       time.Duration
	SweepInterval time.Duration
	RotateRefresh bool
	Store         GrantStore
	Authenticator Authenticator
	Logger        zerolog.Logger
}

// Option mutates Options.
type Option func(o *Options)

// WithAudience sets the audience claim stamped into access tokens.
func WithAudience(audience string) Option {
	return func(o *Options) { o.Audience = audience }
}

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(o *Options) { o.AccessTTL = ttl }
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(o *Options) { o.RefreshTTL = ttl }
}

// WithCodeTTL sets the authorization code lifetime.
func WithCodeTTL(ttl time.Duration) Option {
	return func(o *Options) { o.CodeTTL = ttl }
}

// WithSweepInterval sets the store pruning cadence. Zero disables the sweeper.
func WithSweepInterval(interval time.Duration) Option {
	return func(o *Options) { o.SweepInterval = interval }
}

// WithStore installs a custom grant store, e.g. a Redis-backed one. The
// default is the in-memory Store.
func WithStore(store GrantStore) Option {
	return func(o *Options) { o.Store = store }
}

// WithRotateRefresh enables refresh token rotation on the refresh grant.
func WithRotateRefresh(rotate bool) Option {
	return func(o *Options) { o.RotateRefresh = rotate }
}

// WithAuthenticator overrides how the resource owner is authenticated.
func WithAuthenticator(authenticator Authenticator) Option {
	return func(o *Options) { o.Authenticator = authenticator }
}

// WithLogger sets the server logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// Server is a PKCE-backed OAuth authorization server. State lives in the
// configured grant store, in-memory by default.
type Server struct {
	options Options
	store   GrantStore
	issuer  *TokenIssuer
	clients *ClientRegistry
}

// formAuthenticator accepts the subject supplied in the request form.
func formAuthenticator(r *http.Request) (string, error) {
	subject := r.FormValue("subject")
	if subject == "" {
		return "", errors.New("subject is required")
	}
	return subject, nil
}

// NewServer creates an authorization server for the given issuer URL and
// signing secret.
func NewServer(issuer string, secret []byte, options ...Option) *Server {
	opts := Options{
		Issuer:        issuer,
		Secret:        secret,
		AccessTTL:     time.Hour,
		RefreshTTL:    30 * 24 * time.Hour,
		CodeTTL:       DefaultCodeTTL,
		Authenticator: formAuthenticator,
		Logger:        zerolog.Nop(),
	}
	for _, option := range options {
		option(&opts)
	}
	store := opts.Store
	if store == nil {
		store = NewStore(opts.SweepInterval)
	}
	return &Server{
		options: opts,
		store:   store,
		issuer:  NewTokenIssuer(issuer, secret),
		clients: NewClientRegistry(),
	}
}

// Clients returns the client registry for registration.
func (s *Server) Clients() *ClientRegistry {
	return s.clients
}

// Store returns the underlying grant store.
func (s *Server) Store() GrantStore {
	return s.store
}

// TokenIssuer returns the JWT issuer for out-of-band verification.
func (s *Server) TokenIssuer() *TokenIssuer {
	return s.issuer
}

// Close stops background work.
func (s *Server) Close() {
	s.store.Close()
}

// Router mounts the authorization endpoints.
func (s *Server) Router() chi.Router {
	router := chi.NewRouter()
	router.Get("/authorize", s.handleAuthorize)
	router.Post("/authorize", s.handleAuthorize)
	router.Post("/token", s.handleToken)
	router.Post("/introspect", s.handleIntrospect)
	return router
}

func (s *Server) handleAuthorize(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(rw, http.StatusBadRequest, "invalid_request", "malformed request")
		return
	}
	clientID := r.FormValue("client_id")
	redirectURI := r.FormValue("redirect_uri")
	if _, err := s.clients.Get(clientID); err != nil {
		s.writeError(rw, http.StatusBadRequest, "invalid_client", "unknown client")
		return
	}
	// never redirect to an unvalidated URI
	if !s.clients.ValidateRedirect(clientID, redirectURI) {
		s.writeError(rw, http.StatusBadRequest, "invalid_request", "redirect_uri is not registered for this client")
		return
	}
	state := r.FormValue("state")
	if r.FormValue("response_type") != "code" {
		s.redirectError(rw, r, redirectURI, state, "unsupported_response_type", "only the code response type is supported")
		return
	}
	challenge := r.FormValue("code_challenge")
	if challenge == "" {
		s.redirectError(rw, r, redirectURI, state, "invalid_request", "code_challenge is required")
		return
	}
	if method := r.FormValue("code_challenge_method"); method != pkce.MethodS256 {
		s.redirectError(rw, r, redirectURI, state, "invalid_request", "code_challenge_method must be S256")
		return
	}
	subject, err := s.options.Authenticator(r)
	if err != nil {
		s.redirectError(rw, r, redirectURI, state, "access_denied", err.Error())
		return
	}
	code := s.store.StoreCode(CodeEntry{
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		CodeChallenge:       challenge,
		CodeChallengeMethod: pkce.MethodS256,
		Subject:             subject,
		Scope:               r.FormValue("scope"),
		State:               state,
		TTL:                 s.options.CodeTTL,
	})
	s.options.Logger.Debug().Str("client", clientID).Str("subject", subject).Msg("authorization code issued")

	location, _ := url.Parse(redirectURI)
	query := location.Query()
	query.Set("code", code)
	if state != "" {
		query.Set("state", state)
	}
	location.RawQuery = query.Encode()
	http.Redirect(rw, r, location.String(), http.StatusFound)
}

func (s *Server) handleToken(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(rw, http.StatusBadRequest, "invalid_request", "malformed request")
		return
	}
	switch r.FormValue("grant_type") {
	case "authorization_code":
		s.tokenFromCode(rw, r)
	case "refresh_token":
		s.tokenFromRefresh(rw, r)
	case "client_credentials":
		s.tokenFromClientCredentials(rw, r)
	default:
		s.writeError(rw, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant type")
	}
}

func (s *Server) tokenFromCode(rw http.ResponseWriter, r *http.Request) {
	clientID, secret := clientCredentials(r)
	client, err := s.clients.Authenticate(clientID, secret)
	if err != nil {
		s.writeError(rw, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}
	entry := s.store.ConsumeCode(r.FormValue("code"))
	if entry == nil {
		s.writeError(rw, http.StatusBadRequest, "invalid_grant", "authorization code is invalid or expired")
		return
	}
	if entry.ClientID != client.ID || entry.RedirectURI != r.FormValue("redirect_uri") {
		s.writeError(rw, http.StatusBadRequest, "invalid_grant", "authorization code was issued to a different client")
		return
	}
	if err := pkce.Verify(r.FormValue("code_verifier"), entry.CodeChallenge, entry.CodeChallengeMethod); err != nil {
		s.writeError(rw, http.StatusBadRequest, "invalid_grant", "code verifier rejected")
		return
	}
	s.issueTokens(rw, client.ID, entry.Subject, entry.Scope, "")
}

func (s *Server) tokenFromRefresh(rw http.ResponseWriter, r *http.Request) {
	token := r.FormValue("refresh_token")
	if token == "" {
		s.writeError(rw, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}
	entry := s.store.GetRefresh(token)
	if entry == nil {
		s.writeError(rw, http.StatusBadRequest, "invalid_grant", "refresh token is invalid, expired or revoked")
		return
	}
	if clientID, _ := clientCredentials(r); clientID != "" && clientID != entry.ClientID {
		s.writeError(rw, http.StatusBadRequest, "invalid_grant", "refresh token was issued to a different client")
		return
	}
	refreshToken := token
	if s.options.RotateRefresh {
		refreshToken = s.store.StoreRefresh(RefreshEntry{
			ClientID: entry.ClientID,
			Subject:  entry.Subject,
			Scope:    entry.Scope,
		}, s.options.RefreshTTL)
		s.store.RevokeRefresh(token)
	}
	s.issueTokens(rw, entry.ClientID, entry.Subject, entry.Scope, refreshToken)
}

func (s *Server) tokenFromClientCredentials(rw http.ResponseWriter, r *http.Request) {
	clientID, secret := clientCredentials(r)
	client, err := s.clients.Authenticate(clientID, secret)
	if err != nil || client.Public {
		s.writeError(rw, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}
	accessToken, err := s.issuer.IssueAccessToken(client.ID, s.audience(), r.FormValue("scope"), s.options.AccessTTL)
	if err != nil {
		s.writeError(rw, http.StatusInternalServerError, "server_error", "failed to issue token")
		return
	}
	s.writeToken(rw, &tokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.options.AccessTTL.Seconds()),
		Scope:       r.FormValue("scope"),
	})
}

func (s *Server) issueTokens(rw http.ResponseWriter, clientID, subject, scope, refreshToken string) {
	accessToken, err := s.issuer.IssueAccessToken(subject, s.audience(), scope, s.options.AccessTTL)
	if err != nil {
		s.writeError(rw, http.StatusInternalServerError, "server_error", "failed to issue token")
		return
	}
	if refreshToken == "" {
		refreshToken = s.store.StoreRefresh(RefreshEntry{
			ClientID: clientID,
			Subject:  subject,
			Scope:    scope,
		}, s.options.RefreshTTL)
	}
	s.writeToken(rw, &tokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.options.AccessTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        scope,
	})
}

// handleIntrospect implements RFC 7662 token introspection.
func (s *Server) handleIntrospect(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(rw, http.StatusBadRequest, "invalid_request", "malformed request")
		return
	}
	clientID, secret := clientCredentials(r)
	client, err := s.clients.Authenticate(clientID, secret)
	if err != nil {
		s.writeError(rw, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}
	claims, err := s.issuer.VerifyAccessToken(r.FormValue("token"), "")
	rw.Header().Set("Content-Type", "application/json")
	if err != nil {
		_ = json.NewEncoder(rw).Encode(map[string]interface{}{"active": false})
		return
	}
	_ = json.NewEncoder(rw).Encode(map[string]interface{}{
		"active":    true,
		"scope":     claims.Scope,
		"client_id": client.ID,
		"sub":       claims.Subject,
		"exp":       claims.Expires.Unix(),
	})
}

func (s *Server) audience() string {
	if s.options.Audience != "" {
		return s.options.Audience
	}
	return s.options.Issuer
}

// clientCredentials extracts client id and secret from basic auth, decoding
// the percent-encoding mandated by RFC 6749 section 2.3.1, falling back to
// form fields.
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		if decoded, err := url.QueryUnescape(id); err == nil {
			id = decoded
		}
		if decoded, err := url.QueryUnescape(secret); err == nil {
			secret = decoded
		}
		return id, secret
	}
	return r.FormValue("client_id"), r.FormValue("client_secret")
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

func (s *Server) writeToken(rw http.ResponseWriter, response *tokenResponse) {
	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(rw).Encode(response)
}

func (s *Server) writeError(rw http.ResponseWriter, status int, code, description string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func (s *Server) redirectError(rw http.ResponseWriter, r *http.Request, redirectURI, state, code, description string) {
	location, err := url.Parse(redirectURI)
	if err != nil {
		s.writeError(rw, http.StatusBadRequest, "invalid_request", "malformed redirect_uri")
		return
	}
	query := location.Query()
	query.Set("error", code)
	query.Set("error_description", description)
	if state != "" {
		query.Set("state", state)
	}
	location.RawQuery = query.Encode()
	http.Redirect(rw, r, location.String(), http.StatusFound)
}
