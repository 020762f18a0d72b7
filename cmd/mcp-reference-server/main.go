package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mcpref/mcpserver/authserver"
	"github.com/mcpref/mcpserver/discovery"
	"github.com/mcpref/mcpserver/dispatch"
	"github.com/mcpref/mcpserver/middleware"
	"github.com/mcpref/mcpserver/protocol"
	"github.com/mcpref/mcpserver/scopes"
	"github.com/mcpref/mcpserver/session"
	"github.com/mcpref/mcpserver/transport/stdio"
	"github.com/mcpref/mcpserver/transport/streamhttp"
)

const serverName = "mcp-reference-server"

type config struct {
	transport      string
	addr           string
	baseURL        string
	cursorSecret   []byte
	oauthSecret    []byte
	allowedOrigins []string
	stateless      bool
	requireAuth    bool
	idleTTL        time.Duration
	logLevel       string
}

func loadConfig() (*config, error) {
	cfg := &config{
		transport: envOr("MCP_TRANSPORT", "http"),
		addr:      envOr("MCP_ADDR", ":8080"),
		baseURL:   strings.TrimRight(envOr("MCP_BASE_URL", "http://localhost:8080"), "/"),
		logLevel:  envOr("MCP_LOG_LEVEL", "info"),
		idleTTL:   30 * time.Minute,
	}
	cursorSecret := os.Getenv("MCP_CURSOR_SECRET")
	if cursorSecret == "" {
		return nil, errors.New("MCP_CURSOR_SECRET is required (at least 32 bytes)")
	}
	cfg.cursorSecret = []byte(cursorSecret)
	if oauthSecret := os.Getenv("MCP_OAUTH_SECRET"); oauthSecret != "" {
		cfg.oauthSecret = []byte(oauthSecret)
	} else {
		cfg.oauthSecret = make([]byte, 32)
		if _, err := rand.Read(cfg.oauthSecret); err != nil {
			return nil, err
		}
	}
	if origins := os.Getenv("MCP_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.allowedOrigins = append(cfg.allowedOrigins, origin)
			}
		}
	}
	cfg.stateless = os.Getenv("MCP_STATELESS") == "true"
	cfg.requireAuth = os.Getenv("MCP_REQUIRE_AUTH") == "true"
	if ttl := os.Getenv("MCP_IDLE_TTL"); ttl != "" {
		parsed, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, err
		}
		cfg.idleTTL = parsed
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}
	if level, err := zerolog.ParseLevel(cfg.logLevel); err == nil {
		logger = logger.Level(level)
	}

	cursorCodec, err := dispatch.NewCursorCodec(cfg.cursorSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid cursor secret")
	}

	lifecycle := protocol.New(
		protocol.Implementation{Name: serverName, Version: "1.0.0"},
		protocol.Capabilities{
			"tools":       map[string]interface{}{"listChanged": true},
			"logging":     map[string]interface{}{},
			"completions": map[string]interface{}{},
		},
		protocol.WithInstructions("Reference MCP server. Call tools/list to discover the available tools."),
	)
	registry := dispatch.NewRegistry()
	registry.Register(dispatch.EchoTool())
	registry.Register(dispatch.TimeTool())
	dispatcher := dispatch.NewDispatcher(lifecycle, registry,
		dispatch.WithCursorCodec(cursorCodec),
		dispatch.WithLogger(logger))

	if cfg.transport == "stdio" {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		logger.Info().Msg("serving on stdio")
		if err := stdio.New(dispatcher, stdio.WithLogger(logger)).ListenAndServe(ctx); err != nil &&
			!errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("stdio server failed")
		}
		return
	}

	resourceMetadataURL := cfg.baseURL + "/.well-known/oauth-protected-resource"
	issuer := cfg.baseURL + "/oauth"

	sessions := session.NewManager(
		session.WithIdleTTL(cfg.idleTTL),
		session.WithLogger(logger))
	defer sessions.Close()

	handler := streamhttp.New(dispatcher,
		streamhttp.WithAllowedOrigins(cfg.allowedOrigins...),
		streamhttp.WithStateless(cfg.stateless),
		streamhttp.WithSessionManager(sessions),
		streamhttp.WithScopes(scopes.NewManager(scopes.WithResourceMetadataURL(resourceMetadataURL))),
		streamhttp.WithLogger(logger))

	oauth := authserver.NewServer(issuer, cfg.oauthSecret,
		authserver.WithAudience(cfg.baseURL+"/mcp"),
		authserver.WithSweepInterval(time.Minute),
		authserver.WithLogger(logger))
	defer oauth.Close()

	authOptions := []middleware.Option{
		middleware.WithResourceMetadataURL(resourceMetadataURL),
		middleware.WithLogger(logger),
	}
	if !cfg.requireAuth {
		authOptions = append(authOptions, middleware.WithAllowUnauthenticated(true))
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Handle("/mcp", middleware.BearerAuth(authOptions...)(handler))
	router.Mount("/oauth", oauth.Router())
	router.Get("/.well-known/oauth-authorization-server", discovery.OAuthServerMetadataHandler(issuer))
	router.Get("/.well-known/oauth-protected-resource", discovery.ProtectedResourceMetadataHandler(discovery.ResourceConfig{
		ResourceURL:          cfg.baseURL + "/mcp",
		AuthorizationServers: []string{issuer},
	}))
	router.Get("/health", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr:              cfg.addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", cfg.addr).Bool("stateless", cfg.stateless).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	lifecycle.InitiateShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown incomplete")
	}
}
