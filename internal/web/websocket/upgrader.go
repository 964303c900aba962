package websocket

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config tunes the HTTP upgrade
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int

	// AllowedOrigins lists browser origins that may connect. Empty allows
	// every origin; "*" does too.
	AllowedOrigins []string

	// TokenExtractor finds the auth token on the upgrade request
	TokenExtractor func(r *http.Request) string

	EnableCompression bool
}

// DefaultConfig allows any origin and reads tokens with ExtractToken
func DefaultConfig() *Config {
	return &Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		TokenExtractor:  ExtractToken,
	}
}

// ExtractToken reads a token from the "token" query parameter or a
// bearer Authorization header
func ExtractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// originChecker accepts requests without an Origin header and those whose
// origin is listed
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimSuffix(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// Upgrader authenticates upgrade requests and hands new clients to a hub
type Upgrader struct {
	config   *Config
	upgrader websocket.Upgrader
	hub      *Hub
}

// NewUpgrader fills unset Config fields with defaults
func NewUpgrader(config *Config, hub *Hub) *Upgrader {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ReadBufferSize == 0 {
		config.ReadBufferSize = 1024
	}
	if config.WriteBufferSize == 0 {
		config.WriteBufferSize = 1024
	}
	if config.TokenExtractor == nil {
		config.TokenExtractor = ExtractToken
	}

	return &Upgrader{
		config: config,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			CheckOrigin:       originChecker(config.AllowedOrigins),
			EnableCompression: config.EnableCompression,
		},
	}
}

func (u *Upgrader) authenticate(r *http.Request) (string, error) {
	if u.hub.authHandler == nil {
		return "", nil
	}
	token := u.config.TokenExtractor(r)
	if token == "" {
		return "", ErrMissingToken
	}
	return u.hub.authHandler(r.Context(), token)
}

// ServeHTTP authenticates and upgrades a browser connection
func (u *Upgrader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject, err := u.authenticate(r)
	if err != nil {
		u.hub.logger.Warn("websocket authentication failed",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		http.Error(w, "unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		u.hub.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.NewString(), conn, u.hub)
	client.Subject = subject

	select {
	case u.hub.register <- client:
	case <-u.hub.ctx.Done():
		conn.Close()
		return
	}

	u.hub.logger.Debug("websocket connected",
		zap.String("client_id", client.ID),
		zap.String("subject", subject))

	go client.serve()
}

// Server pairs a hub with its upgrader
type Server struct {
	Hub      *Hub
	Upgrader *Upgrader
}

// NewServer creates a hub and its upgrader. Call Start to run the hub.
func NewServer(ctx context.Context, config *Config, opts ...HubOption) *Server {
	hub := NewHub(ctx, opts...)
	return &Server{
		Hub:      hub,
		Upgrader: NewUpgrader(config, hub),
	}
}

// Start runs the hub event loop in the background
func (s *Server) Start() {
	go s.Hub.Run()
}

// Shutdown stops the hub and disconnects every client
func (s *Server) Shutdown() {
	s.Hub.Shutdown()
}

// Handler returns the upgrade handler
func (s *Server) Handler() http.HandlerFunc {
	return s.Upgrader.ServeHTTP
}
