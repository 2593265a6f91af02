package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/codedesk/codedesk/internal/auth"
	"github.com/codedesk/codedesk/internal/config"
	"github.com/codedesk/codedesk/internal/history"
	"github.com/codedesk/codedesk/internal/metrics"
	"github.com/codedesk/codedesk/internal/model"
	"github.com/codedesk/codedesk/internal/terminal"
)

// Server holds the API server dependencies.
type Server struct {
	echo     *echo.Echo
	cfg      *config.Config
	executor *terminal.Executor
	sessions *terminal.Manager
	registry *terminal.Registry
	model    *model.Client
	history  history.Store
	tokens   *auth.TokenIssuer
}

// Deps carries the constructed subsystems into the server.
type Deps struct {
	Config   *config.Config
	Executor *terminal.Executor
	Sessions *terminal.Manager
	Registry *terminal.Registry
	Model    *model.Client
	History  history.Store
	Tokens   *auth.TokenIssuer
}

// NewServer creates a new API server with all routes configured.
func NewServer(d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		cfg:      d.Config,
		executor: d.Executor,
		sessions: d.Sessions,
		registry: d.Registry,
		model:    d.Model,
		history:  d.History,
		tokens:   d.Tokens,
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(metrics.EchoMiddleware())

	// Ops endpoints (no auth)
	e.GET("/", s.banner)
	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// WebSocket terminal. Registered outside the auth group: browsers cannot
	// set headers on WebSocket connects, so the handler checks a session
	// token or API key itself.
	e.GET("/api/terminal/ws/:sessionId", s.terminalWebSocket)

	// API routes (with auth)
	api := e.Group("/api")
	api.Use(auth.APIKeyMiddleware(d.Config.APIKey))

	// Terminal
	api.POST("/terminal/execute", s.executeCommand)
	api.POST("/terminal/session/create", s.createSession)
	api.GET("/terminal/sessions", s.listSessions)
	api.DELETE("/terminal/session/:id", s.killSession)
	api.POST("/terminal/session/:id/send", s.sendInput)
	api.GET("/terminal/file-tree", s.fileTree)

	// Files
	api.GET("/files/read", s.readFile)
	api.POST("/files/write", s.writeFile)
	api.DELETE("/files/delete", s.deleteFile)
	api.POST("/files/rename", s.renameFile)
	api.GET("/files/list", s.listFiles)
	api.POST("/files/upload", s.uploadFile)
	api.GET("/files/download", s.downloadFile)
	api.GET("/files/archive", s.archiveWorkspace)

	// Chat
	api.POST("/chat/generate", s.generate)
	api.POST("/chat/analyze-code", s.analyzeCode)
	api.POST("/chat/complete", s.complete)
	api.GET("/chat/sessions/:id/context", s.getContext)
	api.DELETE("/chat/sessions/:id/context", s.clearContext)

	return s
}

func (s *Server) banner(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"service": "codedesk",
		"status":  "ok",
	})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"activeSessions": s.registry.Len(),
	})
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Close immediately closes the server.
func (s *Server) Close() error {
	return s.echo.Close()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
