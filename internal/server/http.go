package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nkootstra/romlink/internal/protocol"
	"github.com/nkootstra/romlink/internal/version"
)

// Router builds the HTTP gateway: health, a JSON view of the catalog,
// metrics and the WebSocket bridge onto the byte protocol.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	r.GET("/healthz", s.handleHealth)
	r.GET("/roms", s.handleRoms)
	r.GET(protocol.WebSocketPath, s.handleWebSocket)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return r
}

// ServeHTTP runs the gateway on ln until ctx is cancelled.
func (s *Server) ServeHTTP(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("http gateway listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"roms":    s.catalog.Len(),
		"stale":   s.Stale(),
		"active":  s.ActiveConnections(),
		"version": version.Version,
	})
}

func (s *Server) handleRoms(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.List())
}

// handleWebSocket carries the byte protocol over binary WebSocket messages.
// The exchange is the same as on TCP: one command in, one response out,
// then the server closes.
func (s *Server) handleWebSocket(c *gin.Context) {
	ws, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", c.ClientIP()).Msg("websocket accept failed")
		return
	}
	ws.SetReadLimit(protocol.CommandFrameLength)

	ctx := c.Request.Context()
	conn := websocket.NetConn(ctx, ws, websocket.MessageBinary)
	s.serveConn(ctx, conn, TransportWebSocket, c.ClientIP())
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http_request")
	}
}
