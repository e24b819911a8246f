// Package server exposes annotation sessions over websocket.
//
// Every accepted connection gets its own annotator.Session. Messages on one
// connection are handled strictly in order: decode, handle, write the reply,
// then read the next message. The segmenter is shared by all connections.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/defectctl/internal/annotator"
	"github.com/danmuck/defectctl/internal/auth"
	"github.com/danmuck/defectctl/internal/config"
	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/observability"
	"github.com/danmuck/defectctl/internal/segment"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Version is reported by /health. Release builds set it with -ldflags.
var Version = "dev"

const serviceName = "defectd"

type Server struct {
	cfg      config.Server
	store    annotator.FaceStore
	seg      segment.Segmenter
	engine   *gin.Engine
	upgrader websocket.Upgrader
	started  time.Time

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func New(cfg config.Server, store annotator.FaceStore, seg segment.Segmenter) *Server {
	cfg.Session = cfg.Session.WithDefaults()
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = config.DefaultServer().Path
	}
	observability.RegisterMetrics()

	s := &Server{
		cfg:     cfg,
		store:   store,
		seg:     seg,
		started: time.Now(),
		conns:   make(map[string]*websocket.Conn),
	}
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
		CheckOrigin:      s.checkOrigin,
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(observability.RequestLogger(observability.InitLogger(serviceName)))
	s.engine.Use(observability.RequestMetricsMiddleware(serviceName))
	s.registerRoutes(auth.ForToken(cfg.AuthToken))
	return s
}

// Handler returns the HTTP handler serving health, metrics and websocket routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ActiveSessions returns the number of open websocket sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.cfg.Session.ValidateServerTransport(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	logs.Infof("server.Server.Run listening addr=%q path=%q scheme=%s", ln.Addr().String(), s.cfg.Path, s.cfg.Scheme())
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes every open
// session and shuts the HTTP server down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	tlsCfg, err := s.cfg.Session.ServerTLSConfig()
	if err != nil {
		_ = ln.Close()
		return err
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.Session.HandshakeTimeout,
		TLSConfig:         tlsCfg,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logs.Warnf("server.Server.Serve shutdown err=%v", err)
		}
	}()

	if tlsCfg != nil {
		err = srv.ServeTLS(ln, "", "")
	} else {
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.cfg.AllowedOrigins) == 0 {
		return sameHost(origin, r.Host)
	}
	return slices.Contains(s.cfg.AllowedOrigins, origin)
}

func sameHost(origin, host string) bool {
	_, rest, ok := strings.Cut(origin, "://")
	return ok && strings.EqualFold(rest, host)
}

func (s *Server) track(id string, ws *websocket.Conn) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[id] = ws
	return len(s.conns)
}

func (s *Server) untrack(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
	return len(s.conns)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for _, ws := range s.conns {
		conns = append(conns, ws)
	}
	s.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, ws := range conns {
		_ = ws.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = ws.Close()
	}
}
