// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gopkg.in/irc.v4"
)

// RemoteFactory creates the remote session of a new client connection.
type RemoteFactory func(log zerolog.Logger) (RemoteService, error)

// SessionInfo describes a connected client for the admin API.
type SessionInfo struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	UserID     string    `json:"user_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

type session struct {
	info   SessionInfo
	remote RemoteService
}

// Server accepts IRC client connections and runs one Bridge per connection.
// Sessions share no state.
type Server struct {
	cfg       *Config
	newRemote RemoteFactory
	log       zerolog.Logger

	listener net.Listener
	admin    *http.Server
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer creates a server. Start must be called to begin accepting.
func NewServer(cfg *Config, newRemote RemoteFactory, log zerolog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		newRemote: newRemote,
		log:       log.With().Str("component", "server").Logger(),
		sessions:  make(map[string]*session),
	}
}

// Start binds the IRC listener and, if configured, the admin API.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = ln
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	s.log.Info().Str("addr", ln.Addr().String()).Msg("Accepting IRC clients")

	if s.cfg.AdminAPIAddr != "" {
		s.admin = &http.Server{
			Addr:         s.cfg.AdminAPIAddr,
			Handler:      s.AdminHandler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			s.log.Info().Str("addr", s.cfg.AdminAPIAddr).Msg("Starting admin API")
			if err := s.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error().Err(err).Msg("Admin API error")
			}
		}()
	}
	return nil
}

// Addr returns the address of the IRC listener.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop closes the listener, ends every session and waits for them.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.admin.Shutdown(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Failed to shut down admin API")
		}
		cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("Server stopped")
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("Failed to accept connection")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(ctx, conn)
		}()
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	id := uuid.NewString()
	log := s.log.With().
		Str("session_id", id).
		Str("remote_addr", conn.RemoteAddr().String()).
		Logger()

	remote, err := s.newRemote(log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create remote session")
		ircConn := NewClientConn(conn)
		_ = ircConn.WriteMessage(&irc.Message{Command: "ERROR", Params: []string{"Closing link: remote unavailable"}})
		_ = ircConn.Close()
		return
	}

	s.addSession(id, conn.RemoteAddr().String(), remote)
	defer s.removeSession(id)

	log.Info().Msg("Session started")
	bridge := NewBridge(s.cfg, NewClientConn(conn), remote, log)
	err = bridge.Run(ctx)

	var sessionErr *SessionError
	var transportErr *TransportError
	var configErr *ConfigurationError
	switch {
	case err == nil:
		log.Info().Msg("Session ended")
	case errors.As(err, &sessionErr):
		log.Warn().Err(err).Str("op", sessionErr.Op).Msg("Session ended: remote session failed")
	case errors.As(err, &transportErr):
		log.Warn().Err(err).Str("op", transportErr.Op).Msg("Session ended: transport failed")
	case errors.As(err, &configErr):
		log.Warn().Err(err).Str("field", configErr.Field).Msg("Session ended: missing credentials")
	default:
		log.Error().Err(err).Msg("Session ended")
	}
}

func (s *Server) addSession(id, remoteAddr string, remote RemoteService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &session{
		info:   SessionInfo{ID: id, RemoteAddr: remoteAddr, StartedAt: time.Now()},
		remote: remote,
	}
	sessionsActive.Inc()
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		sessionsActive.Dec()
	}
}

// Sessions returns the active sessions, oldest first.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		info := sess.info
		info.UserID = string(sess.remote.UserID())
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b SessionInfo) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return out
}

// AdminHandler returns the admin API: /metrics and /api/sessions.
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/sessions", s.HandleSessions)
	return mux
}

// HandleSessions is an HTTP handler for GET /api/sessions.
func (s *Server) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Sessions()); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write sessions response")
	}
}
