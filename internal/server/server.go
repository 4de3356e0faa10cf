package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/tazhate/outlookcal/config"
	"github.com/tazhate/outlookcal/internal/auth"
	"github.com/tazhate/outlookcal/internal/clients/graph"
	"github.com/tazhate/outlookcal/internal/dates"
	"github.com/tazhate/outlookcal/internal/notify"
	"github.com/tazhate/outlookcal/internal/scheduler"
	"github.com/tazhate/outlookcal/internal/service"
	"github.com/tazhate/outlookcal/internal/storage"
)

// Server is the widget-facing surface: a JSON API carrying events out and
// edit intents in, plus the OAuth redirect endpoints. It owns the session
// lifecycle; the sync service and graph client exist only while a user is
// signed in.
type Server struct {
	cfg      *config.Config
	provider *auth.Provider
	store    *storage.Storage
	reporter *notify.Reporter

	httpServer *http.Server

	mu     sync.RWMutex
	sync   *service.SyncService
	user   *graph.User
	state  string
	stopBg context.CancelFunc
	bgDone chan struct{}
}

func New(cfg *config.Config, provider *auth.Provider, store *storage.Storage, reporter *notify.Reporter) *Server {
	s := &Server{
		cfg:      cfg,
		provider: provider,
		store:    store,
		reporter: reporter,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("POST /api/save", s.handleSave)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/me", s.handleMe)
	mux.HandleFunc("GET /api/error", s.handleError)
	mux.HandleFunc("POST /api/error/clear", s.handleErrorClear)
	mux.HandleFunc("GET /api/export.ics", s.handleExport)
	mux.HandleFunc("GET /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/callback", s.handleCallback)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)

	s.httpServer = &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: mux,
	}
	return s
}

// Start restores a persisted session if there is one, then serves until
// ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.provider.SignedIn() {
		if err := s.startSession(ctx); err != nil {
			// A stale token should not keep the server down; the
			// user signs in again through the browser.
			log.Printf("Restoring session failed: %v", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Printf("Server listening on %s", s.httpServer.Addr)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}
}

// Stop shuts the HTTP server down and ends the background refresh.
func (s *Server) Stop(ctx context.Context) error {
	s.endSession()
	return s.httpServer.Shutdown(ctx)
}

// startSession builds the per-session object graph: token source, graph
// client, reconciler, background refresh. The remote client is created
// exactly once per session and injected, never reached through a global.
func (s *Server) startSession(ctx context.Context) error {
	ts, err := s.provider.TokenSource()
	if err != nil {
		return err
	}

	client := graph.NewClient(ts)

	user, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	timezone := s.cfg.Timezone.String()
	if user.MailboxSettings.TimeZone != "" {
		iana, err := dates.ToIANA(user.MailboxSettings.TimeZone)
		if err != nil {
			log.Printf("Mailbox timezone %q not recognized, using %s", user.MailboxSettings.TimeZone, timezone)
		} else {
			timezone = iana
		}
	}
	if err := s.store.SetSetting("timezone", timezone); err != nil {
		log.Printf("Persist timezone: %v", err)
	}

	svc, err := service.NewSyncService(client, s.reporter, timezone, s.cfg.HorizonDays)
	if err != nil {
		return fmt.Errorf("init sync service: %w", err)
	}

	if err := svc.LoadWeek(ctx); err != nil {
		return err
	}
	if err := svc.LoadSurrounding(ctx); err != nil {
		log.Printf("Loading surrounding windows failed: %v", err)
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	sched := scheduler.New(svc, s.cfg.Timezone, s.cfg.RefreshInterval)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.Start(bgCtx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
		sched.Stop()
	}()

	s.mu.Lock()
	s.sync = svc
	s.user = user
	s.stopBg = cancel
	s.bgDone = done
	s.mu.Unlock()

	log.Printf("Session started for %s (timezone %s)", user.Email(), timezone)
	return nil
}

// endSession tears the session state down. Safe to call when signed out.
func (s *Server) endSession() {
	s.mu.Lock()
	cancel, done := s.stopBg, s.bgDone
	s.sync = nil
	s.user = nil
	s.stopBg = nil
	s.bgDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}
}

// session returns the active sync service, or nil when signed out.
func (s *Server) session() *service.SyncService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sync
}

func (s *Server) currentUser() *graph.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func newState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
