// Package api is CareCircle's HTTP service: triage sessions, the caregiver directory, alert intake
// with task assignment, task outcomes and the family timeline.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/CareCircle/internal/assign"
	"github.com/BTreeMap/CareCircle/internal/genai"
	"github.com/BTreeMap/CareCircle/internal/messaging"
	"github.com/BTreeMap/CareCircle/internal/recovery"
	"github.com/BTreeMap/CareCircle/internal/scheduler"
	"github.com/BTreeMap/CareCircle/internal/store"
)

// Server defaults.
const (
	DefaultServerAddress      = ":8080"
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultReadHeaderTimeout  = 10 * time.Second
	DefaultJobPollInterval    = 5 * time.Second
	DefaultOutboxPollInterval = 2 * time.Second
)

// Opts holds configuration for Run.
type Opts struct {
	Addr           string
	SweepCron      string
	SessionMaxIdle time.Duration
	RerankEnabled  bool
}

// Option configures Run.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSweepCron sets the cron expression for the abandoned triage-session sweep.
func WithSweepCron(expr string) Option {
	return func(o *Opts) { o.SweepCron = expr }
}

// WithSessionMaxIdle sets how long an active triage session may go untouched before it is swept.
func WithSessionMaxIdle(d time.Duration) Option {
	return func(o *Opts) { o.SessionMaxIdle = d }
}

// WithRerank enables the LLM re-ranker over the top assignment candidates.
func WithRerank(enabled bool) Option {
	return func(o *Opts) { o.RerankEnabled = enabled }
}

// Server holds the dependencies shared by the HTTP handlers.
type Server struct {
	st         store.Store
	msgService messaging.Service
	dispatcher *messaging.Dispatcher
	assigner   *assign.Assigner
	jobs       store.JobRepo   // nil when the store has no durable job queue
	dedup      store.DedupRepo // nil when the store cannot record inbound keys
	locks      *keyedMutex
	now        func() time.Time
}

// NewServer wires a Server. Notifications go through the store's outbox when it has one and are
// delivered immediately otherwise. A nil reranker keeps the pure score ordering.
func NewServer(st store.Store, msgService messaging.Service, reranker assign.ReRanker) *Server {
	s := &Server{
		st:         st,
		msgService: msgService,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
	if ob, ok := st.(store.OutboxRepo); ok {
		s.dispatcher = messaging.NewDispatcher(ob, msgService)
	} else {
		slog.Debug("Server: store has no outbox, notifications will be sent inline")
		s.dispatcher = messaging.NewDispatcher(nil, msgService)
	}
	if jr, ok := st.(store.JobRepo); ok {
		s.jobs = jr
	}
	if dr, ok := st.(store.DedupRepo); ok {
		s.dedup = dr
	}
	var assignOpts []assign.AssignerOption
	if reranker != nil {
		assignOpts = append(assignOpts, assign.WithReRanker(reranker))
	}
	s.assigner = assign.NewAssigner(assign.NewScorer(nil), st, st, assignOpts...)
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/triage/templates", s.triageTemplatesHandler)
	mux.HandleFunc("/triage/templates/", s.triageTemplatesHandler)
	mux.HandleFunc("/triage/sessions", s.createSessionHandler)
	mux.HandleFunc("/triage/sessions/", s.sessionRouter)
	mux.HandleFunc("/members", s.membersHandler)
	mux.HandleFunc("/alerts", s.alertsHandler)
	mux.HandleFunc("/assignments/score", s.scoreHandler)
	mux.HandleFunc("/tasks", s.listTasksHandler)
	mux.HandleFunc("/tasks/", s.taskRouter)
	mux.HandleFunc("/outcomes/templates", s.outcomeTemplatesHandler)
	mux.HandleFunc("/timeline", s.timelineHandler)
	return mux
}

// createStore picks the backend from the configured DSN: none means in-memory.
func createStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Warn("No database DSN configured, using in-memory store; data will not survive restarts")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		return store.NewPostgresStore(opts...)
	}
	return store.NewSQLiteStore(opts...)
}

func createMessagingService(twilioOpts []messaging.TwilioOption) messaging.Service {
	client, err := messaging.NewTwilioClient(twilioOpts...)
	if err != nil {
		slog.Warn("Twilio not configured, notifications will only be logged", "reason", err)
		return messaging.LogService{}
	}
	return messaging.NewTwilioService(client)
}

func createReRanker(enabled bool, genaiOpts []genai.Option) assign.ReRanker {
	if !enabled {
		return nil
	}
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("GenAI re-ranking requested but client unavailable, using score order", "error", err)
		return nil
	}
	return genai.NewReRanker(client)
}

// Run builds every module from its options, serves HTTP, and runs the background workers until
// SIGINT or SIGTERM.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, twilioOpts []messaging.TwilioOption, apiOpts []Option) error {
	cfg := Opts{Addr: DefaultServerAddress, SweepCron: scheduler.DefaultSweepSpec}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	st, err := createStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	srv := NewServer(st, createMessagingService(twilioOpts), createReRanker(cfg.RerankEnabled, genaiOpts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := scheduler.NewSessionSweeper(st, cfg.SessionMaxIdle, scheduler.WithSessionLocker(srv.lockSession))
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sweeper.Schedule(sched, cfg.SweepCron); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	srv.startWorkers(ctx, sweeper)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("CareCircle API listening", "addr", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping API server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	return nil
}

// lockSession takes the lock the triage handlers hold while they read and write a session.
func (s *Server) lockSession(alertID string) func() {
	return s.locks.Lock("session:" + alertID)
}

// startWorkers runs startup recovery and then launches the durable job runner and outbox sender
// when the store supports them. A non-nil sweeper also clears sessions abandoned while stopped.
func (s *Server) startWorkers(ctx context.Context, sweeper *scheduler.SessionSweeper) {
	mgr := recovery.NewManager()
	var runner *store.JobRunner
	var sender *store.OutboxSender

	if s.jobs != nil {
		runner = store.NewJobRunner(s.jobs, DefaultJobPollInterval)
		runner.RegisterHandler(JobKindFollowUpCheckIn, s.handleFollowUpCheckIn)
		mgr.Register(recovery.Func("job runner", func(context.Context) error { return runner.RecoverStaleJobs() }))
	}
	if ob, ok := s.st.(store.OutboxRepo); ok {
		sender = store.NewOutboxSender(ob, s.dispatcher.Deliver, DefaultOutboxPollInterval)
		mgr.Register(recovery.Func("outbox sender", func(context.Context) error { return sender.RecoverStaleMessages() }))
	}
	if sweeper != nil {
		mgr.Register(recovery.Func("triage session sweep", func(context.Context) error {
			_, err := sweeper.Sweep()
			return err
		}))
	}

	if err := mgr.RecoverAll(ctx); err != nil {
		slog.Error("Server.startWorkers: startup recovery incomplete", "error", err)
	}
	if runner != nil {
		go runner.Run(ctx)
	}
	if sender != nil {
		go sender.Run(ctx)
	}
}
