package watch

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wristlink/internal/auth"
	"github.com/danmuck/wristlink/internal/observability"
	"github.com/danmuck/wristlink/internal/protocol/session"
	"github.com/danmuck/wristlink/internal/store"
	"github.com/danmuck/wristlink/internal/tools"
	"github.com/danmuck/wristlink/internal/transport"
)

var (
	ErrInvalidHeartbeatInterval = errors.New("watch: invalid heartbeat interval")
	ErrDeviceRequired           = errors.New("watch: device identifier required")
)

// ServiceConfig configures the standalone link daemon.
type ServiceConfig struct {
	DeviceID          string
	Session           session.Config
	DialTimeout       time.Duration
	StatePath         string
	VoltageLog        string
	ControlAddr       string
	ControlToken      string
	MetricsAddr       string
	HeartbeatInterval time.Duration
	ShutdownTimeout   time.Duration

	QuickButtonLeft  string
	QuickButtonRight string
	// QuickActions maps an action name to the command line it runs.
	QuickActions    map[string]string
	HapticFeedback  bool
	InvertLCD       bool
	NotifyOnConnect bool
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DeviceID:          transport.NullID,
		Session:           session.DefaultConfig(),
		DialTimeout:       5 * time.Second,
		StatePath:         "wristlink.db",
		VoltageLog:        "",
		HeartbeatInterval: 30 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		HapticFeedback:    true,
	}
}

// Service runs a Manager with its store, control endpoint and metrics.
type Service struct {
	cfg     ServiceConfig
	db      *store.DB
	prefs   *store.Preferences
	journal *store.CommandJournal
	manager *Manager
	opener  transport.Opener
	actions *tools.Actions
	guard   auth.Validator

	controlClients atomic.Int64
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	cfg.Session = cfg.Session.WithDefaults()
	return &Service{
		cfg:     cfg,
		actions: tools.NewActions(tools.ExecRunner{}, cfg.QuickActions, 0),
		guard:   auth.ForControl(cfg.ControlToken),
	}
}

// Run blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.bootstrap(); err != nil {
		return err
	}
	defer s.close()
	return s.serve(ctx)
}

func (s *Service) Manager() *Manager { return s.manager }

func (s *Service) bootstrap() error {
	if s.cfg.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	if strings.TrimSpace(s.cfg.DeviceID) == "" {
		return ErrDeviceRequired
	}

	db, err := store.Open(s.cfg.StatePath)
	if err != nil {
		return err
	}
	s.db = db
	s.prefs = store.NewPreferences(db)
	s.journal = store.NewCommandJournal(db)

	if s.opener == nil {
		s.opener = transport.NewOpener(transport.Options{
			DialTimeout:        s.cfg.DialTimeout,
			SimulatedReadDelay: s.cfg.Session.SimulatedReadDelay,
		})
	}

	opts := Options{
		DeviceID:         strings.TrimSpace(s.cfg.DeviceID),
		Session:          s.cfg.Session,
		Opener:           s.opener,
		Notifier:         logNotifier{},
		Quick:            s.actions,
		Prefs:            s.prefs,
		Journal:          s.journal,
		QuickButtonLeft:  s.cfg.QuickButtonLeft,
		QuickButtonRight: s.cfg.QuickButtonRight,
		HapticFeedback:   s.cfg.HapticFeedback,
		InvertLCD:        s.cfg.InvertLCD,
		NotifyOnConnect:  s.cfg.NotifyOnConnect,
	}
	if path := strings.TrimSpace(s.cfg.VoltageLog); path != "" {
		opts.Voltage = store.NewVoltageLog(path)
	}
	s.manager = NewManager(opts)

	log.Info().
		Str("device", opts.DeviceID).
		Str("state_path", s.cfg.StatePath).
		Bool("previous_connection", s.prefs.Bool(store.KeyPreviousConnectionState, false)).
		Strs("quick_actions", s.actions.Names()).
		Msg("watch.Service.bootstrap ready")
	return nil
}

func (s *Service) serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return err
	}
	defer s.shutdownManager()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	controlErr := make(chan error, 1)
	metricsErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.ControlAddr); addr != "" {
		go func() {
			controlErr <- s.serveControl(ctx, addr)
		}()
	}
	if addr := strings.TrimSpace(s.cfg.MetricsAddr); addr != "" {
		go func() {
			metricsErr <- observability.Serve(ctx, addr)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("watch.Service.serve shutdown")
			return nil
		case err := <-controlErr:
			if err != nil {
				return err
			}
		case err := <-metricsErr:
			if err != nil {
				return err
			}
		case <-ticker.C:
			log.Info().
				Str("state", s.manager.State().String()).
				Str("identity", s.manager.Identity().String()).
				Int("queue", s.manager.QueueDepth()).
				Str("mode", s.manager.Modes().Top().String()).
				Int64("control_clients", s.controlClients.Load()).
				Msg("watch.Service.heartbeat")
		}
	}
}

func (s *Service) shutdownManager() {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.manager.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("watch.Service.shutdownManager")
	}
	s.actions.Wait()
}

func (s *Service) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

type logNotifier struct{}

func (logNotifier) Notify(title, body string, priority int) {
	log.Info().Str("title", title).Str("body", body).Int("priority", priority).Msg("watch.notify")
}
