package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"arena-clash/internal/config"
)

// Scheduler drives a Registry: a fast ticker advances combat and broadcasts
// snapshots, and a gocron job reaps abandoned waiting rooms.
type Scheduler struct {
	reg      *Registry
	cron     gocron.Scheduler
	clock    clockwork.Clock
	interval time.Duration
	log      *zap.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewScheduler registers the reaper job. Nothing runs until Start.
func NewScheduler(reg *Registry, cfg config.GameConfig, clock clockwork.Clock, logger *zap.Logger) (*Scheduler, error) {
	if cfg.TickRate <= 0 {
		return nil, fmt.Errorf("tick rate must be positive, got %d", cfg.TickRate)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reaperEvery := cfg.ReaperInterval
	if reaperEvery <= 0 {
		reaperEvery = config.DefaultGame().ReaperInterval
	}

	cron, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLogger(cronLogger{logger.Sugar()}),
	)
	if err != nil {
		return nil, fmt.Errorf("create cron scheduler: %w", err)
	}

	_, err = cron.NewJob(
		gocron.DurationJob(reaperEvery),
		gocron.NewTask(func() {
			if n := reg.Reap(); n > 0 {
				logger.Info("Reaped idle rooms", zap.Int("count", n))
			}
		}),
		gocron.WithName("reaper"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = cron.Shutdown()
		return nil, fmt.Errorf("register reaper job: %w", err)
	}

	return &Scheduler{
		reg:      reg,
		cron:     cron,
		clock:    clock,
		interval: time.Second / time.Duration(cfg.TickRate),
		log:      logger,
	}, nil
}

// Start begins ticking and reaping. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	s.cron.Start()
	go s.loop(s.clock.NewTicker(s.interval), s.stopChan, s.done)

	s.log.Info("Scheduler started", zap.Duration("tick", s.interval))
}

func (s *Scheduler) loop(ticker clockwork.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			s.reg.Tick()
		case <-stop:
			return
		}
	}
}

// Stop halts both drivers and waits for the tick loop to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
	return s.cron.Shutdown()
}

// cronLogger routes gocron's logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l cronLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
func (l cronLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l cronLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
