package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/ports"
)

const (
	defaultFetchLimit = 50
	intakeBuffer      = 256
)

// Session is one polling lifecycle: a fixed-interval loop that fetches
// recent trades for every tracked source wallet and feeds the candidates
// through the filter. A session owns its tick scheduling; ticks never
// overlap because they all execute on the session's single loop goroutine.
type Session struct {
	client     ports.MarketDataClient
	filter     *Filter
	wallets    []string
	interval   time.Duration
	fetchLimit int
	logger     ports.Logger

	intake chan *domain.TradeEvent

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// SessionConfig holds the dependencies and tuning for a polling session.
type SessionConfig struct {
	Client     ports.MarketDataClient
	Filter     *Filter
	Wallets    []string // Tracked source wallets
	Interval   time.Duration
	FetchLimit int // Max trades fetched per wallet per tick
	Logger     ports.Logger
}

// NewSession creates a polling session. Call Start to begin ticking.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Client == nil || cfg.Filter == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for polling session")
	}
	if len(cfg.Wallets) == 0 {
		return nil, fmt.Errorf("at least one tracked wallet is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("polling interval must be positive")
	}
	fetchLimit := cfg.FetchLimit
	if fetchLimit <= 0 {
		fetchLimit = defaultFetchLimit
	}
	return &Session{
		client:     cfg.Client,
		filter:     cfg.Filter,
		wallets:    cfg.Wallets,
		interval:   cfg.Interval,
		fetchLimit: fetchLimit,
		logger:     cfg.Logger,
		intake:     make(chan *domain.TradeEvent, intakeBuffer),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Intake returns the channel through which out-of-band candidates (e.g. from
// the live stream) enter the filter. They share the poller's loop goroutine,
// so they can never race a tick for the seen set.
func (s *Session) Intake() chan<- *domain.TradeEvent {
	return s.intake
}

// Start launches the polling loop. It returns an error if the session was
// already started; a session is single-use.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("polling session already started")
	}
	s.started = true

	go s.loop(ctx)
	s.logger.Info(ctx, "Polling session started", map[string]interface{}{
		"wallets": len(s.wallets), "interval": s.interval.String()})
	return nil
}

// Stop terminates the loop and waits for the in-flight tick to finish.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	select {
	case <-s.stopCh:
		// Already stopping.
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First tick immediately rather than waiting a full interval.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Polling session stopped", map[string]interface{}{"reason": "context cancelled"})
			return
		case <-s.stopCh:
			s.logger.Info(ctx, "Polling session stopped", map[string]interface{}{"reason": "stop requested"})
			return
		case ev := <-s.intake:
			s.filter.Process(ctx, []*domain.TradeEvent{ev})
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fetches all tracked wallets in parallel, joins the results, and runs
// the combined batch through the filter. Per-wallet failures are transient:
// they are logged and the wallet is skipped until the next tick.
func (s *Session) tick(ctx context.Context) {
	var (
		wg         sync.WaitGroup
		resultsMu  sync.Mutex
		candidates []*domain.TradeEvent
	)

	for _, wallet := range s.wallets {
		wg.Add(1)
		go func(wallet string) {
			defer wg.Done()
			trades, err := s.client.RecentTrades(ctx, wallet, s.fetchLimit)
			if err != nil {
				s.logger.Warn(ctx, "Trade fetch failed, will retry next tick", map[string]interface{}{
					"wallet": wallet, "error": err.Error()})
				return
			}
			resultsMu.Lock()
			candidates = append(candidates, trades...)
			resultsMu.Unlock()
		}(wallet)
	}
	// All wallets must be joined before the merge-and-sort step; ordering
	// inside a tick depends on the full candidate set being present.
	wg.Wait()

	if len(candidates) == 0 {
		return
	}
	emitted := s.filter.Process(ctx, candidates)
	if len(emitted) > 0 {
		s.logger.Debug(ctx, "Tick emitted new trade events", map[string]interface{}{
			"candidates": len(candidates), "emitted": len(emitted)})
	}
}
