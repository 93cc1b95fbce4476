package rates

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/valuta-trade/internal/logging"
)

// BreakerState is the circuit state of a ResilientSource.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrSourceCircuitOpen is returned while the breaker is open and the quote
// source is not being called at all.
var ErrSourceCircuitOpen = errors.New("quote source circuit is open")

// ResilientConfig tunes retries and the circuit breaker of a ResilientSource.
type ResilientConfig struct {
	// MaxAttempts is the number of tries per Fetch, defaults to 3.
	MaxAttempts int
	// InitialDelay is the backoff before the second attempt, defaults to 200ms.
	InitialDelay time.Duration
	// MaxDelay caps the backoff, defaults to 2s.
	MaxDelay time.Duration
	// Multiplier grows the backoff per attempt, defaults to 2.
	Multiplier float64
	// MaxFailures is the number of consecutive failed fetches that opens the
	// circuit, defaults to 5.
	MaxFailures int
	// OpenTimeout is how long an open circuit blocks before probing again,
	// defaults to 30s.
	OpenTimeout time.Duration
	// HalfOpenSuccesses is the number of successful probes that close the
	// circuit again, defaults to 2.
	HalfOpenSuccesses int
	Logger            *logging.Logger
}

// ResilientSource decorates a Source with exponential-backoff retries and a
// circuit breaker. Transient provider hiccups are retried within one Fetch;
// a provider that keeps failing is cut off entirely until OpenTimeout
// passes, so every trade does not wait out the full retry schedule.
type ResilientSource struct {
	source Source
	cfg    ResilientConfig
	logger *logging.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu               sync.Mutex
	state            BreakerState
	consecutiveFails int
	probeSuccesses   int
	lastStateChange  time.Time
}

// NewResilientSource wraps a source. Zero config fields take defaults.
func NewResilientSource(source Source, cfg ResilientConfig) *ResilientSource {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &ResilientSource{
		source: source,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
		state:  BreakerClosed,
	}
}

// Fetch tries the wrapped source with backoff between attempts. One Fetch
// counts as one call against the breaker regardless of how many attempts it
// took.
func (s *ResilientSource) Fetch(ctx context.Context, fromCode, toCode string) (Quote, error) {
	if err := s.allow(); err != nil {
		return Quote{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		quote, err := s.source.Fetch(ctx, fromCode, toCode)
		if err == nil {
			s.record(nil)
			if attempt > 1 {
				s.logger.WithField("attempts", attempt).Info("quote fetch succeeded after retry")
			}
			return quote, nil
		}
		lastErr = err

		if attempt == s.cfg.MaxAttempts || ctx.Err() != nil {
			break
		}

		delay := s.backoff(attempt)
		s.logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		}).Warn("quote fetch failed, retrying")

		if err := s.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	s.record(lastErr)
	return Quote{}, lastErr
}

// State returns the current breaker state.
func (s *ResilientSource) State() BreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ResilientSource) backoff(attempt int) time.Duration {
	d := float64(s.cfg.InitialDelay) * math.Pow(s.cfg.Multiplier, float64(attempt-1))
	if d > float64(s.cfg.MaxDelay) {
		d = float64(s.cfg.MaxDelay)
	}
	return time.Duration(d)
}

func (s *ResilientSource) allow() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == BreakerOpen {
		if s.now().Sub(s.lastStateChange) < s.cfg.OpenTimeout {
			return ErrSourceCircuitOpen
		}
		s.setState(BreakerHalfOpen)
		s.probeSuccesses = 0
		s.logger.Info("quote source circuit half-open, probing")
	}
	return nil
}

func (s *ResilientSource) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.consecutiveFails = 0
		if s.state == BreakerHalfOpen {
			s.probeSuccesses++
			if s.probeSuccesses >= s.cfg.HalfOpenSuccesses {
				s.setState(BreakerClosed)
				s.logger.Info("quote source circuit closed after recovery")
			}
		}
		return
	}

	s.consecutiveFails++
	switch s.state {
	case BreakerHalfOpen:
		s.setState(BreakerOpen)
		s.logger.Warn("quote source circuit reopened, probe failed")
	case BreakerClosed:
		if s.consecutiveFails >= s.cfg.MaxFailures {
			s.setState(BreakerOpen)
			s.logger.WithField("consecutive_failures", s.consecutiveFails).
				Warn("quote source circuit opened")
		}
	}
}

func (s *ResilientSource) setState(state BreakerState) {
	s.state = state
	s.lastStateChange = s.now()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
