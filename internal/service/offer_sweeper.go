package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/pkg/jobs"
)

type offerExpirer interface {
	ExpireOffers(ctx context.Context) error
}

// OfferSweeper periodically expires lapsed waitlist offers. Sweeps run on a
// single-worker queue, so two sweeps can never overlap; a tick that finds the
// previous sweep still running is skipped.
type OfferSweeper struct {
	waitlist offerExpirer
	interval time.Duration
	logger   *zap.Logger
	queue    *jobs.Queue
	ticker   *time.Ticker
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewOfferSweeper constructs the sweeper.
func NewOfferSweeper(waitlist offerExpirer, interval time.Duration, logger *zap.Logger) *OfferSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &OfferSweeper{
		waitlist: waitlist,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
	s.queue = jobs.NewQueue("offer-sweep", s.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 1,
		MaxRetries: 1,
		Logger:     logger,
	})
	return s
}

// Start launches the sweep loop until the context is cancelled or Stop is
// called.
func (s *OfferSweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.queue.Start(ctx)
	s.ticker = time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.ticker.C:
				if !s.queue.TryEnqueue(jobs.Job{Type: "expire-offers"}) {
					s.logger.Debug("offer sweep still running, skipping tick")
				}
			}
		}
	}()
	s.logger.Sugar().Infow("offer sweeper started", "interval", s.interval.String())
}

// Stop halts the ticker and drains the queue.
func (s *OfferSweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.ticker.Stop()
	<-s.done
	s.queue.Stop()
}

func (s *OfferSweeper) handle(ctx context.Context, _ jobs.Job) error {
	if err := s.waitlist.ExpireOffers(ctx); err != nil {
		s.logger.Error("offer sweep failed", zap.Error(err))
		return err
	}
	return nil
}
