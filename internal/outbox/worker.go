package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nudge/internal/channel"
)

// Store is the slice of the outbox table the delivery worker needs.
type Store interface {
	Due(ctx context.Context, now time.Time, limit int) ([]Message, error)
	Claim(ctx context.Context, id uint64, now time.Time) (*Message, error)
	MarkSent(ctx context.Context, id uint64, providerID string, at time.Time) error
	RetryLater(ctx context.Context, id uint64, runAt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id uint64, errMsg string) error
	RequeueStale(ctx context.Context, claimedBefore time.Time) (int64, error)
}

type Sender interface {
	Send(ctx context.Context, name channel.Name, env channel.Envelope) (string, error)
}

type Options struct {
	BatchSize    int
	Concurrency  int
	PollInterval time.Duration
	// StaleAfter is how long a row may sit in sending before a pass
	// reclaims it. Zero disables the reaper.
	StaleAfter time.Duration
}

// Summary describes one pass. It is only logged.
type Summary struct {
	Processed    int // rows this pass claimed
	Succeeded    int
	Failed       int // send failures, retried or dead-lettered
	DeadLettered int
	Skipped      int // claimed by someone else
	Errors       int // store errors on a single row
	Reaped       int
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeRetried
	outcomeDeadLettered
	outcomeError
)

func (s *Summary) add(o outcome) {
	switch o {
	case outcomeSkipped:
		s.Skipped++
	case outcomeSent:
		s.Processed++
		s.Succeeded++
	case outcomeRetried:
		s.Processed++
		s.Failed++
	case outcomeDeadLettered:
		s.Processed++
		s.Failed++
		s.DeadLettered++
	case outcomeError:
		s.Errors++
	}
}

type Worker struct {
	store     Store
	sender    Sender
	telemetry Telemetry
	log       *zap.Logger
	opts      Options
	now       func() time.Time
}

func NewWorker(store Store, sender Sender, tel Telemetry, log *zap.Logger, opts Options) *Worker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if tel == nil {
		tel = NopTelemetry{}
	}
	return &Worker{store: store, sender: sender, telemetry: tel, log: log, opts: opts, now: time.Now}
}

// WithClock replaces the worker's clock; used by tests.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum, err := w.RunOnce(ctx)
			if err != nil {
				w.log.Warn("outbox pass failed", zap.Error(err))
				continue
			}
			if sum.Processed > 0 || sum.Reaped > 0 || sum.Errors > 0 {
				w.log.Info("outbox pass",
					zap.Int("processed", sum.Processed),
					zap.Int("succeeded", sum.Succeeded),
					zap.Int("failed", sum.Failed),
					zap.Int("dead_lettered", sum.DeadLettered),
					zap.Int("reaped", sum.Reaped),
					zap.Int("errors", sum.Errors))
			}
		}
	}
}

// RunOnce delivers up to BatchSize due messages. Only failing to read the
// batch is an error; per-row failures are counted and logged.
func (w *Worker) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary
	now := w.now()

	if w.opts.StaleAfter > 0 {
		n, err := w.store.RequeueStale(ctx, now.Add(-w.opts.StaleAfter))
		if err != nil {
			return sum, fmt.Errorf("requeue stale: %w", err)
		}
		sum.Reaped = int(n)
	}

	rows, err := w.store.Due(ctx, now, w.opts.BatchSize)
	if err != nil {
		return sum, fmt.Errorf("load due: %w", err)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(w.opts.Concurrency)
	for _, m := range rows {
		g.Go(func() error {
			o := w.deliver(ctx, m)
			mu.Lock()
			sum.add(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return sum, nil
}

func (w *Worker) deliver(ctx context.Context, m Message) outcome {
	log := w.log.With(zap.Uint64("message_id", m.ID), zap.String("channel", string(m.Channel)))

	claimed, err := w.store.Claim(ctx, m.ID, w.now())
	if err != nil {
		log.Warn("claim failed", zap.Error(err))
		return outcomeError
	}
	if claimed == nil {
		return outcomeSkipped
	}

	providerID, sendErr := w.dispatch(ctx, claimed)
	now := w.now()

	if sendErr == nil {
		if err := w.store.MarkSent(ctx, claimed.ID, providerID, now); err != nil {
			log.Warn("mark sent failed", zap.Error(err))
			return outcomeError
		}
		w.telemetry.Emit(ctx, Event{
			Type:       EventDelivered,
			MessageID:  claimed.ID,
			UserID:     claimed.UserID,
			Channel:    claimed.Channel,
			Attempt:    claimed.AttemptCount,
			ProviderID: providerID,
			At:         now,
		})
		return outcomeSent
	}

	errMsg := sendErr.Error()
	if channel.IsPermanent(sendErr) || claimed.AttemptCount >= claimed.MaxAttempts {
		if err := w.store.MarkFailed(ctx, claimed.ID, errMsg); err != nil {
			log.Warn("mark failed failed", zap.Error(err))
			return outcomeError
		}
		log.Warn("message dead-lettered", zap.Int("attempt", claimed.AttemptCount), zap.Error(sendErr))
		w.telemetry.Emit(ctx, Event{
			Type:      EventDeadLettered,
			MessageID: claimed.ID,
			UserID:    claimed.UserID,
			Channel:   claimed.Channel,
			Attempt:   claimed.AttemptCount,
			Error:     errMsg,
			At:        now,
		})
		return outcomeDeadLettered
	}

	next := now.Add(Backoff(claimed.AttemptCount))
	if err := w.store.RetryLater(ctx, claimed.ID, next, errMsg); err != nil {
		log.Warn("schedule retry failed", zap.Error(err))
		return outcomeError
	}
	log.Info("delivery failed, retrying",
		zap.Int("attempt", claimed.AttemptCount),
		zap.Time("next_attempt", next),
		zap.Error(sendErr))
	return outcomeRetried
}

// dispatch sends one claimed message. A panicking adapter counts as a
// transient failure.
func (w *Worker) dispatch(ctx context.Context, m *Message) (providerID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	if !m.Channel.Valid() {
		return "", channel.Permanent(fmt.Errorf("%w: %q", channel.ErrUnsupported, m.Channel))
	}
	return w.sender.Send(ctx, m.Channel, m.Envelope())
}
