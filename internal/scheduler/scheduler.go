// Package scheduler decides when the assistant reaches out on its own. A
// tick only writes outbox rows and guard records; delivery is the outbox
// worker's job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nudge/internal/channel"
	"nudge/internal/contact"
	"nudge/internal/flags"
	"nudge/internal/outbox"
	"nudge/internal/task"
)

const (
	nudgeTypeOverdue = "overdue"
	maxNudgeTasks    = 3
	dueLayout        = "Mon Jan 2 3:04 PM"
)

type Bindings interface {
	ListVerified(ctx context.Context) ([]contact.Binding, error)
}

type Tasks interface {
	OverduePending(ctx context.Context, userID uint64, now time.Time, limit int) ([]task.Task, error)
	MarkNudged(ctx context.Context, ids []uint64, at time.Time) error
}

type Guards interface {
	ClaimDaily(ctx context.Context, userID uint64, feature string, day time.Time) (bool, error)
	ReleaseDaily(ctx context.Context, userID uint64, feature string, day time.Time) error
	RecentNudge(ctx context.Context, userID uint64, nudgeType string, since time.Time) (bool, error)
	RecordNudges(ctx context.Context, userID uint64, taskIDs []uint64, nudgeType string, at time.Time) error
}

type Outbox interface {
	Enqueue(ctx context.Context, m *outbox.Message) error
}

type Options struct {
	Location    *time.Location
	Preference  []channel.Name
	Concurrency int
}

// Summary describes one tick. It is only logged.
type Summary struct {
	Users    int
	Enqueued int
	Skipped  int // features that were due but already sent or throttled
	Errors   int // users whose evaluation failed
}

type Scheduler struct {
	flags    flags.Source
	bindings Bindings
	tasks    Tasks
	guards   Guards
	outbox   Outbox
	log      *zap.Logger
	opts     Options
	now      func() time.Time
}

func New(src flags.Source, bindings Bindings, tasks Tasks, guards Guards, out Outbox, log *zap.Logger, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Scheduler{
		flags:    src,
		bindings: bindings,
		tasks:    tasks,
		guards:   guards,
		outbox:   out,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run ticks every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum, err := s.Tick(ctx)
			if err != nil {
				s.log.Warn("scheduler tick failed", zap.Error(err))
				continue
			}
			s.log.Info("scheduler tick",
				zap.Int("users", sum.Users),
				zap.Int("enqueued", sum.Enqueued),
				zap.Int("skipped", sum.Skipped),
				zap.Int("errors", sum.Errors))
		}
	}
}

// Tick evaluates every user with a verified channel once. Failing to read
// flags or bindings aborts the tick; a single user's failure does not.
func (s *Scheduler) Tick(ctx context.Context) (Summary, error) {
	var sum Summary
	now := s.now().In(s.opts.Location)

	set, err := flags.Load(ctx, s.flags, flags.Global, flags.DailyCheckin, flags.EveningWrapup, flags.TaskNag)
	if err != nil {
		return sum, fmt.Errorf("load flags: %w", err)
	}
	if !set.Get(flags.Global).Enabled {
		s.log.Debug("proactive assistant disabled")
		return sum, nil
	}

	bindings, err := s.bindings.ListVerified(ctx)
	if err != nil {
		return sum, fmt.Errorf("list bindings: %w", err)
	}
	primary := contact.PickPrimary(bindings, s.opts.Preference)

	userIDs := make([]uint64, 0, len(primary))
	for id := range primary {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	sum.Users = len(userIDs)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, id := range userIDs {
		b := primary[id]
		g.Go(func() error {
			res, err := s.evaluate(ctx, set, b, now)
			mu.Lock()
			defer mu.Unlock()
			sum.Enqueued += res.enqueued
			sum.Skipped += res.skipped
			if err != nil {
				sum.Errors++
				s.log.Warn("scheduler user failed", zap.Uint64("user_id", b.UserID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return sum, nil
}

type outcome int

const (
	outcomeNone outcome = iota // nothing was due
	outcomeSent
	outcomeSkipped // due, but already sent or throttled
)

type userResult struct {
	enqueued int
	skipped  int
}

func (r *userResult) record(o outcome) {
	switch o {
	case outcomeSent:
		r.enqueued++
	case outcomeSkipped:
		r.skipped++
	}
}

// evaluate runs every feature for one user. A failing feature does not stop
// the others.
func (s *Scheduler) evaluate(ctx context.Context, set flags.Set, b contact.Binding, now time.Time) (userResult, error) {
	var res userResult
	var errs []error

	for _, d := range dailyFeatures {
		f := set.Get(d.key)
		if !f.Enabled || !inWindow(f, now) {
			continue
		}
		o, err := s.sendDaily(ctx, b, d, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.key, err))
			continue
		}
		res.record(o)
	}

	if f := set.Get(flags.TaskNag); f.Enabled {
		if interval, ok := f.Interval(); ok {
			o, err := s.nag(ctx, b, interval, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", flags.TaskNag, err))
			}
			res.record(o)
		}
	}
	return res, errors.Join(errs...)
}

type dailyFeature struct {
	key     string
	subject string
	body    string
}

var dailyFeatures = []dailyFeature{
	{
		key:     flags.DailyCheckin,
		subject: "Morning check-in",
		body:    "Good morning! Anything I can take off your plate today? Reply with a task and I'll line it up.",
	},
	{
		key:     flags.EveningWrapup,
		subject: "Evening wrap-up",
		body:    "Wrapping up the day. Anything you want me to handle tomorrow? Reply and I'll plan it.",
	},
}

// inWindow reports whether now's local hour is the configured hour or the
// one before it.
func inWindow(f flags.Flag, now time.Time) bool {
	hour, ok := f.HourValue()
	if !ok {
		return false
	}
	h := now.Hour()
	return h == hour || h == hour-1
}

func (s *Scheduler) sendDaily(ctx context.Context, b contact.Binding, d dailyFeature, now time.Time) (outcome, error) {
	day := calendarDay(now)
	claimed, err := s.guards.ClaimDaily(ctx, b.UserID, d.key, day)
	if err != nil {
		return outcomeNone, fmt.Errorf("claim daily: %w", err)
	}
	if !claimed {
		return outcomeSkipped, nil
	}

	msg := newMessage(b, d.subject, d.body, map[string]any{"kind": d.key, "day": day.Format(time.DateOnly)})
	if err := s.outbox.Enqueue(ctx, msg); err != nil {
		if rerr := s.guards.ReleaseDaily(ctx, b.UserID, d.key, day); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return outcomeNone, fmt.Errorf("enqueue: %w", err)
	}
	return outcomeSent, nil
}

// nag sends one combined reminder for the user's oldest overdue tasks.
func (s *Scheduler) nag(ctx context.Context, b contact.Binding, interval time.Duration, now time.Time) (outcome, error) {
	overdue, err := s.tasks.OverduePending(ctx, b.UserID, now, maxNudgeTasks)
	if err != nil {
		return outcomeNone, fmt.Errorf("overdue tasks: %w", err)
	}
	if len(overdue) == 0 {
		return outcomeNone, nil
	}

	throttled, err := s.guards.RecentNudge(ctx, b.UserID, nudgeTypeOverdue, now.Add(-interval))
	if err != nil {
		return outcomeNone, fmt.Errorf("throttle lookup: %w", err)
	}
	if throttled {
		return outcomeSkipped, nil
	}

	ids := make([]uint64, 0, len(overdue))
	for _, t := range overdue {
		ids = append(ids, t.ID)
	}
	msg := newMessage(b, "Overdue tasks", nagBody(overdue, s.opts.Location),
		map[string]any{"kind": flags.TaskNag, "task_ids": ids})
	if err := s.outbox.Enqueue(ctx, msg); err != nil {
		return outcomeNone, fmt.Errorf("enqueue: %w", err)
	}
	if err := s.guards.RecordNudges(ctx, b.UserID, ids, nudgeTypeOverdue, now); err != nil {
		return outcomeSent, fmt.Errorf("record throttle: %w", err)
	}
	if err := s.tasks.MarkNudged(ctx, ids, now); err != nil {
		return outcomeSent, fmt.Errorf("mark nudged: %w", err)
	}
	return outcomeSent, nil
}

func nagBody(tasks []task.Task, loc *time.Location) string {
	var b strings.Builder
	if len(tasks) == 1 {
		b.WriteString("This one is overdue:")
	} else {
		fmt.Fprintf(&b, "%d tasks are overdue:", len(tasks))
	}
	for _, t := range tasks {
		b.WriteString("\n- ")
		b.WriteString(t.Title)
		if t.DueAt != nil {
			b.WriteString(" (due ")
			b.WriteString(t.DueAt.In(loc).Format(dueLayout))
			b.WriteString(")")
		}
	}
	b.WriteString("\nReply with an update or open the app to reschedule.")
	return b.String()
}

func newMessage(b contact.Binding, subject, body string, payload map[string]any) *outbox.Message {
	return &outbox.Message{
		UserID:      b.UserID,
		Channel:     b.Channel,
		Destination: b.Address,
		Subject:     &subject,
		Body:        body,
		Payload:     outbox.Payload(payload),
	}
}

// calendarDay is the local date of t, as midnight UTC, for the date column.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
