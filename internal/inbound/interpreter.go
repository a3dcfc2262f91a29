package inbound

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"nudge/internal/channel"
	"nudge/internal/outbox"
	"nudge/internal/task"
)

type Contacts interface {
	Resolve(ctx context.Context, ch channel.Name, address string) (uint64, bool, error)
}

type Tasks interface {
	NewestAwaitingApproval(ctx context.Context, userID uint64) (*task.Task, error)
	Transition(ctx context.Context, id uint64, from, to task.Status, scheduledFor *time.Time) (bool, error)
}

type Inbox interface {
	Record(ctx context.Context, m *Message) error
}

type Outbox interface {
	Enqueue(ctx context.Context, m *outbox.Message) error
}

// Stores are the writes one reply makes. They are handed out by a Tx so the
// task change, the inbox record and the acknowledgement commit together.
type Stores struct {
	Tasks  Tasks
	Inbox  Inbox
	Outbox Outbox
}

type Tx interface {
	Atomic(ctx context.Context, fn func(Stores) error) error
}

// GormTx binds the stores to one database transaction.
type GormTx struct {
	DB *gorm.DB
}

func (g GormTx) Atomic(ctx context.Context, fn func(Stores) error) error {
	return g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(Stores{
			Tasks:  &task.Repo{DB: tx},
			Inbox:  &InboxRepo{DB: tx},
			Outbox: &outbox.Repo{DB: tx},
		})
	})
}

const (
	replyUnlinked     = "We don't recognise this number yet. Link this channel in your settings to reply to your assistant."
	replyNothing      = "Nothing pending right now."
	replyLaterUsage   = `Sorry, I couldn't read that time. Try "Later 3pm" or "Later 15:30".`
	replySkipNone     = "Got it. There's nothing pending to skip."
	replyFreeText     = "Got it, thanks! Your planner will follow up shortly."
	humanTimeLayout   = "Mon Jan 2 at 3:04 PM"
	payloadKindAck    = "reply_ack"
	payloadKindLinkUp = "link_channel"
)

// Inbound is one message received on a channel webhook.
type Inbound struct {
	Channel channel.Name
	Sender  string
	Body    string
}

// Result reports what the interpreter did. The reply has already been
// enqueued when Handle returns, except for unlinked chat senders: chat
// messages need an owner, so that reply is only returned to the caller.
type Result struct {
	UserID   uint64
	Resolved bool
	Intent   Intent
	TaskID   uint64
	Mutated  bool
	Reply    string
}

type Interpreter struct {
	contacts Contacts
	tx       Tx
	loc      *time.Location
	log      *zap.Logger
	now      func() time.Time
}

func NewInterpreter(contacts Contacts, tx Tx, loc *time.Location, log *zap.Logger) *Interpreter {
	if loc == nil {
		loc = time.UTC
	}
	return &Interpreter{contacts: contacts, tx: tx, loc: loc, log: log, now: time.Now}
}

func (i *Interpreter) WithClock(now func() time.Time) *Interpreter {
	i.now = now
	return i
}

// Handle interprets one inbound reply. Logical problems (unknown sender,
// unreadable time, nothing pending) are answered on the same channel and are
// not errors; only store failures are returned, and then nothing was written.
func (i *Interpreter) Handle(ctx context.Context, in Inbound) (Result, error) {
	userID, ok, err := i.contacts.Resolve(ctx, in.Channel, in.Sender)
	if err != nil {
		return Result{}, fmt.Errorf("resolve sender: %w", err)
	}
	if !ok {
		res := Result{Reply: replyUnlinked}
		if in.Channel == channel.Chat {
			return res, nil
		}
		err := i.tx.Atomic(ctx, func(st Stores) error {
			return reply(ctx, st.Outbox, 0, in, res.Reply, payloadKindLinkUp, 0)
		})
		return res, err
	}

	intent, arg := Classify(in.Body)
	var res Result
	err = i.tx.Atomic(ctx, func(st Stores) error {
		res = Result{UserID: userID, Resolved: true, Intent: intent}
		if err := st.Inbox.Record(ctx, &Message{
			UserID:  userID,
			Channel: in.Channel,
			Sender:  in.Sender,
			Body:    in.Body,
			Intent:  intent,
		}); err != nil {
			return fmt.Errorf("record inbound: %w", err)
		}

		var err error
		switch intent {
		case IntentApprove:
			err = i.approve(ctx, st.Tasks, userID, &res)
		case IntentLater:
			err = i.later(ctx, st.Tasks, userID, arg, &res)
		case IntentSkip:
			err = i.skip(ctx, st.Tasks, userID, &res)
		default:
			res.Reply = replyFreeText
		}
		if err != nil {
			return err
		}
		return reply(ctx, st.Outbox, userID, in, res.Reply, payloadKindAck, res.TaskID)
	})
	if err != nil {
		return Result{}, err
	}

	i.log.Info("inbound reply",
		zap.Uint64("user_id", userID),
		zap.String("channel", string(in.Channel)),
		zap.String("intent", string(intent)),
		zap.Uint64("task_id", res.TaskID),
		zap.Bool("mutated", res.Mutated))
	return res, nil
}

func (i *Interpreter) approve(ctx context.Context, tasks Tasks, userID uint64, res *Result) error {
	t, ok, err := moveNewest(ctx, tasks, userID, task.StatusQueued, nil)
	if err != nil {
		return err
	}
	if !ok {
		res.Reply = replyNothing
		return nil
	}
	res.TaskID, res.Mutated = t.ID, true
	res.Reply = fmt.Sprintf("Approved: %q. It's queued up.", t.Title)
	return nil
}

func (i *Interpreter) later(ctx context.Context, tasks Tasks, userID uint64, arg string, res *Result) error {
	ct, err := ParseTrailingClock(arg)
	if err != nil {
		res.Reply = replyLaterUsage
		return nil
	}
	at := ct.Next(i.now(), i.loc)

	t, ok, err := moveNewest(ctx, tasks, userID, task.StatusQueued, &at)
	if err != nil {
		return err
	}
	if !ok {
		res.Reply = replyNothing
		return nil
	}
	res.TaskID, res.Mutated = t.ID, true
	res.Reply = fmt.Sprintf("Scheduled %q for %s.", t.Title, at.Format(humanTimeLayout))
	return nil
}

func (i *Interpreter) skip(ctx context.Context, tasks Tasks, userID uint64, res *Result) error {
	t, ok, err := moveNewest(ctx, tasks, userID, task.StatusCancelled, nil)
	if err != nil {
		return err
	}
	if !ok {
		res.Reply = replySkipNone
		return nil
	}
	res.TaskID, res.Mutated = t.ID, true
	res.Reply = fmt.Sprintf("Cancelled: %q.", t.Title)
	return nil
}

// moveNewest transitions the user's newest waiting_approval task. It reports
// false when there is none, including when a concurrent reply got there
// first.
func moveNewest(ctx context.Context, tasks Tasks, userID uint64, to task.Status, scheduledFor *time.Time) (*task.Task, bool, error) {
	t, err := tasks.NewestAwaitingApproval(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("load pending approval: %w", err)
	}
	if t == nil {
		return nil, false, nil
	}
	ok, err := tasks.Transition(ctx, t.ID, task.StatusWaitingApproval, to, scheduledFor)
	if err != nil {
		return nil, false, fmt.Errorf("transition task %d: %w", t.ID, err)
	}
	return t, ok, nil
}

func reply(ctx context.Context, out Outbox, userID uint64, in Inbound, body, kind string, taskID uint64) error {
	payload := map[string]any{"kind": kind}
	if taskID != 0 {
		payload["task_id"] = taskID
	}
	msg := &outbox.Message{
		UserID:      userID,
		Channel:     in.Channel,
		Destination: in.Sender,
		Body:        body,
		Payload:     outbox.Payload(payload),
	}
	if err := out.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue reply: %w", err)
	}
	return nil
}
