package notifications

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hrassist/internal/domain/identity"
	"hrassist/internal/platform/events"
	"hrassist/internal/platform/jobs"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// Enqueuer is the part of the jobs service the dispatcher uses for email fan-out.
type Enqueuer interface {
	Enqueue(jobType string, run jobs.RunFunc) bool
}

type Options struct {
	Hub        *Hub
	Publisher  events.Publisher
	Mailer     Mailer
	Jobs       Enqueuer
	Identities identity.Reader
	From       string
	HRMailbox  string
}

// Dispatcher serves the two feed projections and fans committed notifications out.
type Dispatcher struct {
	store      StoreAPI
	hub        *Hub
	publisher  events.Publisher
	mailer     Mailer
	jobs       Enqueuer
	identities identity.Reader
	from       string
	hrMailbox  string
}

func New(store StoreAPI, opts Options) *Dispatcher {
	if opts.Publisher == nil {
		opts.Publisher = events.Noop()
	}
	if opts.From == "" {
		opts.From = "no-reply@example.com"
	}
	return &Dispatcher{
		store:      store,
		hub:        opts.Hub,
		publisher:  opts.Publisher,
		mailer:     opts.Mailer,
		jobs:       opts.Jobs,
		identities: opts.Identities,
		from:       opts.From,
		hrMailbox:  opts.HRMailbox,
	}
}

func (d *Dispatcher) Hub() *Hub {
	return d.hub
}

func (d *Dispatcher) Feed(ctx context.Context, employeeID string, q FeedQuery) ([]Notification, error) {
	if employeeID == "" || employeeID == BroadcastScope {
		return nil, fmt.Errorf("invalid recipient %q", employeeID)
	}
	return d.store.List(ctx, employeeID, q)
}

func (d *Dispatcher) AdminFeed(ctx context.Context, q FeedQuery) ([]Notification, error) {
	return d.store.List(ctx, BroadcastScope, q)
}

// Deliver runs after the notification is committed. Failures are logged and never surface to the caller.
func (d *Dispatcher) Deliver(ctx context.Context, n Notification) {
	if d.hub != nil {
		d.hub.Publish(n)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	if err := d.publisher.Publish(pubCtx, n.RecipientScope, n); err != nil {
		zap.L().Warn("notification publish failed", zap.Int64("notificationId", n.ID), zap.Error(err))
	}
	cancel()

	if d.mailer == nil || d.jobs == nil {
		return
	}
	to := d.recipientAddress(ctx, n.RecipientScope)
	if to == "" {
		return
	}
	queued := d.jobs.Enqueue(jobs.JobNotificationEmail, func(jobCtx context.Context) (any, error) {
		if err := d.mailer.Send(jobCtx, d.from, to, n.Title, n.Body); err != nil {
			return map[string]any{"notificationId": n.ID}, err
		}
		return map[string]any{"notificationId": n.ID}, nil
	})
	if !queued {
		zap.L().Warn("notification email dropped", zap.Int64("notificationId", n.ID))
	}
}

func (d *Dispatcher) recipientAddress(ctx context.Context, scope string) string {
	if scope == BroadcastScope {
		return d.hrMailbox
	}
	if d.identities == nil {
		return ""
	}
	ident, err := d.identities.Get(ctx, scope)
	if err != nil {
		zap.L().Warn("notification email lookup failed", zap.String("recipient", scope), zap.Error(err))
		return ""
	}
	return ident.Email
}
