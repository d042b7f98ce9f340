package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates the outbound notifications.
type ActivityEventType string

const (
	ActivityAccountCreated      ActivityEventType = "account.created"
	ActivityLoginSuccess        ActivityEventType = "account.login"
	ActivityLoginFailure        ActivityEventType = "account.login.failed"
	ActivityAccountLocked       ActivityEventType = "account.locked"
	ActivityEmailConfirmed      ActivityEventType = "account.email.confirmed"
	ActivityPasswordReset       ActivityEventType = "account.password.reset"
	ActivityConfirmationSent    ActivityEventType = "account.email.confirmation.requested"
	ActivityResetRequested      ActivityEventType = "account.password.reset.requested"
	ActivityProviderLinked      ActivityEventType = "oauth.linked"
	ActivityProviderUnlinked    ActivityEventType = "oauth.unlinked"
	ActivityOAuthUserCreated    ActivityEventType = "user.created.oauth"
	ActivityOAuthLinkedExisting ActivityEventType = "oauth.linked.existing"
)

// ActivityEvent describes something that happened to an account.
type ActivityEvent struct {
	Type       ActivityEventType `json:"type"`
	AccountID  string            `json:"account_id,omitempty"`
	Email      string            `json:"email,omitempty"`
	Provider   string            `json:"provider,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ActivitySink consumes activity events. Sinks are called after the
// originating transaction commits; their errors are logged and never fail
// the operation.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

// NoopActivitySink drops every event.
func NoopActivitySink() ActivitySink {
	return noopActivitySink{}
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// RecordActivity hands event to sink, stamping OccurredAt when unset. A sink
// error or panic is logged and swallowed.
func RecordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	sink = normalizeActivitySink(sink)
	logger = normalizeLogger(logger)

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("activity sink panicked", "event", event.Type, "account_id", event.AccountID, "panic", r)
		}
	}()

	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed", "event", event.Type, "account_id", event.AccountID, "error", err)
	}
}
