package sinks

import (
	"context"
	"errors"

	identity "github.com/goliatone/go-identity"
)

// Multi fans an event out to every sink. Each sink sees the event even when
// an earlier one fails; the failures are joined.
type Multi []identity.ActivitySink

var _ identity.ActivitySink = Multi(nil)

func (m Multi) Record(ctx context.Context, event identity.ActivityEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
