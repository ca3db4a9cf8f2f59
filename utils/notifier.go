package utils

import (
	"context"
	"errors"

	"go-freshmart/services"
)

// MultiNotifier fans an event out to every configured sink and joins their errors.
type MultiNotifier []services.Notifier

// NewMultiNotifier drops nil sinks. It returns nil when none remain.
func NewMultiNotifier(sinks ...services.Notifier) services.Notifier {
	var out MultiNotifier
	for _, sink := range sinks {
		if sink != nil && !isNilSink(sink) {
			out = append(out, sink)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Notify delivers to every sink.
func (m MultiNotifier) Notify(ctx context.Context, event services.Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isNilSink(n services.Notifier) bool {
	switch v := n.(type) {
	case *EmailService:
		return v == nil
	case *EventPublisher:
		return v == nil
	}
	return false
}
