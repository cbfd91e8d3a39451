// Package notify delivers reports and alerts to the operator's channels.
// Each channel implements ports.Notifier; the Dispatcher fans a message
// out to every configured channel and collects per-channel failures so a
// broken channel never blocks the others.
package notify

import (
	"context"
	"fmt"
	"strings"

	"cryptoGuardBot/internal/ports"
)

// Dispatcher fans messages out to a set of channels. It implements
// ports.Notifier itself, so callers hold a single notifier regardless of
// how many channels are configured.
type Dispatcher struct {
	senders []ports.Notifier
	logger  ports.Logger
}

// NewDispatcher creates a Dispatcher delivering to the given senders. An
// empty sender list is valid; Send becomes a no-op.
func NewDispatcher(logger ports.Logger, senders ...ports.Notifier) (*Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for notification dispatcher")
	}
	return &Dispatcher{senders: senders, logger: logger}, nil
}

// Send delivers the message to every channel. Failures are collected and
// returned as one combined error after all channels were attempted.
func (d *Dispatcher) Send(ctx context.Context, subject, body string) error {
	if len(d.senders) == 0 {
		d.logger.Debug(ctx, "No notification channels configured, dropping message",
			map[string]interface{}{"subject": subject})
		return nil
	}

	var failures []string
	for _, s := range d.senders {
		if err := s.Send(ctx, subject, body); err != nil {
			d.logger.Error(ctx, err, "Notification channel failed",
				map[string]interface{}{"channel": s.Name(), "subject": subject})
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		d.logger.Debug(ctx, "Notification sent",
			map[string]interface{}{"channel": s.Name(), "subject": subject})
	}

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d notification channels failed: %s",
			len(failures), len(d.senders), strings.Join(failures, "; "))
	}
	return nil
}

// Name returns the channel identifier.
func (d *Dispatcher) Name() string {
	return "dispatcher"
}
