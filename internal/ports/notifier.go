package ports

import "context"

// Notifier delivers rendered reports and urgent alerts to an external
// channel (chat, email). Implementations must be safe to call from the
// trading cycle; a slow or failing channel must not wedge the bot.
type Notifier interface {
	// Send delivers a message with the given subject and body.
	Send(ctx context.Context, subject, body string) error
	// Name returns a short identifier for the channel (e.g. "telegram").
	Name() string
}
