// Package notify sends fire-and-forget notifications on selected lifecycle
// events. Delivery failures are logged and dropped; nothing in the request
// path ever waits on a notification.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message is a single outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers notifications. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes notifications to the structured log instead of
// delivering them. It is the default sender; real delivery backends are
// deployment concerns.
type LogSender struct {
	logger *slog.Logger
}

var _ Sender = (*LogSender)(nil)

// NewLogSender returns a sender that logs each message.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "notify")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "notification",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// FormatAmount renders a minor-unit amount in the given ISO 4217 currency
// for inclusion in notification bodies, e.g. FormatAmount(125000, "USD") ->
// "USD 1,250.00".
func FormatAmount(minorUnits int64, code string) (string, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("parsing currency %q: %w", code, err)
	}
	scale, _ := currency.Cash.Rounding(unit)
	major := float64(minorUnits)
	for i := 0; i < scale; i++ {
		major /= 10
	}
	p := message.NewPrinter(language.English)
	return p.Sprintf("%s %.*f", unit.String(), scale, major), nil
}
