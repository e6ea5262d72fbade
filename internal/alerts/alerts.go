// Package alerts delivers operational alerts from the trading
// pipeline to configured channels. Delivery is best-effort: a broken
// channel is logged and skipped, it never stalls trading.
package alerts

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
)

// Severity levels, ordered.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is one operational notification.
type Alert struct {
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Channel delivers alerts somewhere: the log, Telegram, a webhook.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// Manager fans alerts out to every configured channel. It satisfies
// the trading manager's Alerter contract, so it plugs straight into
// the trade lifecycle. A nil *Manager drops alerts.
type Manager struct {
	channels []Channel
	logger   zerolog.Logger
	now      func() time.Time
}

// NewManager creates a manager over the given channels.
func NewManager(channels ...Channel) *Manager {
	return &Manager{
		channels: channels,
		logger:   config.NewLogger("alerts"),
		now:      time.Now,
	}
}

// Alert delivers to every channel. Failures are logged per channel
// and swallowed.
func (m *Manager) Alert(ctx context.Context, severity, title, message string) {
	if m == nil {
		return
	}

	alert := Alert{
		Severity:  severity,
		Title:     title,
		Message:   message,
		Timestamp: m.now().UTC(),
	}

	for _, ch := range m.channels {
		if err := ch.Send(ctx, alert); err != nil {
			m.logger.Error().
				Err(err).
				Str("channel", ch.Name()).
				Str("title", title).
				Msg("Alert delivery failed")
		}
	}
}

// Critical is shorthand for a critical alert.
func (m *Manager) Critical(ctx context.Context, title, message string) {
	m.Alert(ctx, SeverityCritical, title, message)
}

// Warning is shorthand for a warning alert.
func (m *Manager) Warning(ctx context.Context, title, message string) {
	m.Alert(ctx, SeverityWarning, title, message)
}

// Info is shorthand for an info alert.
func (m *Manager) Info(ctx context.Context, title, message string) {
	m.Alert(ctx, SeverityInfo, title, message)
}

// LogChannel writes alerts to the structured log. Always configured
// so alerts are never silently lost even with no external channel.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel creates the log-backed channel.
func NewLogChannel() *LogChannel {
	return &LogChannel{logger: config.NewLogger("alerts_log")}
}

func (l *LogChannel) Name() string { return "log" }

func (l *LogChannel) Send(_ context.Context, alert Alert) error {
	event := l.logger.Info()
	switch alert.Severity {
	case SeverityCritical:
		event = l.logger.Error()
	case SeverityWarning:
		event = l.logger.Warn()
	}

	event.
		Str("severity", alert.Severity).
		Str("title", alert.Title).
		Time("at", alert.Timestamp).
		Msg(alert.Message)
	return nil
}
