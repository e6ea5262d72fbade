package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureChannel struct {
	name string
	sent []Alert
	err  error
}

func (c *captureChannel) Name() string { return c.name }

func (c *captureChannel) Send(_ context.Context, alert Alert) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, alert)
	return nil
}

func TestManager_FansOutToAllChannels(t *testing.T) {
	a := &captureChannel{name: "a"}
	b := &captureChannel{name: "b"}
	m := NewManager(a, b)

	m.Alert(context.Background(), SeverityWarning, "Order execution failed", "retries exhausted")

	require.Len(t, a.sent, 1)
	require.Len(t, b.sent, 1)
	assert.Equal(t, SeverityWarning, a.sent[0].Severity)
	assert.Equal(t, "Order execution failed", a.sent[0].Title)
	assert.Equal(t, "retries exhausted", b.sent[0].Message)
}

func TestManager_StampsTimestamp(t *testing.T) {
	ch := &captureChannel{name: "log"}
	m := NewManager(ch)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	m.Critical(context.Background(), "Drawdown limit hit", "session paused")

	require.Len(t, ch.sent, 1)
	assert.Equal(t, fixed, ch.sent[0].Timestamp)
	assert.Equal(t, SeverityCritical, ch.sent[0].Severity)
}

func TestManager_BrokenChannelDoesNotBlockOthers(t *testing.T) {
	broken := &captureChannel{name: "telegram", err: errors.New("api down")}
	healthy := &captureChannel{name: "log"}
	m := NewManager(broken, healthy)

	m.Info(context.Background(), "Session summary", "3 trades, 2 wins")

	assert.Empty(t, broken.sent)
	require.Len(t, healthy.sent, 1)
}

func TestManager_NilIsNoOp(t *testing.T) {
	var m *Manager
	m.Alert(context.Background(), SeverityCritical, "title", "message")
	m.Critical(context.Background(), "title", "message")
}

func TestLogChannel_NeverFails(t *testing.T) {
	ch := NewLogChannel()

	for _, severity := range []string{SeverityInfo, SeverityWarning, SeverityCritical, "unknown"} {
		err := ch.Send(context.Background(), Alert{
			Severity:  severity,
			Title:     "test",
			Message:   "test message",
			Timestamp: time.Now(),
		})
		assert.NoError(t, err)
	}
}
