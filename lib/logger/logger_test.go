package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylinesee/reeQute/lib/sl"
)

type sentMessage struct {
	msg   string
	level slog.Level
}

type fakeSender struct {
	sent []sentMessage
}

func (f *fakeSender) SendMessageWithLevel(msg string, level slog.Level) {
	f.sent = append(f.sent, sentMessage{msg: msg, level: level})
}

func TestTelegramHandlerMirrorsAboveThreshold(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	sender := &fakeSender{}
	log := slog.New(NewTelegramHandler(base, sender, slog.LevelWarn))

	log.Info("quiet")
	log.With(sl.Module("provision")).Warn("room not deleted", slog.String("room", "verify-alice"))
	log.Error("task failed", sl.Err(errors.New("boom")))

	assert.Contains(t, buf.String(), "quiet", "base handler still gets everything")
	require.Len(t, sender.sent, 2)

	assert.Equal(t, slog.LevelWarn, sender.sent[0].level)
	assert.Contains(t, sender.sent[0].msg, "*WARN* `room not deleted`")
	assert.Contains(t, sender.sent[0].msg, `room: verify\-alice`)
	assert.Contains(t, sender.sent[0].msg, "mod: provision")

	assert.Contains(t, sender.sent[1].msg, "```error boom ```")
}

func TestTelegramHandlerGroup(t *testing.T) {
	var buf bytes.Buffer
	sender := &fakeSender{}
	log := slog.New(NewTelegramHandler(slog.NewTextHandler(&buf, nil), sender, slog.LevelError))

	log.WithGroup("bridge").Error("stopped")
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].msg, "`bridge.stopped`")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelWarn, ParseLevel(""))
	assert.Equal(t, slog.LevelWarn, ParseLevel("nonsense"))
}
