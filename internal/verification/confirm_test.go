package verification

import (
	"testing"
	"time"

	"github.com/skylinesee/reeQute/lib/clock"
	"github.com/stretchr/testify/assert"
)

func TestConfirmResolve(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	c := NewConfirmations(clk, 30*time.Second)

	var confirmed, timedOut int
	c.Await("mod/chan", func() { confirmed++ }, func(CancelReason) { timedOut++ })
	assert.True(t, c.Open("mod/chan"))

	assert.False(t, c.Resolve("other/chan"))
	assert.True(t, c.Resolve("mod/chan"))
	assert.False(t, c.Resolve("mod/chan"), "a prompt resolves once")

	clk.Advance(time.Minute)
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 0, timedOut)
}

func TestConfirmTimeout(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	c := NewConfirmations(clk, 30*time.Second)

	var confirmed, timedOut int
	c.Await("mod/chan", func() { confirmed++ }, func(CancelReason) { timedOut++ })

	clk.Advance(29 * time.Second)
	assert.True(t, c.Open("mod/chan"))
	clk.Advance(time.Second)
	assert.False(t, c.Open("mod/chan"))
	assert.False(t, c.Resolve("mod/chan"))

	assert.Equal(t, 0, confirmed)
	assert.Equal(t, 1, timedOut)
}

func TestConfirmReplacesPrompt(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	c := NewConfirmations(clk, 30*time.Second)

	var first, second int
	var reasons []CancelReason
	c.Await("mod/chan", func() { first++ }, func(r CancelReason) { reasons = append(reasons, r) })
	clk.Advance(20 * time.Second)
	c.Await("mod/chan", func() { second++ }, func(r CancelReason) { second += 10 })
	assert.Equal(t, []CancelReason{CancelReplaced}, reasons, "the replaced prompt is cancelled at once")

	clk.Advance(15 * time.Second)
	assert.Equal(t, 0, first)
	assert.Equal(t, []CancelReason{CancelReplaced}, reasons, "the replaced prompt does not time out later")
	assert.True(t, c.Resolve("mod/chan"))
	assert.Equal(t, 1, second)
	assert.Equal(t, 0, clk.Pending())
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(DefaultCodeLength)
	assert.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Regexp(t, `^\d{6}$`, code)

	code, err = GenerateCode(0)
	assert.NoError(t, err)
	assert.Len(t, code, DefaultCodeLength)
}
