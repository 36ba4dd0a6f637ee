package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyInvokesAllSubscribers(t *testing.T) {
	d := New()
	var calls []uint8

	d.Register(2, func(ch uint8) { calls = append(calls, ch) })
	d.Register(2, func(ch uint8) { calls = append(calls, ch+100) })
	d.Register(3, func(ch uint8) { calls = append(calls, ch) })

	d.Notify(2)

	assert.ElementsMatch(t, []uint8{2, 102}, calls)
}

func TestNotifyOnChannelWithNoSubscribersIsNoop(t *testing.T) {
	d := New()
	assert.NotPanics(t, func() { d.Notify(0) })
}

func TestUnregisterAllRemovesSubscribers(t *testing.T) {
	d := New()
	calls := 0
	d.Register(1, func(uint8) { calls++ })

	d.UnregisterAll(1)
	d.Notify(1)

	assert.Equal(t, 0, calls)
}
