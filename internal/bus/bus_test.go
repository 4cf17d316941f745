package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmit_SynchronousDeliveryInPublicationOrder(t *testing.T) {
	b := New()
	var seen []int

	b.Subscribe(EventBetDetected, func(_ context.Context, ev Event) {
		seen = append(seen, ev.Payload.(int))
	})

	for i := 0; i < 5; i++ {
		b.Emit(context.Background(), EventBetDetected, i)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestEmit_WildcardSubscriberSeesEveryType(t *testing.T) {
	b := New()
	var types []EventType

	b.Subscribe("", func(_ context.Context, ev Event) {
		types = append(types, ev.Type)
	})

	b.Emit(context.Background(), EventBetDetected, nil)
	b.Emit(context.Background(), EventAlertCreated, nil)

	assert.Equal(t, []EventType{EventBetDetected, EventAlertCreated}, types)
}

func TestSubscribe_DisposerStopsDelivery(t *testing.T) {
	b := New()
	count := 0

	dispose := b.Subscribe(EventSignalGenerated, func(_ context.Context, _ Event) {
		count++
	})
	b.Emit(context.Background(), EventSignalGenerated, nil)
	dispose()
	b.Emit(context.Background(), EventSignalGenerated, nil)

	assert.Equal(t, 1, count)
}

func TestHistory_BoundedToMaxHistory(t *testing.T) {
	b := New()
	for i := 0; i < maxHistory+50; i++ {
		b.Emit(context.Background(), EventRoundStarted, i)
	}

	h := b.History()
	require.Len(t, h, maxHistory)
	assert.Equal(t, 50, h[0].Payload.(int))
	assert.Equal(t, maxHistory+49, h[len(h)-1].Payload.(int))
}

func TestWaitFor_ReturnsOnMatchingPredicate(t *testing.T) {
	b := New()

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Emit(context.Background(), EventAlertCreated, "irrelevant")
		b.Emit(context.Background(), EventAlertCreated, "target")
	}()

	ev, err := b.WaitFor(context.Background(), EventAlertCreated, time.Second, func(ev Event) bool {
		return ev.Payload == "target"
	})
	require.NoError(t, err)
	assert.Equal(t, "target", ev.Payload)
}

func TestWaitFor_TimesOut(t *testing.T) {
	b := New()
	_, err := b.WaitFor(context.Background(), EventCrossSignal, 20*time.Millisecond, nil)
	assert.Error(t, err)
}
