package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	bus := NewBus()

	ch, cancel := bus.Subscribe("paw_1abc")
	defer cancel()

	bus.Publish("paw_1abc", KindDeposit, map[string]string{"amount": "1.5"})

	select {
	case event := <-ch:
		assert.Equal(t, KindDeposit, event.Kind)
		assert.NotEmpty(t, event.ID)
		assert.NotZero(t, event.Timestamp)
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestPublishIsScopedToWallet(t *testing.T) {
	bus := NewBus()

	ch, cancel := bus.Subscribe("paw_1abc")
	defer cancel()

	bus.Publish("paw_1other", KindWithdrawal, nil)
	assert.Empty(t, ch)
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := NewBus()

	ch, cancel := bus.Subscribe("paw_1abc")
	cancel()

	bus.Publish("paw_1abc", KindDeposit, nil)
	assert.Empty(t, ch)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()

	ch, cancel := bus.Subscribe("paw_1abc")
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish("paw_1abc", KindDeposit, i)
	}
	require.Len(t, ch, subscriberBuffer)
}
