package transport_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/outboxkit/internal/event"
	"github.com/correlator-io/outboxkit/internal/names"
	"github.com/correlator-io/outboxkit/internal/transport"
)

func TestSubscription_AllMatchesEverything(t *testing.T) {
	sub := transport.All[event.Event]()
	assert.True(t, sub.Matches(event.Event{}))
}

func TestSubscription_OnlyMatchesSelectedAggregateType(t *testing.T) {
	orderType, err := names.NewAggregateType("order")
	require.NoError(t, err)
	shipmentType, err := names.NewAggregateType("shipment")
	require.NoError(t, err)

	sub := transport.Only[event.Event](transport.EventSelector{AggregateType: orderType})

	assert.True(t, sub.Matches(event.Event{AggregateType: orderType}))
	assert.False(t, sub.Matches(event.Event{AggregateType: shipmentType}))
}

func TestSubscription_OnlyMatchesSelectedCommandName(t *testing.T) {
	chargePayment, err := names.NewCommandName("charge_payment")
	require.NoError(t, err)
	cancelOrder, err := names.NewCommandName("cancel_order")
	require.NoError(t, err)

	sub := transport.Only[event.CommandEnvelope](transport.CommandSelector{CommandName: chargePayment})

	assert.True(t, sub.Matches(event.CommandEnvelope{CommandName: chargePayment}))
	assert.False(t, sub.Matches(event.CommandEnvelope{CommandName: cancelOrder}))
}

func TestDelivery_AckAndNackInvokeCallbacks(t *testing.T) {
	var acked, nacked bool

	ackDelivery := transport.NewDelivery("payload", func(context.Context) error {
		acked = true

		return nil
	}, func(context.Context) error {
		nacked = true

		return nil
	})

	require.NoError(t, ackDelivery.Ack(context.Background()))
	assert.True(t, acked)
	assert.False(t, nacked)

	nackDelivery := transport.NewDelivery("payload", func(context.Context) error {
		acked = true

		return nil
	}, func(context.Context) error {
		nacked = true

		return nil
	})

	require.NoError(t, nackDelivery.Nack(context.Background()))
	assert.True(t, nacked)
}
