package amqp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchcore/dispatchcore/core/config"
	"github.com/dispatchcore/dispatchcore/core/di"
	"github.com/dispatchcore/dispatchcore/core/dispatch"
	"github.com/dispatchcore/dispatchcore/core/logging"
)

// =============================================================================
// QUEUE/EXCHANGE MUTUAL EXCLUSIVITY TESTS
// =============================================================================

func testDispatcher() *dispatch.Dispatcher {
	return dispatch.New(di.New(), logging.Noop())
}

func TestNewRejectsBothQueueAndExchange(t *testing.T) {
	_, err := New(config.RabbitOptions{Queue: "jobs", Exchange: "events"}, testDispatcher(), logging.Noop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both queue")
}

func TestNewRejectsNeitherQueueNorExchange(t *testing.T) {
	_, err := New(config.RabbitOptions{}, testDispatcher(), logging.Noop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither queue nor exchange")
}

func TestNewAcceptsQueueOnly(t *testing.T) {
	l, err := New(config.RabbitOptions{Queue: "jobs"}, testDispatcher(), logging.Noop())
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewAcceptsExchangeOnly(t *testing.T) {
	l, err := New(config.RabbitOptions{Exchange: "events", ExchangeType: "topic"}, testDispatcher(), logging.Noop())
	require.NoError(t, err)
	assert.NotNil(t, l)
}
