package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	ChannelEventsDelivered.WithLabelValues("new-message").Inc()

	app := fiber.New()
	app.Get("/metrics", Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "support_chat_websocket_clients")
	assert.Contains(t, string(body), "support_chat_sends_rate_limited_total")
	assert.Contains(t, string(body), `support_chat_channel_events_delivered_total{event="new-message"}`)
}
