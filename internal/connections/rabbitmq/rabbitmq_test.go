package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table-occupancy/internal/config"
)

func TestURL(t *testing.T) {
	raw := URL(config.RabbitMQConfig{Host: "mq", Port: 5672, User: "guest", Password: "guest"})
	assert.Equal(t, "amqp://guest:guest@mq:5672/%2F", raw)

	uri, err := amqp.ParseURI(raw)
	require.NoError(t, err)
	assert.Equal(t, "/", uri.Vhost)
	assert.Equal(t, "mq", uri.Host)
}

func TestURL_TLSAndVHost(t *testing.T) {
	raw := URL(config.RabbitMQConfig{Host: "mq", Port: 5671, User: "u", Password: "p", VHost: "restaurant", UseTLS: true})

	uri, err := amqp.ParseURI(raw)
	require.NoError(t, err)
	assert.Equal(t, "amqps", uri.Scheme)
	assert.Equal(t, "restaurant", uri.Vhost)
	assert.Equal(t, 5671, uri.Port)
}

func TestClosedClient(t *testing.T) {
	c := &Client{closed: true}
	_, err := c.OpenChannel()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Error(t, c.Ping())
}
