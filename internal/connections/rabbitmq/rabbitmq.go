package rabbitmq

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"table-occupancy/internal/config"
)

var ErrClosed = errors.New("rabbitmq client is closed")

// Client owns one AMQP connection. Consumers open their own channels on it;
// a dropped connection is redialed by the next OpenChannel call.
type Client struct {
	url    string
	useTLS bool

	mu     sync.Mutex
	conn   *amqp.Connection
	closed bool
}

// URL builds the amqp(s) URL for cfg.
func URL(cfg config.RabbitMQConfig) string {
	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}
	scheme := "amqp"
	if cfg.UseTLS {
		scheme = "amqps"
	}
	u := url.URL{
		Scheme:  scheme,
		User:    url.UserPassword(cfg.User, cfg.Password),
		Host:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:    "/" + vhost,
		RawPath: "/" + url.PathEscape(vhost),
	}
	return u.String()
}

func Dial(cfg config.RabbitMQConfig) (*Client, error) {
	c := &Client{url: URL(cfg), useTLS: cfg.UseTLS}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dialLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dialLocked() error {
	var (
		conn *amqp.Connection
		err  error
	)
	if c.useTLS {
		conn, err = amqp.DialTLS(c.url, &tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		conn, err = amqp.Dial(c.url)
	}
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	c.conn = conn
	return nil
}

// OpenChannel returns a new channel, redialing first if the connection
// has gone away.
func (c *Client) OpenChannel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.conn == nil || c.conn.IsClosed() {
		if err := c.dialLocked(); err != nil {
			return nil, err
		}
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

// Лёгкая health-проверка соединения
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
