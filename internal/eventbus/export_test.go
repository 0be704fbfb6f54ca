package eventbus

import amqp "github.com/rabbitmq/amqp091-go"

// UnderlyingConn exposes the live AMQP connection to broker tests.
func (c *Client) UnderlyingConn() *amqp.Connection {
	c.conn.mu.RLock()
	defer c.conn.mu.RUnlock()
	return c.conn.conn
}
