package ipc

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"

	"github.com/arthur-debert/elevlink/pkg/errors"
)

// Client is the worker end of a channel
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	writeMu sync.Mutex
}

// Dial connects to the server listening on address
func Dial(ctx context.Context, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", address)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrChannel, "failed to connect to %s", address)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxMessageSize)
	return &Client{conn: conn, scanner: scanner}, nil
}

// Send writes one message. Safe for concurrent use.
func (c *Client) Send(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return errors.Wrapf(err, errors.ErrChannel, "failed to send %s", msg.Type)
	}
	return nil
}

// Receive blocks for the next message. It returns io.EOF once the server
// has closed the connection.
func (c *Client) Receive() (Message, error) {
	if c.scanner.Scan() {
		return Decode(c.scanner.Bytes())
	}
	if err := c.scanner.Err(); err != nil {
		return Message{}, errors.Wrap(err, errors.ErrChannel, "failed to read from channel")
	}
	return Message{}, io.EOF
}

func (c *Client) Close() error {
	return c.conn.Close()
}
