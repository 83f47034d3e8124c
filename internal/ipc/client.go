package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const dialTimeout = 2 * time.Second

// Client is one connection to a running daemon's socket. It may issue any
// number of requests before Close.
type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

// Dial connects to the daemon's socket. A missing or dead socket returns
// an error; callers fall back to the direct store path then.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	r := bufio.NewReader(conn)
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(r),
	}, nil
}

// Available reports whether a live daemon answers on the socket. A stale
// socket file with nothing behind it counts as unavailable.
func Available(path string) bool {
	c, err := Dial(path)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()
	resp, err := c.Do(Request{Action: ActionPing}, dialTimeout)
	return err == nil && resp.OK
}

// Do sends one request and reads one response.
func (c *Client) Do(req Request, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	}
	if err := c.enc.Encode(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &resp, nil
}

// SendText forwards a send through the daemon and returns the assigned
// message id.
func (c *Client) SendText(chatID int64, text string, timeout time.Duration) (int64, error) {
	resp, err := c.Do(Request{Action: ActionSendText, To: chatID, Message: text}, timeout)
	if err != nil {
		return 0, err
	}
	if !resp.OK {
		return 0, fmt.Errorf("daemon: %s", resp.Error)
	}
	return resp.MessageID, nil
}

// MarkRead forwards a read acknowledgement through the daemon.
func (c *Client) MarkRead(chatID int64, msgIDs []int64, timeout time.Duration) error {
	resp, err := c.Do(Request{Action: ActionMarkRead, Chat: chatID, MessageIDs: msgIDs}, timeout)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("daemon: %s", resp.Error)
	}
	return nil
}

// Ping checks daemon liveness.
func (c *Client) Ping(timeout time.Duration) error {
	resp, err := c.Do(Request{Action: ActionPing}, timeout)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("daemon: %s", resp.Error)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
