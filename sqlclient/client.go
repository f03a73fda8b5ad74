package sqlclient

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tuannm99/novaquery/internal/dispatch"
	"github.com/tuannm99/novaquery/server/novasqlwire"
	"github.com/tuannm99/novaquery/sqlrequest"
)

// Page is one page of rows; an empty Cursor means there are no more.
type Page = dispatch.Page

// ServerError is an error response sent by the server.
type ServerError struct {
	Code     string
	Message  string
	Failures []string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("novaquery: %s: %s", e.Code, e.Message)
}

// Client is a simple synchronous client.
// It locks send/recv so you can call Query concurrently but they'll serialize.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
	id   atomic.Uint64

	// Optional per-request timeout (0 = no timeout).
	rwTimeout time.Duration
}

func Dial(addr string, timeout time.Duration) (*Client, error) {
	return DialContext(context.Background(), addr, timeout)
}

func DialContext(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: c}, nil
}

// DialWithRetry keeps dialing with exponential backoff until it connects,
// maxElapsed passes or ctx is done.
func DialWithRetry(ctx context.Context, addr string, timeout, maxElapsed time.Duration) (*Client, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 100 * time.Millisecond
	exp.MaxInterval = 2 * time.Second
	exp.MaxElapsedTime = maxElapsed

	var cli *Client
	op := func() error {
		c, err := DialContext(ctx, addr, timeout)
		if err != nil {
			return err
		}
		cli = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(exp, ctx)); err != nil {
		return nil, fmt.Errorf("sqlclient: dial %s: %w", addr, err)
	}
	return cli, nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

// SetRWTimeout sets a per-Query read/write deadline.
func (c *Client) SetRWTimeout(d time.Duration) {
	if c == nil {
		return
	}
	c.rwTimeout = d
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Query validates req locally, sends it and waits for its page. Server side
// failures come back as *ServerError.
func (c *Client) Query(ctx context.Context, req *sqlrequest.Request) (*Page, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("sqlclient: nil client")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	reqID := c.id.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}
	defer func() {
		// Clear deadline after request so idle connection doesn't expire.
		_ = c.conn.SetDeadline(time.Time{})
	}()

	if err := novasqlwire.WriteRequest(c.conn, &novasqlwire.ExecuteRequest{ID: reqID, Request: req}); err != nil {
		return nil, err
	}

	payload, err := novasqlwire.ReadFrame(c.conn)
	if err != nil {
		return nil, err
	}
	resp, err := novasqlwire.DecodeResponse(payload)
	if err != nil {
		return nil, err
	}

	if resp.ID != reqID {
		return nil, fmt.Errorf("sqlclient: response id mismatch: got=%d want=%d", resp.ID, reqID)
	}
	if resp.Error != nil {
		return nil, &ServerError{
			Code:     resp.Error.Code,
			Message:  resp.Error.Message,
			Failures: resp.Error.Failures,
		}
	}
	return resp.Page, nil
}

// Next fetches the page after prev using the cursor the server returned.
func (c *Client) Next(ctx context.Context, prev *sqlrequest.Request, cursor string) (*Page, error) {
	return c.Query(ctx, prev.Clone().SetSessionID(cursor))
}

func (c *Client) applyDeadline(ctx context.Context) error {
	// Prefer context deadline if present; otherwise use rwTimeout.
	if dl, ok := ctx.Deadline(); ok {
		return c.conn.SetDeadline(dl)
	}
	if c.rwTimeout > 0 {
		return c.conn.SetDeadline(time.Now().Add(c.rwTimeout))
	}
	return nil
}
