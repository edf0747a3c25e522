package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start its background services.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Carousel.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop its background services.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Carousel.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Carousel.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionList returns sessions optionally filtered by statuses.
func (c *Client) SessionList(statuses []string) (*SessionListResponse, error) {
	var resp SessionListResponse
	if err := c.client.Call("Carousel.SessionList", SessionListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionShow returns one session with its items and audit trail.
func (c *Client) SessionShow(id int64) (*SessionShowResponse, error) {
	var resp SessionShowResponse
	if err := c.client.Call("Carousel.SessionShow", SessionShowRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionAdd registers a remote picker session for import.
func (c *Client) SessionAdd(pickerSessionID, label string) (*SessionAddResponse, error) {
	var resp SessionAddResponse
	req := SessionAddRequest{PickerSessionID: pickerSessionID, Label: label}
	if err := c.client.Call("Carousel.SessionAdd", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionCancel cancels one session.
func (c *Client) SessionCancel(id int64, reason string) (*SessionCancelResponse, error) {
	var resp SessionCancelResponse
	if err := c.client.Call("Carousel.SessionCancel", SessionCancelRequest{ID: id, Reason: reason}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionRetry re-opens a failed session.
func (c *Client) SessionRetry(id int64) (*SessionRetryResponse, error) {
	var resp SessionRetryResponse
	if err := c.client.Call("Carousel.SessionRetry", SessionRetryRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionValidate runs the consistency checks for one session.
func (c *Client) SessionValidate(id int64) (*SessionValidateResponse, error) {
	var resp SessionValidateResponse
	if err := c.client.Call("Carousel.SessionValidate", SessionValidateRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ItemList returns items optionally filtered by statuses.
func (c *Client) ItemList(statuses []string) (*ItemListResponse, error) {
	var resp ItemListResponse
	if err := c.client.Call("Carousel.ItemList", ItemListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ItemShow returns one item with its audit trail.
func (c *Client) ItemShow(id int64) (*ItemShowResponse, error) {
	var resp ItemShowResponse
	if err := c.client.Call("Carousel.ItemShow", ItemShowRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ItemRetry requeues one failed item.
func (c *Client) ItemRetry(id int64) (*ItemRetryResponse, error) {
	var resp ItemRetryResponse
	if err := c.client.Call("Carousel.ItemRetry", ItemRetryRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ItemSkip marks one enqueued item skipped.
func (c *Client) ItemSkip(id int64, reason string) (*ItemSkipResponse, error) {
	var resp ItemSkipResponse
	if err := c.client.Call("Carousel.ItemSkip", ItemSkipRequest{ID: id, Reason: reason}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueHealth retrieves the aggregated queue counters.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	var resp QueueHealthResponse
	if err := c.client.Call("Carousel.QueueHealth", QueueHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Carousel.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ThumbList retrieves thumbnail retry rows.
func (c *Client) ThumbList(disabledOnly bool) (*ThumbListResponse, error) {
	var resp ThumbListResponse
	if err := c.client.Call("Carousel.ThumbList", ThumbListRequest{DisabledOnly: disabledOnly}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ThumbRetry force-schedules one thumbnail job.
func (c *Client) ThumbRetry(mediaID int64) (*ThumbRetryResponse, error) {
	var resp ThumbRetryResponse
	if err := c.client.Call("Carousel.ThumbRetry", ThumbRetryRequest{MediaID: mediaID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Carousel.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
