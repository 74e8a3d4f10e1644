package ipc

import (
	"net"
)

// Client is the dialing counterpart to Listener: it opens one
// connection to a running engine's control plane and exchanges framed
// Command/Result pairs over it.
type Client struct {
	conn net.Conn
}

// Dial connects to addr and returns a ready-to-use Client.
func Dial(network, addr string) (*Client, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Do sends cmd and waits for the matching Result.
func (c *Client) Do(cmd Command) (Result, error) {
	if err := WriteFrame(c.conn, cmd); err != nil {
		return Result{}, err
	}
	var result Result
	if err := ReadFrame(c.conn, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// Vaporize sends a vaporize command for the first segment of the edge
// whose ID is segmentID.
func (c *Client) Vaporize(segmentID string) (Result, error) {
	return c.Do(Command{Op: "vaporize", SegmentID: segmentID})
}

// SetSpeed sends a set-speed command for every segment of the edge
// whose ID is segmentID.
func (c *Client) SetSpeed(segmentID string, speed float64) (Result, error) {
	return c.Do(Command{Op: "set-speed", SegmentID: segmentID, Speed: speed})
}

// SaveCheckpoint sends a save-checkpoint command writing to path.
func (c *Client) SaveCheckpoint(path string) (Result, error) {
	return c.Do(Command{Op: "save-checkpoint", Path: path})
}
