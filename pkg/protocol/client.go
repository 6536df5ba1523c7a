// ABOUTME: Peak protocol client over TCP or WebSocket
// ABOUTME: One request at a time, whole responses or a clear error
package protocol

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sendspin/peakd/pkg/audio"
)

// DefaultTimeout bounds one request round trip
const DefaultTimeout = 10 * time.Second

// transport carries request lines and exposes response bytes
type transport interface {
	send(line string) error
	// response returns a reader positioned at the start of the next response
	response() (*bufio.Reader, error)
	setDeadline(t time.Time) error
	close() error
}

// Client issues requests to a peak server. It does not reconnect: after a
// transport failure the client is closed and the caller dials again.
type Client struct {
	// Timeout bounds each request, covering the full response payload
	Timeout time.Duration

	t      transport
	closed bool

	mu sync.Mutex
}

// Dial connects to a peak server at host:port
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return NewClient(conn), nil
}

// DialWS connects to a peak server's WebSocket gateway, e.g. ws://host:8931/peaks
func DialWS(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return &Client{Timeout: DefaultTimeout, t: &wsTransport{conn: conn}}, nil
}

// NewClient wraps an established stream connection
func NewClient(conn net.Conn) *Client {
	return &Client{
		Timeout: DefaultTimeout,
		t:       &tcpTransport{conn: conn, r: bufio.NewReader(conn)},
	}
}

// GetInfo returns the length and channel count of a source
func (c *Client) GetInfo(path string) (Info, error) {
	var info Info
	err := c.roundTrip(Request{Command: CmdGetInfo, Path: path}, func(r *bufio.Reader) error {
		var err error
		info, err = ReadInfoResponse(r)
		return err
	})
	return info, err
}

// NormalizationFactor returns the gain that brings the loudest peak of
// path over [start, end) to full scale
func (c *Client) NormalizationFactor(path string, start, end int64) (float32, error) {
	var factor float32
	err := c.roundTrip(Request{Command: CmdNormalize, Path: path, Start: start, End: end, Channel: AllChannels}, func(r *bufio.Reader) error {
		var err error
		factor, err = ReadFactorResponse(r)
		return err
	})
	return factor, err
}

// ReadPeaks returns the peaks of every channel of path over [start, end)
func (c *Client) ReadPeaks(path string, fpp float64, start, end int64) ([][]audio.Peak, error) {
	return c.readPeaks(Request{
		Command:       CmdReadPeaks,
		Path:          path,
		FramesPerPeak: fpp,
		Start:         start,
		End:           end,
		Channel:       AllChannels,
	})
}

// ReadChannelPeaks returns the peaks of a single channel
func (c *Client) ReadChannelPeaks(path string, channel int, fpp float64, start, end int64) ([]audio.Peak, error) {
	if channel < 0 {
		return nil, fmt.Errorf("invalid channel %d", channel)
	}

	peaks, err := c.readPeaks(Request{
		Command:       CmdReadPeaks,
		Path:          path,
		FramesPerPeak: fpp,
		Start:         start,
		End:           end,
		Channel:       channel,
	})
	if err != nil {
		return nil, err
	}
	if len(peaks) != 1 {
		return nil, fmt.Errorf("%w: expected 1 channel, got %d", ErrMalformed, len(peaks))
	}
	return peaks[0], nil
}

func (c *Client) readPeaks(req Request) ([][]audio.Peak, error) {
	var peaks [][]audio.Peak
	err := c.roundTrip(req, func(r *bufio.Reader) error {
		var err error
		peaks, err = ReadPeakResponse(r)
		return err
	})
	return peaks, err
}

// roundTrip sends one request and decodes its response under the deadline.
// Transport failures leave the stream unusable, so they close the client.
func (c *Client) roundTrip(req Request, decode func(*bufio.Reader) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := c.t.setDeadline(time.Now().Add(timeout)); err != nil {
		return c.failLocked(fmt.Errorf("set deadline: %w", err))
	}

	if err := c.t.send(req.Line()); err != nil {
		return c.failLocked(fmt.Errorf("send request: %w", err))
	}

	r, err := c.t.response()
	if err != nil {
		return c.failLocked(shortRead(err))
	}

	err = decode(r)
	var remote *RemoteError
	if err != nil && !errors.As(err, &remote) {
		return c.failLocked(err)
	}

	c.t.setDeadline(time.Time{})
	return err
}

func (c *Client) failLocked(err error) error {
	c.closed = true
	c.t.close()
	return err
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.t.close()
}

type tcpTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

func (t *tcpTransport) send(line string) error {
	_, err := t.conn.Write([]byte(line))
	return err
}

func (t *tcpTransport) response() (*bufio.Reader, error) { return t.r, nil }
func (t *tcpTransport) setDeadline(d time.Time) error     { return t.conn.SetDeadline(d) }
func (t *tcpTransport) close() error                      { return t.conn.Close() }

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) send(line string) error {
	return t.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (t *wsTransport) response() (*bufio.Reader, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return bufio.NewReader(bytes.NewReader(data)), nil
}

func (t *wsTransport) setDeadline(d time.Time) error {
	if err := t.conn.SetWriteDeadline(d); err != nil {
		return err
	}
	return t.conn.SetReadDeadline(d)
}

func (t *wsTransport) close() error {
	t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}
