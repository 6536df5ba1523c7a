// ABOUTME: Per-connection request handling shared by TCP and WebSocket clients
// ABOUTME: Parses request lines, acquires sources and streams peak replies
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/Sendspin/peakd/pkg/peaks"
	"github.com/Sendspin/peakd/pkg/protocol"
	"github.com/Sendspin/peakd/pkg/source"
)

// replier sends one reply in the connection's framing
type replier interface {
	replyText(line string) error
	replyPeaks(channels []peaks.Sequence) error
}

// session holds the sources one connection has acquired. Handles stay
// open between requests and are released on disconnect.
type session struct {
	srv     *Server
	conn    *connState
	handles map[string]*source.Handle
}

func newSession(srv *Server, conn *connState) *session {
	return &session{
		srv:     srv,
		conn:    conn,
		handles: make(map[string]*source.Handle),
	}
}

// handleLine answers one request line. A malformed line is logged and
// gets no reply. The returned error means the connection is unusable.
func (ss *session) handleLine(ctx context.Context, line string, r replier) error {
	req, err := protocol.ParseRequest(line)
	if err != nil {
		log.Printf("[%s] Ignoring malformed request: %v", ss.conn.id, err)
		return nil
	}
	ss.conn.requests.Add(1)

	if ss.srv.config.Debug {
		log.Printf("[DEBUG] [%s] %s %q fpp=%g [%d, %d) channel=%d",
			ss.conn.id, req.Command, req.Path, req.FramesPerPeak, req.Start, req.End, req.Channel)
	}

	switch req.Command {
	case protocol.CmdGetInfo:
		return ss.getInfo(req, r)
	case protocol.CmdNormalize:
		return ss.normalize(ctx, req, r)
	default:
		return ss.readPeaks(ctx, req, r)
	}
}

func (ss *session) getInfo(req protocol.Request, r replier) error {
	h, err := ss.acquire(req.Path)
	if err != nil {
		return ss.replyError(r, req, err)
	}
	return r.replyText(protocol.Info{Frames: h.Frames(), Channels: h.Channels()}.Line())
}

func (ss *session) normalize(ctx context.Context, req protocol.Request, r replier) error {
	h, err := ss.acquire(req.Path)
	if err != nil {
		return ss.replyError(r, req, err)
	}
	factor, err := ss.srv.cache.NormalizationFactor(ctx, h, req.Start, req.End)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ss.replyError(r, req, err)
	}
	return r.replyText(protocol.FactorLine(factor))
}

// readPeaks computes every requested channel before writing, so a failure
// becomes an error reply instead of a truncated binary response
func (ss *session) readPeaks(ctx context.Context, req protocol.Request, r replier) error {
	h, err := ss.acquire(req.Path)
	if err != nil {
		return ss.replyError(r, req, err)
	}

	channels := []int{req.Channel}
	if req.Channel == protocol.AllChannels {
		channels = make([]int, h.Channels())
		for i := range channels {
			channels[i] = i
		}
	}

	out := make([]peaks.Sequence, len(channels))
	for i, ch := range channels {
		seq, err := ss.srv.cache.Fill(ctx, h, ch, req.Start, req.End, req.FramesPerPeak)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ss.replyError(r, req, err)
		}
		out[i] = seq
	}

	return r.replyPeaks(out)
}

// acquire returns a handle for path, replacing the one this session held
// so a changed file is noticed on the next request
func (ss *session) acquire(path string) (*source.Handle, error) {
	h, err := ss.srv.registry.Acquire(path)
	if err != nil {
		return nil, err
	}
	if old, ok := ss.handles[h.Path()]; ok {
		old.Release()
	}
	ss.handles[h.Path()] = h
	return h, nil
}

func (ss *session) replyError(r replier, req protocol.Request, err error) error {
	log.Printf("[%s] %s %q failed: %v", ss.conn.id, req.Command, req.Path, err)
	return r.replyText(protocol.ErrorLine(errorReason(err)))
}

// close releases every handle the session acquired
func (ss *session) close() {
	for path, h := range ss.handles {
		h.Release()
		delete(ss.handles, path)
	}
}

// errorReason maps an error to the short reason sent to clients
func errorReason(err error) string {
	switch {
	case errors.Is(err, source.ErrNotFound):
		return "source not found"
	case errors.Is(err, source.ErrFormatUnsupported):
		return "unsupported format"
	case errors.Is(err, source.ErrSampleRateMismatch):
		return "sample rate mismatch"
	case errors.Is(err, source.ErrInvalidChannel):
		return "invalid channel"
	case errors.Is(err, peaks.ErrInvalidRange):
		return "invalid range"
	case errors.Is(err, peaks.ErrInvalidResolution):
		return "invalid resolution"
	default:
		return err.Error()
	}
}

// serveTCP runs the request loop for one TCP client
func (s *Server) serveTCP(conn net.Conn) {
	defer conn.Close()

	c, ok := s.register(conn.RemoteAddr().String(), "tcp", conn)
	if !ok {
		log.Printf("Rejecting connection during shutdown")
		return
	}
	defer s.unregister(c)

	ss := newSession(s, c)
	defer ss.close()

	r := bufio.NewReader(conn)
	w := &tcpReplier{conn: conn}

	for {
		line, err := readLine(r, protocol.MaxLineLength)
		if errors.Is(err, errLineTooLong) {
			log.Printf("[%s] Ignoring request line over %d bytes", c.id, protocol.MaxLineLength)
			continue
		}
		if err != nil {
			if s.config.Debug && s.ctx.Err() == nil {
				log.Printf("[DEBUG] [%s] read ended: %v", c.id, err)
			}
			return
		}

		if err := ss.handleLine(s.ctx, line, w); err != nil {
			log.Printf("[%s] Closing connection: %v", c.id, err)
			return
		}
	}
}

var errLineTooLong = errors.New("request line too long")

// readLine reads up to and including '\n'. A longer line is consumed and
// reported as errLineTooLong so the stream stays in sync.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case err == nil:
			if tooLong {
				return "", errLineTooLong
			}
			return string(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return "", err
		}
	}
}

// tcpReplier writes the channel count, then one write per channel
type tcpReplier struct {
	conn net.Conn
	buf  []byte
}

func (t *tcpReplier) write(b []byte) error {
	t.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if _, err := t.conn.Write(b); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

func (t *tcpReplier) replyText(line string) error {
	return t.write([]byte(line))
}

func (t *tcpReplier) replyPeaks(channels []peaks.Sequence) error {
	t.buf = protocol.AppendChannelCount(t.buf[:0], len(channels))
	if err := t.write(t.buf); err != nil {
		return err
	}
	for _, seq := range channels {
		t.buf = protocol.AppendChannel(t.buf[:0], seq)
		if err := t.write(t.buf); err != nil {
			return err
		}
	}
	return nil
}
