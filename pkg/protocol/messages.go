// ABOUTME: Peak protocol request parsing and response encoding
// ABOUTME: Text request lines, binary little-endian peak payloads
package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/Sendspin/peakd/pkg/audio"
)

const (
	CmdReadPeaks = "read_peaks"
	CmdGetInfo   = "get_info"
	CmdNormalize = "normalize"

	// AllChannels requests every channel of the source
	AllChannels = -1

	// MaxLineLength bounds a request line
	MaxLineLength = 64 << 10

	// MaxChannels and MaxPeaks bound decoded payload headers
	MaxChannels = 1024
	MaxPeaks    = 1 << 26

	errorPrefix = "error: "
)

// Request is one parsed request line
type Request struct {
	Command       string
	Path          string
	FramesPerPeak float64
	Start         int64
	End           int64
	Channel       int
}

// Info is the reply to get_info
type Info struct {
	Frames   int64
	Channels int
}

// ParseRequest parses a request line, with or without its trailing newline
func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")

	cmd, rest, ok := strings.Cut(line, " ")
	if !ok {
		return Request{}, fmt.Errorf("%w: missing path in %q", ErrMalformed, line)
	}
	if cmd != CmdReadPeaks && cmd != CmdGetInfo && cmd != CmdNormalize {
		return Request{}, fmt.Errorf("%w: unknown command %q", ErrMalformed, cmd)
	}

	rest = strings.TrimLeft(rest, " ")
	quoted, err := strconv.QuotedPrefix(rest)
	if err != nil {
		return Request{}, fmt.Errorf("%w: path must be quoted in %q", ErrMalformed, line)
	}
	path, err := strconv.Unquote(quoted)
	if err != nil || path == "" {
		return Request{}, fmt.Errorf("%w: bad path %s", ErrMalformed, quoted)
	}

	fields := strings.Fields(rest[len(quoted):])
	req := Request{Command: cmd, Path: path, Channel: AllChannels}

	if cmd == CmdGetInfo {
		if len(fields) != 0 {
			return Request{}, fmt.Errorf("%w: get_info takes only a path", ErrMalformed)
		}
		return req, nil
	}

	if cmd == CmdNormalize {
		if len(fields) != 2 {
			return Request{}, fmt.Errorf("%w: normalize expects start and end after the path, got %d fields", ErrMalformed, len(fields))
		}
		if err := parseRange(&req, fields[0], fields[1]); err != nil {
			return Request{}, err
		}
		return req, nil
	}

	if len(fields) != 3 && len(fields) != 4 {
		return Request{}, fmt.Errorf("%w: read_peaks expects 3 or 4 fields after the path, got %d", ErrMalformed, len(fields))
	}

	req.FramesPerPeak, err = strconv.ParseFloat(fields[0], 64)
	if err != nil || !(req.FramesPerPeak > 0) || math.IsInf(req.FramesPerPeak, 0) {
		return Request{}, fmt.Errorf("%w: bad frames per peak %q", ErrMalformed, fields[0])
	}
	if err := parseRange(&req, fields[1], fields[2]); err != nil {
		return Request{}, err
	}

	if len(fields) == 4 {
		ch, err := strconv.ParseUint(fields[3], 10, 16)
		if err != nil {
			return Request{}, fmt.Errorf("%w: bad channel %q", ErrMalformed, fields[3])
		}
		req.Channel = int(ch)
	}

	return req, nil
}

func parseRange(req *Request, start, end string) error {
	var err error
	if req.Start, err = parseFrame(start); err != nil {
		return err
	}
	if req.End, err = parseFrame(end); err != nil {
		return err
	}
	if req.End < req.Start {
		return fmt.Errorf("%w: end %d before start %d", ErrMalformed, req.End, req.Start)
	}
	return nil
}

func parseFrame(s string) (int64, error) {
	v, err := strconv.ParseUint(s, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("%w: bad frame %q", ErrMalformed, s)
	}
	return int64(v), nil
}

// Line formats the request as a wire line including the newline
func (r Request) Line() string {
	switch r.Command {
	case CmdGetInfo:
		return CmdGetInfo + " " + strconv.Quote(r.Path) + "\n"
	case CmdNormalize:
		return fmt.Sprintf("%s %s %d %d\n", CmdNormalize, strconv.Quote(r.Path), r.Start, r.End)
	}

	line := fmt.Sprintf("%s %s %s %d %d", CmdReadPeaks, strconv.Quote(r.Path),
		strconv.FormatFloat(r.FramesPerPeak, 'g', -1, 64), r.Start, r.End)
	if r.Channel >= 0 {
		line += " " + strconv.Itoa(r.Channel)
	}
	return line + "\n"
}

// Line formats the get_info reply
func (i Info) Line() string {
	return fmt.Sprintf("length=%d channels=%d\n", i.Frames, i.Channels)
}

// ParseInfo parses a get_info reply line
func ParseInfo(line string) (Info, error) {
	var info Info
	line = strings.TrimRight(line, "\r\n")
	if _, err := fmt.Sscanf(line, "length=%d channels=%d", &info.Frames, &info.Channels); err != nil {
		return Info{}, fmt.Errorf("%w: info reply %q", ErrMalformed, line)
	}
	if info.Frames < 0 || info.Channels < 0 {
		return Info{}, fmt.Errorf("%w: info reply %q", ErrMalformed, line)
	}
	return info, nil
}

// FactorLine formats the normalize reply
func FactorLine(factor float32) string {
	return "factor=" + strconv.FormatFloat(float64(factor), 'g', -1, 32) + "\n"
}

// ParseFactor parses a normalize reply line
func ParseFactor(line string) (float32, error) {
	line = strings.TrimRight(line, "\r\n")
	v, ok := strings.CutPrefix(line, "factor=")
	if !ok {
		return 0, fmt.Errorf("%w: factor reply %q", ErrMalformed, line)
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil || !(f > 0) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: factor reply %q", ErrMalformed, line)
	}
	return float32(f), nil
}

// ErrorLine formats an error reply
func ErrorLine(reason string) string {
	reason = strings.ReplaceAll(reason, "\n", " ")
	return errorPrefix + reason + "\n"
}

// AppendChannelCount appends the int32 channel count that opens a response
func AppendChannelCount(dst []byte, channels int) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(int32(channels)))
}

// AppendChannel appends one channel's int32 peak count and its records
func AppendChannel(dst []byte, peaks []audio.Peak) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(int32(len(peaks))))
	return audio.AppendPeaks(dst, peaks)
}

// isErrorReply reports whether the next bytes start an "error: " line.
// A binary response would need roughly 1.9 billion channels to collide.
func isErrorReply(r *bufio.Reader) (bool, error) {
	head, err := r.Peek(4)
	if err != nil {
		return false, shortRead(err)
	}
	return string(head) == errorPrefix[:4], nil
}

func readErrorReply(r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return shortRead(err)
	}
	line = strings.TrimRight(line, "\r\n")
	return &RemoteError{Reason: strings.TrimPrefix(line, errorPrefix)}
}

// ReadPeakResponse decodes a read_peaks response, or the error reply that
// replaced it. It never returns partial data with a nil error.
func ReadPeakResponse(r *bufio.Reader) ([][]audio.Peak, error) {
	isErr, err := isErrorReply(r)
	if err != nil {
		return nil, err
	}
	if isErr {
		return nil, readErrorReply(r)
	}

	var word [4]byte
	if _, err := io.ReadFull(r, word[:]); err != nil {
		return nil, shortRead(err)
	}
	channels := int32(binary.LittleEndian.Uint32(word[:]))
	if channels < 0 || channels > MaxChannels {
		return nil, fmt.Errorf("%w: channel count %d", ErrMalformed, channels)
	}

	out := make([][]audio.Peak, channels)
	for ch := range out {
		if _, err := io.ReadFull(r, word[:]); err != nil {
			return nil, shortRead(err)
		}
		count := int32(binary.LittleEndian.Uint32(word[:]))
		if count < 0 || count > MaxPeaks {
			return nil, fmt.Errorf("%w: peak count %d on channel %d", ErrMalformed, count, ch)
		}

		buf := make([]byte, int(count)*audio.PeakSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, shortRead(err)
		}
		peaks, err := audio.DecodePeaks(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		out[ch] = peaks
	}
	return out, nil
}

// ReadInfoResponse decodes a get_info reply or the error reply that replaced it
func ReadInfoResponse(r *bufio.Reader) (Info, error) {
	isErr, err := isErrorReply(r)
	if err != nil {
		return Info{}, err
	}
	if isErr {
		return Info{}, readErrorReply(r)
	}

	line, err := r.ReadString('\n')
	if err != nil {
		return Info{}, shortRead(err)
	}
	return ParseInfo(line)
}

// ReadFactorResponse decodes a normalize reply or the error reply that replaced it
func ReadFactorResponse(r *bufio.Reader) (float32, error) {
	isErr, err := isErrorReply(r)
	if err != nil {
		return 0, err
	}
	if isErr {
		return 0, readErrorReply(r)
	}

	line, err := r.ReadString('\n')
	if err != nil {
		return 0, shortRead(err)
	}
	return ParseFactor(line)
}

func shortRead(err error) error {
	return fmt.Errorf("%w: %v", ErrShortRead, err)
}
