// ABOUTME: WebSocket gateway for browser clients
// ABOUTME: One text message per request, one message per reply
package server

import (
	"log"
	"net/http"
	"time"

	"github.com/Sendspin/peakd/pkg/peaks"
	"github.com/Sendspin/peakd/pkg/protocol"
	"github.com/gorilla/websocket"
)

// handleWebSocket upgrades GET /peaks and serves requests on it
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c, ok := s.register(r.RemoteAddr, "websocket", conn)
	if !ok {
		log.Printf("Rejecting connection during shutdown")
		return
	}
	defer s.unregister(c)

	ss := newSession(s, c)
	defer ss.close()

	conn.SetReadLimit(protocol.MaxLineLength)
	wr := &wsReplier{conn: conn}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[%s] WebSocket error: %v", c.id, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			log.Printf("[%s] Ignoring binary request message", c.id)
			continue
		}

		if err := ss.handleLine(s.ctx, string(data), wr); err != nil {
			log.Printf("[%s] Closing connection: %v", c.id, err)
			return
		}
	}
}

// wsReplier sends text replies as text messages and a whole peak response
// as one binary message
type wsReplier struct {
	conn *websocket.Conn
	buf  []byte
}

func (w *wsReplier) replyText(line string) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return w.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (w *wsReplier) replyPeaks(channels []peaks.Sequence) error {
	w.buf = protocol.AppendChannelCount(w.buf[:0], len(channels))
	for _, seq := range channels {
		w.buf = protocol.AppendChannel(w.buf, seq)
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return w.conn.WriteMessage(websocket.BinaryMessage, w.buf)
}
