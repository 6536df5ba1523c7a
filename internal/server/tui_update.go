// ABOUTME: TUI update helpers for server
// ABOUTME: Functions to send server state updates to TUI
package server

import (
	"sort"
	"time"
)

// status snapshots the server for display
func (s *Server) status() ServerStatus {
	st := ServerStatus{
		Name:      s.config.Name,
		StartTime: s.startTime,
		Cache:     s.cache.Stats(),
		Sources:   s.registry.Stats(),
	}
	if s.listener != nil {
		st.Addr = s.listener.Addr().String()
	}
	if s.wsListener != nil {
		st.WSAddr = s.wsListener.Addr().String()
	}

	s.connsMu.RLock()
	st.Connections = make([]ConnInfo, 0, len(s.conns))
	for _, c := range s.conns {
		st.Connections = append(st.Connections, ConnInfo{
			ID:        c.id,
			Remote:    c.remote,
			Transport: c.transport,
			Requests:  c.requests.Load(),
			Since:     time.Since(c.since),
		})
	}
	s.connsMu.RUnlock()

	sort.Slice(st.Connections, func(i, j int) bool {
		return st.Connections[i].Since > st.Connections[j].Since
	})
	return st
}

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.status())
}

// tuiLoop refreshes the counters once a second until shutdown
func (s *Server) tuiLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateTUI()
		case <-s.ctx.Done():
			return
		}
	}
}
