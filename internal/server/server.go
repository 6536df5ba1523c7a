// ABOUTME: Main server implementation for the peak protocol
// ABOUTME: Owns the source registry and peak cache, accepts TCP and WebSocket clients
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sendspin/peakd/internal/discovery"
	"github.com/Sendspin/peakd/internal/version"
	"github.com/Sendspin/peakd/pkg/peaks"
	"github.com/Sendspin/peakd/pkg/source"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultAddr = ":7777"

	// writeDeadline bounds a single reply write to a slow client
	writeDeadline = 10 * time.Second
)

// Config holds server configuration
type Config struct {
	Addr       string // TCP listen address
	WSAddr     string // WebSocket gateway listen address; empty disables it
	Name       string
	SampleRate int   // session rate every source must match; 0 accepts any
	CacheBytes int64 // peak cache memory budget
	StorePath  string
	EnableMDNS bool
	Debug      bool
	TUI        bool
}

// Server answers peak requests for audio files on local disk
type Server struct {
	config   Config
	serverID string

	registry *source.Registry
	cache    *peaks.Cache
	store    *peaks.Store

	listener   net.Listener
	httpServer *http.Server
	wsListener net.Listener
	upgrader   websocket.Upgrader

	// Connection tracking
	conns   map[string]*connState
	connsMu sync.RWMutex

	mdnsManager *discovery.Manager

	tui       *ServerTUI
	startTime time.Time

	// Control
	ctx      context.Context
	cancel   context.CancelFunc
	ready    chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// connState is the server's view of one client connection
type connState struct {
	id        string
	remote    string
	transport string
	closer    interface{ Close() error }
	requests  atomic.Uint64
	since     time.Time
}

// New creates a server and opens its peak store
func New(config Config) (*Server, error) {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.Name == "" {
		config.Name = version.Product
	}
	if config.CacheBytes <= 0 {
		config.CacheBytes = peaks.DefaultCacheBytes
	}

	var store *peaks.Store
	if config.StorePath != "" {
		var err error
		store, err = peaks.OpenStore(config.StorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open peak store: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		store:    store,
		cache: peaks.NewCache(peaks.CacheConfig{
			MaxBytes: config.CacheBytes,
			Store:    store,
			Debug:    config.Debug,
		}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if origin := r.Header.Get("Origin"); origin != "" && config.Debug {
					log.Printf("[DEBUG] accepting WebSocket from origin: %s", origin)
				}
				return true
			},
		},
		conns:     make(map[string]*connState),
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		ready:     make(chan struct{}),
		stopChan:  make(chan struct{}),
	}

	s.registry = source.NewRegistry(source.RegistryConfig{
		SampleRate: config.SampleRate,
		OnChange: func(path string) {
			log.Printf("Source changed on disk, dropping cached peaks: %s", path)
			s.cache.Invalidate(path)
		},
	})

	return s, nil
}

// Ready is closed once the listeners accept connections
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the TCP listen address; valid after Ready
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// WSAddr returns the WebSocket gateway address, or nil when disabled;
// valid after Ready
func (s *Server) WSAddr() net.Addr {
	if s.wsListener == nil {
		return nil
	}
	return s.wsListener.Addr()
}

// Cache returns the peak cache
func (s *Server) Cache() *peaks.Cache {
	return s.cache
}

// Registry returns the source registry
func (s *Server) Registry() *source.Registry {
	return s.registry
}

// Start listens and serves until Stop, a TUI quit or a listener failure
func (s *Server) Start() error {
	defer s.cleanup()

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = listener

	if s.config.WSAddr != "" {
		wsListener, err := net.Listen("tcp", s.config.WSAddr)
		if err != nil {
			listener.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.config.WSAddr, err)
		}
		s.wsListener = wsListener
	}

	if s.config.TUI {
		s.tui = NewServerTUI()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(s.status()); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	}

	log.Printf("Server starting: %s (ID: %s, %s)", s.config.Name, s.serverID, version.String())

	if s.config.EnableMDNS {
		wsPort := 0
		if s.wsListener != nil {
			wsPort = portOf(s.wsListener.Addr())
		}
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        portOf(listener.Addr()),
			WSPort:      wsPort,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	errChan := make(chan error, 2)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(); err != nil {
			errChan <- err
		}
	}()
	log.Printf("Peak server listening on %s", listener.Addr())

	if s.wsListener != nil {
		mux := http.NewServeMux()
		mux.HandleFunc("/peaks", s.handleWebSocket)
		s.httpServer = &http.Server{Handler: mux}

		go func() {
			if err := s.httpServer.Serve(s.wsListener); err != http.ErrServerClosed {
				errChan <- err
			}
		}()
		log.Printf("WebSocket gateway listening on %s/peaks", s.wsListener.Addr())
	}

	if s.tui != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tuiLoop()
		}()
	}

	close(s.ready)

	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	var serverErr error
	select {
	case <-s.stopChan:
		log.Printf("Server shutting down...")
	case <-tuiQuitChan:
		log.Printf("TUI quit requested, shutting down...")
	case err := <-errChan:
		log.Printf("Listener error: %v", err)
		serverErr = err
	}

	s.shutdown()

	if serverErr != nil {
		return fmt.Errorf("server failed: %w", serverErr)
	}
	return nil
}

// shutdown stops accepting, closes every connection and waits for handlers
func (s *Server) shutdown() {
	s.cancel()

	if s.tui != nil {
		s.tui.Stop()
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	s.listener.Close()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		cancel()
	}

	// hijacked WebSocket conns are not closed by Shutdown
	s.connsMu.RLock()
	for _, c := range s.conns {
		c.closer.Close()
	}
	s.connsMu.RUnlock()

	s.wg.Wait()
	log.Printf("Server stopped cleanly")
}

// cleanup releases the registry and store once no handler is running
func (s *Server) cleanup() {
	s.cancel()
	if err := s.registry.Close(); err != nil {
		log.Printf("Registry close error: %v", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("Peak store close error: %v", err)
		}
	}
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// acceptLoop accepts TCP connections until the listener closes
func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveTCP(conn)
		}()
	}
}

// register tracks a connection until unregister; it returns false once
// shutdown began
func (s *Server) register(remote, transport string, closer interface{ Close() error }) (*connState, bool) {
	c := &connState{
		id:        uuid.New().String(),
		remote:    remote,
		transport: transport,
		closer:    closer,
		since:     time.Now(),
	}

	s.connsMu.Lock()
	if s.ctx.Err() != nil {
		s.connsMu.Unlock()
		return nil, false
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	s.connsMu.Unlock()

	log.Printf("[%s] %s client connected from %s", c.id, transport, remote)
	s.updateTUI()
	return c, true
}

func (s *Server) unregister(c *connState) {
	s.connsMu.Lock()
	delete(s.conns, c.id)
	s.connsMu.Unlock()
	defer s.wg.Done()

	log.Printf("[%s] client disconnected after %d requests", c.id, c.requests.Load())
	s.updateTUI()
}

// portOf returns the port of a TCP address
func portOf(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}
