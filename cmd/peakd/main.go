// ABOUTME: Entry point for the peakd server
// ABOUTME: Parses CLI flags with PEAKD_* environment fallbacks and runs the server
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Sendspin/peakd/internal/server"
	"github.com/Sendspin/peakd/internal/version"
	"github.com/Sendspin/peakd/pkg/peaks"
)

// envOr returns the environment value for key, or def when unset
func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// envInt is envOr for integers; a malformed value falls back to def
func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Ignoring %s=%q: %v", key, v, err)
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Ignoring %s=%q: %v", key, v, err)
		return def
	}
	return b
}

var (
	addr        = flag.String("addr", envOr("PEAKD_ADDR", server.DefaultAddr), "TCP listen address [PEAKD_ADDR]")
	wsAddr      = flag.String("ws-addr", envOr("PEAKD_WS_ADDR", ""), "WebSocket gateway listen address, empty disables [PEAKD_WS_ADDR]")
	name        = flag.String("name", envOr("PEAKD_NAME", ""), "Server friendly name (default: hostname-peakd) [PEAKD_NAME]")
	sampleRate  = flag.Int("rate", envInt("PEAKD_SAMPLE_RATE", 0), "Session sample rate sources must match, 0 accepts any [PEAKD_SAMPLE_RATE]")
	cacheMB     = flag.Int("cache-mb", envInt("PEAKD_CACHE_MB", peaks.DefaultCacheBytes>>20), "Peak cache memory budget in MiB [PEAKD_CACHE_MB]")
	storePath   = flag.String("store", envOr("PEAKD_STORE", peaks.DefaultStorePath()), "Persistent peak store path [PEAKD_STORE]")
	noStore     = flag.Bool("no-store", envBool("PEAKD_NO_STORE", false), "Keep peaks in memory only [PEAKD_NO_STORE]")
	logFile     = flag.String("log-file", envOr("PEAKD_LOG_FILE", "peakd.log"), "Log file path [PEAKD_LOG_FILE]")
	debug       = flag.Bool("debug", envBool("PEAKD_DEBUG", false), "Enable debug logging [PEAKD_DEBUG]")
	noMDNS      = flag.Bool("no-mdns", envBool("PEAKD_NO_MDNS", false), "Disable mDNS advertisement [PEAKD_NO_MDNS]")
	useTUI      = flag.Bool("tui", false, "Show the status TUI instead of streaming logs")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up logging (file, plus console unless the TUI owns the terminal)
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if *useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-peakd", hostname)
	}

	store := *storePath
	if *noStore {
		store = ""
	}

	log.Printf("Starting %s: %s on %s", version.String(), serverName, *addr)
	if *debug {
		log.Printf("Debug logging enabled")
	}
	if store != "" {
		log.Printf("Peak store: %s", store)
	}
	log.Printf("Logging to: %s", *logFile)

	config := server.Config{
		Addr:       *addr,
		WSAddr:     *wsAddr,
		Name:       serverName,
		SampleRate: *sampleRate,
		CacheBytes: int64(*cacheMB) << 20,
		StorePath:  store,
		EnableMDNS: !*noMDNS,
		Debug:      *debug,
		TUI:        *useTUI,
	}

	srv, err := server.New(config)
	if err != nil {
		log.Fatalf("Server setup failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}
