// ABOUTME: Entry point for the peaks command-line client
// ABOUTME: Queries a peakd server for file info and peak data, or browses for servers
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sendspin/peakd/internal/discovery"
	"github.com/Sendspin/peakd/internal/version"
	"github.com/Sendspin/peakd/pkg/audio"
	"github.com/Sendspin/peakd/pkg/protocol"
)

const usage = `usage: peaks [flags] <command> [args]

commands:
  info <file>                          print frame and channel counts
  read <file> <fpp> <start> <end> [ch] print min/max per column
  norm <file> [start end]              print the normalization gain
  discover                             list peakd servers on the local network

flags:
`

var (
	serverAddr  = flag.String("server", os.Getenv("PEAKD_SERVER"), "Server host:port or ws:// URL (default: first server found via mDNS)")
	timeout     = flag.Duration("timeout", protocol.DefaultTimeout, "Per-request timeout")
	browseFor   = flag.Duration("browse", 3*time.Second, "How long to browse for servers")
	verbose     = flag.Bool("v", false, "Log discovery and connection details to stderr")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if !*verbose {
		log.SetOutput(io.Discard)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), flag.Args()[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "peaks: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string, w io.Writer) error {
	ctx := context.Background()

	if cmd == "discover" {
		servers, err := discovery.Discover(ctx, *browseFor)
		if err != nil {
			return err
		}
		if len(servers) == 0 {
			return fmt.Errorf("no servers found")
		}
		for _, s := range servers {
			line := fmt.Sprintf("%s\t%s", s.Name, s.Addr())
			if s.WSPort > 0 {
				line += fmt.Sprintf("\tws://%s:%d/peaks", s.Host, s.WSPort)
			}
			if s.Version != "" {
				line += "\t" + s.Version
			}
			fmt.Fprintln(w, line)
		}
		return nil
	}

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	client.Timeout = *timeout

	switch cmd {
	case "info":
		if len(args) != 1 {
			return fmt.Errorf("info takes one file")
		}
		info, err := client.GetInfo(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "frames=%d channels=%d\n", info.Frames, info.Channels)
		return nil

	case "read":
		return read(client, args, w)

	case "norm":
		return norm(client, args, w)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// connect dials -server, or the first server mDNS finds
func connect(ctx context.Context) (*protocol.Client, error) {
	addr := *serverAddr
	if addr == "" {
		servers, err := discovery.Discover(ctx, *browseFor)
		if err != nil {
			return nil, fmt.Errorf("discovery failed: %w", err)
		}
		if len(servers) == 0 {
			return nil, fmt.Errorf("no server found after %s (use -server)", *browseFor)
		}
		addr = servers[0].Addr()
		log.Printf("Using discovered server %s at %s", servers[0].Name, addr)
	}

	dialCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return protocol.DialWS(dialCtx, addr)
	}
	return protocol.Dial(dialCtx, addr)
}

func read(client *protocol.Client, args []string, w io.Writer) error {
	if len(args) != 4 && len(args) != 5 {
		return fmt.Errorf("read takes <file> <fpp> <start> <end> [channel]")
	}

	fpp, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("bad frames per peak %q", args[1])
	}
	start, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("bad start %q", args[2])
	}
	end, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return fmt.Errorf("bad end %q", args[3])
	}

	var channels [][]audio.Peak
	first := 0
	if len(args) == 5 {
		ch, err := strconv.Atoi(args[4])
		if err != nil {
			return fmt.Errorf("bad channel %q", args[4])
		}
		seq, err := client.ReadChannelPeaks(args[0], ch, fpp, start, end)
		if err != nil {
			return err
		}
		channels, first = [][]audio.Peak{seq}, ch
	} else {
		if channels, err = client.ReadPeaks(args[0], fpp, start, end); err != nil {
			return err
		}
	}

	return writePeaks(w, channels, first)
}

// writePeaks prints "channel column min max" per line
func writePeaks(w io.Writer, channels [][]audio.Peak, first int) error {
	for i, seq := range channels {
		for k, p := range seq {
			if _, err := fmt.Fprintf(w, "%d\t%d\t%.6f\t%.6f\n", first+i, k, p.Min, p.Max); err != nil {
				return err
			}
		}
	}
	return nil
}

func norm(client *protocol.Client, args []string, w io.Writer) error {
	if len(args) != 1 && len(args) != 3 {
		return fmt.Errorf("norm takes <file> [start end]")
	}

	info, err := client.GetInfo(args[0])
	if err != nil {
		return err
	}
	start, end := int64(0), info.Frames
	if len(args) == 3 {
		if start, err = strconv.ParseInt(args[1], 10, 64); err != nil {
			return fmt.Errorf("bad start %q", args[1])
		}
		if end, err = strconv.ParseInt(args[2], 10, 64); err != nil {
			return fmt.Errorf("bad end %q", args[2])
		}
	}
	if start < 0 || end < start {
		return fmt.Errorf("bad range [%d, %d)", start, end)
	}

	factor, err := client.NormalizationFactor(args[0], start, end)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%g\n", factor)
	return nil
}
