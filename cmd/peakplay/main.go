// ABOUTME: Entry point for peakplay, a local file player built on the conduit
// ABOUTME: Decodes a file into the conduit, plays it, and meters it with a Streamer
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sendspin/peakd/internal/ui"
	"github.com/Sendspin/peakd/internal/version"
	"github.com/Sendspin/peakd/pkg/audio/output"
	"github.com/Sendspin/peakd/pkg/conduit"
	"github.com/Sendspin/peakd/pkg/peaks"
	"github.com/Sendspin/peakd/pkg/source"
	tea "github.com/charmbracelet/bubbletea"
)

var (
	backend     = flag.String("output", "oto", "Audio backend: oto or portaudio")
	bufferMs    = flag.Int("buffer-ms", 250, "Conduit size in milliseconds")
	chunkFrames = flag.Int("chunk", 1024, "Frames decoded per producer step")
	volume      = flag.Int("volume", 100, "Initial volume (0-100)")
	logFile     = flag.String("log-file", "peakplay.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: peakplay [flags] <file>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	if err := play(flag.Arg(0), useTUI); err != nil {
		log.Fatalf("peakplay: %v", err)
	}
}

func newOutput(name string) (output.Output, error) {
	switch name {
	case "oto":
		return output.NewOto(), nil
	case "portaudio":
		return output.NewPortAudio(), nil
	default:
		return nil, fmt.Errorf("unknown output %q", name)
	}
}

func play(path string, useTUI bool) error {
	src, err := source.Open(path, 0)
	if err != nil {
		return err
	}
	defer src.Close()

	rate, channels := src.SampleRate(), src.Channels()
	duration := time.Duration(src.Frames()) * time.Second / time.Duration(rate)
	log.Printf("Playing %s: %dHz, %d channels, %s", path, rate, channels, duration)

	c := conduit.New(rate**bufferMs/1000, channels)
	meter := peaks.NewStreamer(channels, max(rate/30, 1))
	meter.SetRetention(1)

	out, err := newOutput(*backend)
	if err != nil {
		return err
	}
	if err := out.Open(rate, channels, c); err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer out.Close()
	out.SetVolume(*volume)

	var prog *tea.Program
	volCtrl := ui.NewVolumeControl()
	if useTUI {
		prog = ui.Run(volCtrl)
		go func() {
			if _, err := prog.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			select {
			case volCtrl.Quit <- ui.QuitMsg{}:
			default:
			}
		}()
		defer prog.Quit()
		prog.Send(ui.StatusMsg{File: path, SampleRate: rate, Channels: channels, Duration: duration})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	stop := make(chan struct{})
	go func() {
		done <- produce(src, c, meter, stop)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	finished := false
	for {
		select {
		case err := <-done:
			if err != nil {
				return err
			}
			finished = true
			done = nil
			meter.Flush()
			log.Printf("Decoding finished, draining %d buffered frames", c.Available())

		case change := <-volCtrl.Changes:
			out.SetVolume(change.Volume)
			out.SetMuted(change.Muted)

		case <-volCtrl.Quit:
			close(stop)
			return nil

		case sig := <-sigChan:
			log.Printf("Received %v signal, stopping", sig)
			close(stop)
			return nil

		case <-ticker.C:
			played := meter.Frames() - int64(c.Available())
			status := ui.StatusMsg{
				Position:     time.Duration(played) * time.Second / time.Duration(rate),
				Levels:       meter.Latest(),
				Buffered:     c.Available(),
				Underruns:    c.Underruns(),
				SilentFrames: c.SilentFrames(),
				Finished:     finished && c.Available() == 0,
			}
			if prog != nil {
				prog.Send(status)
			}

			if status.Finished {
				log.Printf("Playback finished (%d under-runs, %d silent frames)", c.Underruns(), c.SilentFrames())
				if prog == nil {
					return nil
				}
			}
		}
	}
}

// produce decodes the file into the conduit, waiting while it is full
func produce(src *source.Source, c *conduit.Conduit, meter *peaks.Streamer, stop <-chan struct{}) error {
	wait := time.Duration(c.Capacity()/4) * time.Second / time.Duration(src.SampleRate())
	wait = max(wait, time.Millisecond)

	for {
		samples, err := src.Read(source.AllChannels, *chunkFrames)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}

		frames := len(samples) / c.Channels()
		meter.Write(samples, frames)

		for sent := 0; sent < frames; {
			n := c.Write(samples[sent*c.Channels():], frames-sent)
			sent += n
			if n == 0 {
				select {
				case <-stop:
					return nil
				case <-time.After(wait):
				}
			}
		}
	}
}
