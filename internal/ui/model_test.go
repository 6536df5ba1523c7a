// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling and meter rendering
package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/Sendspin/peakd/pkg/audio"
	tea "github.com/charmbracelet/bubbletea"
)

func TestNewModel(t *testing.T) {
	model := NewModel(nil)

	if model.volume != 100 {
		t.Errorf("expected default volume 100, got %d", model.volume)
	}
	if model.muted || model.showDebug || model.finished {
		t.Error("expected a fresh model to be unmuted, not debugging and not finished")
	}
}

func TestApplyStatus(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{
		File:       "/music/take.wav",
		SampleRate: 48000,
		Channels:   2,
		Duration:   90 * time.Second,
	})
	model.applyStatus(StatusMsg{
		Position:  10 * time.Second,
		Levels:    []audio.Peak{{Min: -0.5, Max: 0.5}, {Min: -1.2, Max: 0.1}},
		Buffered:  2048,
		Underruns: 3,
	})

	if model.file != "/music/take.wav" || model.channels != 2 || model.duration != 90*time.Second {
		t.Errorf("stream info not applied: %+v", model)
	}
	if model.position != 10*time.Second || model.buffered != 2048 || model.underruns != 3 {
		t.Errorf("progress not applied: %+v", model)
	}
	if model.clips[0] != 0 || model.clips[1] != 1 {
		t.Errorf("expected a clip on channel 2 only, got %v", model.clips)
	}

	// counters never run backwards
	model.applyStatus(StatusMsg{Position: 5 * time.Second, Underruns: 1})
	if model.position != 10*time.Second || model.underruns != 3 {
		t.Errorf("expected monotonic position and counters, got %v / %d", model.position, model.underruns)
	}

	// an update without levels keeps the meters
	if len(model.levels) != 2 {
		t.Errorf("expected meters to be kept, got %v", model.levels)
	}
}

func TestFinishedStatus(t *testing.T) {
	model := NewModel(nil)
	model.width = 80
	model.applyStatus(StatusMsg{File: "a.wav", Channels: 1, Finished: true})

	if !strings.Contains(model.View(), "Finished") {
		t.Error("expected the view to report a finished file")
	}
}

func TestVolumeKeys(t *testing.T) {
	ctrl := NewVolumeControl()
	var m tea.Model = NewModel(ctrl)

	tests := []struct {
		key        tea.KeyType
		runes      string
		wantVolume int
		wantMuted  bool
	}{
		{tea.KeyDown, "", 95, false},
		{tea.KeyDown, "", 90, false},
		{tea.KeyUp, "", 95, false},
		{tea.KeyUp, "", 100, false},
		{tea.KeyUp, "", 100, false},
		{tea.KeyRunes, "m", 100, true},
	}

	for i, tt := range tests {
		msg := tea.KeyMsg{Type: tt.key}
		if tt.runes != "" {
			msg.Runes = []rune(tt.runes)
		}
		m, _ = m.Update(msg)

		select {
		case change := <-ctrl.Changes:
			if change.Volume != tt.wantVolume || change.Muted != tt.wantMuted {
				t.Errorf("step %d: expected (%d, %v), got %+v", i, tt.wantVolume, tt.wantMuted, change)
			}
		default:
			t.Errorf("step %d: expected a volume change message", i)
		}
	}
}

func TestQuitKey(t *testing.T) {
	ctrl := NewVolumeControl()
	m := NewModel(ctrl)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}

	select {
	case <-ctrl.Quit:
	default:
		t.Error("expected a quit message")
	}
}

func TestDebugToggle(t *testing.T) {
	var m tea.Model = NewModel(nil)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if !m.(Model).showDebug {
		t.Error("expected debug to toggle on")
	}
}

func TestViewBeforeResize(t *testing.T) {
	if NewModel(nil).View() != "Loading..." {
		t.Error("expected a loading view before the first resize")
	}
}

func TestViewMeters(t *testing.T) {
	m := NewModel(nil)
	m.width = 80
	m.applyStatus(StatusMsg{File: "x.wav", Channels: 2, Levels: []audio.Peak{{Min: -1, Max: 1}, {}}})

	view := m.View()
	if !strings.Contains(view, strings.Repeat("█", meterWidth)) {
		t.Error("expected a full meter for a full-scale channel")
	}
	if !strings.Contains(view, strings.Repeat("░", meterWidth)) {
		t.Error("expected an empty meter for a silent channel")
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		fraction float64
		width    int
		filled   int
	}{
		{0, 10, 0},
		{0.5, 10, 5},
		{1, 10, 10},
		{1.5, 10, 10},
		{-1, 10, 0},
	}
	for _, tt := range tests {
		bar := renderBar(tt.fraction, tt.width)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("renderBar(%v): expected %d filled, got %d", tt.fraction, tt.filled, got)
		}
		if got := strings.Count(bar, "░") + strings.Count(bar, "█"); got != tt.width {
			t.Errorf("renderBar(%v): expected width %d, got %d", tt.fraction, tt.width, got)
		}
	}
}

func TestLevelAndDBFS(t *testing.T) {
	tests := []struct {
		peak  audio.Peak
		level float64
		db    float64
	}{
		{audio.Peak{}, 0, -99},
		{audio.Peak{Min: -1, Max: 0.5}, 1, 0},
		{audio.Peak{Min: -2, Max: 0}, 1, 20 * 0.3010299956639812},
	}
	for _, tt := range tests {
		if got := level(tt.peak); got != tt.level {
			t.Errorf("level(%v): expected %v, got %v", tt.peak, tt.level, got)
		}
		if got := dbfs(tt.peak); got-tt.db > 1e-9 || tt.db-got > 1e-9 {
			t.Errorf("dbfs(%v): expected %v, got %v", tt.peak, tt.db, got)
		}
	}
}

func TestHelpers(t *testing.T) {
	if truncate("abcdefgh", 6) != "abc..." {
		t.Errorf("unexpected truncate result %q", truncate("abcdefgh", 6))
	}
	if channelName(1) != "Mono" || channelName(2) != "Stereo" || channelName(6) != "6ch" {
		t.Error("unexpected channel names")
	}
	if formatDuration(125*time.Second) != "2:05" {
		t.Errorf("unexpected duration %q", formatDuration(125*time.Second))
	}
}
