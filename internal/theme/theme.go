// Package theme holds the process-wide dark/light setting and the colours
// that go with it.
package theme

import (
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Palette is a set of hex colours, "#RRGGBB".
type Palette struct {
	Background string `json:"background"`
	Card       string `json:"card"`
	Text       string `json:"text"`
	Accent     string `json:"accent"`
	Border     string `json:"border"`
}

var (
	DarkPalette = Palette{
		Background: "#2A201C",
		Card:       "#3E2723",
		Text:       "#EFEBE0",
		Accent:     "#A1887F",
		Border:     "#5D4037",
	}
	LightPalette = Palette{
		Background: "#F5F0E6",
		Card:       "#D7CCC8",
		Text:       "#3E2723",
		Accent:     "#A1887F",
		Border:     "#BCAAA4",
	}
)

// Settings is created once at startup and only changed through Toggle.
type Settings struct {
	mu   sync.RWMutex
	dark bool
}

func New(dark bool) *Settings {
	return &Settings{dark: dark}
}

func (s *Settings) Dark() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dark
}

// Toggle flips the theme and returns the new value of Dark.
func (s *Settings) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dark = !s.dark
	return s.dark
}

func (s *Settings) Palette() Palette {
	if s.Dark() {
		return DarkPalette
	}
	return LightPalette
}

// Scheme colours terminal output.
type Scheme struct {
	Title   *color.Color
	Text    *color.Color
	Accent  *color.Color
	Muted   *color.Color
	Prompt  *color.Color
	Error   *color.Color
	Success *color.Color
}

// Scheme builds the terminal colours for the current palette.
func (s *Settings) Scheme() Scheme {
	p := s.Palette()
	return Scheme{
		Title:   rgb(p.Text).Add(color.Bold),
		Text:    rgb(p.Text),
		Accent:  rgb(p.Accent),
		Muted:   rgb(p.Border),
		Prompt:  rgb(p.Accent).Add(color.Bold),
		Error:   color.New(color.FgRed, color.Bold),
		Success: color.New(color.FgGreen),
	}
}

func rgb(hex string) *color.Color {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return color.New(color.Reset)
	}
	return color.RGB(r, g, b)
}

func parseHex(hex string) (r, g, b int, ok bool) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), true
}
