// ============================================================================
// Intro Sequencer Script - 簡報腳本
// ============================================================================
//
// Package: internal/script
// File: script.go
// Purpose: The fixed presentation content and its timing constants
//
// YAML format:
//   version: "1"
//   captions:
//     - "Chasing invoices\nat midnight?"      # \n = line break marker
//   anchors:                                   # optional, cycled by index
//     - {x: 8, y: 10}
//   typewriter: "Everything in one place."
//   headline: {main: "Get in control.", sub: "Meet the Bizniz Optimizer."}
//   menu:
//     - {label: "Pricing", target: "pricing"}
//     - {label: "In the making", target: "#"}  # "#" = non-navigable
//   durations:                                 # Go durations, omitted = default
//     solo: 2000ms
//     step: 2000ms
//
// ============================================================================

package script

import (
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/ChuLiYu/intro-sequencer/internal/timeline"
	"github.com/ChuLiYu/intro-sequencer/pkg/types"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrNoCaptions        = errors.New("script has no captions")
	ErrEmptyCaption      = errors.New("caption text is empty")
	ErrEmptyTypewriter   = errors.New("typewriter text is empty")
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrInvalidMenuEntry  = errors.New("invalid menu entry")
	ErrUnsupportedSchema = errors.New("unsupported script version")
)

// SchemaVersion 目前支援的腳本版本
const SchemaVersion = "1"

// Headline 終幕標題
type Headline struct {
	Main string `yaml:"main"`
	Sub  string `yaml:"sub"`
}

// Script 完整的簡報腳本
type Script struct {
	Version    string             `yaml:"version"`
	Texts      []string           `yaml:"captions"`
	Anchors    []types.Anchor     `yaml:"anchors,omitempty"`
	Typewriter string             `yaml:"typewriter"`
	Headline   Headline           `yaml:"headline"`
	Menu       []types.MenuEntry  `yaml:"menu"`
	Durations  timeline.Durations `yaml:"durations"`
}

// Default 內建的落地頁腳本
func Default() *Script {
	return &Script{
		Version: SchemaVersion,
		Texts: []string{
			"Chasing invoices\nat midnight?",
			"Which customer\nowes you money?",
			"Is your inventory\naccurate right now?",
			"How much did you\nearn last month?",
			"Who placed\nthe last order?",
			"Still managing this\nin a spreadsheet?",
			"What if it was all\nin one place?",
		},
		Anchors: []types.Anchor{
			{X: 8, Y: 10},
			{X: 50, Y: 6},
			{X: 5, Y: 48},
			{X: 46, Y: 40},
			{X: 14, Y: 70},
			{X: 52, Y: 64},
			{X: 24, Y: 28},
		},
		Typewriter: "Everything in one place.",
		Headline: Headline{
			Main: "Get in control.",
			Sub:  "Meet the Bizniz Optimizer.",
		},
		Menu: []types.MenuEntry{
			{Label: "Introduction videos", Target: "intro"},
			{Label: "Contact us!", Target: "contact"},
			{Label: "Pricing", Target: "pricing"},
			{Label: "In the making", Target: types.NonNavigable},
		},
		Durations: timeline.DefaultDurations(),
	}
}

// Parse decodes a YAML script. Durations omitted from the document keep
// their default values.
func Parse(data []byte) (*Script, error) {
	s := &Script{Durations: timeline.DefaultDurations()}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse script YAML: %w", err)
	}
	if s.Version == "" {
		s.Version = SchemaVersion
	}
	return s, nil
}

// Load reads and decodes a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	return Parse(data)
}

// Save writes the script as YAML.
func (s *Script) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal script: %w", err)
	}

	// 先寫臨時檔再原子性重新命名，避免留下半份腳本
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write script file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename script file: %w", err)
	}
	return nil
}

// Validate reports every problem found, joined.
func (s *Script) Validate() error {
	var errs []error

	if s.Version != SchemaVersion {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnsupportedSchema, s.Version))
	}

	if len(s.Texts) == 0 {
		errs = append(errs, ErrNoCaptions)
	}
	for i, text := range s.Texts {
		if text == "" {
			errs = append(errs, fmt.Errorf("%w: caption %d", ErrEmptyCaption, i))
		}
	}

	if s.Typewriter == "" {
		errs = append(errs, ErrEmptyTypewriter)
	}

	for i, e := range s.Menu {
		if e.Label == "" {
			errs = append(errs, fmt.Errorf("%w: entry %d has no label", ErrInvalidMenuEntry, i))
		}
		if e.Target == "" {
			errs = append(errs, fmt.Errorf("%w: entry %d has no target (use %q for decorative entries)", ErrInvalidMenuEntry, i, types.NonNavigable))
		}
	}

	errs = append(errs, s.validateDurations()...)
	return errors.Join(errs...)
}

func (s *Script) validateDurations() []error {
	d := s.Durations
	var errs []error

	named := []struct {
		name string
		v    time.Duration
	}{
		{"solo", d.Solo}, {"step", d.Step}, {"fade", d.Fade}, {"per_char", d.PerChar},
		{"post_typewriter", d.PostTypewriter}, {"typewriter_fade_lead", d.TypewriterFadeLead},
		{"finale_settle", d.FinaleSettle}, {"menu_mount", d.MenuMount}, {"menu_reveal", d.MenuReveal},
		{"item_stagger", d.ItemStagger}, {"item_reveal", d.ItemReveal},
	}
	for _, n := range named {
		if n.v < 0 {
			errs = append(errs, fmt.Errorf("%w: %s is negative", ErrInvalidDuration, n.name))
		}
	}

	if d.Step <= 0 {
		errs = append(errs, fmt.Errorf("%w: step must be positive", ErrInvalidDuration))
	}
	if d.Fade <= 0 || d.Fade >= 2*d.Step {
		errs = append(errs, fmt.Errorf("%w: fade must be in (0, 2*step)", ErrInvalidDuration))
	}
	if d.PerChar <= 0 && s.Typewriter != "" {
		errs = append(errs, fmt.Errorf("%w: per_char must be positive", ErrInvalidDuration))
	}
	return errs
}

// Captions 依索引建立字幕（顯示側依奇偶、位置循環套用 anchors）
func (s *Script) Captions() []types.Caption {
	out := make([]types.Caption, len(s.Texts))
	for i, text := range s.Texts {
		c := types.Caption{Index: i, Text: text, Side: types.SideFor(i)}
		if len(s.Anchors) > 0 {
			c.Anchor = s.Anchors[i%len(s.Anchors)]
		}
		out[i] = c
	}
	return out
}

// Chars typewriter length in runes
func (s *Script) Chars() int {
	return utf8.RuneCountInString(s.Typewriter)
}

// Timeline 由腳本推導時間軸
func (s *Script) Timeline() timeline.Timeline {
	return timeline.New(len(s.Texts), s.Chars(), len(s.Menu), s.Durations)
}
