// Package types 定義了 intro-sequencer 系統中使用的核心領域模型
package types

import (
	"slices"
	"strings"
)

// RunID 一次完整播放（Run）的識別碼，單調遞增
type RunID uint64

// LineBreak 字幕文字中的換行標記
const LineBreak = "\n"

// NonNavigable 裝飾性選單項目使用的哨兵目標，點擊不觸發導航
const NonNavigable = "#"

// Side 字幕顯示側（依索引奇偶分配）
type Side string

const (
	SideLeft  Side = "left"  // 偶數索引
	SideRight Side = "right" // 奇數索引
)

// SideFor 依索引奇偶回傳顯示側
func SideFor(index int) Side {
	if index%2 == 0 {
		return SideLeft
	}
	return SideRight
}

// Anchor 字幕在畫面上的固定位置（百分比）
type Anchor struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// Caption 浮動字幕，身分即為其索引
type Caption struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Side   Side   `json:"side"`
	Anchor Anchor `json:"anchor"`
}

// Lines 依換行標記切分字幕文字
func (c Caption) Lines() []string {
	return strings.Split(c.Text, LineBreak)
}

// CaptionPhase 字幕生命週期階段
type CaptionPhase string

const (
	CaptionNotShown CaptionPhase = "not_shown" // 尚未出現
	CaptionActive   CaptionPhase = "active"    // 顯示中
	CaptionFading   CaptionPhase = "fading"    // 顯示中且淡出
	CaptionRemoved  CaptionPhase = "removed"   // 已移除
)

// MenuEntry 選單項目：標籤 + 可導航目標或 NonNavigable 哨兵
type MenuEntry struct {
	Label  string `yaml:"label" json:"label"`
	Target string `yaml:"target" json:"target"`
}

// Navigable 回報此項目是否可觸發導航
func (e MenuEntry) Navigable() bool {
	return e.Target != "" && e.Target != NonNavigable
}

// Phase 由狀態旗標推導出的概念階段（旗標彼此獨立，此列舉僅供觀察者使用）
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseCaptions      Phase = "captions"
	PhaseTypewriter    Phase = "typewriter"
	PhaseFinaleShown   Phase = "finale_shown"
	PhaseFinaleSettled Phase = "finale_settled"
	PhaseMenuRevealing Phase = "menu_revealing"
	PhaseComplete      Phase = "complete"
)

// State 序列狀態的唯讀快照
// 索引集合一律以遞增排序的切片表示
type State struct {
	RunID   RunID  `json:"run_id"`
	Version uint64 `json:"version"` // 每次套用變更時遞增
	Running bool   `json:"running"`

	ActiveCaptions []int `json:"active_captions"`
	FadingCaptions []int `json:"fading_captions"`

	TypewriterStarted bool `json:"typewriter_started"`
	TypewriterChars   int  `json:"typewriter_chars"`
	TypewriterFading  bool `json:"typewriter_fading"`

	FinaleShown   bool  `json:"finale_shown"`
	FinaleSettled bool  `json:"finale_settled"`
	MenuMounted   bool  `json:"menu_mounted"`
	RevealedItems []int `json:"revealed_items"`

	SkipVisible    bool `json:"skip_visible"`
	RestartVisible bool `json:"restart_visible"`
	Skipped        bool `json:"skipped"`
}

// IsActive 字幕 i 是否在顯示集合中
func (s State) IsActive(i int) bool {
	_, ok := slices.BinarySearch(s.ActiveCaptions, i)
	return ok
}

// IsFading 字幕 i 是否在淡出集合中
func (s State) IsFading(i int) bool {
	_, ok := slices.BinarySearch(s.FadingCaptions, i)
	return ok
}

// ItemRevealed 選單項目 i 是否已顯示
func (s State) ItemRevealed(i int) bool {
	_, ok := slices.BinarySearch(s.RevealedItems, i)
	return ok
}

// Complete 序列是否已完整結束（重播按鈕可見）
func (s State) Complete() bool {
	return s.RestartVisible
}

// Phase 推導當前概念階段
func (s State) Phase() Phase {
	switch {
	case s.RestartVisible:
		return PhaseComplete
	case s.MenuMounted:
		return PhaseMenuRevealing
	case s.FinaleSettled:
		return PhaseFinaleSettled
	case s.FinaleShown:
		return PhaseFinaleShown
	case s.TypewriterStarted:
		return PhaseTypewriter
	case s.Running:
		return PhaseCaptions
	default:
		return PhaseIdle
	}
}
