// Package tui shows parse and analysis progress and browses the result.
package tui

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"gcodeview/pkg/analyzer"
	"gcodeview/pkg/parser"
)

// Stage is the phase the run is in.
type Stage int

const (
	StageParsing Stage = iota
	StageAnalyzing
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageParsing:
		return "Parsing"
	case StageAnalyzing:
		return "Analyzing"
	default:
		return "Done"
	}
}

// AppModel holds the TUI state.
type AppModel struct {
	// Data
	Filename  string
	Stage     Stage
	Result    *analyzer.Result
	Warnings  []parser.Warning
	Err       error
	Layers    int
	PrintTime float64

	ParsePercent   float64
	AnalyzePercent float64

	// UI State
	SelectedIdx int
	ShowReport  bool
	WindowSize  tea.WindowSizeMsg

	// Components
	Bar     progress.Model
	Details viewport.Model

	msgs <-chan tea.Msg
}

// InitialModel returns the initial state. Run messages arrive on msgs.
func InitialModel(filename string, msgs <-chan tea.Msg) AppModel {
	return AppModel{
		Filename: filename,
		Stage:    StageParsing,
		Bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		Details:  viewport.New(40, 10),
		msgs:     msgs,
	}
}

// Init starts listening for run messages.
func (m AppModel) Init() tea.Cmd {
	return waitForMsg(m.msgs)
}
