package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"gcodeview/pkg/analyzer"
	"gcodeview/pkg/model"
	"gcodeview/pkg/worker"
)

// MsgNote carries one worker notification.
type MsgNote worker.Notification

// MsgDone indicates that the analysis has completed.
type MsgDone struct {
	Result *analyzer.Result
}

// MsgError indicates the run failed.
type MsgError error

// waitForMsg reads the next run message; nil once the channel is closed.
func waitForMsg(msgs <-chan tea.Msg) tea.Cmd {
	if msgs == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-msgs
		if !ok {
			return nil
		}
		return msg
	}
}

// Start runs parse and analyze on w in the background and returns the
// channel the program should listen on.
func Start(ctx context.Context, w *worker.Worker, lines []model.Line, tools []model.ToolOffset) <-chan tea.Msg {
	msgs := make(chan tea.Msg, 64)
	go func() {
		defer close(msgs)
		res, err := w.ParseAndAnalyze(ctx, lines, tools, func(n worker.Notification) {
			if n.Cmd == worker.NoteAnalyzeDone {
				return
			}
			select {
			case msgs <- MsgNote(n):
			case <-ctx.Done():
			}
		})
		var msg tea.Msg = MsgDone{Result: res}
		if err != nil {
			msg = MsgError(err)
		}
		select {
		case msgs <- msg:
		case <-ctx.Done():
		}
	}()
	return msgs
}

// Update handles events.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.WindowSize = msg
		m.Bar.Width = msg.Width - 20
		if m.Bar.Width > 80 {
			m.Bar.Width = 80
		}
		if m.Bar.Width < 10 {
			m.Bar.Width = 10
		}
		m.Details.Width = msg.Width / 2
		m.Details.Height = msg.Height - 6
		m.refreshDetails()
		return m, nil

	case MsgNote:
		m.applyNote(worker.Notification(msg))
		return m, waitForMsg(m.msgs)

	case MsgDone:
		m.Stage = StageDone
		m.Result = msg.Result
		m.AnalyzePercent = 100
		if msg.Result != nil {
			m.PrintTime = msg.Result.PrintTime
		}
		m.SelectedIdx = 0
		m.refreshDetails()
		return m, waitForMsg(m.msgs)

	case MsgError:
		m.Err = msg
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.SelectedIdx > 0 {
				m.SelectedIdx--
				m.refreshDetails()
			}
		case "down", "j":
			if m.Result != nil && m.SelectedIdx < len(m.Result.ByZ)-1 {
				m.SelectedIdx++
				m.refreshDetails()
			}
		case "r":
			m.ShowReport = !m.ShowReport
			m.refreshDetails()
		default:
			m.Details, cmd = m.Details.Update(msg)
		}
	}

	return m, cmd
}

func (m *AppModel) applyNote(n worker.Notification) {
	switch n.Cmd {
	case worker.NoteMultiLayer:
		if n.Chunk == nil {
			return
		}
		m.ParsePercent = n.Chunk.Progress
		for _, li := range n.Chunk.LayerIndices {
			if li+1 > m.Layers {
				m.Layers = li + 1
			}
		}
	case worker.NoteModel:
		m.ParsePercent = 100
		m.Stage = StageAnalyzing
	case worker.NoteAnalyzeProgress:
		if n.Progress != nil {
			m.AnalyzePercent = n.Progress.Percent
			m.PrintTime = n.Progress.PrintTime
		}
	case worker.NoteWarning:
		if n.Warning != nil {
			m.Warnings = append(m.Warnings, *n.Warning)
		}
	}
}

func (m *AppModel) refreshDetails() {
	if m.Result == nil {
		return
	}
	if m.ShowReport {
		m.Details.SetContent(analyzer.GenerateReport(m.Result, "", true))
		return
	}
	if m.SelectedIdx < len(m.Result.ByZ) {
		m.Details.SetContent(zDetails(&m.Result.ByZ[m.SelectedIdx]))
	}
	m.Details.GotoTop()
}
