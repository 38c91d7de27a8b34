package worker

import (
	"gcodeview/pkg/analyzer"
	"gcodeview/pkg/errors"
	"gcodeview/pkg/model"
	"gcodeview/pkg/parser"
)

// Request commands.
const (
	CmdParseGCode   = "parseGCode"
	CmdSetOption    = "setOption"
	CmdAnalyzeModel = "analyzeModel"
)

// Notification kinds.
const (
	NoteMultiLayer      = "returnMultiLayer"
	NoteModel           = "returnModel"
	NoteAnalyzeProgress = "analyzeProgress"
	NoteAnalyzeDone     = "analyzeDone"
	NoteWarning         = "warning"
	NoteUnknownCommand  = "unknownCommand"
	NoteError           = "error"
)

// Request is one message from the host.
type Request struct {
	Cmd string `json:"cmd"`

	// parseGCode
	Lines       []model.Line       `json:"lines,omitempty"`
	ToolOffsets []model.ToolOffset `json:"tool_offsets,omitempty"`

	// setOption
	Options map[string]interface{} `json:"options,omitempty"`
}

// ErrorInfo is the wire form of a coded error.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorInfo(err *errors.HostError) *ErrorInfo {
	return &ErrorInfo{Code: string(err.Code), Message: err.Message}
}

// Err converts the wire form back to a coded error.
func (e *ErrorInfo) Err() error {
	return errors.New(errors.ErrorCode(e.Code), e.Message)
}

// Notification is one message to the host. RunID identifies the request
// that produced it.
type Notification struct {
	Cmd   string `json:"cmd"`
	RunID string `json:"run_id"`

	Chunk    *parser.Chunk      `json:"chunk,omitempty"`
	Warning  *parser.Warning    `json:"warning,omitempty"`
	Progress *analyzer.Progress `json:"progress,omitempty"`
	Result   *analyzer.Result   `json:"result,omitempty"`
	Error    *ErrorInfo         `json:"error,omitempty"`

	// Command echoes the name of an unknown command.
	Command string `json:"command,omitempty"`
}

// Final reports whether n is the last notification its run produces.
// setOption runs produce none, and a cancelled run may stop without one.
func (n Notification) Final() bool {
	switch n.Cmd {
	case NoteModel, NoteAnalyzeDone, NoteError, NoteUnknownCommand:
		return true
	}
	return false
}
