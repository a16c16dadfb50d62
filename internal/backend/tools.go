package backend

import (
	"github.com/idelchi/foldenc/internal/process"
)

// Tool is an external executable a backend runs.
type Tool struct {
	// Role says what the tool is used for, e.g. "packager".
	Role string
	// Bin is the configured executable name or path.
	Bin string
}

// ToolStatus is the outcome of looking a Tool up.
type ToolStatus struct {
	Tool
	// Path is where the executable was found.
	Path string
	// Err is set if it was not.
	Err error
}

type toolUser interface {
	Tools() []Tool
}

// Tools lists the external executables the strategy needs. Native strategies need none.
func (s *Strategy) Tools() []Tool {
	var tools []Tool

	for _, b := range []any{s.Packager, s.Cipher, s.Archiver} {
		if user, ok := b.(toolUser); ok {
			tools = append(tools, user.Tools()...)
		}
	}

	return tools
}

// CheckTools looks every tool the strategy needs up in PATH.
func (s *Strategy) CheckTools() []ToolStatus {
	tools := s.Tools()
	statuses := make([]ToolStatus, 0, len(tools))

	for _, tool := range tools {
		path, err := process.LookPath(tool.Bin)
		statuses = append(statuses, ToolStatus{Tool: tool, Path: path, Err: err})
	}

	return statuses
}
