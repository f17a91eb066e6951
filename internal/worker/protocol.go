// Package worker is the message-passing boundary around the analysis
// operations. A caller sends a Request (command tag plus JSON payload) and
// gets back a Response carrying either the result payload or an error
// message. Nothing crosses the boundary as a panic.
package worker

import (
	"encoding/json"

	"github.com/hpungsan/quotemap/internal/errors"
)

// Commands
const (
	CmdBuildTree          = "buildTree"
	CmdFlatten            = "flatten"
	CmdAlign              = "align"
	CmdFetchAndAlignBatch = "fetchAndAlignBatch"
)

// TypeError tags a failed response.
const TypeError = "error"

// Commands lists every command a worker understands.
var Commands = []string{CmdBuildTree, CmdFlatten, CmdAlign, CmdFetchAndAlignBatch}

// Request is one command sent to a worker.
type Request struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Response answers one Request. Type is the command name with a "Result"
// suffix, or "error" with Error and Code set.
type Response struct {
	ID     string           `json:"id,omitempty"`
	Type   string           `json:"type"`
	Data   json.RawMessage  `json:"data,omitempty"`
	Error  string           `json:"error,omitempty"`
	Code   errors.ErrorCode `json:"code,omitempty"`
	Status int              `json:"status,omitempty"`
}

// ResultType returns the response type for a command.
func ResultType(cmd string) string {
	return cmd + "Result"
}

// OK reports whether the response carries a result.
func (r Response) OK() bool {
	return r.Type != TypeError
}

func errorResponse(id string, err *errors.Error) Response {
	return Response{
		ID:     id,
		Type:   TypeError,
		Error:  err.Message,
		Code:   err.Code,
		Status: err.Status,
	}
}
