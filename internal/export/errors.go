package export

import (
	"errors"
	"fmt"
)

// ErrorKind classifies export failures
type ErrorKind string

const (
	// KindAnalysisImpossible: no primary video and no frames can be produced.
	KindAnalysisImpossible ErrorKind = "analysis_impossible"
	// KindAssetMaterialization: a sticker asset could not be materialized.
	// Non-fatal per sticker; surfaced only as a warning.
	KindAssetMaterialization ErrorKind = "asset_materialization_failed"
	// KindFrameFilter: a per-frame filter invocation failed. Non-fatal per
	// frame; the raw frame is substituted.
	KindFrameFilter ErrorKind = "frame_filter_failed"
	// KindExternalTool: the ffmpeg child process exited non-zero.
	KindExternalTool ErrorKind = "external_tool_failed"
	// KindSessionIO: the session workspace could not be created or written.
	KindSessionIO ErrorKind = "session_io_failed"
	// KindCancelled: the export was cancelled by the caller. Produces no
	// output and guarantees session cleanup.
	KindCancelled ErrorKind = "cancelled_by_user"
)

// Error is a structured export failure carrying its kind and, for
// external tool failures, the captured diagnostic output.
type Error struct {
	Kind       ErrorKind
	Op         string
	Diagnostic string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an export Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind == kind
	}
	return false
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
