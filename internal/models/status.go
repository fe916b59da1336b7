package models

import "fmt"

// Status is the processing state of a document record. The stored value is the
// string form, so these constants must never be renamed.
type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusOCRComplete Status = "ocr-complete"
	StatusClassified  Status = "classified"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

// AllStatuses lists every status in pipeline order, with error last.
var AllStatuses = []Status{
	StatusUploaded,
	StatusOCRComplete,
	StatusClassified,
	StatusComplete,
	StatusError,
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusUploaded, StatusOCRComplete, StatusClassified, StatusComplete, StatusError:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown document status %q", s)
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusError:
		return true
	default:
		return false
	}
}

// Next returns the status a successful stage moves the record to.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusUploaded:
		return StatusOCRComplete, true
	case StatusOCRComplete:
		return StatusClassified, true
	case StatusClassified:
		return StatusComplete, true
	case StatusComplete, StatusError:
		return "", false
	}
	return "", false
}

// Rank orders the happy path. Error ranks above everything so that any observed
// sequence of statuses for one document is non-decreasing.
func (s Status) Rank() int {
	switch s {
	case StatusUploaded:
		return 0
	case StatusOCRComplete:
		return 1
	case StatusClassified:
		return 2
	case StatusComplete:
		return 3
	case StatusError:
		return 4
	}
	return -1
}

// Transition is one edge of the status state machine.
type Transition struct {
	From Status
	To   Status
}

func (t Transition) String() string {
	return fmt.Sprintf("%s -> %s", t.From, t.To)
}

// Valid reports whether the edge is in the transition table: one step forward
// along the pipeline, or from any non-terminal state into error.
func (t Transition) Valid() bool {
	if t.From.IsTerminal() {
		return false
	}
	if t.To == StatusError {
		return t.From.Rank() >= 0
	}
	next, ok := t.From.Next()
	return ok && next == t.To
}

// Stage transitions, one per processing stage.
var (
	TransitionOCR       = Transition{From: StatusUploaded, To: StatusOCRComplete}
	TransitionClassify  = Transition{From: StatusOCRComplete, To: StatusClassified}
	TransitionSummarize = Transition{From: StatusClassified, To: StatusComplete}
)

// FailTransition returns the edge that moves a record in status s to error.
func FailTransition(s Status) Transition {
	return Transition{From: s, To: StatusError}
}
