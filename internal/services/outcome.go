package services

import (
	"fmt"
	"unicode/utf8"

	"github.com/Lllllllleong/idpflow/internal/apperr"
)

// Stage names used in logs and metric labels.
const (
	StageOCR       = "ocr"
	StageClassify  = "classify"
	StageSummarize = "summarize"
	StageReconcile = "reconcile"
)

// Outcome is what a single stage invocation did to its record.
type Outcome int

const (
	// OutcomeApplied means the guarded write went through.
	OutcomeApplied Outcome = iota
	// OutcomeSkipped means the record was not in the stage's predecessor state.
	OutcomeSkipped
	// OutcomeFailed means the invocation failed; the returned error says why.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// storeError wraps a record-store failure. Only failures that another attempt
// can fix are tagged transient; a corrupt record or a rejected write is not.
func storeError(op string, err error) error {
	if apperr.IsRetryable(err) {
		return apperr.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// truncateRunes returns at most n characters of s without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func ptr[T any](v T) *T {
	return &v
}
