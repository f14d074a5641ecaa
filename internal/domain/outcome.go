package domain

import "time"

// Outcome classifies the result of a step that must never abort a run.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeAbsent Outcome = "absent"
	OutcomeFailed Outcome = "failed"
)

// ImageResult is returned by the image resolver instead of an error.
type ImageResult struct {
	Outcome   Outcome
	File      string
	Thumbnail string
	Reason    string
}

// ImageFound reports a stored image and its optional thumbnail.
func ImageFound(file, thumbnail string) ImageResult {
	return ImageResult{Outcome: OutcomeOK, File: file, Thumbnail: thumbnail}
}

// ImageAbsent reports that no image candidate exists.
func ImageAbsent(reason string) ImageResult {
	return ImageResult{Outcome: OutcomeAbsent, Reason: reason}
}

// ImageFailed reports a candidate that could not be fetched or validated.
func ImageFailed(err error) ImageResult {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return ImageResult{Outcome: OutcomeFailed, Reason: reason}
}

// ScriptResult carries generated text or the local fallback.
type ScriptResult struct {
	Text     string
	Fallback bool
	Reason   string
}

// DeliveryKind names the message shape that was attempted.
type DeliveryKind string

const (
	DeliveryNotice  DeliveryKind = "notice"
	DeliveryUnified DeliveryKind = "unified"
	DeliveryPhoto   DeliveryKind = "photo"
	DeliveryText    DeliveryKind = "text"
)

// Delivery is the result of sending one message.
type Delivery struct {
	Link    string
	Kind    DeliveryKind
	Outcome Outcome
	Reason  string
}

// DigestReport summarizes one publish pass.
type DigestReport struct {
	Deliveries []Delivery
	Sent       int
	Degraded   int // photos that fell back to text
	Failed     int
}

// ClearReport summarizes a best-effort reset of the store.
type ClearReport struct {
	TablesCleared []string
	TablesSkipped []string
	FilesRemoved  int
	Errors        []string
}

// OK reports whether every table and file was handled without error.
func (r ClearReport) OK() bool {
	return len(r.Errors) == 0
}

// CommitResult is what a batch replacement wrote and what it swept away.
type CommitResult struct {
	Items   []StoredItem
	Cleared ClearReport
}

// RunReport is the outcome of one pipeline execution.
type RunReport struct {
	WeekStart  time.Time
	Fetched    int
	Selected   int
	Committed  int
	Unified    ScriptResult
	Individual ScriptResult
	Images     map[Outcome]int
	Clear      ClearReport
	Items      []ResultItem
}
