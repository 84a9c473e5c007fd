package schemas

// -- Wire Schemas --
//
// The agent backend speaks JSON text frames over a websocket. Outbound frames
// carry a task submission; inbound frames are flat records where any subset of
// fields may be present. The flat record is decoded at the transport boundary
// and immediately lowered into a closed set of tagged events so the session
// state machine stays exhaustive over event kinds.

// TaskRequest is the single outbound frame shape: a free-text task for the
// agent to perform.
type TaskRequest struct {
	Task string `json:"task"`
}

// Frame is the raw inbound record. Pointer fields distinguish "absent" from
// zero values where the distinction matters (step 0 is still a step).
type Frame struct {
	ScreenshotURL    string `json:"screenshot_url,omitempty"`
	ScreenshotBase64 string `json:"screenshot_base64,omitempty"`
	Step             *int   `json:"step,omitempty"`
	Status           string `json:"status,omitempty"`
	Result           string `json:"result,omitempty"`
	Error            string `json:"error,omitempty"`
	Done             bool   `json:"done,omitempty"`
}

// EventKind tags the decoded variants of an inbound frame.
type EventKind string

const (
	EventProgress EventKind = "progress" // A step screenshot for the in-flight task.
	EventDone     EventKind = "done"     // Task completion carrying a result text.
	EventError    EventKind = "error"    // Agent-reported task failure.
)

// Event is one decoded inbound occurrence. Exactly one of the payload fields
// is meaningful for a given Kind.
type Event struct {
	Kind EventKind

	// Progress payload.
	Screenshot Screenshot

	// Done payload.
	Result string

	// Error payload.
	Message string
}

// Events lowers a raw frame into its ordered event list. A frame may combine a
// progress update and a finalization; the progress event is emitted first so
// the screenshot lands in the accumulator before the snapshot is taken. A
// frame yielding no events (e.g. a bare status ping) returns an empty slice.
func (f *Frame) Events() []Event {
	var events []Event

	if f.Step != nil && (f.ScreenshotURL != "" || f.ScreenshotBase64 != "") {
		events = append(events, Event{
			Kind: EventProgress,
			Screenshot: Screenshot{
				URL:    f.ScreenshotURL,
				Base64: f.ScreenshotBase64,
				Step:   *f.Step,
			},
		})
	}

	if f.Error != "" {
		events = append(events, Event{Kind: EventError, Message: f.Error})
	}

	if f.Done && f.Result != "" {
		events = append(events, Event{Kind: EventDone, Result: f.Result})
	}

	return events
}
