package errortracking

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Captured is one event kept by a Recorder.
type Captured struct {
	Kind     string // error, message or panic
	Severity Severity
	Message  string
	Extra    map[string]interface{}
}

// Recorder keeps captured events in memory. It is meant for tests and for
// embedding applications that want to surface contained faults themselves.
type Recorder struct {
	mu     sync.Mutex
	events []Captured
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(c Captured) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, c)
}

func (r *Recorder) CaptureError(ctx context.Context, err error, severity Severity, extra map[string]interface{}) {
	if err == nil {
		return
	}
	r.add(Captured{Kind: "error", Severity: severity, Message: err.Error(), Extra: extra})
}

func (r *Recorder) CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]interface{}) {
	r.add(Captured{Kind: "message", Severity: severity, Message: message, Extra: extra})
}

func (r *Recorder) CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{}) {
	r.add(Captured{Kind: "panic", Severity: SeverityError, Message: fmt.Sprint(recovered), Extra: extra})
}

// Events returns a copy of everything captured so far.
func (r *Recorder) Events() []Captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Captured, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of captured events of the given kind.
func (r *Recorder) Count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Recorder) Flush(timeout time.Duration) bool { return true }

func (r *Recorder) Close() error { return nil }
