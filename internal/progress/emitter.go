package progress

import "sync"

// Update is one progress event. Either Speed/ETA or Bar is populated.
type Update struct {
	Phase      string
	Percentage float64
	Speed      string
	ETA        string
	Bar        string
}

// Emitter is the event sink the engine reports through. The wire format is
// the implementation's concern.
type Emitter interface {
	Status(message string)
	Progress(update Update)
}

// Discard is an Emitter that drops everything.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Status(string)   {}
func (discard) Progress(Update) {}

// Recorder is an Emitter that keeps every event in memory.
type Recorder struct {
	mu       sync.Mutex
	statuses []string
	updates  []Update
}

func (r *Recorder) Status(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, message)
}

func (r *Recorder) Progress(update Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

// Statuses returns a copy of the recorded status messages.
func (r *Recorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

// Updates returns a copy of the recorded progress updates.
func (r *Recorder) Updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}
