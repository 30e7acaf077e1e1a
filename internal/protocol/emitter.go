// Package protocol writes engine events as one JSON object per line, the
// format the frontend reads from stdout.
package protocol

import (
	"encoding/json"
	"io"
	"math"
	"sync"

	"securewipe/internal/progress"
)

// Message kinds.
const (
	TypeStatus   = "status"
	TypeProgress = "progress"
	TypeError    = "error"
	TypeDrives   = "drives"
)

type statusMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type progressMessage struct {
	Type       string  `json:"type"`
	Phase      string  `json:"phase"`
	Percentage float64 `json:"percentage"`
	Speed      string  `json:"speed,omitempty"`
	ETA        string  `json:"eta,omitempty"`
	Bar        string  `json:"bar,omitempty"`
}

// Drive is one entry of a drives message.
type Drive struct {
	Device     string `json:"device"`
	Mountpoint string `json:"mountpoint"`
	Filesystem string `json:"filesystem"`
	Total      uint64 `json:"total"`
	Free       uint64 `json:"free"`
	System     bool   `json:"system"`
}

type drivesMessage struct {
	Type  string  `json:"type"`
	Items []Drive `json:"items"`
}

// Emitter implements progress.Emitter over an io.Writer. Lines are written
// whole under a mutex so a signal-path status never interleaves with a
// progress line.
type Emitter struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

var _ progress.Emitter = (*Emitter)(nil)

func NewEmitter(w io.Writer) *Emitter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Emitter{enc: enc}
}

func (e *Emitter) Status(message string) {
	e.write(statusMessage{Type: TypeStatus, Message: message})
}

func (e *Emitter) Error(message string) {
	e.write(statusMessage{Type: TypeError, Message: message})
}

// Progress writes either the speed/eta form or, when Bar is set, the bar form.
func (e *Emitter) Progress(u progress.Update) {
	msg := progressMessage{
		Type:       TypeProgress,
		Phase:      u.Phase,
		Percentage: math.Round(u.Percentage*100) / 100,
	}
	if u.Bar != "" {
		msg.Bar = u.Bar
	} else {
		msg.Speed = u.Speed
		msg.ETA = u.ETA
	}
	e.write(msg)
}

// ProgressBar writes the bar form for phases without a byte rate, e.g. an
// external tool's own percentage.
func (e *Emitter) ProgressBar(phase string, percentage float64, bar string) {
	e.Progress(progress.Update{Phase: phase, Percentage: percentage, Bar: bar})
}

func (e *Emitter) Drives(items []Drive) {
	if items == nil {
		items = []Drive{}
	}
	e.write(drivesMessage{Type: TypeDrives, Items: items})
}

// Err returns the first write error, if any. Later writes are dropped.
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Emitter) write(v interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return
	}
	e.err = e.enc.Encode(v)
}

// Bar renders a fixed-width text progress bar.
func Bar(percentage float64, width int) string {
	if width <= 0 {
		width = 20
	}
	filled := int(math.Round(math.Max(0, math.Min(percentage, 100)) / 100 * float64(width)))
	bar := make([]byte, width)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '-'
		}
	}
	return "[" + string(bar) + "]"
}
