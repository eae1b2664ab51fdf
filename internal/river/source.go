package river

import (
	"context"
	"sync"
)

// Sink receives the output of a [Source]. Calls arrive from a single
// goroutine, in upstream order.
type Sink interface {
	// OutputInfo reports the current naming fields of an output.
	OutputInfo(id Identity, info OutputInfo)

	// Event reports one status change.
	Event(ev Event)
}

// Source is an upstream status producer.
//
// Run delivers everything the upstream produces to sink and returns when the
// upstream ends or ctx is cancelled. A nil error means the upstream closed
// cleanly.
type Source interface {
	Run(ctx context.Context, sink Sink) error
}

// SinkFuncs adapts a pair of functions to [Sink]. Nil fields are no-ops.
type SinkFuncs struct {
	OnOutputInfo func(Identity, OutputInfo)
	OnEvent      func(Event)
}

func (f SinkFuncs) OutputInfo(id Identity, info OutputInfo) {
	if f.OnOutputInfo != nil {
		f.OnOutputInfo(id, info)
	}
}

func (f SinkFuncs) Event(ev Event) {
	if f.OnEvent != nil {
		f.OnEvent(ev)
	}
}

// Tracker is the adapter-side view of output naming. It merges partial
// [OutputInfo] updates and stamps the label known at emission time onto each
// output-scoped event before handing it to the sink.
type Tracker struct {
	sink Sink

	mu    sync.Mutex
	infos map[Identity]OutputInfo
}

// NewTracker returns a Tracker forwarding to sink.
func NewTracker(sink Sink) *Tracker {
	return &Tracker{
		sink:  sink,
		infos: make(map[Identity]OutputInfo),
	}
}

// UpdateInfo merges update into the known fields of id and forwards the
// merged fields when anything changed.
func (t *Tracker) UpdateInfo(id Identity, update OutputInfo) {
	t.mu.Lock()
	prev := t.infos[id]
	merged := prev.Merge(update)
	t.infos[id] = merged
	t.mu.Unlock()

	if merged != prev {
		t.sink.OutputInfo(id, merged)
	}
}

// Emit stamps ev with the current label of its output, if any, and forwards
// it.
func (t *Tracker) Emit(ev Event) {
	if scoped, ok := ev.(OutputScoped); ok {
		t.mu.Lock()
		label, _ := t.infos[scoped.Identity()].Label()
		t.mu.Unlock()
		ev = WithLabel(ev, label)
	}
	t.sink.Event(ev)
}

// Label returns the label currently resolved for id.
func (t *Tracker) Label(id Identity) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.infos[id].Label()
}
