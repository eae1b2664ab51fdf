package store

import (
	"slices"
	"sort"
	"sync"

	"github.com/typester/riverql/internal/river"
)

// OutputState is the current status of one output.
//
// Tag fields are opaque bitmasks passed through unchanged. Nil pointers and a
// nil ViewTags slice mean no event has set the field yet.
type OutputState struct {
	// ID is the opaque upstream identity.
	ID river.Identity `json:"outputId"`

	// Label is the human-readable name, empty until one is resolved.
	Label string `json:"name,omitempty"`

	FocusedTags *uint32  `json:"focusedTags"`
	ViewTags    []uint32 `json:"viewTags"`
	UrgentTags  *uint32  `json:"urgentTags"`

	// LayoutName is cleared back to nil by OutputLayoutNameClear.
	LayoutName *string `json:"layoutName"`
}

// NamedOutput references an output together with its label.
type NamedOutput struct {
	ID    river.Identity `json:"outputId"`
	Label string         `json:"name,omitempty"`
}

// SeatState is the current status of the seat.
type SeatState struct {
	FocusedOutput *NamedOutput `json:"focusedOutput"`
	FocusedView   *string      `json:"focusedView"`
	Mode          *string      `json:"mode"`
}

// Store is the in-memory status snapshot.
//
// Store expects a single writer calling [Store.Apply] and
// [Store.SetOutputInfo]; any number of readers may run concurrently with it
// and with each other. All readers return copies.
type Store struct {
	mu      sync.RWMutex
	outputs map[river.Identity]*OutputState
	infos   map[river.Identity]river.OutputInfo
	labels  map[string]river.Identity
	seat    SeatState
}

// New creates an empty [Store].
func New() *Store {
	return &Store{
		outputs: make(map[river.Identity]*OutputState),
		infos:   make(map[river.Identity]river.OutputInfo),
		labels:  make(map[string]river.Identity),
	}
}

// Apply folds one event into the snapshot.
//
// Output-scoped events create the output on first sight. Applying the same
// event twice leaves the snapshot as applying it once.
func (s *Store) Apply(ev river.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case river.OutputFocusedTags:
		tags := e.Tags
		s.outputLocked(e.OutputRef).FocusedTags = &tags
	case river.OutputViewTags:
		tags := slices.Clone(e.Tags)
		if tags == nil {
			tags = []uint32{}
		}
		s.outputLocked(e.OutputRef).ViewTags = tags
	case river.OutputUrgentTags:
		tags := e.Tags
		s.outputLocked(e.OutputRef).UrgentTags = &tags
	case river.OutputLayoutName:
		layout := e.Layout
		s.outputLocked(e.OutputRef).LayoutName = &layout
	case river.OutputLayoutNameClear:
		s.outputLocked(e.OutputRef).LayoutName = nil
	case river.SeatFocusedOutput:
		label := e.Label
		if st, ok := s.outputs[e.Output]; ok && st.Label != "" {
			label = st.Label
		}
		s.seat.FocusedOutput = &NamedOutput{ID: e.Output, Label: label}
	case river.SeatUnfocusedOutput:
		// only the focused output is part of the snapshot
	case river.SeatFocusedView:
		title := e.Title
		s.seat.FocusedView = &title
	case river.SeatMode:
		mode := e.Name
		s.seat.Mode = &mode
	}
}

// SetOutputInfo records the naming fields of an output and re-resolves its
// label. The label index moves in the same critical section. Past events
// are not re-emitted; only the snapshot is backfilled.
func (s *Store) SetOutputInfo(id river.Identity, info river.OutputInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.infos[id] = info
	label, _ := info.Label()
	s.stateLocked(id)
	s.relabelLocked(id, label, true)
}

// outputLocked returns the state for ref's output, creating it if needed.
// An event-carried label is adopted unless naming fields already resolve one.
func (s *Store) outputLocked(ref river.OutputRef) *OutputState {
	st := s.stateLocked(ref.Output)
	if ref.Label != "" {
		if _, resolved := s.infos[ref.Output].Label(); !resolved {
			s.relabelLocked(ref.Output, ref.Label, false)
		}
	}
	return st
}

func (s *Store) stateLocked(id river.Identity) *OutputState {
	st, ok := s.outputs[id]
	if !ok {
		st = &OutputState{ID: id}
		s.outputs[id] = st
	}
	return st
}

// relabelLocked gives id the label, removing its stale mapping first and
// evicting any other output that currently owns the label. A label not taken
// from naming fields never evicts an owner whose fields resolve to it. A
// label freed by the move goes to an unlabelled output whose fields yield it.
func (s *Store) relabelLocked(id river.Identity, label string, fromFields bool) {
	st := s.outputs[id]
	if st.Label == label {
		return
	}

	if label != "" {
		if prev, ok := s.labels[label]; ok && prev != id {
			if !fromFields && s.fieldsYieldLocked(prev, label) {
				return
			}
			if other := s.outputs[prev]; other != nil {
				other.Label = ""
			}
			s.backfillSeatLocked(prev, "")
		}
	}

	var freed string
	if st.Label != "" && s.labels[st.Label] == id {
		delete(s.labels, st.Label)
		freed = st.Label
	}
	if label != "" {
		s.labels[label] = id
	}

	st.Label = label
	s.backfillSeatLocked(id, label)

	if freed != "" {
		s.reclaimLocked(freed)
	}
}

func (s *Store) fieldsYieldLocked(id river.Identity, label string) bool {
	l, ok := s.infos[id].Label()
	return ok && l == label
}

// reclaimLocked hands a freed label to the lowest unlabelled identity whose
// naming fields resolve to it.
func (s *Store) reclaimLocked(label string) {
	var next river.Identity
	found := false
	for id, st := range s.outputs {
		if st.Label != "" || !s.fieldsYieldLocked(id, label) {
			continue
		}
		if !found || id < next {
			next, found = id, true
		}
	}
	if found {
		s.relabelLocked(next, label, true)
	}
}

func (s *Store) backfillSeatLocked(id river.Identity, label string) {
	if fo := s.seat.FocusedOutput; fo != nil && fo.ID == id {
		s.seat.FocusedOutput = &NamedOutput{ID: id, Label: label}
	}
}

// Get returns the state of one output.
func (s *Store) Get(id river.Identity) (OutputState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.outputs[id]
	if !ok {
		return OutputState{}, false
	}
	return st.clone(), true
}

// GetByLabel returns the state of the output currently owning label.
func (s *Store) GetByLabel(label string) (OutputState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.labels[label]
	if !ok {
		return OutputState{}, false
	}
	return s.outputs[id].clone(), true
}

// List returns every known output ordered by identity.
func (s *Store) List() []OutputState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]OutputState, 0, len(s.outputs))
	for _, st := range s.outputs {
		results = append(results, st.clone())
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}

// Seat returns the seat state.
func (s *Store) Seat() SeatState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seat := s.seat
	if fo := s.seat.FocusedOutput; fo != nil {
		cp := *fo
		seat.FocusedOutput = &cp
	}
	return seat
}

// clone copies the state so callers cannot reach store memory. Pointer
// fields are shared: the store replaces them rather than writing through.
func (st *OutputState) clone() OutputState {
	cp := *st
	cp.ViewTags = slices.Clone(st.ViewTags)
	return cp
}
