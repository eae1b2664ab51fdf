package river

import (
	"fmt"
	"sort"
	"strings"
)

// Identity is the opaque handle assigned to an upstream output for its
// lifetime. It carries no meaning beyond equality.
type Identity string

// Kind names one [Event] variant. The string value is the variant name used
// on the wire and in subscription filters.
type Kind string

const (
	KindOutputFocusedTags     Kind = "OutputFocusedTags"
	KindOutputViewTags        Kind = "OutputViewTags"
	KindOutputUrgentTags      Kind = "OutputUrgentTags"
	KindOutputLayoutName      Kind = "OutputLayoutName"
	KindOutputLayoutNameClear Kind = "OutputLayoutNameClear"
	KindSeatFocusedOutput     Kind = "SeatFocusedOutput"
	KindSeatUnfocusedOutput   Kind = "SeatUnfocusedOutput"
	KindSeatFocusedView       Kind = "SeatFocusedView"
	KindSeatMode              Kind = "SeatMode"
)

// Kinds lists every variant in declaration order.
var Kinds = []Kind{
	KindOutputFocusedTags,
	KindOutputViewTags,
	KindOutputUrgentTags,
	KindOutputLayoutName,
	KindOutputLayoutNameClear,
	KindSeatFocusedOutput,
	KindSeatUnfocusedOutput,
	KindSeatFocusedView,
	KindSeatMode,
}

// ParseKind returns the Kind with the given variant name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// KindSet is a subscription filter. The empty set accepts every kind.
type KindSet map[Kind]struct{}

// NewKindSet builds a set from the given kinds.
func NewKindSet(kinds ...Kind) KindSet {
	set := make(KindSet, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return set
}

// Accepts reports whether events of kind k pass the filter.
func (s KindSet) Accepts(k Kind) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[k]
	return ok
}

// String renders the set in sorted order, or "*" when it accepts everything.
func (s KindSet) String() string {
	if len(s) == 0 {
		return "*"
	}
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Event is one status change. The set of implementations is closed: only the
// nine variant types in this package satisfy it.
type Event interface {
	// Kind returns the variant name.
	Kind() Kind

	// Fields returns the variant's wire fields, without the type tag.
	Fields() map[string]any

	isEvent()
}

// OutputRef is embedded by output-scoped variants.
type OutputRef struct {
	Output Identity
	// Label is the output's label as known when the event was emitted.
	// Empty when no label had been resolved yet.
	Label string
}

// Identity returns the output the event concerns.
func (r OutputRef) Identity() Identity { return r.Output }

func (r OutputRef) label() any {
	if r.Label == "" {
		return nil
	}
	return r.Label
}

// OutputScoped is implemented by every variant that concerns one output.
type OutputScoped interface {
	Event
	Identity() Identity
}

// OutputFocusedTags reports the tags focused on an output.
type OutputFocusedTags struct {
	OutputRef
	Tags uint32
}

// OutputViewTags reports the tags of every view on an output.
type OutputViewTags struct {
	OutputRef
	Tags []uint32
}

// OutputUrgentTags reports the tags holding an urgent view on an output.
type OutputUrgentTags struct {
	OutputRef
	Tags uint32
}

// OutputLayoutName reports the layout name of an output.
type OutputLayoutName struct {
	OutputRef
	Layout string
}

// OutputLayoutNameClear reports that an output no longer has a layout name.
type OutputLayoutNameClear struct {
	OutputRef
}

// SeatFocusedOutput reports that the seat focused an output.
type SeatFocusedOutput struct {
	OutputRef
}

// SeatUnfocusedOutput reports that the seat left an output.
type SeatUnfocusedOutput struct {
	OutputRef
}

// SeatFocusedView reports the title of the focused view.
type SeatFocusedView struct {
	Title string
}

// SeatMode reports the active mode of the seat.
type SeatMode struct {
	Name string
}

func (OutputFocusedTags) Kind() Kind     { return KindOutputFocusedTags }
func (OutputViewTags) Kind() Kind        { return KindOutputViewTags }
func (OutputUrgentTags) Kind() Kind      { return KindOutputUrgentTags }
func (OutputLayoutName) Kind() Kind      { return KindOutputLayoutName }
func (OutputLayoutNameClear) Kind() Kind { return KindOutputLayoutNameClear }
func (SeatFocusedOutput) Kind() Kind     { return KindSeatFocusedOutput }
func (SeatUnfocusedOutput) Kind() Kind   { return KindSeatUnfocusedOutput }
func (SeatFocusedView) Kind() Kind       { return KindSeatFocusedView }
func (SeatMode) Kind() Kind              { return KindSeatMode }

func (OutputFocusedTags) isEvent()     {}
func (OutputViewTags) isEvent()        {}
func (OutputUrgentTags) isEvent()      {}
func (OutputLayoutName) isEvent()      {}
func (OutputLayoutNameClear) isEvent() {}
func (SeatFocusedOutput) isEvent()     {}
func (SeatUnfocusedOutput) isEvent()   {}
func (SeatFocusedView) isEvent()       {}
func (SeatMode) isEvent()              {}

func (e OutputFocusedTags) Fields() map[string]any {
	return map[string]any{"outputId": string(e.Output), "name": e.label(), "tags": e.Tags}
}

func (e OutputViewTags) Fields() map[string]any {
	tags := e.Tags
	if tags == nil {
		tags = []uint32{}
	}
	return map[string]any{"outputId": string(e.Output), "name": e.label(), "tags": tags}
}

func (e OutputUrgentTags) Fields() map[string]any {
	return map[string]any{"outputId": string(e.Output), "name": e.label(), "tags": e.Tags}
}

func (e OutputLayoutName) Fields() map[string]any {
	return map[string]any{"outputId": string(e.Output), "outputName": e.label(), "layout": e.Layout}
}

func (e OutputLayoutNameClear) Fields() map[string]any {
	return map[string]any{"outputId": string(e.Output), "outputName": e.label()}
}

func (e SeatFocusedOutput) Fields() map[string]any {
	return map[string]any{"outputId": string(e.Output), "name": e.label()}
}

func (e SeatUnfocusedOutput) Fields() map[string]any {
	return map[string]any{"outputId": string(e.Output), "name": e.label()}
}

func (e SeatFocusedView) Fields() map[string]any {
	return map[string]any{"title": e.Title}
}

func (e SeatMode) Fields() map[string]any {
	return map[string]any{"name": e.Name}
}

// Zero returns the zero value of the variant named by k, or nil for an
// unknown kind.
func Zero(k Kind) Event {
	switch k {
	case KindOutputFocusedTags:
		return OutputFocusedTags{}
	case KindOutputViewTags:
		return OutputViewTags{}
	case KindOutputUrgentTags:
		return OutputUrgentTags{}
	case KindOutputLayoutName:
		return OutputLayoutName{}
	case KindOutputLayoutNameClear:
		return OutputLayoutNameClear{}
	case KindSeatFocusedOutput:
		return SeatFocusedOutput{}
	case KindSeatUnfocusedOutput:
		return SeatUnfocusedOutput{}
	case KindSeatFocusedView:
		return SeatFocusedView{}
	case KindSeatMode:
		return SeatMode{}
	}
	return nil
}

// TypenameField is the discriminator key of a serialized event.
const TypenameField = "__typename"

// Payload serializes ev as a flat discriminated object.
func Payload(ev Event) map[string]any {
	fields := ev.Fields()
	fields[TypenameField] = string(ev.Kind())
	return fields
}

// WithLabel returns a copy of ev stamped with label when ev is
// output-scoped. Other variants are returned unchanged.
func WithLabel(ev Event, label string) Event {
	switch e := ev.(type) {
	case OutputFocusedTags:
		e.Label = label
		return e
	case OutputViewTags:
		e.Label = label
		return e
	case OutputUrgentTags:
		e.Label = label
		return e
	case OutputLayoutName:
		e.Label = label
		return e
	case OutputLayoutNameClear:
		e.Label = label
		return e
	case SeatFocusedOutput:
		e.Label = label
		return e
	case SeatUnfocusedOutput:
		e.Label = label
		return e
	default:
		return ev
	}
}
