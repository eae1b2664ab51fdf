package river

import (
	"encoding/json"
	"errors"
	"fmt"
)

// recordOutputInfo is the record type carrying naming fields.
const recordOutputInfo = "output_info"

// Record is the upstream wire form shared by [StreamSource] and
// [ReplaySource]: one JSON object per status change or naming update.
//
//	{"type":"output_info","output":"42","name":"eDP-1"}
//	{"type":"OutputFocusedTags","output":"42","tags":5}
//	{"type":"SeatMode","name":"normal"}
type Record struct {
	Type        string          `json:"type"`
	Output      Identity        `json:"output,omitempty"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Make        string          `json:"make,omitempty"`
	Model       string          `json:"model,omitempty"`
	Tags        json.RawMessage `json:"tags,omitempty"`
	Layout      string          `json:"layout,omitempty"`
	Title       string          `json:"title,omitempty"`
}

// apply feeds the record through the tracker.
func (r Record) apply(t *Tracker) error {
	if r.Type == recordOutputInfo {
		if r.Output == "" {
			return errors.New("output_info: output is required")
		}
		t.UpdateInfo(r.Output, OutputInfo{
			Name:        r.Name,
			Description: r.Description,
			Make:        r.Make,
			Model:       r.Model,
		})
		return nil
	}
	ev, err := r.Event()
	if err != nil {
		return err
	}
	t.Emit(ev)
	return nil
}

// Event converts an event record to its variant.
func (r Record) Event() (Event, error) {
	kind, err := ParseKind(r.Type)
	if err != nil {
		return nil, err
	}

	ref := OutputRef{Output: r.Output}
	switch kind {
	case KindSeatFocusedView:
		return SeatFocusedView{Title: r.Title}, nil
	case KindSeatMode:
		return SeatMode{Name: r.Name}, nil
	}

	if r.Output == "" {
		return nil, fmt.Errorf("%s: output is required", kind)
	}

	switch kind {
	case KindOutputFocusedTags, KindOutputUrgentTags:
		var tags uint32
		if err := decodeTags(r.Tags, &tags); err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		if kind == KindOutputFocusedTags {
			return OutputFocusedTags{OutputRef: ref, Tags: tags}, nil
		}
		return OutputUrgentTags{OutputRef: ref, Tags: tags}, nil
	case KindOutputViewTags:
		tags := []uint32{}
		if err := decodeTags(r.Tags, &tags); err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		return OutputViewTags{OutputRef: ref, Tags: tags}, nil
	case KindOutputLayoutName:
		return OutputLayoutName{OutputRef: ref, Layout: r.Layout}, nil
	case KindOutputLayoutNameClear:
		return OutputLayoutNameClear{OutputRef: ref}, nil
	case KindSeatFocusedOutput:
		return SeatFocusedOutput{OutputRef: ref}, nil
	case KindSeatUnfocusedOutput:
		return SeatUnfocusedOutput{OutputRef: ref}, nil
	}
	return nil, fmt.Errorf("unhandled event kind %q", kind)
}

func decodeTags(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errors.New("tags are required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid tags: %w", err)
	}
	return nil
}

func decodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	if r.Type == "" {
		return Record{}, errors.New("record type is required")
	}
	return r, nil
}
