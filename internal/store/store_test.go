package store

import (
	"reflect"
	"sync"
	"testing"

	"github.com/typester/riverql/internal/river"
)

func ref(id river.Identity) river.OutputRef {
	return river.OutputRef{Output: id}
}

func TestNew(t *testing.T) {
	s := New()
	if s == nil {
		t.Fatal("New() = nil")
	}
	if len(s.List()) != 0 {
		t.Errorf("List() = %v items, want 0", len(s.List()))
	}
	seat := s.Seat()
	if seat.FocusedOutput != nil || seat.FocusedView != nil || seat.Mode != nil {
		t.Errorf("Seat() = %+v, want zero value", seat)
	}
}

func TestStore_ApplyIsIdempotent(t *testing.T) {
	once := New()
	twice := New()
	ev := river.OutputFocusedTags{OutputRef: ref("X"), Tags: 5}

	once.Apply(ev)
	twice.Apply(ev)
	twice.Apply(ev)

	if !reflect.DeepEqual(once.List(), twice.List()) {
		t.Errorf("applying twice = %+v, applying once = %+v", twice.List(), once.List())
	}
	st, ok := twice.Get("X")
	if !ok {
		t.Fatal("Get(X) not found")
	}
	if st.FocusedTags == nil || *st.FocusedTags != 5 {
		t.Errorf("FocusedTags = %v, want 5", st.FocusedTags)
	}
}

func TestStore_ApplyOutputFields(t *testing.T) {
	s := New()
	s.Apply(river.OutputViewTags{OutputRef: ref("1"), Tags: []uint32{1, 2, 4}})
	s.Apply(river.OutputUrgentTags{OutputRef: ref("1"), Tags: 2})
	s.Apply(river.OutputLayoutName{OutputRef: ref("1"), Layout: "rivertile"})

	st, _ := s.Get("1")
	if !reflect.DeepEqual(st.ViewTags, []uint32{1, 2, 4}) {
		t.Errorf("ViewTags = %v, want [1 2 4]", st.ViewTags)
	}
	if st.UrgentTags == nil || *st.UrgentTags != 2 {
		t.Errorf("UrgentTags = %v, want 2", st.UrgentTags)
	}
	if st.LayoutName == nil || *st.LayoutName != "rivertile" {
		t.Errorf("LayoutName = %v, want rivertile", st.LayoutName)
	}
	if st.FocusedTags != nil {
		t.Errorf("FocusedTags = %v, want nil", *st.FocusedTags)
	}

	s.Apply(river.OutputLayoutNameClear{OutputRef: ref("1")})
	st, _ = s.Get("1")
	if st.LayoutName != nil {
		t.Errorf("LayoutName after clear = %v, want nil", *st.LayoutName)
	}
}

func TestStore_ApplySeat(t *testing.T) {
	s := New()
	s.Apply(river.SeatFocusedOutput{OutputRef: river.OutputRef{Output: "1", Label: "eDP-1"}})
	s.Apply(river.SeatUnfocusedOutput{OutputRef: ref("1")})
	s.Apply(river.SeatFocusedView{Title: "vim"})
	s.Apply(river.SeatMode{Name: "normal"})

	seat := s.Seat()
	if seat.FocusedOutput == nil || seat.FocusedOutput.ID != "1" || seat.FocusedOutput.Label != "eDP-1" {
		t.Errorf("FocusedOutput = %+v, want 1/eDP-1", seat.FocusedOutput)
	}
	if seat.FocusedView == nil || *seat.FocusedView != "vim" {
		t.Errorf("FocusedView = %v, want vim", seat.FocusedView)
	}
	if seat.Mode == nil || *seat.Mode != "normal" {
		t.Errorf("Mode = %v, want normal", seat.Mode)
	}
	if len(s.List()) != 0 {
		t.Errorf("seat events should not create outputs, got %d", len(s.List()))
	}
}

func TestStore_LabelFromDescription(t *testing.T) {
	s := New()
	s.SetOutputInfo("X", river.OutputInfo{Name: "", Description: "Dell U2415", Make: "Dell", Model: "U2415"})

	st, ok := s.GetByLabel("Dell U2415")
	if !ok {
		t.Fatal("GetByLabel(Dell U2415) not found")
	}
	if st.ID != "X" {
		t.Errorf("GetByLabel().ID = %v, want X", st.ID)
	}
}

func TestStore_Relabel(t *testing.T) {
	s := New()
	s.SetOutputInfo("X", river.OutputInfo{Name: "eDP-1"})
	s.SetOutputInfo("X", river.OutputInfo{Name: "eDP-2"})

	if _, ok := s.GetByLabel("eDP-1"); ok {
		t.Error("GetByLabel(eDP-1) should be gone after relabel")
	}
	st, ok := s.GetByLabel("eDP-2")
	if !ok || st.ID != "X" {
		t.Errorf("GetByLabel(eDP-2) = (%+v, %v), want X", st, ok)
	}
}

func TestStore_LabelMovesToNewIdentity(t *testing.T) {
	s := New()
	s.SetOutputInfo("A", river.OutputInfo{Name: "DP-1"})
	s.SetOutputInfo("B", river.OutputInfo{Name: "DP-1"})

	st, ok := s.GetByLabel("DP-1")
	if !ok || st.ID != "B" {
		t.Fatalf("GetByLabel(DP-1) = (%+v, %v), want B", st, ok)
	}
	a, _ := s.Get("A")
	if a.Label != "" {
		t.Errorf("A.Label = %q, want empty after label moved", a.Label)
	}

	// index and outputs agree for every label
	for _, out := range s.List() {
		if out.Label == "" {
			continue
		}
		owner, _ := s.GetByLabel(out.Label)
		if owner.ID != out.ID {
			t.Errorf("label %q owned by %v but listed on %v", out.Label, owner.ID, out.ID)
		}
	}
}

func TestStore_LabelBackfill(t *testing.T) {
	s := New()
	s.Apply(river.OutputFocusedTags{OutputRef: ref("1"), Tags: 1})
	s.Apply(river.SeatFocusedOutput{OutputRef: ref("1")})

	st, _ := s.Get("1")
	if st.Label != "" {
		t.Fatalf("Label = %q, want empty before info", st.Label)
	}

	s.SetOutputInfo("1", river.OutputInfo{Make: "BOE", Model: "0x095F"})

	st, ok := s.GetByLabel("BOE 0x095F")
	if !ok || st.ID != "1" {
		t.Fatalf("GetByLabel() = (%+v, %v), want output 1", st, ok)
	}
	if st.FocusedTags == nil || *st.FocusedTags != 1 {
		t.Errorf("FocusedTags lost on backfill: %v", st.FocusedTags)
	}
	if seat := s.Seat(); seat.FocusedOutput.Label != "BOE 0x095F" {
		t.Errorf("seat label = %q, want backfilled", seat.FocusedOutput.Label)
	}
}

func TestStore_EventLabelAdoptedWithoutInfo(t *testing.T) {
	s := New()
	s.Apply(river.OutputFocusedTags{OutputRef: river.OutputRef{Output: "1", Label: "eDP-1"}, Tags: 1})

	if st, ok := s.GetByLabel("eDP-1"); !ok || st.ID != "1" {
		t.Fatalf("GetByLabel(eDP-1) = (%+v, %v), want 1", st, ok)
	}

	// resolved naming fields win over a stale event label
	s.SetOutputInfo("1", river.OutputInfo{Name: "eDP-2"})
	s.Apply(river.OutputFocusedTags{OutputRef: river.OutputRef{Output: "1", Label: "eDP-1"}, Tags: 2})

	if _, ok := s.GetByLabel("eDP-1"); ok {
		t.Error("stale event label should not override resolved label")
	}
	if st, ok := s.GetByLabel("eDP-2"); !ok || *st.FocusedTags != 2 {
		t.Errorf("GetByLabel(eDP-2) = (%+v, %v)", st, ok)
	}
}

func TestStore_FreedLabelReturnsToNamedOutput(t *testing.T) {
	s := New()
	s.Apply(river.SeatFocusedOutput{OutputRef: ref("A")})
	s.SetOutputInfo("A", river.OutputInfo{Name: "eDP-1"})
	s.SetOutputInfo("B", river.OutputInfo{Name: "eDP-1"})

	if seat := s.Seat(); seat.FocusedOutput.Label != "" {
		t.Fatalf("seat label = %q, want empty while B owns eDP-1", seat.FocusedOutput.Label)
	}

	s.SetOutputInfo("B", river.OutputInfo{Name: "HDMI-A-1"})

	st, ok := s.GetByLabel("eDP-1")
	if !ok || st.ID != "A" {
		t.Fatalf("GetByLabel(eDP-1) = (%+v, %v), want A", st, ok)
	}
	if st.Label != "eDP-1" {
		t.Errorf("A.Label = %q, want eDP-1", st.Label)
	}
	if seat := s.Seat(); seat.FocusedOutput.Label != "eDP-1" {
		t.Errorf("seat label = %q, want eDP-1", seat.FocusedOutput.Label)
	}
	if st, ok := s.GetByLabel("HDMI-A-1"); !ok || st.ID != "B" {
		t.Errorf("GetByLabel(HDMI-A-1) = (%+v, %v), want B", st, ok)
	}
}

func TestStore_FreedLabelGoesToLowestIdentity(t *testing.T) {
	s := New()
	s.SetOutputInfo("3", river.OutputInfo{Name: "DP-1"})
	s.SetOutputInfo("2", river.OutputInfo{Name: "DP-1"})
	s.SetOutputInfo("1", river.OutputInfo{Name: "DP-1"})

	s.SetOutputInfo("1", river.OutputInfo{})

	st, ok := s.GetByLabel("DP-1")
	if !ok || st.ID != "2" {
		t.Fatalf("GetByLabel(DP-1) = (%+v, %v), want 2", st, ok)
	}
	if three, _ := s.Get("3"); three.Label != "" {
		t.Errorf("3.Label = %q, want empty", three.Label)
	}
}

func TestStore_EventLabelKeepsNamedOwner(t *testing.T) {
	s := New()
	s.SetOutputInfo("B", river.OutputInfo{Name: "HDMI-A-1"})
	s.Apply(river.OutputFocusedTags{OutputRef: river.OutputRef{Output: "C", Label: "HDMI-A-1"}, Tags: 4})

	st, ok := s.GetByLabel("HDMI-A-1")
	if !ok || st.ID != "B" {
		t.Fatalf("GetByLabel(HDMI-A-1) = (%+v, %v), want B", st, ok)
	}
	c, ok := s.Get("C")
	if !ok {
		t.Fatal("Get(C) not found")
	}
	if c.Label != "" {
		t.Errorf("C.Label = %q, want empty", c.Label)
	}
	if c.FocusedTags == nil || *c.FocusedTags != 4 {
		t.Errorf("C.FocusedTags = %v, want 4", c.FocusedTags)
	}

	// an event label still moves between outputs without naming fields
	s.Apply(river.OutputFocusedTags{OutputRef: river.OutputRef{Output: "D", Label: "eDP-1"}, Tags: 1})
	s.Apply(river.OutputFocusedTags{OutputRef: river.OutputRef{Output: "E", Label: "eDP-1"}, Tags: 1})
	if st, ok := s.GetByLabel("eDP-1"); !ok || st.ID != "E" {
		t.Errorf("GetByLabel(eDP-1) = (%+v, %v), want E", st, ok)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := New()
	s.Apply(river.OutputViewTags{OutputRef: ref("1"), Tags: []uint32{1, 2}})

	st, _ := s.Get("1")
	st.ViewTags[0] = 99

	again, _ := s.Get("1")
	if again.ViewTags[0] != 1 {
		t.Errorf("ViewTags[0] = %d, want 1 (store mutated through copy)", again.ViewTags[0])
	}
}

func TestStore_ListOrdered(t *testing.T) {
	s := New()
	for _, id := range []river.Identity{"3", "1", "2"} {
		s.Apply(river.OutputFocusedTags{OutputRef: ref(id), Tags: 1})
	}

	got := s.List()
	for i, want := range []river.Identity{"1", "2", "3"} {
		if got[i].ID != want {
			t.Errorf("List()[%d].ID = %v, want %v", i, got[i].ID, want)
		}
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Apply(river.OutputFocusedTags{OutputRef: ref("1"), Tags: uint32(i)})
			if i%50 == 0 {
				s.SetOutputInfo("1", river.OutputInfo{Name: "eDP-" + string(rune('a'+i/50))})
			}
		}
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = s.List()
				_ = s.Seat()
				if st, ok := s.Get("1"); ok && st.Label != "" {
					if owner, ok := s.GetByLabel(st.Label); ok && owner.ID != "1" {
						t.Errorf("label %q owned by %v", st.Label, owner.ID)
					}
				}
			}
		}()
	}

	wg.Wait()
}
