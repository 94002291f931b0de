package mock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/observatory-dash/backend/internal/event"
	"github.com/observatory-dash/backend/internal/normalizer"
	"github.com/observatory-dash/backend/internal/state"
	"github.com/rs/zerolog"
)

type normalizerSink struct {
	n *normalizer.Normalizer
}

func (s normalizerSink) Ingest(ev event.Event) bool { return s.n.ProcessEvent(ev) }

type countingSink struct {
	mu    sync.Mutex
	types []string
}

func (s *countingSink) Ingest(ev event.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, ev.Type)
	return true
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.types)
}

func TestNightFramesAreAllClassified(t *testing.T) {
	gen := NewGenerator(&countingSink{}, time.Second, time.UTC, zerolog.Nop())

	for _, target := range targets {
		for _, f := range gen.night(target, time.Now()) {
			raw, _ := f["Event"].(string)
			if !event.Classify(raw).Known() {
				t.Errorf("%s: mock frame %q does not classify", target.name, raw)
			}
		}
	}
}

func TestNightDrivesNormalizerThroughASession(t *testing.T) {
	store := state.NewStore(zerolog.Nop())
	n := normalizer.New(store, normalizer.Options{Location: time.UTC}, zerolog.Nop())
	gen := NewGenerator(normalizerSink{n}, time.Second, time.UTC, zerolog.Nop())

	target := targets[0]
	frames := gen.night(target, time.Now())

	// Replay up to and including the last image save.
	lastImage := 0
	for i, f := range frames {
		if f["Event"] == "IMAGE-SAVE" {
			lastImage = i
		}
	}
	for _, f := range frames[:lastImage+1] {
		if !gen.Emit(f) {
			t.Fatalf("frame %v was not handled", f["Event"])
		}
	}

	st := store.GetState()
	if !st.CurrentSession.Active() {
		t.Fatal("expected an active session mid-night")
	}
	if got := *st.CurrentSession.Target.TargetName; got != target.name {
		t.Errorf("target = %q, want %q", got, target.name)
	}
	if got := *st.CurrentSession.Imaging.CurrentFilter; got != target.filters[len(target.filters)-1] {
		t.Errorf("current filter = %q, want last filter", got)
	}
	total := len(target.filters) * target.perFilter
	if p := st.CurrentSession.Imaging.Progress; p == nil || p.FrameIndex != total {
		t.Errorf("progress = %+v, want frame %d", p, total)
	}
	if st.CurrentSession.Imaging.LastImage == nil {
		t.Error("expected last image to be recorded")
	}
	if len(st.Equipment) != len(equipmentOrder) {
		t.Errorf("equipment count = %d, want %d", len(st.Equipment), len(equipmentOrder))
	}
	if len(st.RecentEvents) != state.MaxRecentEvents {
		t.Errorf("recent events = %d, want the bounded maximum %d", len(st.RecentEvents), state.MaxRecentEvents)
	}

	for _, f := range frames[lastImage+1:] {
		gen.Emit(f)
	}
	st = store.GetState()
	if st.CurrentSession.Active() {
		t.Error("expected session to be inactive after the sequence finished")
	}
	if st.CurrentSession.Guiding.IsGuiding {
		t.Error("expected guiding to be stopped at the end of the night")
	}
	for _, d := range st.Equipment {
		if d.ID == state.EquipmentCamera && d.Status != state.StatusWarming {
			t.Errorf("camera status = %q, want warming", d.Status)
		}
	}
}

func TestEmitRejectsTypelessFrame(t *testing.T) {
	sink := &countingSink{}
	gen := NewGenerator(sink, time.Second, time.UTC, zerolog.Nop())

	if gen.Emit(Frame{"Data": map[string]any{}}) {
		t.Error("expected a frame without a type to be rejected")
	}
	if sink.count() != 0 {
		t.Error("rejected frame reached the sink")
	}
}

func TestStartEmitsUntilCanceled(t *testing.T) {
	sink := &countingSink{}
	gen := NewGenerator(sink, 5*time.Millisecond, time.UTC, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	gen.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && sink.count() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if sink.count() < 3 {
		t.Fatalf("expected at least 3 frames, got %d", sink.count())
	}

	time.Sleep(30 * time.Millisecond)
	stopped := sink.count()
	time.Sleep(30 * time.Millisecond)
	if sink.count() != stopped {
		t.Error("generator kept emitting after cancel")
	}

	sink.mu.Lock()
	first := sink.types[0]
	sink.mu.Unlock()
	if first != "MOUNT-CONNECTED" {
		t.Errorf("first frame = %q, want MOUNT-CONNECTED", first)
	}
}
