package event

import (
	"errors"
	"testing"
	"time"

	"github.com/observatory-dash/backend/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var received = time.Date(2026, 9, 10, 2, 30, 0, 0, time.UTC)

func TestDecodeBareEvent(t *testing.T) {
	ev, err := Decoder{}.Decode([]byte(`{"Event":"GUIDER-START"}`), received)
	require.NoError(t, err)
	assert.Equal(t, "GUIDER-START", ev.Type)
	assert.Equal(t, Kind{Domain: DomainGuiding, Action: ActionGuidingStarted}, ev.Kind)
	assert.Equal(t, received, ev.Time)
	assert.False(t, ev.HasTime)
}

func TestDecodeUnwrapsResponseEnvelope(t *testing.T) {
	frame := `{"Response":{"Event":"IMAGE-SAVE","ImageStatistics":{"Filter":"Ha"}},"Success":true,"Type":"Socket"}`
	ev, err := Decoder{}.Decode([]byte(frame), received)
	require.NoError(t, err)
	assert.Equal(t, "IMAGE-SAVE", ev.Type)
	assert.Equal(t, DomainImage, ev.Kind.Domain)
	f, ok := ev.Payload.String("ImageStatistics.Filter")
	assert.True(t, ok)
	assert.Equal(t, "Ha", f)
}

func TestDecodeUnwrapsOnlyOneLevel(t *testing.T) {
	frame := `{"Response":{"Response":{"Event":"GUIDER-START"}}}`
	_, err := Decoder{}.Decode([]byte(frame), received)
	assert.ErrorIs(t, err, ErrMissingType)
}

func TestDecodeTypeField(t *testing.T) {
	ev, err := Decoder{}.Decode([]byte(`{"Type":"STACK-UPDATED","Data":{"Target":"M42","StackCount":12}}`), received)
	require.NoError(t, err)
	assert.Equal(t, Kind{Domain: DomainStack, Action: ActionStackUpdated}, ev.Kind)
	n, ok := ev.Payload.Int("StackCount")
	assert.True(t, ok, "Data fields are flattened")
	assert.Equal(t, 12, n)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"empty", "  ", ErrEmptyFrame},
		{"malformed", `{"Event":`, ErrMalformedFrame},
		{"not an object", `[1,2,3]`, ErrMalformedFrame},
		{"no type", `{"Foo":"bar"}`, ErrMissingType},
		{"string response", `{"Response":"You are subscribed"}`, ErrMissingType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decoder{}.Decode([]byte(tt.frame), received)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDecodeTimestamp(t *testing.T) {
	loc := time.FixedZone("MDT", -6*3600)
	d := Decoder{Location: loc}

	ev, err := d.Decode([]byte(`{"Event":"IMAGE-SAVE","Time":"2026-09-10T01:00:00Z"}`), received)
	require.NoError(t, err)
	assert.True(t, ev.HasTime)
	assert.True(t, ev.Time.Equal(time.Date(2026, 9, 10, 1, 0, 0, 0, time.UTC)))

	ev, err = d.Decode([]byte(`{"Event":"IMAGE-SAVE","Time":"2026-09-09T19:00:00"}`), received)
	require.NoError(t, err)
	assert.True(t, ev.Time.Equal(time.Date(2026, 9, 10, 1, 0, 0, 0, time.UTC)), "zone-less time is observatory local")

	ev, err = d.Decode([]byte(`{"Event":"IMAGE-SAVE","Time":"yesterday"}`), received)
	require.NoError(t, err)
	assert.False(t, ev.HasTime)
	assert.Equal(t, received, ev.Time)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		want Kind
	}{
		{"GUIDER-START", Kind{DomainGuiding, ActionGuidingStarted}},
		{"guider-stop", Kind{DomainGuiding, ActionGuidingStopped}},
		{"GUIDER-DISCONNECTED", Kind{DomainGuiding, ActionGuidingDisconnected}},
		{"GUIDER-CONNECTED", Kind{DomainGuiding, ActionGuidingConnected}},
		{"GUIDER-DITHER", Kind{DomainGuiding, ActionGuidingDither}},
		{"GUIDING-STATS", Kind{DomainGuiding, ActionGuidingStats}},
		{"TS-TARGETSTART", Kind{DomainSession, ActionTargetChanged}},
		{"TS-NEWTARGETSTART", Kind{DomainSession, ActionTargetChanged}},
		{"TS-WAITSTART", Kind{DomainSession, ActionSessionUpdate}},
		{"SEQUENCE-STARTING", Kind{DomainSession, ActionSequenceStarted}},
		{"SEQUENCE-FINISHED", Kind{DomainSession, ActionSequenceCompleted}},
		{"MOUNT-CONNECTED", Kind{DomainEquipment, ActionConnected}},
		{"CAMERA-DISCONNECTED", Kind{DomainEquipment, ActionDisconnected}},
		{"MOUNT-SLEWING", Kind{DomainEquipment, ActionSlewing}},
		{"MOUNT-UNPARKED", Kind{DomainEquipment, ActionTracking}},
		{"MOUNT-PARKED", Kind{DomainEquipment, ActionParked}},
		{"MOUNT-BEFORE-FLIP", Kind{DomainEquipment, ActionFlip}},
		{"CAMERA-EXPOSING", Kind{DomainEquipment, ActionExposing}},
		{"CAMERA-COOLING", Kind{DomainEquipment, ActionCooling}},
		{"CAMERA-WARMING", Kind{DomainEquipment, ActionWarming}},
		{"FILTERWHEEL-CHANGED", Kind{DomainEquipment, ActionFilterChanged}},
		{"FOCUSER-USER-FOCUSED", Kind{DomainEquipment, ActionMoving}},
		{"ROTATOR-MOVED", Kind{DomainEquipment, ActionMoving}},
		{"AUTOFOCUS-FINISHED", Kind{DomainEquipment, ActionEquipmentUpdate}},
		{"SAFETY-CHANGED", Kind{DomainEquipment, ActionEquipmentUpdate}},
		{"IMAGE-SAVE", Kind{DomainImage, ActionImageSaved}},
		{"STACK-UPDATED", Kind{DomainStack, ActionStackUpdated}},
		{"PROFILE-CHANGED", Kind{}},
		{"", Kind{}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := Classify(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Domain != DomainUnknown, got.Known())
		})
	}
}

func TestEquipmentID(t *testing.T) {
	tests := map[string]string{
		"CAMERA-CONNECTED":     state.EquipmentCamera,
		"MOUNT-SLEWING":        state.EquipmentMount,
		"TELESCOPE-PARKED":     state.EquipmentMount,
		"FILTERWHEEL-CHANGED":  state.EquipmentFilterWheel,
		"FOCUSER-USER-FOCUSED": state.EquipmentFocuser,
		"ROTATOR-MOVED":        state.EquipmentRotator,
		"GUIDER-CONNECTED":     state.EquipmentGuider,
		"DOME-SLEWED":          state.EquipmentDome,
		"WEATHER-CONNECTED":    state.EquipmentWeather,
		"SAFETY-CHANGED":       state.EquipmentWeather,
		"FLAT-LIGHT-TOGGLED":   state.EquipmentFlatPanel,
		"SWITCH-CONNECTED":     state.EquipmentOther,
	}
	for raw, want := range tests {
		assert.Equal(t, want, EquipmentID(raw), raw)
	}
}

func TestDomainString(t *testing.T) {
	assert.Equal(t, "guiding", DomainGuiding.String())
	assert.Equal(t, "unknown", Domain(99).String())
}
