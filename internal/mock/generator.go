// Package mock replays a scripted imaging night so the dashboard can be
// developed without a running controller.
package mock

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/observatory-dash/backend/internal/event"
	"github.com/rs/zerolog"
)

// Frame is one raw controller event as it would arrive on the socket.
type Frame map[string]any

// Sink consumes decoded events. observatory.Built satisfies it.
type Sink interface {
	Ingest(ev event.Event) bool
}

type mockTarget struct {
	name      string
	project   string
	ra, dec   float64
	rotation  float64
	filters   []string
	exposure  float64
	perFilter int
}

var targets = []mockTarget{
	{name: "M42", project: "Orion Nebula", ra: 83.82, dec: -5.39, filters: []string{"L", "R", "G", "B"}, exposure: 120, perFilter: 4},
	{name: "NGC 7000", project: "North America", ra: 314.75, dec: 44.37, rotation: 90, filters: []string{"Ha", "OIII", "SII"}, exposure: 300, perFilter: 3},
	{name: "M31", project: "Andromeda", ra: 10.68, dec: 41.27, rotation: 35, filters: []string{"L", "Ha"}, exposure: 180, perFilter: 5},
}

var equipmentOrder = []string{"MOUNT", "CAMERA", "FILTERWHEEL", "FOCUSER", "ROTATOR", "GUIDER"}

type Generator struct {
	sink     Sink
	decoder  event.Decoder
	interval time.Duration
	rng      *rand.Rand
	now      func() time.Time
	logger   zerolog.Logger

	nights int
}

// NewGenerator emits one frame per interval into sink. loc is the
// observatory timezone used for zone-less timestamps.
func NewGenerator(sink Sink, interval time.Duration, loc *time.Location, logger zerolog.Logger) *Generator {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Generator{
		sink:     sink,
		decoder:  event.Decoder{Location: loc},
		interval: interval,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 42)),
		now:      time.Now,
		logger:   logger,
	}
}

// night builds the frames of one full session for the given target: bring
// equipment online, start the sequence, image through each filter with
// guiding and dithering, flip mid-way, then finish and park.
func (g *Generator) night(t mockTarget, start time.Time) []Frame {
	loc := g.decoder.Location
	if loc == nil {
		loc = time.Local
	}

	var frames []Frame
	for _, dev := range equipmentOrder {
		frames = append(frames, Frame{"Event": dev + "-CONNECTED", "DeviceName": deviceName(dev)})
	}
	frames = append(frames, Frame{"Event": "CAMERA-COOLING", "Temperature": -10.0})

	total := len(t.filters) * t.perFilter
	frames = append(frames,
		Frame{
			"Event":       "TS-TARGETSTART",
			"TargetName":  t.name,
			"ProjectName": t.project,
			"Coordinates": map[string]any{"RA": t.ra, "Dec": t.dec},
			"PanelIndex":  0,
			"Rotation":    t.rotation,
			// The controller sends end times as zone-less local wall clock.
			"TargetEndTime": start.In(loc).Add(6 * time.Hour).Format("2006-01-02T15:04:05"),
		},
		Frame{"Event": "SEQUENCE-STARTING", "SequenceName": t.project, "TotalFrames": total},
		Frame{"Event": "MOUNT-SLEWING", "Position": 0},
		Frame{"Event": "MOUNT-TRACKING"},
		Frame{"Event": "GUIDER-START"},
	)

	index := 0
	flipAt := total / 2
	for _, filter := range t.filters {
		frames = append(frames, Frame{"Event": "FILTERWHEEL-CHANGED", "New": map[string]any{"Name": filter}})
		for i := 0; i < t.perFilter; i++ {
			index++
			if index == flipAt {
				frames = append(frames,
					Frame{"Event": "GUIDER-STOP"},
					Frame{"Event": "MOUNT-FLIP"},
					Frame{"Event": "MOUNT-TRACKING"},
					Frame{"Event": "GUIDER-START"},
				)
			}
			frames = append(frames, g.guideStats(), Frame{
				"Event": "IMAGE-SAVE",
				"ImageStatistics": map[string]any{
					"ImageType":    "LIGHT",
					"ExposureTime": t.exposure,
					"Filter":       filter,
					"Filename":     fmt.Sprintf("%s_%s_%03d.fits", t.name, filter, index),
					"Stars":        800 + g.rng.IntN(900),
					"HFR":          round2(1.8 + g.rng.Float64()*1.2),
					"Index":        index,
				},
				"TotalFrames": total,
			})
			if index%3 == 0 {
				frames = append(frames, Frame{"Event": "GUIDER-DITHER"})
			}
			if index%4 == 0 {
				frames = append(frames, Frame{
					"Event":      "STACK-UPDATED",
					"Target":     t.name,
					"Filter":     filter,
					"StackCount": index,
				})
			}
		}
	}

	frames = append(frames,
		Frame{"Event": "GUIDER-STOP"},
		Frame{"Event": "SEQUENCE-FINISHED"},
		Frame{"Event": "MOUNT-PARKED"},
		Frame{"Event": "CAMERA-WARMING", "Temperature": 5.0},
	)
	return frames
}

func (g *Generator) guideStats() Frame {
	ra := 0.3 + g.rng.Float64()*0.5
	dec := 0.2 + g.rng.Float64()*0.5
	return Frame{
		"Event": "GUIDER-RMS",
		"RMS": map[string]any{
			"RA":    round2(ra),
			"Dec":   round2(dec),
			"Total": round2(math.Hypot(ra, dec)),
		},
	}
}

// Emit decodes one frame and feeds it to the sink.
func (g *Generator) Emit(f Frame) bool {
	ev, err := g.decoder.FromMap(f, g.now())
	if err != nil {
		g.logger.Warn().Err(err).Msg("mock frame rejected")
		return false
	}
	return g.sink.Ingest(ev)
}

// Start runs nights back to back, cycling through targets, until ctx is
// done.
func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	var frames []Frame
	for {
		if len(frames) == 0 {
			t := targets[g.nights%len(targets)]
			g.nights++
			frames = g.night(t, g.now())
			g.logger.Info().Str("target", t.name).Int("frames", len(frames)).Msg("starting mock night")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Emit(frames[0])
			frames = frames[1:]
		}
	}
}

func deviceName(kind string) string {
	switch kind {
	case "MOUNT":
		return "iOptron CEM40"
	case "CAMERA":
		return "ZWO ASI2600MM Pro"
	case "FILTERWHEEL":
		return "ZWO EFW 7x36"
	case "FOCUSER":
		return "ZWO EAF"
	case "ROTATOR":
		return "Pegasus Falcon"
	case "GUIDER":
		return "PHD2"
	}
	return kind
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
