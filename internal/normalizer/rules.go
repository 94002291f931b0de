package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/observatory-dash/backend/internal/event"
	"github.com/observatory-dash/backend/internal/state"
)

func (n *Normalizer) guiding(ev event.Event) outcome {
	p := ev.Payload
	out := outcome{kind: state.KindSession, path: "currentSession.guiding"}

	switch ev.Kind.Action {
	case event.ActionGuidingStarted:
		n.store.UpdateSession(state.SessionPatch{Guiding: &state.GuidingPatch{
			IsGuiding:  state.Ptr(true),
			LastUpdate: state.Ptr(ev.Time),
		}})
		out.reason, out.summary = "guiding-started", "Guiding started"

	case event.ActionGuidingStopped:
		n.store.UpdateSession(state.SessionPatch{Guiding: &state.GuidingPatch{
			IsGuiding:  state.Ptr(false),
			LastUpdate: state.Ptr(ev.Time),
		}})
		out.reason, out.summary = "guiding-stopped", "Guiding stopped"

	case event.ActionGuidingDisconnected:
		n.store.UpdateSession(state.SessionPatch{Guiding: &state.GuidingPatch{
			IsGuiding:  state.Ptr(false),
			LastUpdate: state.Ptr(ev.Time),
		}})
		n.upsertDevice(state.EquipmentGuider, false, state.StatusDisconnected, nil)
		out.reason, out.summary = "guiding-disconnected", "Guider disconnected"

	case event.ActionGuidingConnected:
		n.upsertDevice(state.EquipmentGuider, true, state.StatusIdle, nil)
		out.kind, out.path = state.KindEquipment, "equipment.guider"
		out.reason, out.summary = "guider-connected", "Guider connected"

	case event.ActionGuidingDither:
		out.kind, out.path = state.KindEvents, "recentEvents"
		out.reason, out.summary = "guiding-dithering", "Dithering"

	default:
		patch := state.GuidingPatch{LastUpdate: state.Ptr(ev.Time)}
		out.reason, out.summary = "guiding-update", "Guiding update"
		if total, ok := p.Float("RMS.Total", "RMSTotal", "TotalRMS"); ok {
			patch.LastRMSTotal = state.Ptr(total)
			out.summary = fmt.Sprintf("Guiding RMS %.2f\"", total)
			out.meta = meta(ev, "rmsTotal", total)
		}
		if ra, ok := p.Float("RMS.RA", "RMSRA", "RaRMS"); ok {
			patch.LastRMSRA = state.Ptr(ra)
		}
		if dec, ok := p.Float("RMS.Dec", "RMSDec", "DecRMS"); ok {
			patch.LastRMSDec = state.Ptr(dec)
		}
		n.store.UpdateSession(state.SessionPatch{Guiding: &patch})
	}

	if out.meta == nil {
		out.meta = meta(ev)
	}
	return out
}

func (n *Normalizer) session(ev event.Event) outcome {
	p := ev.Payload
	out := outcome{kind: state.KindSession}

	switch ev.Kind.Action {
	case event.ActionTargetChanged:
		tp := state.TargetPatch{}
		name, hasName := p.String("TargetName", "Target.Name", "Name")
		if hasName {
			tp.TargetName = state.Ptr(name)
		}
		project, hasProject := p.String("ProjectName", "Project.Name")
		if hasProject {
			tp.ProjectName = state.Ptr(project)
		}
		if ra, ok := p.Float("Coordinates.RA", "RA"); ok {
			tp.RA = state.Ptr(ra)
		}
		if dec, ok := p.Float("Coordinates.Dec", "Dec"); ok {
			tp.Dec = state.Ptr(dec)
		}
		if panel, ok := p.Int("PanelIndex"); ok {
			tp.PanelIndex = state.Ptr(panel)
		}
		if rot, ok := p.Float("Rotation", "PositionAngle"); ok {
			tp.RotationDeg = state.Ptr(rot)
		}

		patch := state.SessionPatch{Target: &tp, IsActive: state.Ptr(true)}
		if raw, ok := p.String("TargetEndTime", "EndTime"); ok {
			if end, ok := n.targetEndTime(raw); ok {
				tp.EndTime = state.Ptr(end)
				if n.opts.Now().After(end) {
					patch.IsActive = state.Ptr(false)
				}
			}
		}
		n.store.UpdateSession(patch)

		out.reason, out.path = "target-changed", "currentSession.target"
		out.summary = "Target changed"
		if hasName {
			out.summary = "Target " + name
			if hasProject && project != name {
				out.summary += " (" + project + ")"
			}
		}
		out.meta = meta(ev)
		if hasName {
			out.meta["target"] = name
		}
		if tp.EndTime != nil {
			out.meta["endTime"] = tp.EndTime.Format(time.RFC3339)
		}

	case event.ActionSequenceStarted:
		im := state.ImagingPatch{Progress: &state.ProgressPatch{FrameIndex: state.Ptr(0)}}
		if total, ok := p.Int("TotalFrames", "TotalExposures"); ok {
			im.Progress.TotalFrames = state.Ptr(total)
		} else {
			im.Progress.TotalFrames = state.Ptr(0)
		}
		seqName, hasSeq := p.String("SequenceName", "Sequence", "Name")
		if hasSeq {
			im.SequenceName = state.Ptr(seqName)
		}
		n.store.UpdateSession(state.SessionPatch{
			IsActive:  state.Ptr(true),
			StartedAt: state.Ptr(ev.Time),
			Imaging:   &im,
		})
		out.reason, out.path, out.summary = "sequence-started", "currentSession", "Sequence started"
		out.meta = meta(ev)
		if hasSeq {
			out.summary += ": " + seqName
			out.meta["sequence"] = seqName
		}

	case event.ActionSequenceCompleted:
		n.store.UpdateSession(state.SessionPatch{IsActive: state.Ptr(false)})
		out.reason, out.path, out.summary = "sequence-completed", "currentSession", "Sequence completed"
		out.meta = meta(ev)

	default:
		out.kind, out.path = state.KindEvents, "recentEvents"
		out.reason, out.summary = "session-update", humanize(ev.Type)
		out.meta = meta(ev)
	}
	return out
}

// targetEndTime parses a TargetEndTime. Zone-less values are observatory
// wall-clock time. When the controller is known to stamp local wall clock
// with a UTC designator, a UTC value is re-read in the observatory zone.
func (n *Normalizer) targetEndTime(raw string) (time.Time, bool) {
	t, ok := event.ParseTime(raw, n.opts.Location)
	if !ok {
		return time.Time{}, false
	}
	if n.opts.EndTimeMislabeledUTC && event.HasZone(raw) {
		if _, offset := t.Zone(); offset == 0 {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), n.opts.Location)
		}
	}
	return t, true
}

// equipmentStatus maps an equipment action onto device status and reason
// suffix.
var equipmentStatus = map[event.Action]struct {
	status state.EquipmentStatus
	suffix string
}{
	event.ActionSlewing:  {state.StatusSlewing, "slewing"},
	event.ActionTracking: {state.StatusTracking, "tracking"},
	event.ActionParked:   {state.StatusIdle, "parked"},
	event.ActionExposing: {state.StatusExposing, "exposing"},
	event.ActionCooling:  {state.StatusCooling, "cooling"},
	event.ActionWarming:  {state.StatusWarming, "warming"},
	event.ActionMoving:   {state.StatusMoving, "moving"},
	event.ActionFlip:     {state.StatusSlewing, "flipping"},
}

func (n *Normalizer) equipment(ev event.Event) outcome {
	p := ev.Payload
	id := event.EquipmentID(ev.Type)
	name := state.EquipmentName(id)
	out := outcome{kind: state.KindEquipment, path: "equipment." + id}
	details := map[string]any{"lastEvent": ev.Type}

	switch ev.Kind.Action {
	case event.ActionConnected:
		if dev, ok := p.String("DeviceName", "Name"); ok {
			details["deviceName"] = dev
		}
		n.upsertDevice(id, true, state.StatusIdle, details)
		out.reason, out.summary = id+"-connected", name+" connected"

	case event.ActionDisconnected:
		n.upsertDevice(id, false, state.StatusDisconnected, details)
		out.reason, out.summary = id+"-disconnected", name+" disconnected"

	case event.ActionFilterChanged:
		filter, ok := p.String("New.Name", "Filter", "FilterName", "Name")
		if ok {
			details["filter"] = filter
			n.store.UpdateSession(state.SessionPatch{Imaging: &state.ImagingPatch{CurrentFilter: state.Ptr(filter)}})
		}
		n.upsertDevice(state.EquipmentFilterWheel, true, state.StatusIdle, details)
		out.path = "equipment." + state.EquipmentFilterWheel
		out.reason, out.summary = "filter-changed", "Filter changed"
		if ok {
			out.summary = "Filter changed to " + filter
			out.meta = meta(ev, "filter", filter)
		}

	default:
		st, known := equipmentStatus[ev.Kind.Action]
		if !known {
			st.status, st.suffix = n.currentStatus(id), "update"
		}
		switch id {
		case state.EquipmentFocuser:
			if pos, ok := p.Int("Position", "NewPosition"); ok {
				details["position"] = pos
			}
		case state.EquipmentCamera:
			if temp, ok := p.Float("Temperature", "CCDTemperature"); ok {
				details["temperature"] = temp
			}
		case state.EquipmentWeather:
			if safe, ok := p.Bool("IsSafe", "Safe"); ok {
				details["isSafe"] = safe
			}
		}
		n.upsertDevice(id, true, st.status, details)
		out.reason = id + "-" + st.suffix
		out.summary = name + " " + st.suffix
	}

	if out.meta == nil {
		out.meta = meta(ev, "equipment", id)
	}
	return out
}

// currentStatus keeps a device's status for events that carry no status of
// their own.
func (n *Normalizer) currentStatus(id string) state.EquipmentStatus {
	if d, ok := n.store.Equipment(id); ok && d.Status != "" {
		return d.Status
	}
	return state.StatusIdle
}

func (n *Normalizer) upsertDevice(id string, connected bool, status state.EquipmentStatus, details map[string]any) {
	n.store.UpsertEquipment(state.EquipmentDevice{
		ID:        id,
		Type:      state.EquipmentTypeOf(id),
		Name:      state.EquipmentName(id),
		Connected: connected,
		Status:    status,
		Details:   details,
	})
}

func (n *Normalizer) image(ev event.Event) outcome {
	p := ev.Payload
	stats := p.Object("ImageStatistics")
	if stats == nil {
		stats = p
	}

	im := state.ImagingPatch{LastImage: &state.LastImagePatch{At: state.Ptr(ev.Time)}}
	parts := []string{"Image saved"}
	m := meta(ev)

	frameType, hasType := stats.String("ImageType", "FrameType")
	if hasType {
		im.FrameType = state.Ptr(frameType)
		parts = append(parts, frameType)
	}
	if exp, ok := stats.Float("ExposureTime", "Duration"); ok {
		im.ExposureSeconds = state.Ptr(exp)
		parts = append(parts, fmt.Sprintf("%gs", exp))
		m["exposure"] = exp
	}
	if filter, ok := stats.String("Filter", "FilterName"); ok {
		im.CurrentFilter = state.Ptr(filter)
		parts = append(parts, filter)
		m["filter"] = filter
	}
	if path, ok := stats.String("FilePath", "Filename", "Path"); ok {
		im.LastImage.FilePath = state.Ptr(path)
	}
	if stars, ok := stats.Int("Stars"); ok {
		im.LastImage.Stars = state.Ptr(stars)
		m["stars"] = stars
	}
	if hfr, ok := stats.Float("HFR"); ok {
		im.LastImage.HFR = state.Ptr(hfr)
		m["hfr"] = hfr
	}
	if idx, ok := stats.Int("Index", "FrameIndex"); ok {
		im.Progress = &state.ProgressPatch{FrameIndex: state.Ptr(idx)}
		if total, ok := p.Int("TotalFrames", "ImageStatistics.TotalFrames"); ok {
			im.Progress.TotalFrames = state.Ptr(total)
		}
	}

	n.store.UpdateSession(state.SessionPatch{IsActive: state.Ptr(true), Imaging: &im})

	if hasType {
		m["frameType"] = frameType
	}
	return outcome{
		kind:    state.KindImage,
		reason:  "image-saved",
		path:    "currentSession.imaging.lastImage",
		summary: strings.Join(parts, " "),
		meta:    m,
	}
}

func (n *Normalizer) stack(ev event.Event) outcome {
	p := ev.Payload
	m := meta(ev)
	summary := "Stack updated"
	if target, ok := p.String("Target", "TargetName"); ok {
		summary += ": " + target
		m["target"] = target
	}
	if filter, ok := p.String("Filter"); ok {
		m["filter"] = filter
	}
	if count, ok := p.Int("StackCount", "Count"); ok {
		summary += fmt.Sprintf(" (%d frames)", count)
		m["stackCount"] = count
	}
	return outcome{
		kind:    state.KindStack,
		reason:  "stack-update",
		path:    "recentEvents",
		summary: summary,
		meta:    m,
	}
}

// humanize renders a raw type like "TS-WAITSTART" as "Ts waitstart".
func humanize(raw string) string {
	s := strings.ToLower(strings.ReplaceAll(raw, "-", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
