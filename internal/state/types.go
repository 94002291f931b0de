package state

import (
	"time"
)

// MaxRecentEvents caps UnifiedState.RecentEvents.
const MaxRecentEvents = 5

// UnifiedState is the canonical snapshot of the observatory as reported by
// the controller. Only Store mutates it; everything handed out is a copy.
type UnifiedState struct {
	CurrentSession *Session          `json:"currentSession"`
	Equipment      []EquipmentDevice `json:"equipment"`
	RecentEvents   []RecentEvent     `json:"recentEvents"`
}

type Session struct {
	IsActive  *bool      `json:"isActive"`
	StartedAt *time.Time `json:"startedAt"`
	Target    Target     `json:"target"`
	Imaging   Imaging    `json:"imaging"`
	Guiding   Guiding    `json:"guiding"`
}

type Target struct {
	ProjectName *string    `json:"projectName"`
	TargetName  *string    `json:"targetName"`
	RA          *float64   `json:"ra"`
	Dec         *float64   `json:"dec"`
	PanelIndex  *int       `json:"panelIndex"`
	RotationDeg *float64   `json:"rotationDeg"`
	EndTime     *time.Time `json:"endTime"`
}

// Expired reports whether the controller-supplied end time lies before now.
// A target without an end time never expires.
func (t Target) Expired(now time.Time) bool {
	return t.EndTime != nil && now.After(*t.EndTime)
}

type Imaging struct {
	CurrentFilter   *string    `json:"currentFilter"`
	ExposureSeconds *float64   `json:"exposureSeconds"`
	FrameType       *string    `json:"frameType"`
	SequenceName    *string    `json:"sequenceName"`
	Progress        *Progress  `json:"progress"`
	LastImage       *LastImage `json:"lastImage"`
}

type Progress struct {
	FrameIndex  int `json:"frameIndex"`
	TotalFrames int `json:"totalFrames"`
}

type LastImage struct {
	At       time.Time `json:"at"`
	FilePath *string   `json:"filePath"`
	Stars    *int      `json:"stars"`
	HFR      *float64  `json:"hfr"`
}

type Guiding struct {
	IsGuiding    bool       `json:"isGuiding"`
	LastRMSTotal *float64   `json:"lastRmsTotal"`
	LastRMSRA    *float64   `json:"lastRmsRa"`
	LastRMSDec   *float64   `json:"lastRmsDec"`
	LastUpdate   *time.Time `json:"lastUpdate"`
}

// RecentEvent is a rendered log line, never a raw controller payload.
type RecentEvent struct {
	Time    time.Time      `json:"time"`
	Type    string         `json:"type"`
	Summary string         `json:"summary"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Clone returns a deep copy of the state.
func (s UnifiedState) Clone() UnifiedState {
	c := UnifiedState{
		Equipment:    make([]EquipmentDevice, len(s.Equipment)),
		RecentEvents: make([]RecentEvent, len(s.RecentEvents)),
	}
	if s.CurrentSession != nil {
		c.CurrentSession = s.CurrentSession.Clone()
	}
	for i, d := range s.Equipment {
		c.Equipment[i] = d.clone()
	}
	for i, e := range s.RecentEvents {
		e.Meta = cloneMap(e.Meta)
		c.RecentEvents[i] = e
	}
	return c
}

// Clone returns a deep copy of the session, duplicating every pointer field
// so the copy can be mutated independently of the original.
func (s *Session) Clone() *Session {
	c := *s
	c.IsActive = clonePtr(s.IsActive)
	c.StartedAt = clonePtr(s.StartedAt)

	c.Target = Target{
		ProjectName: clonePtr(s.Target.ProjectName),
		TargetName:  clonePtr(s.Target.TargetName),
		RA:          clonePtr(s.Target.RA),
		Dec:         clonePtr(s.Target.Dec),
		PanelIndex:  clonePtr(s.Target.PanelIndex),
		RotationDeg: clonePtr(s.Target.RotationDeg),
		EndTime:     clonePtr(s.Target.EndTime),
	}

	c.Imaging = Imaging{
		CurrentFilter:   clonePtr(s.Imaging.CurrentFilter),
		ExposureSeconds: clonePtr(s.Imaging.ExposureSeconds),
		FrameType:       clonePtr(s.Imaging.FrameType),
		SequenceName:    clonePtr(s.Imaging.SequenceName),
		Progress:        clonePtr(s.Imaging.Progress),
	}
	if s.Imaging.LastImage != nil {
		li := *s.Imaging.LastImage
		li.FilePath = clonePtr(li.FilePath)
		li.Stars = clonePtr(li.Stars)
		li.HFR = clonePtr(li.HFR)
		c.Imaging.LastImage = &li
	}

	c.Guiding = Guiding{
		IsGuiding:    s.Guiding.IsGuiding,
		LastRMSTotal: clonePtr(s.Guiding.LastRMSTotal),
		LastRMSRA:    clonePtr(s.Guiding.LastRMSRA),
		LastRMSDec:   clonePtr(s.Guiding.LastRMSDec),
		LastUpdate:   clonePtr(s.Guiding.LastUpdate),
	}
	return &c
}

// Active reports the session's isActive flag, treating null as false.
func (s *Session) Active() bool {
	return s != nil && s.IsActive != nil && *s.IsActive
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = cloneValue(e)
		}
		return c
	default:
		return v
	}
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
