package state

import "time"

// SessionPatch is a partial update of a Session. Nil fields are left alone;
// nested patches are merged field by field.
type SessionPatch struct {
	IsActive  *bool
	StartedAt *time.Time
	Target    *TargetPatch
	Imaging   *ImagingPatch
	Guiding   *GuidingPatch
}

type TargetPatch struct {
	ProjectName *string
	TargetName  *string
	RA          *float64
	Dec         *float64
	PanelIndex  *int
	RotationDeg *float64
	EndTime     *time.Time
}

type ImagingPatch struct {
	CurrentFilter   *string
	ExposureSeconds *float64
	FrameType       *string
	SequenceName    *string
	Progress        *ProgressPatch
	LastImage       *LastImagePatch
}

type ProgressPatch struct {
	FrameIndex  *int
	TotalFrames *int
}

type LastImagePatch struct {
	At       *time.Time
	FilePath *string
	Stars    *int
	HFR      *float64
}

type GuidingPatch struct {
	IsGuiding    *bool
	LastRMSTotal *float64
	LastRMSRA    *float64
	LastRMSDec   *float64
	LastUpdate   *time.Time
}

// IsZero reports whether the patch would change nothing.
func (p SessionPatch) IsZero() bool {
	return p.IsActive == nil && p.StartedAt == nil && p.Target == nil && p.Imaging == nil && p.Guiding == nil
}

// Apply merges p into s. Patch values are copied, so the caller may reuse
// the pointers it built the patch from.
func (s *Session) Apply(p SessionPatch) {
	setPtr(&s.IsActive, p.IsActive)
	setPtr(&s.StartedAt, p.StartedAt)
	if p.Target != nil {
		s.Target.apply(*p.Target)
	}
	if p.Imaging != nil {
		s.Imaging.apply(*p.Imaging)
	}
	if p.Guiding != nil {
		s.Guiding.apply(*p.Guiding)
	}
}

func (t *Target) apply(p TargetPatch) {
	setPtr(&t.ProjectName, p.ProjectName)
	setPtr(&t.TargetName, p.TargetName)
	setPtr(&t.RA, p.RA)
	setPtr(&t.Dec, p.Dec)
	setPtr(&t.PanelIndex, p.PanelIndex)
	setPtr(&t.RotationDeg, p.RotationDeg)
	setPtr(&t.EndTime, p.EndTime)
}

func (im *Imaging) apply(p ImagingPatch) {
	setPtr(&im.CurrentFilter, p.CurrentFilter)
	setPtr(&im.ExposureSeconds, p.ExposureSeconds)
	setPtr(&im.FrameType, p.FrameType)
	setPtr(&im.SequenceName, p.SequenceName)

	if p.Progress != nil {
		if im.Progress == nil {
			im.Progress = &Progress{}
		}
		if p.Progress.FrameIndex != nil {
			im.Progress.FrameIndex = *p.Progress.FrameIndex
		}
		if p.Progress.TotalFrames != nil {
			im.Progress.TotalFrames = *p.Progress.TotalFrames
		}
	}

	if p.LastImage != nil {
		if im.LastImage == nil {
			im.LastImage = &LastImage{}
		}
		li := im.LastImage
		if p.LastImage.At != nil {
			li.At = *p.LastImage.At
		}
		setPtr(&li.FilePath, p.LastImage.FilePath)
		setPtr(&li.Stars, p.LastImage.Stars)
		setPtr(&li.HFR, p.LastImage.HFR)
	}
}

func (g *Guiding) apply(p GuidingPatch) {
	if p.IsGuiding != nil {
		g.IsGuiding = *p.IsGuiding
	}
	setPtr(&g.LastRMSTotal, p.LastRMSTotal)
	setPtr(&g.LastRMSRA, p.LastRMSRA)
	setPtr(&g.LastRMSDec, p.LastRMSDec)
	setPtr(&g.LastUpdate, p.LastUpdate)
}

func setPtr[T any](dst **T, src *T) {
	if src == nil {
		return
	}
	v := *src
	*dst = &v
}
