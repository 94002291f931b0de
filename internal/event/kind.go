package event

import (
	"regexp"

	"github.com/observatory-dash/backend/internal/state"
)

// Domain is the coarse classification of a controller event.
type Domain int

const (
	DomainUnknown Domain = iota
	DomainGuiding
	DomainSession
	DomainEquipment
	DomainImage
	DomainStack
)

var domainNames = map[Domain]string{
	DomainUnknown:   "unknown",
	DomainGuiding:   "guiding",
	DomainSession:   "session",
	DomainEquipment: "equipment",
	DomainImage:     "image",
	DomainStack:     "stack",
}

func (d Domain) String() string {
	if s, ok := domainNames[d]; ok {
		return s
	}
	return "unknown"
}

// Action refines a Domain into the specific thing that happened.
type Action int

const (
	ActionNone Action = iota

	ActionGuidingStarted
	ActionGuidingStopped
	ActionGuidingConnected
	ActionGuidingDisconnected
	ActionGuidingDither
	ActionGuidingStats

	ActionTargetChanged
	ActionSequenceStarted
	ActionSequenceCompleted
	ActionSessionUpdate

	ActionConnected
	ActionDisconnected
	ActionSlewing
	ActionTracking
	ActionParked
	ActionExposing
	ActionCooling
	ActionWarming
	ActionFilterChanged
	ActionMoving
	ActionFlip
	ActionEquipmentUpdate

	ActionImageSaved

	ActionStackUpdated
)

// Kind is the closed classification of a raw controller event type. The
// zero value is the unknown kind.
type Kind struct {
	Domain Domain
	Action Action
}

func (k Kind) Known() bool {
	return k.Domain != DomainUnknown
}

// Domain tests, evaluated in priority order. A type that matches more than
// one (e.g. GUIDER-CONNECTED also looks like equipment) takes the first.
var (
	guidingRe   = regexp.MustCompile(`(?i)guid|dither`)
	sessionRe   = regexp.MustCompile(`(?i)target|sequence|project|^ts-`)
	equipmentRe = regexp.MustCompile(`(?i)mount|telescope|camera|filter|focus|rotator|dome|weather|safety|flat`)
	imageRe     = regexp.MustCompile(`(?i)image|exposure|capture`)
	stackRe     = regexp.MustCompile(`(?i)stack`)
)

var (
	disconnectRe = regexp.MustCompile(`(?i)disconnect`)
	connectRe    = regexp.MustCompile(`(?i)connect`)
	ditherRe     = regexp.MustCompile(`(?i)dither`)
	startRe      = regexp.MustCompile(`(?i)start|begin|resume`)
	stopRe       = regexp.MustCompile(`(?i)stop|pause|end|finish|complete`)

	seqStartRe = regexp.MustCompile(`(?i)sequence.*(start|begin)`)
	seqDoneRe  = regexp.MustCompile(`(?i)sequence.*(finish|complete|end|stop)`)
	targetRe   = regexp.MustCompile(`(?i)target|project`)
	waitRe     = regexp.MustCompile(`(?i)wait`)

	flipRe   = regexp.MustCompile(`(?i)flip`)
	slewRe   = regexp.MustCompile(`(?i)slew|center`)
	trackRe  = regexp.MustCompile(`(?i)unpark|track`)
	parkRe   = regexp.MustCompile(`(?i)park|home`)
	exposeRe = regexp.MustCompile(`(?i)expos`)
	coolRe   = regexp.MustCompile(`(?i)cool`)
	warmRe   = regexp.MustCompile(`(?i)warm`)
	filterRe = regexp.MustCompile(`(?i)filter.*chang|chang.*filter`)
	movingRe = regexp.MustCompile(`(?i)mov|user-focused`)
	saveRe   = regexp.MustCompile(`(?i)save|finish|complete|exposure|capture`)
)

// Classify maps a raw controller event type onto a Kind.
func Classify(rawType string) Kind {
	switch {
	case rawType == "":
		return Kind{}
	case guidingRe.MatchString(rawType):
		return Kind{Domain: DomainGuiding, Action: guidingAction(rawType)}
	case sessionRe.MatchString(rawType):
		return Kind{Domain: DomainSession, Action: sessionAction(rawType)}
	case equipmentRe.MatchString(rawType):
		return Kind{Domain: DomainEquipment, Action: equipmentAction(rawType)}
	case imageRe.MatchString(rawType):
		if saveRe.MatchString(rawType) {
			return Kind{Domain: DomainImage, Action: ActionImageSaved}
		}
		return Kind{}
	case stackRe.MatchString(rawType):
		return Kind{Domain: DomainStack, Action: ActionStackUpdated}
	}
	return Kind{}
}

func guidingAction(t string) Action {
	switch {
	case disconnectRe.MatchString(t):
		return ActionGuidingDisconnected
	case connectRe.MatchString(t):
		return ActionGuidingConnected
	case ditherRe.MatchString(t):
		return ActionGuidingDither
	case startRe.MatchString(t):
		return ActionGuidingStarted
	case stopRe.MatchString(t):
		return ActionGuidingStopped
	}
	return ActionGuidingStats
}

func sessionAction(t string) Action {
	switch {
	case seqStartRe.MatchString(t):
		return ActionSequenceStarted
	case seqDoneRe.MatchString(t):
		return ActionSequenceCompleted
	case waitRe.MatchString(t):
		return ActionSessionUpdate
	case targetRe.MatchString(t):
		return ActionTargetChanged
	}
	return ActionSessionUpdate
}

func equipmentAction(t string) Action {
	switch {
	case disconnectRe.MatchString(t):
		return ActionDisconnected
	case connectRe.MatchString(t):
		return ActionConnected
	case flipRe.MatchString(t):
		return ActionFlip
	case slewRe.MatchString(t):
		return ActionSlewing
	case trackRe.MatchString(t):
		return ActionTracking
	case parkRe.MatchString(t):
		return ActionParked
	case filterRe.MatchString(t):
		return ActionFilterChanged
	case exposeRe.MatchString(t):
		return ActionExposing
	case coolRe.MatchString(t):
		return ActionCooling
	case warmRe.MatchString(t):
		return ActionWarming
	case movingRe.MatchString(t):
		return ActionMoving
	}
	return ActionEquipmentUpdate
}

var equipmentIDPatterns = []struct {
	re *regexp.Regexp
	id string
}{
	{regexp.MustCompile(`(?i)filter`), state.EquipmentFilterWheel},
	{regexp.MustCompile(`(?i)flat`), state.EquipmentFlatPanel},
	{regexp.MustCompile(`(?i)focus`), state.EquipmentFocuser},
	{regexp.MustCompile(`(?i)rotator`), state.EquipmentRotator},
	{regexp.MustCompile(`(?i)guid`), state.EquipmentGuider},
	{regexp.MustCompile(`(?i)mount|telescope`), state.EquipmentMount},
	{regexp.MustCompile(`(?i)camera`), state.EquipmentCamera},
	{regexp.MustCompile(`(?i)dome`), state.EquipmentDome},
	{regexp.MustCompile(`(?i)weather|safety`), state.EquipmentWeather},
}

// EquipmentID infers the logical equipment id from a raw event type.
func EquipmentID(rawType string) string {
	for _, p := range equipmentIDPatterns {
		if p.re.MatchString(rawType) {
			return p.id
		}
	}
	return state.EquipmentOther
}
