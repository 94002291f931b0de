package state

import "time"

type EquipmentType string

const (
	TypeCamera      EquipmentType = "camera"
	TypeMount       EquipmentType = "mount"
	TypeFilterWheel EquipmentType = "filterwheel"
	TypeFocuser     EquipmentType = "focuser"
	TypeRotator     EquipmentType = "rotator"
	TypeGuider      EquipmentType = "guider"
	TypeDome        EquipmentType = "dome"
	TypeWeather     EquipmentType = "weather"
	TypeFlatPanel   EquipmentType = "flatpanel"
	TypeOther       EquipmentType = "other"
)

type EquipmentStatus string

const (
	StatusIdle         EquipmentStatus = "idle"
	StatusSlewing      EquipmentStatus = "slewing"
	StatusTracking     EquipmentStatus = "tracking"
	StatusExposing     EquipmentStatus = "exposing"
	StatusSettling     EquipmentStatus = "settling"
	StatusCooling      EquipmentStatus = "cooling"
	StatusWarming      EquipmentStatus = "warming"
	StatusCalibrating  EquipmentStatus = "calibrating"
	StatusMoving       EquipmentStatus = "moving"
	StatusDisconnected EquipmentStatus = "disconnected"
	StatusUnknown      EquipmentStatus = "unknown"
)

// Logical equipment ids. The dashboard keys widgets on these, so they are
// part of the wire contract.
const (
	EquipmentCamera      = "camera"
	EquipmentMount       = "mount"
	EquipmentFilterWheel = "filterWheel"
	EquipmentFocuser     = "focuser"
	EquipmentRotator     = "rotator"
	EquipmentGuider      = "guider"
	EquipmentDome        = "dome"
	EquipmentWeather     = "weather"
	EquipmentFlatPanel   = "flatPanel"
	EquipmentOther       = "other"
)

var equipmentNames = map[string]string{
	EquipmentCamera:      "Camera",
	EquipmentMount:       "Mount",
	EquipmentFilterWheel: "Filter Wheel",
	EquipmentFocuser:     "Focuser",
	EquipmentRotator:     "Rotator",
	EquipmentGuider:      "Guider",
	EquipmentDome:        "Dome",
	EquipmentWeather:     "Weather",
	EquipmentFlatPanel:   "Flat Panel",
	EquipmentOther:       "Other",
}

var equipmentTypes = map[string]EquipmentType{
	EquipmentCamera:      TypeCamera,
	EquipmentMount:       TypeMount,
	EquipmentFilterWheel: TypeFilterWheel,
	EquipmentFocuser:     TypeFocuser,
	EquipmentRotator:     TypeRotator,
	EquipmentGuider:      TypeGuider,
	EquipmentDome:        TypeDome,
	EquipmentWeather:     TypeWeather,
	EquipmentFlatPanel:   TypeFlatPanel,
	EquipmentOther:       TypeOther,
}

// EquipmentName returns the fixed display name for a logical equipment id.
func EquipmentName(id string) string {
	if n, ok := equipmentNames[id]; ok {
		return n
	}
	return equipmentNames[EquipmentOther]
}

// EquipmentTypeOf returns the fixed EquipmentType for a logical equipment id.
func EquipmentTypeOf(id string) EquipmentType {
	if t, ok := equipmentTypes[id]; ok {
		return t
	}
	return TypeOther
}

type EquipmentDevice struct {
	ID         string          `json:"id"`
	Type       EquipmentType   `json:"type"`
	Name       string          `json:"name"`
	Connected  bool            `json:"connected"`
	Status     EquipmentStatus `json:"status"`
	LastChange time.Time       `json:"lastChange"`
	Details    map[string]any  `json:"details"`
}

func (d EquipmentDevice) clone() EquipmentDevice {
	d.Details = cloneMap(d.Details)
	return d
}
