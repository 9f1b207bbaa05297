package scene

import "strings"

// Kind is the closed set of entity variants. Every kind shares one capability
// surface; they differ only in which components they accept.
type Kind string

const (
	KindPlatform    Kind = "Platform"
	KindRadio       Kind = "Radio"
	KindSensor      Kind = "Sensor"
	KindIFF         Kind = "IFF"
	KindFormation   Kind = "Formation"
	KindSpecialZone Kind = "SpecialZone"
	KindMissile     Kind = "Missile"
	KindGun         Kind = "Gun"
	KindBomb        Kind = "Bomb"
	KindFixedPoints Kind = "FixedPoints"
)

// ValidKinds is the set of all entity kinds, in the order offered by the inspector.
var ValidKinds = []Kind{
	KindPlatform,
	KindRadio,
	KindSensor,
	KindIFF,
	KindFormation,
	KindSpecialZone,
	KindMissile,
	KindGun,
	KindBomb,
	KindFixedPoints,
}

var supported = map[Kind][]string{
	KindPlatform: {
		ComponentTransform, ComponentRigidbody, ComponentCollider, ComponentTrajectory,
		ComponentMeshRenderer2D, ComponentDynamicModel, ComponentMission, ComponentNetworkObject,
	},
	KindRadio:       {ComponentTransform, ComponentNetworkObject},
	KindSensor:      {ComponentTransform, ComponentCollider, ComponentMeshRenderer2D},
	KindIFF:         {},
	KindFormation:   {ComponentTransform, ComponentTrajectory, ComponentMission},
	KindSpecialZone: {ComponentTransform, ComponentCollider, ComponentMeshRenderer2D},
	KindMissile: {
		ComponentTransform, ComponentRigidbody, ComponentCollider, ComponentTrajectory,
		ComponentMeshRenderer2D, ComponentDynamicModel,
	},
	KindGun:         {ComponentTransform, ComponentRigidbody, ComponentCollider, ComponentMeshRenderer2D},
	KindBomb:        {ComponentTransform, ComponentRigidbody, ComponentCollider, ComponentTrajectory, ComponentMeshRenderer2D},
	KindFixedPoints: {ComponentTransform, ComponentMeshRenderer2D},
}

// IsValid returns true if the kind is recognized.
func (k Kind) IsValid() bool {
	for i := range ValidKinds {
		if k == ValidKinds[i] {
			return true
		}
	}
	return false
}

// Supports reports whether entities of this kind accept the component.
func (k Kind) Supports(component string) bool {
	for _, c := range supported[k] {
		if c == component {
			return true
		}
	}
	return false
}

// SupportedComponents returns the components an entity of kind k may carry.
func SupportedComponents(k Kind) []string {
	out := make([]string, len(supported[k]))
	copy(out, supported[k])
	return out
}

// ParseKind resolves a kind by name, ignoring case.
func ParseKind(s string) (Kind, bool) {
	for _, k := range ValidKinds {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k, true
		}
	}
	return "", false
}

func kindOptions() []string {
	out := make([]string, len(ValidKinds))
	for i, k := range ValidKinds {
		out[i] = string(k)
	}
	return out
}
