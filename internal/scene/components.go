package scene

// Vector3 is a position, rotation (degrees) or scale triple.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Transform places an entity. Z is altitude and Rotation.Z is the heading in degrees.
type Transform struct {
	Position Vector3 `json:"position"`
	Rotation Vector3 `json:"rotation"`
	Scale    Vector3 `json:"scale"`
}

// NewTransform returns a transform at the origin with unit scale.
func NewTransform() *Transform {
	return &Transform{Scale: Vector3{X: 1, Y: 1, Z: 1}}
}

func (t *Transform) Name() string                    { return ComponentTransform }
func (t *Transform) ToDocument() Document            { return encodeComponent(ComponentTransform, t) }
func (t *Transform) FromDocument(doc Document) error { return decodeComponent(ComponentTransform, doc, t) }

// Heading returns the yaw in degrees.
func (t *Transform) Heading() float64 { return t.Rotation.Z }

// Rigidbody carries mass and velocity for kinematic integration.
type Rigidbody struct {
	Mass        float64 `json:"mass"`
	Drag        float64 `json:"drag"`
	AngularDrag float64 `json:"angularDrag"`
	UseGravity  bool    `json:"useGravity"`
	IsKinematic bool    `json:"isKinematic"`
	Velocity    Vector3 `json:"velocity"`
}

// NewRigidbody returns a rigidbody with unit mass.
func NewRigidbody() *Rigidbody {
	return &Rigidbody{Mass: 1, AngularDrag: 0.05}
}

func (r *Rigidbody) Name() string                    { return ComponentRigidbody }
func (r *Rigidbody) ToDocument() Document            { return encodeComponent(ComponentRigidbody, r) }
func (r *Rigidbody) FromDocument(doc Document) error { return decodeComponent(ComponentRigidbody, doc, r) }

// Collider shapes.
const (
	ShapeBox     = "box"
	ShapeSphere  = "sphere"
	ShapeCapsule = "capsule"
)

// Collider describes the entity's collision volume.
type Collider struct {
	Shape     string  `json:"shape"`
	Size      Vector3 `json:"size"`
	Radius    float64 `json:"radius"`
	IsTrigger bool    `json:"isTrigger"`
}

// NewCollider returns a unit box collider.
func NewCollider() *Collider {
	return &Collider{Shape: ShapeBox, Size: Vector3{X: 1, Y: 1, Z: 1}, Radius: 0.5}
}

func (c *Collider) Name() string                    { return ComponentCollider }
func (c *Collider) ToDocument() Document            { return encodeComponent(ComponentCollider, c) }
func (c *Collider) FromDocument(doc Document) error { return decodeComponent(ComponentCollider, doc, c) }

// Waypoint is one leg target of a trajectory.
type Waypoint struct {
	Position Vector3 `json:"position"`
	Speed    float64 `json:"speed"`
}

// Trajectory is an ordered waypoint route.
type Trajectory struct {
	Waypoints    []Waypoint `json:"waypoints"`
	Loop         bool       `json:"loop"`
	CurrentIndex int        `json:"currentIndex"`
}

func (t *Trajectory) Name() string                    { return ComponentTrajectory }
func (t *Trajectory) ToDocument() Document            { return encodeComponent(ComponentTrajectory, t) }
func (t *Trajectory) FromDocument(doc Document) error { return decodeComponent(ComponentTrajectory, doc, t) }

// Current returns the active waypoint, or false once the route is exhausted.
func (t *Trajectory) Current() (Waypoint, bool) {
	if t.CurrentIndex < 0 || t.CurrentIndex >= len(t.Waypoints) {
		return Waypoint{}, false
	}
	return t.Waypoints[t.CurrentIndex], true
}

// Advance moves to the next waypoint, wrapping when Loop is set.
func (t *Trajectory) Advance() {
	t.CurrentIndex++
	if t.CurrentIndex >= len(t.Waypoints) && t.Loop && len(t.Waypoints) > 0 {
		t.CurrentIndex = 0
	}
}

// MeshRenderer2D is the map-view visual.
type MeshRenderer2D struct {
	Mesh    string `json:"mesh"`
	Color   string `json:"color"`
	Layer   int    `json:"layer"`
	Visible bool   `json:"visible"`
}

// NewMeshRenderer2D returns a visible renderer with the default mesh.
func NewMeshRenderer2D() *MeshRenderer2D {
	return &MeshRenderer2D{Mesh: "default", Color: "#ffffff", Visible: true}
}

func (m *MeshRenderer2D) Name() string         { return ComponentMeshRenderer2D }
func (m *MeshRenderer2D) ToDocument() Document { return encodeComponent(ComponentMeshRenderer2D, m) }
func (m *MeshRenderer2D) FromDocument(doc Document) error {
	return decodeComponent(ComponentMeshRenderer2D, doc, m)
}

// DynamicModel holds the flight-model parameters consumed by the physics engine.
type DynamicModel struct {
	Model           string  `json:"model"`
	MaxThrust       float64 `json:"maxThrust"`
	WingArea        float64 `json:"wingArea"`
	LiftCoefficient float64 `json:"liftCoefficient"`
	DragCoefficient float64 `json:"dragCoefficient"`
}

func (d *DynamicModel) Name() string         { return ComponentDynamicModel }
func (d *DynamicModel) ToDocument() Document { return encodeComponent(ComponentDynamicModel, d) }
func (d *DynamicModel) FromDocument(doc Document) error {
	return decodeComponent(ComponentDynamicModel, doc, d)
}

// Mission assigns an objective to an entity.
type Mission struct {
	Objective string   `json:"objective"`
	StartTime float64  `json:"startTime"`
	Targets   []string `json:"targets"`
}

func (m *Mission) Name() string                    { return ComponentMission }
func (m *Mission) ToDocument() Document            { return encodeComponent(ComponentMission, m) }
func (m *Mission) FromDocument(doc Document) error { return decodeComponent(ComponentMission, doc, m) }

// NetworkObject marks an entity as owned by a peer.
type NetworkObject struct {
	Owner         string `json:"owner"`
	SyncTransform bool   `json:"syncTransform"`
}

func (n *NetworkObject) Name() string         { return ComponentNetworkObject }
func (n *NetworkObject) ToDocument() Document { return encodeComponent(ComponentNetworkObject, n) }
func (n *NetworkObject) FromDocument(doc Document) error {
	return decodeComponent(ComponentNetworkObject, doc, n)
}
