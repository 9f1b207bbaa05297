// Package simulation advances entity kinematics once per engine tick.
package simulation

import (
	"math"
	"time"

	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

// Gravity is the downward acceleration applied to rigidbodies, in m/s².
const Gravity = 9.81

// arriveEpsilon is the distance at which a waypoint counts as reached.
const arriveEpsilon = 1e-6

// Step advances every active entity by dt. Entities following a trajectory
// move toward their current waypoint; other entities with a rigidbody
// integrate their velocity. Step emits no hierarchy events: positions reach
// peers through telemetry frames. Trajectory.CurrentIndex and
// Rigidbody.Velocity are authority-only; replicas see them in the next
// snapshot and never advance them.
func Step(h *scene.Hierarchy, dt time.Duration) {
	secs := dt.Seconds()
	if secs <= 0 {
		return
	}
	for _, e := range h.Entities() {
		if !e.Active() {
			continue
		}
		t, ok := e.Transform()
		if !ok {
			continue
		}
		if traj, ok := e.Trajectory(); ok {
			if followTrajectory(t, traj, secs) {
				continue
			}
		}
		if rb, ok := e.Rigidbody(); ok {
			integrate(t, rb, secs)
		}
	}
}

// followTrajectory moves t toward traj's current waypoint and reports
// whether the trajectory drove the entity this tick. Reaching a waypoint
// ends the tick's movement; the next leg starts on the following tick.
func followTrajectory(t *scene.Transform, traj *scene.Trajectory, secs float64) bool {
	wp, ok := traj.Current()
	if !ok {
		return false
	}
	dx := wp.Position.X - t.Position.X
	dy := wp.Position.Y - t.Position.Y
	dz := wp.Position.Z - t.Position.Z
	if dx != 0 || dy != 0 {
		t.Rotation.Z = Heading(dx, dy)
	}
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	step := wp.Speed * secs
	if dist <= step || dist < arriveEpsilon {
		t.Position = wp.Position
		traj.Advance()
		return true
	}
	scale := step / dist
	t.Position.X += dx * scale
	t.Position.Y += dy * scale
	t.Position.Z += dz * scale
	return true
}

func integrate(t *scene.Transform, rb *scene.Rigidbody, secs float64) {
	if rb.IsKinematic {
		return
	}
	if rb.UseGravity {
		rb.Velocity.Z -= Gravity * secs
	}
	if rb.Drag > 0 {
		damp := math.Max(0, 1-rb.Drag*secs)
		rb.Velocity.X *= damp
		rb.Velocity.Y *= damp
		rb.Velocity.Z *= damp
	}
	t.Position.X += rb.Velocity.X * secs
	t.Position.Y += rb.Velocity.Y * secs
	t.Position.Z += rb.Velocity.Z * secs
	if rb.Velocity.X != 0 || rb.Velocity.Y != 0 {
		t.Rotation.Z = Heading(rb.Velocity.X, rb.Velocity.Y)
	}
}

// Heading converts a planar direction into a compass heading in degrees:
// 0 is +Y (north), 90 is +X (east).
func Heading(dx, dy float64) float64 {
	deg := math.Atan2(dx, dy) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
