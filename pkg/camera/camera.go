// Package camera moves the live camera toward the focus pose.
//
// The Choreographer is driven by explicit Tick calls from whatever
// scheduler hosts it: the render loop, a timer or a test. In auto mode
// each tick moves the live pose a fixed fraction of the remaining way to
// the target, so missed ticks only slow convergence. In free mode only
// direct user input moves the camera.
package camera

import (
	"fmt"
	"math"
	"sync"

	"github.com/chazu/stepwise/pkg/project"
)

// Mode selects who drives the camera.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeFree Mode = "free"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModeFree:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("camera: unknown mode %q", s)
	}
}

const (
	// Damping is the fraction of the remaining distance covered per tick.
	Damping = 0.08
	// Epsilon is the pose distance under which the camera has arrived.
	Epsilon = 1e-3

	minPolar = 0.01
	minZoom  = 0.5
)

// Distance is the combined Euclidean distance of eyes and look-at points.
func Distance(a, b project.Pose) float64 {
	de := a.Eye.Dist(b.Eye)
	dl := a.LookAt.Dist(b.LookAt)
	return math.Sqrt(de*de + dl*dl)
}

// Snapshot is the shared, always-fresh copy of the live camera pose that
// capture actions read.
type Snapshot struct {
	mu   sync.RWMutex
	pose project.Pose
}

// Load returns the last sampled pose.
func (s *Snapshot) Load() project.Pose {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose
}

func (s *Snapshot) store(p project.Pose) {
	s.mu.Lock()
	s.pose = p
	s.mu.Unlock()
}

// Choreographer owns the live and target camera poses.
type Choreographer struct {
	mu      sync.Mutex
	mode    Mode
	live    project.Pose
	target  project.Pose
	damping float64
	ticks   uint64
	snap    *Snapshot
}

// New returns a choreographer in auto mode with both poses at start.
func New(start project.Pose) *Choreographer {
	c := &Choreographer{
		mode:    ModeAuto,
		live:    start,
		target:  start,
		damping: Damping,
		snap:    &Snapshot{},
	}
	c.snap.store(start)
	return c
}

// Snapshot returns the shared snapshot handle.
func (c *Choreographer) Snapshot() *Snapshot { return c.snap }

// SetTarget redirects the interpolation. Nothing is queued; the next tick
// simply eases toward the new target.
func (c *Choreographer) SetTarget(p project.Pose) {
	c.mu.Lock()
	c.target = p
	c.mu.Unlock()
}

// SetMode switches between auto and free. The live pose is left where it
// is in both directions.
func (c *Choreographer) SetMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
	return nil
}

// Mode returns the current mode.
func (c *Choreographer) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Live returns the live pose.
func (c *Choreographer) Live() project.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Target returns the target pose.
func (c *Choreographer) Target() project.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Ticks returns the number of ticks run.
func (c *Choreographer) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Converged reports whether the live pose is within Epsilon of the target.
func (c *Choreographer) Converged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Distance(c.live, c.target) < Epsilon
}

// Tick advances one frame. The mode is read once at the start. In auto
// mode the live pose moves Damping of the way toward the target; in free
// mode it is untouched. Either way the live pose is sampled into the
// snapshot.
//
// Tick takes no elapsed time: damping is a fixed fraction per frame, so
// convergence is counted in ticks. Callers that track wall time, such as
// viewer.Tick, use it only for pulse animation.
func (c *Choreographer) Tick() project.Pose {
	c.mu.Lock()
	mode := c.mode
	if mode == ModeAuto {
		c.live = project.Pose{
			Eye:    c.live.Eye.Lerp(c.target.Eye, c.damping),
			LookAt: c.live.LookAt.Lerp(c.target.LookAt, c.damping),
		}
	}
	c.ticks++
	live := c.live
	c.mu.Unlock()

	c.snap.store(live)
	return live
}

// Orbit rotates the eye around the look-at point by dAzimuth and dPolar
// radians. It is ignored outside free mode.
func (c *Choreographer) Orbit(dAzimuth, dPolar float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeFree {
		return false
	}
	off := c.live.Eye.Sub(c.live.LookAt)
	r := off.Length()
	if r == 0 {
		return false
	}
	az := math.Atan2(off.X, off.Z) + dAzimuth
	polar := math.Acos(math.Max(-1, math.Min(1, off.Y/r))) + dPolar
	polar = math.Max(minPolar, math.Min(math.Pi-minPolar, polar))

	c.live.Eye = c.live.LookAt.Add(project.Vec3{
		X: r * math.Sin(polar) * math.Sin(az),
		Y: r * math.Cos(polar),
		Z: r * math.Sin(polar) * math.Cos(az),
	})
	return true
}

// Zoom scales the eye distance from the look-at point by factor. It is
// ignored outside free mode.
func (c *Choreographer) Zoom(factor float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeFree || factor <= 0 {
		return false
	}
	off := c.live.Eye.Sub(c.live.LookAt)
	r := off.Length()
	if r == 0 {
		return false
	}
	nr := math.Max(minZoom, r*factor)
	c.live.Eye = c.live.LookAt.Add(off.Scale(nr / r))
	return true
}

// Pan moves eye and look-at together by delta. It is ignored outside free
// mode.
func (c *Choreographer) Pan(delta project.Vec3) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeFree {
		return false
	}
	c.live.Eye = c.live.Eye.Add(delta)
	c.live.LookAt = c.live.LookAt.Add(delta)
	return true
}
