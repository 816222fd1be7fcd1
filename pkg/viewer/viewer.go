// Package viewer is the render entry point of the guide viewer. It owns
// one camera choreographer and one set of asset clones, and turns a
// project, the focused step, the authored 2D layout and the camera mode
// into a scene plus a camera pose.
//
// A Viewer is driven by its host: Render whenever the inputs change, Tick
// once per frame. Both are safe to call from different goroutines, and
// asset loads settle in the background.
package viewer

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/stepwise/pkg/asset"
	"github.com/chazu/stepwise/pkg/camera"
	"github.com/chazu/stepwise/pkg/focus"
	"github.com/chazu/stepwise/pkg/kernel"
	"github.com/chazu/stepwise/pkg/layout"
	"github.com/chazu/stepwise/pkg/logger"
	"github.com/chazu/stepwise/pkg/project"
	"github.com/chazu/stepwise/pkg/scene"
	"github.com/chazu/stepwise/pkg/tessellate"
)

// Options configures a Viewer. Every field is optional.
type Options struct {
	// Strategy names the layout projector; empty selects authored layout.
	Strategy string
	Loader   *asset.Loader
	Geometry *tessellate.Cache
	Log      *logger.Logger

	// OnDescription runs when a connection carrying a description is
	// clicked.
	OnDescription func(connectionID, description string)
	// OnPick runs when a mesh is clicked in pick mode.
	OnPick func(stepID string, res asset.PickResult)
	// OnAssetReady runs from the loading goroutine when an asset slot
	// settles, so the host can schedule a re-render.
	OnAssetReady func(key string, state asset.State)
}

// Request is one render's inputs.
type Request struct {
	Project   project.Project
	Active    string // focused step id, may be empty
	Positions layout.Positions2D
	Mode      camera.Mode // empty keeps the current mode

	// Pick switches asset clones into pick mode: hover highlights follow
	// the pointer and clicks report meshes instead of display tints.
	Pick bool
	// Highlights tints meshes by name in display mode.
	Highlights map[string]project.Color
}

// Frame is what the host draws.
type Frame struct {
	Scene  scene.Scene  `json:"scene"`
	Camera project.Pose `json:"camera"`
	Mode   camera.Mode  `json:"mode"`
}

// Viewer composes layout, scene building, focus resolution, the camera and
// asset loading.
type Viewer struct {
	opts     Options
	log      *logger.Logger
	builder  *scene.Builder
	cam      *camera.Choreographer
	slots    *asset.Slots
	loader   *asset.Loader
	geometry *tessellate.Cache

	ctx    context.Context
	cancel context.CancelFunc
	stale  atomic.Bool

	mu         sync.Mutex
	project    project.Project
	positions  layout.Positions3D
	active     string
	focused    *project.Step
	focusedAt  project.Vec3
	pick       bool
	highlights map[string]project.Color
	elapsed    float64
	scene      scene.Scene
}

// New returns a viewer with its camera at the default overview.
func New(opts Options) *Viewer {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	loader := opts.Loader
	if loader == nil {
		loader = asset.NewLoader(nil, asset.NewHandles(), log)
	}
	ctx, cancel := context.WithCancel(context.Background())

	v := &Viewer{
		opts:     opts,
		log:      log,
		cam:      camera.New(focus.DefaultPose),
		loader:   loader,
		geometry: opts.Geometry,
		ctx:      ctx,
		cancel:   cancel,
		project:  project.New("", project.KindBuilder),
	}
	v.slots = asset.NewSlots(loader, v.assetSettled)
	v.builder = scene.NewBuilder(v, log)
	return v
}

// Camera returns the choreographer.
func (v *Viewer) Camera() *camera.Choreographer { return v.cam }

// CameraSnapshot returns the most recently sampled live camera pose.
func (v *Viewer) CameraSnapshot() project.Pose { return v.cam.Snapshot().Load() }

// Render rebuilds the scene for req. The camera target is recomputed only
// when the focused step changes, its authored data changes, or its asset
// has finished loading since the last resolution.
func (v *Viewer) Render(req Request) (Frame, error) {
	projector, err := layout.ForStrategy(v.opts.Strategy, req.Project)
	if err != nil {
		return Frame{}, err
	}
	if req.Mode != "" {
		if err := v.cam.SetMode(req.Mode); err != nil {
			return Frame{}, err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	leavingDisplay := req.Pick && !v.pick
	v.project = req.Project
	v.positions = projector.Project(req.Project.Steps, req.Positions)
	v.pick = req.Pick
	v.highlights = req.Highlights
	v.selectLocked(req.Active)

	v.slots.Retain(v.assetKeys())
	v.rebuildLocked()
	if leavingDisplay {
		v.eachPatcher(func(_ string, p *asset.Patcher) { p.RestoreAll() })
	}
	return v.frameLocked(v.cam.Live()), nil
}

// Tick advances the camera one frame and refreshes time-driven styling.
// elapsed is the time in seconds since the previous tick.
func (v *Viewer) Tick(elapsed float64) Frame {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.elapsed += elapsed
	if v.stale.Swap(false) {
		v.retargetLocked()
	}
	live := v.cam.Tick()
	v.rebuildLocked()
	return v.frameLocked(live)
}

// Scene returns the most recently built scene.
func (v *Viewer) Scene() scene.Scene {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scene
}

// Select focuses stepID without a full render.
func (v *Viewer) Select(stepID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selectLocked(stepID)
	v.rebuildLocked()
}

// Active returns the focused step id.
func (v *Viewer) Active() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// Next focuses the step after the current one in guide order.
func (v *Viewer) Next() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id, ok := v.project.Next(v.active)
	if ok {
		v.selectLocked(id)
		v.rebuildLocked()
	}
	return id, ok
}

// Prev focuses the step before the current one in guide order.
func (v *Viewer) Prev() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id, ok := v.project.Prev(v.active)
	if ok {
		v.selectLocked(id)
		v.rebuildLocked()
	}
	return id, ok
}

// SetMode switches the camera mode.
func (v *Viewer) SetMode(m camera.Mode) error { return v.cam.SetMode(m) }

// Orbit, Zoom and Pan forward direct user input to the camera. They have
// no effect outside free mode.
func (v *Viewer) Orbit(dAzimuth, dPolar float64) bool { return v.cam.Orbit(dAzimuth, dPolar) }
func (v *Viewer) Zoom(factor float64) bool { return v.cam.Zoom(factor) }
func (v *Viewer) Pan(delta project.Vec3) bool { return v.cam.Pan(delta) }

// ClickConnection surfaces the description of a rendered connection. ok
// is false when the connection is not rendered or has no description.
func (v *Viewer) ClickConnection(id string) (string, bool) {
	v.mu.Lock()
	c, found := v.scene.Curve(id)
	v.mu.Unlock()
	if !found || c.Description == "" {
		return "", false
	}
	if v.opts.OnDescription != nil {
		v.opts.OnDescription(id, c.Description)
	}
	return c.Description, true
}

// HoverMesh moves the pick-mode hover highlight of stepID's asset to mesh.
// An empty mesh clears it.
func (v *Viewer) HoverMesh(stepID, mesh string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.pick {
		return false
	}
	p, ok := v.slots.Patcher(v.assetKey(stepID))
	if !ok {
		return false
	}
	if mesh == "" {
		p.Unhover()
		return true
	}
	return p.Hover(mesh)
}

// PickMesh reports a click on mesh of stepID's asset in pick mode: its
// name, world-space center and the current camera snapshot.
func (v *Viewer) PickMesh(stepID, mesh string) (asset.PickResult, bool) {
	v.mu.Lock()
	if !v.pick {
		v.mu.Unlock()
		return asset.PickResult{}, false
	}
	key := v.assetKey(stepID)
	p, ok := v.slots.Patcher(key)
	if !ok {
		v.mu.Unlock()
		return asset.PickResult{}, false
	}
	res, ok := p.Pick(mesh, v.placement(key), v.cam.Snapshot().Load())
	v.mu.Unlock()
	if ok && v.opts.OnPick != nil {
		v.opts.OnPick(stepID, res)
	}
	return res, ok
}

// Geometry returns the shared unit mesh for a primitive shape.
func (v *Viewer) Geometry(kind project.ShapeKind) (*kernel.Mesh, error) {
	if v.geometry == nil {
		return nil, tessellate.ErrNotPrimitive
	}
	return v.geometry.Mesh(kind)
}

// Preload tessellates every primitive and decodes every remote asset of p
// in parallel. Individual asset failures are logged by the loader and do
// not stop the other loads.
func (v *Viewer) Preload(ctx context.Context, p project.Project) error {
	g, ctx := errgroup.WithContext(ctx)
	if v.geometry != nil {
		g.Go(func() error { return v.geometry.Warm(ctx) })
	}
	refs := make([]string, 0, len(p.Steps)+1)
	if p.Kind == project.KindUpload {
		refs = append(refs, p.Asset)
	} else {
		for _, s := range p.Steps {
			if s.IsAssetBased() {
				refs = append(refs, s.Asset)
			}
		}
	}
	g.Go(func() error {
		if err := v.loader.Warm(ctx, refs); err != nil {
			v.log.Warn("asset preload incomplete", "project", p.ID, "error", err)
		}
		return nil
	})
	return g.Wait()
}

// Close releases every asset clone and transient handle.
func (v *Viewer) Close() {
	v.cancel()
	v.slots.Close()
}

// Status implements scene.Assets over the viewer's slots.
func (v *Viewer) Status(key, ref string) (scene.NodeState, error) {
	state, err := v.slots.Acquire(v.ctx, key, ref)
	if err != nil {
		return scene.StateFailed, err
	}
	switch state {
	case asset.StateReady:
		return scene.StateReady, nil
	case asset.StateFailed:
		return scene.StateFailed, v.slots.Err(key)
	default:
		return scene.StateLoading, nil
	}
}

func (v *Viewer) assetSettled(key string, state asset.State) {
	v.mu.Lock()
	if key == v.assetKey(v.active) {
		v.stale.Store(true)
	}
	v.mu.Unlock()
	if v.opts.OnAssetReady != nil {
		v.opts.OnAssetReady(key, state)
	}
}

// selectLocked focuses id. The camera is retargeted only when the focused
// step differs from the last resolution.
func (v *Viewer) selectLocked(id string) {
	var cur *project.Step
	if s, ok := v.project.Step(id); ok {
		cur = &s
	}
	at := v.positions[id]
	if id == v.active && at == v.focusedAt && reflect.DeepEqual(cur, v.focused) && !v.stale.Swap(false) {
		return
	}
	v.active = id
	v.focused = cur
	v.focusedAt = at
	v.retargetLocked()
}

func (v *Viewer) retargetLocked() {
	r := focus.Resolver{Meshes: meshLocator{v: v}}
	v.cam.SetTarget(r.Resolve(v.project, v.positions, v.active, v.cam.Mode()))
}

func (v *Viewer) rebuildLocked() {
	v.scene = v.builder.Build(scene.Input{
		Project:   v.project,
		Positions: v.positions,
		Active:    v.active,
		Elapsed:   v.elapsed,
	})
	if !v.pick {
		v.applyDisplayLocked()
	}
}

func (v *Viewer) frameLocked(live project.Pose) Frame {
	return Frame{Scene: v.scene, Camera: live, Mode: v.cam.Mode()}
}

// applyDisplayLocked tints the focused step's focus mesh in its clone and
// every highlighted mesh in all clones.
func (v *Viewer) applyDisplayLocked() {
	var focusMesh string
	var focusColor project.Color
	focusKey := ""
	if v.focused != nil && v.focused.FocusMesh != "" {
		focusKey = v.assetKey(v.active)
		focusMesh = v.focused.FocusMesh
		focusColor = v.focused.Color
	}
	v.eachPatcher(func(key string, p *asset.Patcher) {
		if key == focusKey {
			p.ApplyDisplay(focusMesh, focusColor, v.highlights)
			return
		}
		p.ApplyDisplay("", "", v.highlights)
	})
}

func (v *Viewer) eachPatcher(fn func(key string, p *asset.Patcher)) {
	for key := range v.assetKeys() {
		if p, ok := v.slots.Patcher(key); ok {
			fn(key, p)
		}
	}
}

// assetKeys returns the slot keys the current project renders.
func (v *Viewer) assetKeys() map[string]bool {
	keys := make(map[string]bool)
	if v.project.Kind == project.KindUpload {
		if v.project.Asset != "" {
			keys[scene.BackdropKey] = true
		}
		return keys
	}
	for _, s := range v.project.Steps {
		if s.IsAssetBased() && s.Asset != "" {
			keys[s.ID] = true
		}
	}
	return keys
}

// assetKey maps a step to the slot holding the asset it renders.
func (v *Viewer) assetKey(stepID string) string {
	if v.project.Kind == project.KindUpload {
		return scene.BackdropKey
	}
	return stepID
}

// placement is the world transform of a slot's clone.
func (v *Viewer) placement(key string) asset.Placement {
	if key == scene.BackdropKey {
		return asset.Placement{Scale: 1}
	}
	s, _ := v.project.Step(key)
	return asset.Placement{Position: v.positions[key], Scale: s.UniformScale()}
}

// meshLocator resolves focus meshes against loaded clones. It runs with
// the viewer lock held.
type meshLocator struct {
	v *Viewer
}

func (m meshLocator) MeshCenter(stepID, mesh string) (project.Vec3, bool) {
	key := m.v.assetKey(stepID)
	p, ok := m.v.slots.Patcher(key)
	if !ok {
		return project.Vec3{}, false
	}
	box, ok := p.Model().WorldBounds(mesh, m.v.placement(key))
	if !ok {
		return project.Vec3{}, false
	}
	return project.FromV3(box.Center()), true
}

var (
	_ scene.Assets      = (*Viewer)(nil)
	_ focus.MeshLocator = meshLocator{}
)
