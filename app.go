package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/chazu/stepwise/pkg/api"
	"github.com/chazu/stepwise/pkg/asset"
	"github.com/chazu/stepwise/pkg/camera"
	"github.com/chazu/stepwise/pkg/config"
	"github.com/chazu/stepwise/pkg/engine"
	"github.com/chazu/stepwise/pkg/kernel"
	"github.com/chazu/stepwise/pkg/kernel/sdfx"
	"github.com/chazu/stepwise/pkg/layout"
	"github.com/chazu/stepwise/pkg/logger"
	"github.com/chazu/stepwise/pkg/persist"
	"github.com/chazu/stepwise/pkg/project"
	"github.com/chazu/stepwise/pkg/tessellate"
	"github.com/chazu/stepwise/pkg/viewer"
)

// Events emitted to the frontend.
const (
	EventDescription = "stepwise:description"
	EventPick        = "stepwise:pick"
	EventAssetReady  = "stepwise:asset"
	EventSaveFailed  = "stepwise:save-failed"
)

// App is the Wails backend. It exposes methods to the frontend via bindings.
type App struct {
	ctx    context.Context
	cfg    config.Config
	log    *logger.Logger
	engine *engine.Engine
	store  *project.Store
	syncer *persist.Syncer
	viewer *viewer.Viewer

	emitMu sync.RWMutex
	emit   func(event string, data ...interface{})

	mu         sync.Mutex
	active     string
	pick       bool
	highlights map[string]project.Color
}

// DescriptionEvent is sent when a described connection is clicked.
type DescriptionEvent struct {
	ConnectionID string `json:"connectionId"`
	Description  string `json:"description"`
}

// PickEvent is sent when a mesh is clicked in pick mode.
type PickEvent struct {
	StepID string           `json:"stepId"`
	Result asset.PickResult `json:"result"`
}

// AssetEvent is sent when an asset slot settles.
type AssetEvent struct {
	Key   string `json:"key"`
	State string `json:"state"`
}

// RenderRequest is the per-frame input the frontend controls.
type RenderRequest struct {
	Active     string                   `json:"active"`
	Mode       string                   `json:"mode"`
	Pick       bool                     `json:"pick"`
	Highlights map[string]project.Color `json:"highlights"`
}

// NewApp wires the editor. Without an api base url projects are kept in
// memory for the session.
func NewApp(cfg config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}

	var client persist.Client
	if cfg.API.BaseURL == "" {
		client = persist.NewMemory()
	} else {
		c, err := api.New(cfg.API, log)
		if err != nil {
			return nil, err
		}
		client = c
	}

	k := sdfx.WithCells(cfg.Tessellate.Cells)
	fetcher := asset.NewHTTPFetcher(cfg.Assets.FetchTimeout, cfg.Assets.MaxUploadBytes)
	loader := asset.NewLoader(fetcher, asset.NewHandles(), log)

	a := &App{
		cfg:    cfg,
		log:    log.With("component", "app"),
		engine: engine.NewEngine(),
		store:  project.NewStore(project.New("Untitled guide", project.KindBuilder)),
		emit:   func(string, ...interface{}) {},
	}
	a.syncer = persist.NewSyncer(a.store, client, log)
	a.viewer = viewer.New(viewer.Options{
		Strategy: cfg.Layout.Strategy,
		Loader:   loader,
		Geometry: tessellate.NewCache(k),
		Log:      log,
		OnDescription: func(id, description string) {
			a.send(EventDescription, DescriptionEvent{ConnectionID: id, Description: description})
		},
		OnPick: func(stepID string, res asset.PickResult) {
			a.send(EventPick, PickEvent{StepID: stepID, Result: res})
		},
		OnAssetReady: func(key string, state asset.State) {
			a.send(EventAssetReady, AssetEvent{Key: key, State: state.String()})
		},
	})
	return a, nil
}

// startup is called by Wails on app startup. The context is saved
// so runtime events can be emitted.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.emitMu.Lock()
	a.emit = func(event string, data ...interface{}) {
		runtime.EventsEmit(ctx, event, data...)
	}
	a.emitMu.Unlock()

	go func() {
		if err := a.viewer.Preload(ctx, a.store.Snapshot()); err != nil {
			a.log.Warn("preload incomplete", "error", err)
		}
	}()
}

// shutdown flushes pending saves.
func (a *App) shutdown(_ context.Context) {
	a.syncer.Close()
	if st := a.syncer.Status(); st.LastError != "" {
		a.log.Warn("last save failed", "error", st.LastError)
	}
	a.viewer.Close()
	a.log.Sync()
}

func (a *App) send(event string, payload interface{}) {
	a.emitMu.RLock()
	emit := a.emit
	a.emitMu.RUnlock()
	emit(event, payload)
}

func (a *App) bg() context.Context {
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}

func (a *App) timeout() (context.Context, context.CancelFunc) {
	d := a.cfg.API.Timeout
	if d <= 0 {
		d = 15 * time.Second
	}
	return context.WithTimeout(a.bg(), d)
}

// ---------------------------------------------------------------------------
// Viewer
// ---------------------------------------------------------------------------

// Render rebuilds the scene for the current document.
func (a *App) Render(req RenderRequest) (viewer.Frame, error) {
	mode := camera.Mode("")
	if req.Mode != "" {
		m, err := camera.ParseMode(req.Mode)
		if err != nil {
			return viewer.Frame{}, err
		}
		mode = m
	}

	a.mu.Lock()
	a.active = req.Active
	a.pick = req.Pick
	a.highlights = req.Highlights
	a.mu.Unlock()

	p := a.store.Snapshot()
	return a.viewer.Render(viewer.Request{
		Project:    p,
		Active:     req.Active,
		Positions:  layout.Positions2D(p.Layout),
		Mode:       mode,
		Pick:       req.Pick,
		Highlights: req.Highlights,
	})
}

// rerender repeats the last render against the latest document.
func (a *App) rerender() {
	a.mu.Lock()
	req := RenderRequest{Active: a.active, Pick: a.pick, Highlights: a.highlights}
	a.mu.Unlock()
	if _, err := a.Render(req); err != nil {
		a.log.Warn("render failed", "error", err)
	}
}

// Tick advances the camera by one frame.
func (a *App) Tick(elapsed float64) viewer.Frame {
	return a.viewer.Tick(elapsed)
}

func (a *App) SetMode(mode string) error {
	m, err := camera.ParseMode(mode)
	if err != nil {
		return err
	}
	return a.viewer.SetMode(m)
}

func (a *App) Orbit(dAzimuth, dPolar float64) bool { return a.viewer.Orbit(dAzimuth, dPolar) }
func (a *App) Zoom(factor float64) bool           { return a.viewer.Zoom(factor) }

// CameraSnapshot returns the live camera pose.
func (a *App) CameraSnapshot() project.Pose { return a.viewer.CameraSnapshot() }

// CaptureCamera stores the live camera pose on a step.
func (a *App) CaptureCamera(stepID string) error {
	p := a.store.Snapshot()
	step, ok := p.Step(stepID)
	if !ok {
		return fmt.Errorf("capture camera: %w", project.ErrStepNotFound)
	}
	pose := a.viewer.CameraSnapshot()
	step.Camera = &pose
	return a.store.UpdateStep(step)
}

// ClickConnection returns the clicked connection's description, or "".
// The description is also emitted as an event.
func (a *App) ClickConnection(id string) string {
	description, _ := a.viewer.ClickConnection(id)
	return description
}

func (a *App) HoverMesh(stepID, mesh string) bool {
	return a.viewer.HoverMesh(stepID, mesh)
}

// PickMesh reports the clicked mesh, or nil outside pick mode.
func (a *App) PickMesh(stepID, mesh string) *asset.PickResult {
	res, ok := a.viewer.PickMesh(stepID, mesh)
	if !ok {
		return nil
	}
	return &res
}

// Next and Prev step through the guide and return the new active step.
func (a *App) Next() string { return a.navigate(a.viewer.Next) }
func (a *App) Prev() string { return a.navigate(a.viewer.Prev) }

func (a *App) navigate(move func() (string, bool)) string {
	id, ok := move()
	if !ok {
		return a.viewer.Active()
	}
	a.mu.Lock()
	a.active = id
	a.mu.Unlock()
	return id
}

// Geometry returns the tessellated mesh for a primitive shape kind.
func (a *App) Geometry(kind string) (*kernel.Mesh, error) {
	return a.viewer.Geometry(project.ShapeKind(kind))
}

// ---------------------------------------------------------------------------
// Uploads and scripts
// ---------------------------------------------------------------------------

// ValidateUpload checks a file before it is read.
func (a *App) ValidateUpload(u asset.Upload) error {
	return asset.ValidateUpload(u, a.cfg.Assets.MaxUploadBytes)
}

// SetStepAsset validates an embedded upload and makes it the step's custom
// model.
func (a *App) SetStepAsset(stepID, name, dataURL string) error {
	if err := asset.ValidateDataURL(name, dataURL, a.cfg.Assets.MaxUploadBytes); err != nil {
		return err
	}
	p := a.store.Snapshot()
	step, ok := p.Step(stepID)
	if !ok {
		return fmt.Errorf("set asset: %w", project.ErrStepNotFound)
	}
	step.Shape = project.ShapeCustom
	step.Asset = dataURL
	if err := a.store.UpdateStep(step); err != nil {
		return err
	}
	a.rerender()
	return nil
}

// SetProjectAsset validates an embedded upload and makes it the shared
// model of an upload project.
func (a *App) SetProjectAsset(name, dataURL string) error {
	if err := asset.ValidateDataURL(name, dataURL, a.cfg.Assets.MaxUploadBytes); err != nil {
		return err
	}
	p := a.store.Snapshot()
	p.Kind = project.KindUpload
	p.Asset = dataURL
	a.store.Replace(p)
	a.rerender()
	return nil
}

// ImportScript evaluates a project script and, when it succeeds, replaces
// the open document's content with it.
func (a *App) ImportScript(source string) engine.EvalResult {
	res := a.engine.Result(source)
	if res.Script == nil || len(res.Errors) > 0 || res.Fatal != "" {
		if res.Fatal != "" {
			a.log.Warn("script import failed", "error", res.Fatal)
		}
		return res
	}
	p := res.Script.Project
	current := a.store.Snapshot()
	p.ID = current.ID
	p.UpdatedAt = current.UpdatedAt
	a.store.Replace(p)
	a.rerender()
	return res
}

// ---------------------------------------------------------------------------
// Document
// ---------------------------------------------------------------------------

func (a *App) Project() project.Project { return a.store.Snapshot() }

func (a *App) Rename(name string) { a.store.Rename(name) }

func (a *App) AddStep(s project.Step) (project.Step, error) {
	out, err := a.store.AddStep(s)
	if err == nil {
		a.rerender()
	}
	return out, err
}

func (a *App) UpdateStep(s project.Step) error {
	return a.mutated(a.store.UpdateStep(s))
}

func (a *App) DeleteStep(id string) error {
	return a.mutated(a.store.DeleteStep(id))
}

func (a *App) AddConnection(c project.Connection) (project.Connection, error) {
	out, err := a.store.AddConnection(c)
	if err == nil {
		a.rerender()
	}
	return out, err
}

func (a *App) UpdateConnection(c project.Connection) error {
	return a.mutated(a.store.UpdateConnection(c))
}

func (a *App) DeleteConnection(id string) error {
	return a.mutated(a.store.DeleteConnection(id))
}

func (a *App) AddToGuide(stepID string) (project.GuideStep, error) {
	return a.store.AddToGuide(stepID)
}

func (a *App) MoveGuideStep(from, to int) error { return a.store.MoveGuideStep(from, to) }
func (a *App) RemoveGuideStep(id string) error  { return a.store.RemoveGuideStep(id) }

func (a *App) SetPosition(stepID string, x, y float64) error {
	return a.mutated(a.store.SetPosition(stepID, project.Vec2{X: x, Y: y}))
}

func (a *App) mutated(err error) error {
	if err != nil {
		return err
	}
	a.rerender()
	return nil
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// SaveStatus reports background saving.
func (a *App) SaveStatus() persist.Status {
	st := a.syncer.Status()
	if st.LastError != "" {
		a.send(EventSaveFailed, st)
	}
	return st
}

func (a *App) NewProject(name, kind string) project.Project {
	a.syncer.Start(project.New(name, project.Kind(kind)))
	a.rerender()
	return a.store.Snapshot()
}

func (a *App) ListProjects() ([]project.Project, error) {
	ctx, cancel := a.timeout()
	defer cancel()
	return a.syncer.List(ctx)
}

func (a *App) OpenProject(id string) (project.Project, error) {
	ctx, cancel := a.timeout()
	defer cancel()
	p, err := a.syncer.Open(ctx, id)
	if err != nil {
		return project.Project{}, err
	}
	a.rerender()
	return p, nil
}

// OpenShared opens a project by public share token for viewing.
func (a *App) OpenShared(token string) (project.Project, error) {
	ctx, cancel := a.timeout()
	defer cancel()
	p, err := a.syncer.OpenShared(ctx, token)
	if err != nil {
		return project.Project{}, err
	}
	a.rerender()
	return p, nil
}

func (a *App) ShareProject() (string, error) {
	ctx, cancel := a.timeout()
	defer cancel()
	return a.syncer.Share(ctx)
}

func (a *App) DeleteProject() error {
	ctx, cancel := a.timeout()
	defer cancel()
	return a.syncer.Delete(ctx)
}
