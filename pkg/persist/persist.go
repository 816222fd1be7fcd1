// Package persist keeps the edited project in sync with the persistence
// service. It subscribes to a project.Store and saves every change in the
// background: edits never wait for a save, failures are logged and not
// retried, and the first save of a new project is a single create no
// matter how many edits race it.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chazu/stepwise/pkg/logger"
	"github.com/chazu/stepwise/pkg/project"
)

var (
	ErrNotFound  = errors.New("persist: project not found")
	ErrNoProject = errors.New("persist: project has not been saved yet")
	ErrReadOnly  = errors.New("persist: shared projects are read-only")
)

// Client is the persistence service contract. Create and Update return the
// stored project with its server-assigned id and timestamp.
type Client interface {
	List(ctx context.Context) ([]project.Project, error)
	Get(ctx context.Context, id string) (project.Project, error)
	GetShared(ctx context.Context, token string) (project.Project, error)
	Create(ctx context.Context, p project.Project) (project.Project, error)
	Update(ctx context.Context, p project.Project) (project.Project, error)
	Delete(ctx context.Context, id string) error
	Share(ctx context.Context, id string) (string, error)
}

// DefaultSaveTimeout bounds a single background save.
const DefaultSaveTimeout = 15 * time.Second

// Status is a passive summary of background saving.
type Status struct {
	InFlight    int       `json:"inFlight"`
	Saved       uint64    `json:"savedRevision"`
	Saves       int       `json:"saves"`
	Failures    int       `json:"failures"`
	LastError   string    `json:"lastError,omitempty"`
	LastErrorAt time.Time `json:"lastErrorAt,omitempty"`
}

// created is the outcome of the single-flight create.
type created struct {
	project  project.Project
	revision uint64
}

// Syncer saves store changes through a Client.
type Syncer struct {
	client  Client
	store   *project.Store
	log     *logger.Logger
	timeout time.Duration

	group    singleflight.Group
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	unsub    func()
	loading  atomic.Bool
	readOnly atomic.Bool

	// doc counts the documents swapped in through Open, Start and Delete.
	// Saves only ever write ids back into the document they started from.
	docMu sync.Mutex
	doc   atomic.Uint64

	mu       sync.Mutex
	remoteID string
	status   Status
}

// NewSyncer subscribes to store. Call Close to stop syncing.
func NewSyncer(store *project.Store, client Client, log *logger.Logger) *Syncer {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Syncer{
		client:   client,
		store:    store,
		log:      log.With("component", "persist"),
		timeout:  DefaultSaveTimeout,
		ctx:      ctx,
		cancel:   cancel,
		remoteID: store.Snapshot().ID,
	}
	s.unsub = store.Subscribe(s.handle)
	return s
}

// SetTimeout changes the per-save timeout.
func (s *Syncer) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

func (s *Syncer) handle(ch project.Change) {
	switch {
	case ch.Op == project.OpAdopt:
		return
	case s.loading.Load():
		s.markSaved(ch.Revision, false)
		return
	case s.readOnly.Load():
		return
	}

	gen := s.doc.Load()
	s.mu.Lock()
	s.status.InFlight++
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.save(ch, gen)

		s.mu.Lock()
		s.status.InFlight--
		s.mu.Unlock()
		if err != nil {
			s.fail(ch, err)
		}
	}()
}

// save persists one change made to document gen. Changes older than the
// last saved revision, or made to a document that has since been swapped
// out, are dropped.
func (s *Syncer) save(ch project.Change, gen uint64) error {
	if s.stale(ch.Revision) || s.doc.Load() != gen {
		return nil
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	p := ch.Snapshot
	if p.ID == "" {
		id, ok := s.idFor(gen)
		if !ok {
			return nil
		}
		p.ID = id
	}
	if p.ID == "" {
		key := fmt.Sprintf("create:%s:%d", s.store.LocalKey(), gen)
		v, err, _ := s.group.Do(key, func() (interface{}, error) {
			if id, ok := s.idFor(gen); !ok || id != "" {
				return created{project: project.Project{ID: id}}, nil
			}
			out, err := s.client.Create(ctx, p)
			if err != nil {
				return nil, err
			}
			if !s.adopt(gen, out) {
				s.log.Info("document replaced during create", "project", out.ID)
			}
			return created{project: out, revision: ch.Revision}, nil
		})
		if err != nil {
			return fmt.Errorf("persist: create: %w", err)
		}
		c := v.(created)
		if c.revision == ch.Revision {
			s.markSaved(ch.Revision, true)
			return nil
		}
		p.ID = c.project.ID
		if p.ID == "" || s.stale(ch.Revision) || s.doc.Load() != gen {
			return nil
		}
	}

	out, err := s.client.Update(ctx, p)
	if err != nil {
		return fmt.Errorf("persist: update %s: %w", p.ID, err)
	}
	s.markSaved(ch.Revision, true)
	if !out.UpdatedAt.IsZero() {
		s.adopt(gen, out)
	}
	return nil
}

// idFor returns the service id of document gen. ok is false once another
// document has been swapped in.
func (s *Syncer) idFor(gen uint64) (id string, ok bool) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if s.doc.Load() != gen {
		return "", false
	}
	return s.knownID(), true
}

// adopt writes the stored id and timestamp back into the store, unless the
// store now holds a different document.
func (s *Syncer) adopt(gen uint64, out project.Project) bool {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if s.doc.Load() != gen {
		return false
	}
	s.mu.Lock()
	s.remoteID = out.ID
	s.mu.Unlock()
	s.store.Adopt(out.ID, out.UpdatedAt)
	return true
}

func (s *Syncer) knownID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID
}

func (s *Syncer) stale(rev uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rev <= s.status.Saved
}

// markSaved records rev as persisted. delivered is false for revisions
// that came from the service itself.
func (s *Syncer) markSaved(rev uint64, delivered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delivered {
		s.status.Saves++
	}
	if rev > s.status.Saved {
		s.status.Saved = rev
	}
}

func (s *Syncer) fail(ch project.Change, err error) {
	s.mu.Lock()
	s.status.Failures++
	s.status.LastError = err.Error()
	s.status.LastErrorAt = time.Now()
	s.mu.Unlock()
	s.log.Error("project save failed", "project", ch.Snapshot.ID, "op", ch.Op, "revision", ch.Revision, "error", err)
}

// Status returns the current save summary.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Open loads project id into the store without saving it back.
func (s *Syncer) Open(ctx context.Context, id string) (project.Project, error) {
	p, err := s.client.Get(ctx, id)
	if err != nil {
		return project.Project{}, fmt.Errorf("persist: open %s: %w", id, err)
	}
	s.replace(p, false)
	return p, nil
}

// OpenShared loads a project by public share token. The store stays
// editable but nothing is saved while a shared project is open.
func (s *Syncer) OpenShared(ctx context.Context, token string) (project.Project, error) {
	p, err := s.client.GetShared(ctx, token)
	if err != nil {
		return project.Project{}, fmt.Errorf("persist: open shared project: %w", err)
	}
	s.replace(p, true)
	return p, nil
}

// Start swaps in a fresh unsaved document. It is created on the service by
// its first edit.
func (s *Syncer) Start(p project.Project) {
	p.ID = ""
	p.UpdatedAt = time.Time{}
	s.replace(p, false)
}

func (s *Syncer) replace(p project.Project, readOnly bool) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.doc.Add(1)
	s.mu.Lock()
	s.remoteID = p.ID
	s.mu.Unlock()
	s.readOnly.Store(readOnly)

	s.loading.Store(true)
	s.store.Replace(p)
	s.loading.Store(false)
}

// List returns the current user's projects.
func (s *Syncer) List(ctx context.Context) ([]project.Project, error) {
	return s.client.List(ctx)
}

// Share returns a public share token for the open project.
func (s *Syncer) Share(ctx context.Context) (string, error) {
	if s.readOnly.Load() {
		return "", ErrReadOnly
	}
	id := s.knownID()
	if id == "" {
		return "", ErrNoProject
	}
	return s.client.Share(ctx, id)
}

// Delete removes the open project from the service. The in-memory document
// is kept and will be created anew on its next edit.
func (s *Syncer) Delete(ctx context.Context) error {
	if s.readOnly.Load() {
		return ErrReadOnly
	}
	id := s.knownID()
	if id == "" {
		return ErrNoProject
	}
	if err := s.client.Delete(ctx, id); err != nil {
		return fmt.Errorf("persist: delete %s: %w", id, err)
	}
	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.doc.Add(1)
	s.mu.Lock()
	s.remoteID = ""
	s.mu.Unlock()
	s.store.Adopt("", time.Time{})
	return nil
}

// Wait blocks until every in-flight save has finished.
func (s *Syncer) Wait() {
	s.wg.Wait()
}

// Close stops syncing and waits for in-flight saves.
func (s *Syncer) Close() {
	s.unsub()
	s.wg.Wait()
	s.cancel()
}
