package project

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrStepNotFound       = errors.New("step not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrGuideStepNotFound  = errors.New("guide step not found")
	ErrDuplicateID        = errors.New("duplicate id")
)

// Op names the mutation that produced a Change.
type Op string

const (
	OpReplace          Op = "replace"
	OpAddStep          Op = "add-step"
	OpUpdateStep       Op = "update-step"
	OpDeleteStep       Op = "delete-step"
	OpAddConnection    Op = "add-connection"
	OpUpdateConnection Op = "update-connection"
	OpDeleteConnection Op = "delete-connection"
	OpAddGuide         Op = "add-guide"
	OpMoveGuide        Op = "move-guide"
	OpRemoveGuide      Op = "remove-guide"
	OpSetPosition      Op = "set-position"
	OpRename           Op = "rename"
	OpAdopt            Op = "adopt" // persistence assigned an id; not a user edit
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Op       Op
	Revision uint64
	Snapshot Project
}

// Store holds the project being edited. All mutation goes through it;
// subscribers receive full snapshots and never see the live document.
type Store struct {
	mu       sync.RWMutex
	doc      Project
	localKey string
	rev      uint64

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// NewStore creates a store holding a copy of p.
func NewStore(p Project) *Store {
	if p.Steps == nil {
		p.Steps = []Step{}
	}
	if p.Connections == nil {
		p.Connections = []Connection{}
	}
	if p.Layout == nil {
		p.Layout = map[string]Vec2{}
	}
	return &Store{
		doc:      p.Clone(),
		localKey: uuid.NewString(),
		subs:     make(map[int]func(Change)),
	}
}

// LocalKey identifies this editing session's aggregate before the
// persistence layer has assigned it an id.
func (s *Store) LocalKey() string {
	return s.localKey
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Revision returns the number of mutations applied so far.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Subscribe registers fn for every future change and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// mutate applies fn under the write lock and notifies subscribers outside it.
func (s *Store) mutate(op Op, fn func(p *Project) error) error {
	s.mu.Lock()
	if err := fn(&s.doc); err != nil {
		s.mu.Unlock()
		return err
	}
	s.rev++
	ch := Change{Op: op, Revision: s.rev, Snapshot: s.doc.Clone()}
	s.mu.Unlock()

	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ch)
	}
	return nil
}

// Replace swaps the whole document, e.g. after a load.
func (s *Store) Replace(p Project) {
	_ = s.mutate(OpReplace, func(doc *Project) error {
		*doc = p.Clone()
		return nil
	})
}

// Rename sets the project name.
func (s *Store) Rename(name string) {
	_ = s.mutate(OpRename, func(doc *Project) error {
		doc.Name = name
		return nil
	})
}

// Adopt records the id and timestamp assigned by persistence.
func (s *Store) Adopt(id string, updatedAt time.Time) {
	_ = s.mutate(OpAdopt, func(doc *Project) error {
		doc.ID = id
		doc.UpdatedAt = updatedAt
		return nil
	})
}

// AddStep appends a step, filling empty fields with defaults, and returns
// the stored step.
func (s *Store) AddStep(step Step) (Step, error) {
	step = WithDefaults(step)
	err := s.mutate(OpAddStep, func(doc *Project) error {
		if doc.stepIndex(step.ID) >= 0 {
			return fmt.Errorf("project: add step %s: %w", step.ID, ErrDuplicateID)
		}
		doc.Steps = append(doc.Steps, step)
		return nil
	})
	return step, err
}

// UpdateStep replaces the step with the same id in place.
func (s *Store) UpdateStep(step Step) error {
	return s.mutate(OpUpdateStep, func(doc *Project) error {
		i := doc.stepIndex(step.ID)
		if i < 0 {
			return fmt.Errorf("project: update step %s: %w", step.ID, ErrStepNotFound)
		}
		doc.Steps[i] = step
		return nil
	})
}

// DeleteStep removes a step together with every connection and guide
// entry that references it, and its layout position.
func (s *Store) DeleteStep(id string) error {
	return s.mutate(OpDeleteStep, func(doc *Project) error {
		i := doc.stepIndex(id)
		if i < 0 {
			return fmt.Errorf("project: delete step %s: %w", id, ErrStepNotFound)
		}
		doc.Steps = append(doc.Steps[:i], doc.Steps[i+1:]...)

		conns := doc.Connections[:0]
		for _, c := range doc.Connections {
			if !c.Touches(id) {
				conns = append(conns, c)
			}
		}
		doc.Connections = conns

		if doc.Guide != nil {
			guide := doc.Guide[:0]
			for _, g := range doc.Guide {
				if g.StepID != id {
					guide = append(guide, g)
				}
			}
			doc.Guide = guide
		}
		delete(doc.Layout, id)
		return nil
	})
}

// AddConnection appends a connection between two existing steps.
func (s *Store) AddConnection(c Connection) (Connection, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Style == "" {
		c.Style = StyleStandard
	}
	err := s.mutate(OpAddConnection, func(doc *Project) error {
		if doc.stepIndex(c.Source) < 0 {
			return fmt.Errorf("project: connection source %s: %w", c.Source, ErrStepNotFound)
		}
		if doc.stepIndex(c.Target) < 0 {
			return fmt.Errorf("project: connection target %s: %w", c.Target, ErrStepNotFound)
		}
		for _, existing := range doc.Connections {
			if existing.ID == c.ID {
				return fmt.Errorf("project: add connection %s: %w", c.ID, ErrDuplicateID)
			}
		}
		doc.Connections = append(doc.Connections, c)
		return nil
	})
	return c, err
}

// UpdateConnection replaces style, description and marker of a connection.
func (s *Store) UpdateConnection(c Connection) error {
	return s.mutate(OpUpdateConnection, func(doc *Project) error {
		for i := range doc.Connections {
			if doc.Connections[i].ID == c.ID {
				doc.Connections[i].Style = c.Style
				doc.Connections[i].Description = c.Description
				doc.Connections[i].Marker = c.Marker
				return nil
			}
		}
		return fmt.Errorf("project: update connection %s: %w", c.ID, ErrConnectionNotFound)
	})
}

// DeleteConnection removes a single connection; its endpoints stay.
func (s *Store) DeleteConnection(id string) error {
	return s.mutate(OpDeleteConnection, func(doc *Project) error {
		for i := range doc.Connections {
			if doc.Connections[i].ID == id {
				doc.Connections = append(doc.Connections[:i], doc.Connections[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("project: delete connection %s: %w", id, ErrConnectionNotFound)
	})
}

// AddToGuide appends a guide entry for an existing step. The entry id
// equals the step id unless that id is already taken in the guide.
func (s *Store) AddToGuide(stepID string) (GuideStep, error) {
	var added GuideStep
	err := s.mutate(OpAddGuide, func(doc *Project) error {
		if doc.stepIndex(stepID) < 0 {
			return fmt.Errorf("project: add to guide %s: %w", stepID, ErrStepNotFound)
		}
		added = GuideStep{ID: stepID, StepID: stepID}
		for _, g := range doc.Guide {
			if g.ID == stepID {
				added.ID = uuid.NewString()
				break
			}
		}
		doc.Guide = append(doc.Guide, added)
		return nil
	})
	return added, err
}

// MoveGuideStep moves the entry at index from to index to.
func (s *Store) MoveGuideStep(from, to int) error {
	return s.mutate(OpMoveGuide, func(doc *Project) error {
		n := len(doc.Guide)
		if from < 0 || from >= n || to < 0 || to >= n {
			return fmt.Errorf("project: move guide %d -> %d of %d: %w", from, to, n, ErrGuideStepNotFound)
		}
		g := doc.Guide[from]
		doc.Guide = append(doc.Guide[:from], doc.Guide[from+1:]...)
		doc.Guide = append(doc.Guide[:to], append([]GuideStep{g}, doc.Guide[to:]...)...)
		return nil
	})
}

// RemoveGuideStep removes a single guide entry by its id.
func (s *Store) RemoveGuideStep(id string) error {
	return s.mutate(OpRemoveGuide, func(doc *Project) error {
		for i := range doc.Guide {
			if doc.Guide[i].ID == id {
				doc.Guide = append(doc.Guide[:i], doc.Guide[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("project: remove guide %s: %w", id, ErrGuideStepNotFound)
	})
}

// SetPosition records the authored 2D position of a step.
func (s *Store) SetPosition(stepID string, pos Vec2) error {
	return s.mutate(OpSetPosition, func(doc *Project) error {
		if doc.stepIndex(stepID) < 0 {
			return fmt.Errorf("project: set position %s: %w", stepID, ErrStepNotFound)
		}
		if doc.Layout == nil {
			doc.Layout = map[string]Vec2{}
		}
		doc.Layout[stepID] = pos
		return nil
	})
}

// WithDefaults fills empty step fields: a random id, a placeholder title,
// the default highlight color, a cube shape and unit scale.
func WithDefaults(s Step) Step {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Title == "" {
		s.Title = "New step"
	}
	if s.Color == "" {
		s.Color = "#4f8cff"
	}
	if s.Shape == "" {
		s.Shape = ShapeCube
	}
	if s.Scale == 0 {
		s.Scale = 1
	}
	return s
}
