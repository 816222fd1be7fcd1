package persist

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/stepwise/pkg/project"
)

// recordingClient wraps Memory, counting calls. Create blocks on gate when
// it is set; failUpdate makes every update fail.
type recordingClient struct {
	*Memory
	gate       chan struct{}
	creates    atomic.Int32
	updates    atomic.Int32
	failUpdate atomic.Bool

	mu      sync.Mutex
	updated []project.Project
}

func newRecordingClient() *recordingClient {
	return &recordingClient{Memory: NewMemory()}
}

func (c *recordingClient) Create(ctx context.Context, p project.Project) (project.Project, error) {
	c.creates.Add(1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return project.Project{}, ctx.Err()
		}
	}
	return c.Memory.Create(ctx, p)
}

func (c *recordingClient) Update(ctx context.Context, p project.Project) (project.Project, error) {
	c.updates.Add(1)
	c.mu.Lock()
	c.updated = append(c.updated, p)
	c.mu.Unlock()
	if c.failUpdate.Load() {
		return project.Project{}, errors.New("service unavailable")
	}
	return c.Memory.Update(ctx, p)
}

func newSynced(t *testing.T, p project.Project, c Client) (*project.Store, *Syncer) {
	t.Helper()
	store := project.NewStore(p)
	s := NewSyncer(store, c, nil)
	t.Cleanup(s.Close)
	return store, s
}

func TestFirstSaveCreatesOnce(t *testing.T) {
	c := newRecordingClient()
	c.gate = make(chan struct{})
	store, s := newSynced(t, project.New("bike", project.KindBuilder), c)

	for i := 0; i < 3; i++ {
		_, err := store.AddStep(project.Step{})
		require.NoError(t, err)
	}
	time.Sleep(20 * time.Millisecond)
	close(c.gate)
	s.Wait()

	assert.EqualValues(t, 1, c.creates.Load())
	id := store.Snapshot().ID
	require.NotEmpty(t, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.updated {
		assert.Equal(t, id, p.ID, "follow-up saves target the created project")
	}

	list, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEditsAfterCreateUpdate(t *testing.T) {
	c := newRecordingClient()
	store, s := newSynced(t, project.New("bike", project.KindBuilder), c)

	_, err := store.AddStep(project.Step{ID: "a"})
	require.NoError(t, err)
	s.Wait()
	require.EqualValues(t, 1, c.creates.Load())

	_, err = store.AddStep(project.Step{ID: "b"})
	require.NoError(t, err)
	s.Wait()

	assert.EqualValues(t, 1, c.creates.Load())
	assert.EqualValues(t, 1, c.updates.Load())

	stored, err := c.Get(context.Background(), store.Snapshot().ID)
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 2)
	assert.Equal(t, 2, s.Status().Saves)
}

func TestOpenDoesNotSaveBack(t *testing.T) {
	c := newRecordingClient()
	seed, err := c.Memory.Create(context.Background(), project.New("existing", project.KindBuilder))
	require.NoError(t, err)

	store, s := newSynced(t, project.New("", project.KindBuilder), c)
	_, err = s.Open(context.Background(), seed.ID)
	require.NoError(t, err)
	s.Wait()
	assert.Zero(t, c.updates.Load())
	assert.Equal(t, seed.ID, store.Snapshot().ID)

	store.Rename("renamed")
	s.Wait()
	assert.Zero(t, c.creates.Load())
	assert.EqualValues(t, 1, c.updates.Load())

	_, err = s.Open(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailureIsLoggedNotRetried(t *testing.T) {
	c := newRecordingClient()
	seed, err := c.Memory.Create(context.Background(), project.New("existing", project.KindBuilder))
	require.NoError(t, err)
	store, s := newSynced(t, seed, c)
	c.failUpdate.Store(true)

	_, err = store.AddStep(project.Step{ID: "a"})
	require.NoError(t, err)
	s.Wait()

	assert.EqualValues(t, 1, c.updates.Load())
	st := s.Status()
	assert.Equal(t, 1, st.Failures)
	assert.Contains(t, st.LastError, "service unavailable")
	assert.Zero(t, st.InFlight)

	// The local edit stands.
	snap := store.Snapshot()
	_, ok := snap.Step("a")
	assert.True(t, ok)
}

func TestStaleRevisionSkipped(t *testing.T) {
	c := newRecordingClient()
	seed, err := c.Memory.Create(context.Background(), project.New("existing", project.KindBuilder))
	require.NoError(t, err)
	store, s := newSynced(t, seed, c)

	s.markSaved(10, true)
	require.NoError(t, s.save(project.Change{Op: project.OpRename, Revision: 9, Snapshot: store.Snapshot()}))
	assert.Zero(t, c.updates.Load())
}

func TestSharedProjectIsReadOnly(t *testing.T) {
	c := newRecordingClient()
	seed, err := c.Memory.Create(context.Background(), project.New("public", project.KindBuilder))
	require.NoError(t, err)
	tok, err := c.Share(context.Background(), seed.ID)
	require.NoError(t, err)

	store, s := newSynced(t, project.New("", project.KindBuilder), c)
	p, err := s.OpenShared(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "public", p.Name)

	store.Rename("vandalised")
	s.Wait()
	assert.Zero(t, c.updates.Load())

	_, err = s.Share(context.Background())
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, s.Delete(context.Background()), ErrReadOnly)
}

func TestShareAndDelete(t *testing.T) {
	c := newRecordingClient()
	store, s := newSynced(t, project.New("draft", project.KindBuilder), c)

	_, err := s.Share(context.Background())
	assert.ErrorIs(t, err, ErrNoProject)
	assert.ErrorIs(t, s.Delete(context.Background()), ErrNoProject)

	store.Rename("saved")
	s.Wait()
	tok, err := s.Share(context.Background())
	require.NoError(t, err)
	shared, err := c.GetShared(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "saved", shared.Name)

	require.NoError(t, s.Delete(context.Background()))
	assert.Empty(t, store.Snapshot().ID)
	_, err = c.GetShared(context.Background(), tok)
	assert.ErrorIs(t, err, ErrNotFound)

	// The next edit creates the project again.
	store.Rename("again")
	s.Wait()
	assert.EqualValues(t, 2, c.creates.Load())
}

func TestStartNewDocumentCreatesOnFirstEdit(t *testing.T) {
	c := newRecordingClient()
	store, s := newSynced(t, project.New("first", project.KindBuilder), c)

	_, err := store.AddStep(project.Step{})
	require.NoError(t, err)
	s.Wait()
	first := store.Snapshot().ID
	require.NotEmpty(t, first)

	s.Start(project.New("second", project.KindUpload))
	s.Wait()
	assert.Empty(t, store.Snapshot().ID)
	assert.EqualValues(t, 1, c.creates.Load())

	_, err = store.AddStep(project.Step{})
	require.NoError(t, err)
	s.Wait()

	assert.EqualValues(t, 2, c.creates.Load())
	second := store.Snapshot().ID
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second)

	remote, err := c.Get(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "first", remote.Name)
}

func TestOpenDuringCreateKeepsDocumentsApart(t *testing.T) {
	c := newRecordingClient()
	seed, err := c.Memory.Create(context.Background(), project.New("existing", project.KindBuilder))
	require.NoError(t, err)

	c.gate = make(chan struct{})
	store, s := newSynced(t, project.New("draft", project.KindBuilder), c)
	_, err = store.AddStep(project.Step{ID: "d1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.creates.Load() == 1 }, time.Second, time.Millisecond)

	_, err = s.Open(context.Background(), seed.ID)
	require.NoError(t, err)
	close(c.gate)
	s.Wait()

	assert.Equal(t, seed.ID, store.Snapshot().ID)

	_, err = store.AddStep(project.Step{ID: "e1"})
	require.NoError(t, err)
	s.Wait()

	opened, err := c.Get(context.Background(), seed.ID)
	require.NoError(t, err)
	require.Len(t, opened.Steps, 1)
	assert.Equal(t, "e1", opened.Steps[0].ID)

	all, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, p := range all {
		if p.ID == seed.ID {
			continue
		}
		assert.Equal(t, "draft", p.Name)
		require.Len(t, p.Steps, 1)
		assert.Equal(t, "d1", p.Steps[0].ID)
	}
}

func TestStartDuringCreateCreatesBoth(t *testing.T) {
	c := newRecordingClient()
	c.gate = make(chan struct{})
	store, s := newSynced(t, project.New("A", project.KindBuilder), c)

	_, err := store.AddStep(project.Step{ID: "a1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.creates.Load() == 1 }, time.Second, time.Millisecond)

	s.Start(project.New("B", project.KindBuilder))
	_, err = store.AddStep(project.Step{ID: "b1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.creates.Load() == 2 }, time.Second, time.Millisecond)

	close(c.gate)
	s.Wait()

	all, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	byName := map[string]project.Project{}
	for _, p := range all {
		byName[p.Name] = p
	}
	require.Contains(t, byName, "A")
	require.Contains(t, byName, "B")
	require.Len(t, byName["A"].Steps, 1)
	assert.Equal(t, "a1", byName["A"].Steps[0].ID)
	require.Len(t, byName["B"].Steps, 1)
	assert.Equal(t, "b1", byName["B"].Steps[0].ID)

	assert.Equal(t, byName["B"].ID, store.Snapshot().ID)
}
