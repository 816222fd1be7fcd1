package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/chazu/stepwise/pkg/logger"
)

// ErrUnsupportedRef is returned for references the loader cannot resolve.
var ErrUnsupportedRef = errors.New("asset: unsupported asset reference")

// Fetcher retrieves remote asset bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches assets over HTTP, refusing bodies over MaxBytes.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

// NewHTTPFetcher returns a fetcher with the given request timeout and size
// cap.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}, MaxBytes: maxBytes}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("asset: build request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asset: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asset: fetch %s: status %d", url, resp.StatusCode)
	}
	if resp.ContentLength > f.MaxBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, url)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("asset: read %s: %w", url, err)
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, url)
	}
	return data, nil
}

// Loader decodes each source asset once and hands out clones.
type Loader struct {
	fetch   Fetcher
	handles *Handles
	log     *logger.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	sources map[string]*Model
}

// NewLoader returns a loader resolving remote references through f and
// transient handles through h.
func NewLoader(f Fetcher, h *Handles, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{
		fetch:   f,
		handles: h,
		log:     log,
		sources: make(map[string]*Model),
	}
}

// Handles returns the handle registry the loader dereferences.
func (l *Loader) Handles() *Handles { return l.handles }

func (l *Loader) read(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case IsHandle(ref):
		return l.handles.Open(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		if l.fetch == nil {
			return nil, fmt.Errorf("%w: no fetcher for %s", ErrUnsupportedRef, ref)
		}
		return l.fetch.Fetch(ctx, ref)
	case IsDataURL(ref):
		return nil, fmt.Errorf("%w: data urls must be acquired as handles first", ErrUnsupportedRef)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRef, ref)
	}
}

// Source returns the shared decoded model for ref. Callers must not mutate
// it; use Load for a private copy.
func (l *Loader) Source(ctx context.Context, ref string) (*Model, error) {
	l.mu.RLock()
	m, ok := l.sources[ref]
	l.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := l.group.Do(ref, func() (interface{}, error) {
		l.mu.RLock()
		cached, ok := l.sources[ref]
		l.mu.RUnlock()
		if ok {
			return cached, nil
		}
		data, err := l.read(ctx, ref)
		if err != nil {
			return nil, err
		}
		model, err := Parse(ref, data)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.sources[ref] = model
		l.mu.Unlock()
		return model, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Model), nil
}

// Load returns a fresh centered clone of ref.
func (l *Loader) Load(ctx context.Context, ref string) (*Model, error) {
	src, err := l.Source(ctx, ref)
	if err != nil {
		return nil, err
	}
	return Clone(src)
}

// Forget drops the cached source for ref.
func (l *Loader) Forget(ref string) {
	l.mu.Lock()
	delete(l.sources, ref)
	l.mu.Unlock()
}

// Warm decodes every remote reference in refs in parallel. Failures are
// logged and the first one is returned.
func (l *Loader) Warm(ctx context.Context, refs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if ref == "" || seen[ref] || IsDataURL(ref) {
			continue
		}
		seen[ref] = true
		ref := ref
		g.Go(func() error {
			if _, err := l.Source(ctx, ref); err != nil {
				l.log.Warn("asset preload failed", "ref", ref, "error", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// State is the lifecycle of a pending load.
type State int

const (
	StateLoading State = iota
	StateReady
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Pending is an in-flight load. It leaves StateLoading exactly once.
// Cancel marks it dead and releases its scope; the transfer itself is not
// aborted, its result is dropped.
type Pending struct {
	alive atomic.Bool
	once  sync.Once
	done  chan struct{}
	scope *Scope

	mu    sync.Mutex
	state State
	model *Model
	err   error
}

// Start loads scope's reference in the background. onDone, if set, runs
// once with the settled pending unless it was cancelled first.
func (l *Loader) Start(ctx context.Context, scope *Scope, onDone func(*Pending)) *Pending {
	p := &Pending{done: make(chan struct{}), scope: scope}
	p.alive.Store(true)

	go func() {
		model, err := l.Load(ctx, scope.Ref())
		if !p.alive.Load() {
			return
		}
		if err != nil {
			l.log.Warn("asset load failed", "ref", redactRef(scope.Ref()), "error", err)
			p.settle(StateFailed, nil, err)
		} else {
			p.settle(StateReady, model, nil)
		}
		if onDone != nil && p.alive.Load() {
			onDone(p)
		}
	}()
	return p
}

func (p *Pending) settle(s State, m *Model, err error) bool {
	settled := false
	p.once.Do(func() {
		p.mu.Lock()
		p.state, p.model, p.err = s, m, err
		p.mu.Unlock()
		close(p.done)
		settled = true
	})
	return settled
}

// Cancel drops the result and releases the scope. It is safe to call more
// than once.
func (p *Pending) Cancel() {
	p.alive.Store(false)
	p.settle(StateCancelled, nil, nil)
	p.scope.Release()
}

// Alive reports whether the result will still be applied.
func (p *Pending) Alive() bool { return p.alive.Load() }

// State returns the current state.
func (p *Pending) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Result returns the loaded model or the load error.
func (p *Pending) Result() (*Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model, p.err
}

// Done is closed once the pending settles.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the pending settles or ctx ends.
func (p *Pending) Wait(ctx context.Context) (State, error) {
	select {
	case <-p.done:
		return p.State(), nil
	case <-ctx.Done():
		return StateLoading, ctx.Err()
	}
}

func redactRef(ref string) string {
	if IsDataURL(ref) && len(ref) > 32 {
		return ref[:32] + "..."
	}
	return ref
}
