package asset

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/vincent-petithory/dataurl"
)

// ErrReleased is returned when a transient handle is opened after release.
var ErrReleased = errors.New("asset: transient handle released")

const handlePrefix = "blob:"

// IsDataURL reports whether ref carries an embedded payload.
func IsDataURL(ref string) bool {
	return strings.HasPrefix(ref, "data:")
}

// IsHandle reports whether ref is a transient handle.
func IsHandle(ref string) bool {
	return strings.HasPrefix(ref, handlePrefix)
}

type blob struct {
	data []byte
	mime string
}

// Handles turns embedded data URLs into dereferenceable transient handles.
// Every handle must be released by its owner.
type Handles struct {
	mu    sync.Mutex
	blobs map[string]blob
}

// NewHandles returns an empty registry.
func NewHandles() *Handles {
	return &Handles{blobs: make(map[string]blob)}
}

// decodeDataURL splits a data URL into its declared media type and payload.
// The dataurl lexer rejects subtypes such as gltf-binary and gltf+json, so
// the media type is taken off here and the payload is decoded under a
// neutral one.
func decodeDataURL(ref string) (string, []byte, error) {
	if !IsDataURL(ref) {
		return "", nil, errors.New("missing data: scheme")
	}
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return "", nil, errors.New("missing payload separator")
	}
	params := strings.Split(ref[len("data:"):comma], ";")
	mime := strings.ToLower(strings.TrimSpace(params[0]))

	header := "data:application/octet-stream"
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			header += ";base64"
		}
	}
	du, err := dataurl.DecodeString(header + ref[comma:])
	if err != nil {
		return "", nil, err
	}
	return mime, du.Data, nil
}

// Create decodes dataURL and registers its payload under a new handle.
func (h *Handles) Create(dataURL string) (string, error) {
	mime, data, err := decodeDataURL(dataURL)
	if err != nil {
		return "", fmt.Errorf("asset: decode data url: %w", err)
	}
	handle := handlePrefix + uuid.NewString()

	h.mu.Lock()
	h.blobs[handle] = blob{data: data, mime: mime}
	h.mu.Unlock()
	return handle, nil
}

// Open returns the payload behind handle.
func (h *Handles) Open(handle string) ([]byte, error) {
	h.mu.Lock()
	b, ok := h.blobs[handle]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReleased, handle)
	}
	return b.data, nil
}

// Release frees handle. Releasing an unknown handle is a no-op.
func (h *Handles) Release(handle string) {
	h.mu.Lock()
	delete(h.blobs, handle)
	h.mu.Unlock()
}

// Len returns the number of live handles.
func (h *Handles) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.blobs)
}

// Scope owns at most one transient handle for the lifetime of a consumer.
// Release runs once; a scope that holds no handle releases nothing.
type Scope struct {
	h      *Handles
	ref    string
	handle string
	once   sync.Once
}

// Acquire resolves ref for loading. Data URLs are converted to a new
// handle owned by the returned scope; any other reference passes through.
func (h *Handles) Acquire(ref string) (*Scope, error) {
	if !IsDataURL(ref) {
		return &Scope{h: h, ref: ref}, nil
	}
	handle, err := h.Create(ref)
	if err != nil {
		return nil, err
	}
	return &Scope{h: h, ref: handle, handle: handle}, nil
}

// Ref returns the reference the loader should consume.
func (s *Scope) Ref() string {
	if s == nil {
		return ""
	}
	return s.ref
}

// Owned reports whether the scope holds a transient handle.
func (s *Scope) Owned() bool {
	return s != nil && s.handle != ""
}

// Release frees the owned handle, if any.
func (s *Scope) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.handle != "" {
			s.h.Release(s.handle)
		}
	})
}
