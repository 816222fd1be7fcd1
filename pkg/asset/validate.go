package asset

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// MaxUploadBytes is the default upload limit (50 MiB).
const MaxUploadBytes int64 = 50 << 20

var (
	ErrTooLarge        = errors.New("asset: file exceeds the upload limit")
	ErrUnsupportedType = errors.New("asset: unsupported file type")
)

// The two accepted glTF container types.
var (
	TypeGLB  = types.NewType("glb", "model/gltf-binary")
	TypeGLTF = types.NewType("gltf", "model/gltf+json")
)

var glbMagic = []byte("glTF")

func init() {
	filetype.AddMatcher(TypeGLB, matchGLB)
	filetype.AddMatcher(TypeGLTF, matchGLTF)
}

func matchGLB(buf []byte) bool {
	return len(buf) >= 12 && bytes.Equal(buf[:4], glbMagic)
}

// matchGLTF accepts a JSON object whose leading bytes mention the required
// "asset" property.
func matchGLTF(buf []byte) bool {
	trimmed := bytes.TrimLeft(buf, " \t\r\n\xef\xbb\xbf")
	return len(trimmed) > 0 && trimmed[0] == '{' && bytes.Contains(buf, []byte(`"asset"`))
}

// Upload describes a file chosen for upload. Head holds the first bytes of
// the file when they are available; it is optional.
type Upload struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	MIME string `json:"mime"`
	Head []byte `json:"head,omitempty"`
}

// Sniff detects a glTF container from its leading bytes.
func Sniff(head []byte) (types.Type, bool) {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return filetype.Unknown, false
	}
	if kind != TypeGLB && kind != TypeGLTF {
		return kind, false
	}
	return kind, true
}

// ValidateUpload checks an upload before anything is read or sent. The size
// limit is checked first. A non-positive limit means MaxUploadBytes.
func ValidateUpload(u Upload, limit int64) error {
	if limit <= 0 {
		limit = MaxUploadBytes
	}
	if u.Size > limit {
		return fmt.Errorf("%w: %s is %s, the limit is %s", ErrTooLarge, u.Name, humanBytes(u.Size), humanBytes(limit))
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(u.Name)), ".")
	var want types.Type
	switch ext {
	case TypeGLB.Extension:
		want = TypeGLB
	case TypeGLTF.Extension:
		want = TypeGLTF
	default:
		return fmt.Errorf("%w: %s must be a .glb or .gltf file", ErrUnsupportedType, u.Name)
	}

	if m := strings.ToLower(strings.TrimSpace(u.MIME)); m != "" && m != "application/octet-stream" && m != want.MIME.Value {
		return fmt.Errorf("%w: %s has content type %s, want %s", ErrUnsupportedType, u.Name, m, want.MIME.Value)
	}

	if len(u.Head) > 0 {
		kind, ok := Sniff(u.Head)
		if !ok || kind != want {
			return fmt.Errorf("%w: %s content does not match its .%s extension", ErrUnsupportedType, u.Name, ext)
		}
	}
	return nil
}

// sniffLen is how many leading bytes are handed to Sniff.
const sniffLen = 512

// ValidateDataURL decodes an embedded upload and validates it by name,
// declared content type and content.
func ValidateDataURL(name, dataURL string, limit int64) error {
	mime, data, err := decodeDataURL(dataURL)
	if err != nil {
		return fmt.Errorf("%w: %s is not a valid data url", ErrUnsupportedType, name)
	}
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	return ValidateUpload(Upload{
		Name: name,
		Size: int64(len(data)),
		MIME: mime,
		Head: head,
	}, limit)
}

func humanBytes(n int64) string {
	const mib = 1 << 20
	if n >= mib {
		return fmt.Sprintf("%.1f MiB", float64(n)/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}
