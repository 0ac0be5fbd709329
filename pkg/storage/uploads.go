package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrEmptyUpload is returned for zero-byte uploads.
	ErrEmptyUpload = errors.New("empty upload")
	// ErrUploadTooLarge is returned when the payload exceeds the configured limit.
	ErrUploadTooLarge = errors.New("upload too large")
	// ErrUnsupportedType is returned when the sniffed type is not allowed.
	ErrUnsupportedType = errors.New("unsupported content type")
)

// DefaultAllowedTypes are the content types accepted for avatars and attachments.
var DefaultAllowedTypes = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"audio/mpeg",
	"audio/ogg",
	"video/mp4",
	"application/zip",
}

// DefaultURLPrefix is where uploaded objects are served from.
const DefaultURLPrefix = "/api/files/"

// Uploads stores user supplied bytes under generated keys. Clients get a
// reference URL, the key under the serving prefix.
type Uploads struct {
	objects   ObjectStore
	maxBytes  int64
	allowed   []string
	urlPrefix string
}

// NewUploads wraps an object store with size and content type checks.
func NewUploads(objects ObjectStore, maxBytes int64, allowed []string, urlPrefix string) *Uploads {
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &Uploads{objects: objects, maxBytes: maxBytes, allowed: allowed, urlPrefix: urlPrefix}
}

// URL returns the reference URL for key.
func (u *Uploads) URL(key string) string {
	return u.urlPrefix + key
}

// KeyFromURL extracts the object key from a reference URL produced by URL.
func (u *Uploads) KeyFromURL(ref string) (string, bool) {
	key, ok := strings.CutPrefix(ref, u.urlPrefix)
	if !ok || !ValidKey(key) {
		return "", false
	}
	return key, true
}

// Objects returns the underlying object store.
func (u *Uploads) Objects() ObjectStore {
	return u.objects
}

// Store sniffs data, checks it against the allowlist and writes it under
// uploads/<owner>/<id><ext>.
func (u *Uploads) Store(ctx context.Context, ownerID, id string, data []byte) (ObjectInfo, error) {
	if len(data) == 0 {
		return ObjectInfo{}, ErrEmptyUpload
	}
	if u.maxBytes > 0 && int64(len(data)) > u.maxBytes {
		return ObjectInfo{}, ErrUploadTooLarge
	}
	detected := mimetype.Detect(data)
	if !mimetype.EqualsAny(detected.String(), u.allowed...) && !u.allowedParent(detected) {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedType, detected.String())
	}
	contentType := detected.String()
	key := path.Join("uploads", ownerID, id+detected.Extension())
	if err := u.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return ObjectInfo{}, fmt.Errorf("save upload: %w", err)
	}
	return ObjectInfo{Key: key, Size: int64(len(data)), ContentType: contentType}, nil
}

func (u *Uploads) allowedParent(detected *mimetype.MIME) bool {
	for m := detected.Parent(); m != nil; m = m.Parent() {
		if mimetype.EqualsAny(m.String(), u.allowed...) {
			return true
		}
	}
	return false
}

// ValidKey reports whether key looks like a reference produced by Store.
func ValidKey(key string) bool {
	if !strings.HasPrefix(key, "uploads/") || strings.Contains(key, "..") {
		return false
	}
	return path.Clean(key) == key
}
