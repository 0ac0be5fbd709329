package app

import (
	"context"
	"errors"
	"io"

	"messenger/internal/util"
	"messenger/pkg/storage"
)

// File is either a presigned URL or an open stream of an uploaded object.
type File struct {
	URL  string
	Body io.ReadCloser
	Info storage.ObjectInfo
}

// UploadedFile describes a stored upload. URL is the reference to use as
// avatar or attachment.
type UploadedFile struct {
	URL string
	storage.ObjectInfo
}

// Upload stores bytes for userID and returns the reference URL.
func (a *App) Upload(ctx context.Context, userID string, data []byte) (UploadedFile, error) {
	info, err := a.uploads.Store(ctx, userID, util.NewOrderedID(), data)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrEmptyUpload):
			return UploadedFile{}, validationf("file is empty")
		case errors.Is(err, storage.ErrUploadTooLarge):
			return UploadedFile{}, validationf("file is too large")
		case errors.Is(err, storage.ErrUnsupportedType):
			return UploadedFile{}, validationf("file type is not allowed")
		}
		return UploadedFile{}, storageErr("store upload", err)
	}
	util.LoggerFromContext(ctx).Info("file uploaded", "key", info.Key, "size", info.Size, "content_type", info.ContentType)
	return UploadedFile{URL: a.uploads.URL(info.Key), ObjectInfo: info}, nil
}

// OpenFile resolves an object key. Stores that can presign return a
// URL; the others return the object body, which the caller must close.
func (a *App) OpenFile(ctx context.Context, key string) (File, error) {
	if !storage.ValidKey(key) {
		return File{}, &Error{Kind: ErrNotFound, Message: "file not found"}
	}
	objects := a.uploads.Objects()
	url, err := objects.PresignGet(ctx, key, a.presignExpiry)
	if err == nil {
		return File{URL: url, Info: storage.ObjectInfo{Key: key}}, nil
	}
	if !errors.Is(err, storage.ErrPresignUnsupported) {
		return File{}, storageErr("presign file", err)
	}
	body, info, err := objects.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return File{}, &Error{Kind: ErrNotFound, Message: "file not found"}
		}
		return File{}, storageErr("open file", err)
	}
	return File{Body: body, Info: info}, nil
}
