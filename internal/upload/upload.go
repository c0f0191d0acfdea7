// Package upload turns image references into public URLs a provider can
// fetch. Remote http(s) URLs pass through untouched; local files are read and
// pushed to a Sink.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/vidgen/internal/fault"
	"github.com/maauso/vidgen/internal/generator"
	"github.com/maauso/vidgen/internal/storage"
)

const opUpload = "upload.resolve"

// DefaultDelay separates consecutive uploads within one request.
const DefaultDelay = time.Second

// File is one local file ready to be uploaded.
type File struct {
	// Name is the generated, unique remote filename.
	Name        string
	ContentType string
	Data        []byte
}

// Sink stores a file and returns its public URL.
type Sink interface {
	Upload(ctx context.Context, file File) (string, error)
}

// FileOpener opens local files. storage.TempStore satisfies it.
type FileOpener interface {
	OpenTemp(ctx context.Context, path string) (io.ReadCloser, error)
}

// ObjectSink uploads files to an object store under a key prefix.
type ObjectSink struct {
	store  storage.ObjectStore
	prefix string
}

// NewObjectSink creates a sink writing to store under prefix.
func NewObjectSink(store storage.ObjectStore, prefix string) *ObjectSink {
	return &ObjectSink{store: store, prefix: strings.Trim(prefix, "/")}
}

// Upload puts the file in the object store.
func (s *ObjectSink) Upload(ctx context.Context, file File) (string, error) {
	key := file.Name
	if s.prefix != "" {
		key = s.prefix + "/" + file.Name
	}
	u, err := s.store.Put(ctx, key, file.ContentType, bytes.NewReader(file.Data))
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("upload: request aborted: %w", ctx.Err())
		}
		return "", fault.Wrap(fault.KindUpload, opUpload, err)
	}
	return u, nil
}

// Adapter resolves image references to public URLs.
type Adapter struct {
	files  FileOpener
	sink   Sink
	delay  time.Duration
	logger *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDelay sets the pause between consecutive uploads.
func WithDelay(d time.Duration) Option {
	return func(a *Adapter) {
		a.delay = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAdapter creates an Adapter reading local files through files and
// uploading them to sink.
func NewAdapter(files FileOpener, sink Sink, opts ...Option) *Adapter {
	a := &Adapter{
		files:  files,
		sink:   sink,
		delay:  DefaultDelay,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ResolvePublicURL returns uri unchanged when it is already an http(s) URL.
// A file:// URI or absolute path is read, uploaded under a generated unique
// name, and its download URL returned. Every failure is a fault.KindUpload
// error, except caller cancellation.
func (a *Adapter) ResolvePublicURL(ctx context.Context, uri string) (string, error) {
	if generator.IsPublicURL(uri) {
		return strings.TrimSpace(uri), nil
	}

	local, err := localPath(uri)
	if err != nil {
		return "", err
	}

	file, err := a.read(ctx, local)
	if err != nil {
		return "", err
	}

	u, err := a.sink.Upload(ctx, file)
	if err != nil {
		return "", err
	}
	if !generator.IsPublicURL(u) {
		return "", fault.Errorf(fault.KindUpload, opUpload, "upload returned unusable URL %q", u)
	}

	a.logger.Info("image uploaded",
		slog.String("file", file.Name),
		slog.Int("bytes", len(file.Data)),
		slog.String("url", u),
	)
	return u, nil
}

// ResolveAll resolves uris in order, one at a time, pausing between
// uploads. It stops at the first failure.
func (a *Adapter) ResolveAll(ctx context.Context, uris []string) ([]string, error) {
	out := make([]string, 0, len(uris))
	uploaded := 0
	for i, uri := range uris {
		needsUpload := !generator.IsPublicURL(uri)
		if needsUpload && uploaded > 0 && a.delay > 0 {
			if err := wait(ctx, a.delay); err != nil {
				return nil, err
			}
		}

		u, err := a.ResolvePublicURL(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		if needsUpload {
			uploaded++
		}
		out = append(out, u)
	}
	return out, nil
}

func (a *Adapter) read(ctx context.Context, local string) (File, error) {
	rc, err := a.files.OpenTemp(ctx, local)
	if err != nil {
		if ctx.Err() != nil {
			return File{}, fmt.Errorf("upload: read aborted: %w", ctx.Err())
		}
		return File{}, fault.Wrap(fault.KindUpload, opUpload, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return File{}, fault.Wrap(fault.KindUpload, opUpload, err)
	}
	if len(data) == 0 {
		return File{}, fault.Errorf(fault.KindUpload, opUpload, "file %s is empty", filepath.Base(local))
	}

	contentType := http.DetectContentType(data)
	return File{
		Name:        uuid.NewString() + extension(local, contentType),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// localPath extracts the filesystem path from a file:// URI or absolute path.
func localPath(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", fault.New(fault.KindUpload, opUpload, "empty image reference")
	}
	if filepath.IsAbs(uri) {
		return uri, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", fault.Wrap(fault.KindUpload, opUpload, err)
	}
	if u.Scheme != "file" || u.Path == "" {
		return "", fault.Errorf(fault.KindUpload, opUpload, "unsupported image reference %q", uri)
	}
	return filepath.FromSlash(u.Path), nil
}

// extension keeps the source file's extension, falling back to one derived
// from the sniffed content type.
func extension(local, contentType string) string {
	if ext := strings.ToLower(path.Ext(filepath.ToSlash(local))); ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("upload: context cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
