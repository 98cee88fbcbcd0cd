package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/higai/site-admin/pkg/logger"
	"github.com/higai/site-admin/pkg/metrics"
)

// MaxInlineBytes is the largest file stored inline in a document field.
// Base64 grows it by a third, which keeps the document under the store's
// 1MB ceiling.
const MaxInlineBytes = 800000

var ErrTooLarge = errors.New("file too large")

// Archiver keeps a copy of the original upload. storage.MinIOStorage
// satisfies it.
type Archiver interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// Result is an encoded upload.
type Result struct {
	DataURI string `json:"dataUri"`
	MIME    string `json:"mime"`
	Size    int64  `json:"size"`
	// ArchiveKey is set when the original was archived.
	ArchiveKey string `json:"archiveKey,omitempty"`
}

// Encoder turns an uploaded file into a data URI.
type Encoder struct {
	max      int64
	archiver Archiver
	now      func() time.Time
}

type Option func(*Encoder)

func WithMaxBytes(n int64) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.max = n
		}
	}
}

// WithArchiver uploads every accepted original. Archive failures are logged
// and never fail the encode.
func WithArchiver(a Archiver) Option {
	return func(e *Encoder) { e.archiver = a }
}

func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{max: MaxInlineBytes, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Encoder) MaxBytes() int64 { return e.max }

// Check applies the size gate before anything is read.
func (e *Encoder) Check(size int64) error {
	if size > e.max {
		metrics.MediaRejected.WithLabelValues("too_large").Inc()
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, size, e.max)
	}
	return nil
}

// Encode reads at most the size limit from r. declaredType may be empty, in
// which case the type is sniffed from the content. size < 0 means unknown.
func (e *Encoder) Encode(ctx context.Context, name string, size int64, declaredType string, r io.Reader) (Result, error) {
	if err := e.Check(size); err != nil {
		return Result{}, err
	}
	data, err := io.ReadAll(io.LimitReader(r, e.max+1))
	if err != nil {
		metrics.MediaRejected.WithLabelValues("read_error").Inc()
		return Result{}, fmt.Errorf("read %s: %w", name, err)
	}
	if err := e.Check(int64(len(data))); err != nil {
		return Result{}, err
	}

	mt := baseType(declaredType)
	switch {
	case mt != "" && mt != "application/octet-stream":
	case len(data) == 0:
		// nothing to sniff
		mt = "application/octet-stream"
	default:
		mt = baseType(mimetype.Detect(data).String())
	}
	res := Result{
		DataURI: "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data),
		MIME:    mt,
		Size:    int64(len(data)),
	}
	if e.archiver != nil && len(data) > 0 {
		key := e.archiveKey(name, data)
		if err := e.archiver.UploadFile(ctx, key, bytes.NewReader(data), res.Size, mt); err != nil {
			logger.Warnf("media: archive of %s failed: %v", name, err)
		} else {
			res.ArchiveKey = key
		}
	}
	logger.Debugf("media: encoded %s (%s, %d bytes)", name, mt, res.Size)
	return res, nil
}

// EncodeFile encodes a local file. The size gate runs on the file's stat,
// so oversized files are never opened.
func (e *Encoder) EncodeFile(ctx context.Context, path string) (Result, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	if fi.IsDir() {
		return Result{}, fmt.Errorf("%s is a directory", path)
	}
	if err := e.Check(fi.Size()); err != nil {
		return Result{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return e.Encode(ctx, filepath.Base(path), fi.Size(), "", f)
}

func (e *Encoder) archiveKey(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = mimetype.Detect(data).Extension()
	}
	return fmt.Sprintf("media/%s/%s%s", e.now().UTC().Format("2006/01"), uuid.New().String(), ext)
}

// baseType drops MIME parameters such as charset.
func baseType(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(t))
}
