package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mealvault/mealvault/internal/database"
	apperrors "github.com/mealvault/mealvault/pkg/errors"
	"github.com/mealvault/mealvault/pkg/logger"
	"github.com/mealvault/mealvault/pkg/metrics"
)

// copyBufferSize is the fixed chunk size for artifact and stream copies.
// Cancellation is checked between chunks.
const copyBufferSize = 32 * 1024

const (
	artifactSuffix = ".db"
	metaSuffix     = ".meta"
)

// Coordinator snapshots and restores the store's on-disk image, verified by
// SHA-256 content checksum. It closes the live store around every copy so the
// bytes on disk are consistent; callers must serialize backup operations
// against normal repository traffic.
type Coordinator struct {
	store    *database.Store
	dir      string
	log      *zap.Logger
	now      func() time.Time
	newToken func() string
}

// Option customises the Coordinator.
type Option func(*Coordinator)

// WithNow overrides the clock, primarily for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTokenSource overrides backup token generation, primarily for tests.
func WithTokenSource(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.newToken = fn
		}
	}
}

// NewCoordinator constructs a coordinator writing artifacts under dir.
func NewCoordinator(store *database.Store, dir string, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("backup: store is required")
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("backup: directory is required")
	}
	if strings.TrimSpace(store.Path()) == "" {
		return nil, apperrors.NewConfiguration("backup: store must be file-backed")
	}

	c := &Coordinator{
		store:    store,
		dir:      dir,
		log:      logger.WithModule("backup"),
		now:      time.Now,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Create snapshots the store file into a fresh artifact plus metadata record
// and returns the metadata. The store is reopened before returning, success
// or failure.
func (c *Coordinator) Create(ctx context.Context) (meta *Metadata, err error) {
	defer c.observe("create", &err)

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, apperrors.NewStore(fmt.Errorf("backup: ensure directory: %w", err))
	}

	sourcePath := c.store.Path()
	if _, statErr := os.Stat(sourcePath); statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return nil, apperrors.NewNotFound("store file", sourcePath)
		}
		return nil, apperrors.NewStore(statErr)
	}

	token := c.newToken()
	artifact := c.artifactPath(token)

	if err := c.store.Close(); err != nil {
		return nil, apperrors.NewStore(err)
	}
	defer func() {
		if reopenErr := c.store.Reopen(); reopenErr != nil {
			err = apperrors.NewStore(multierr.Append(err, reopenErr))
		}
	}()

	checksum, size, copyErr := copyFile(ctx, artifact, sourcePath)
	if copyErr != nil {
		_ = os.Remove(artifact) // do not leave partial artifacts behind
		return nil, classifyCopy(copyErr)
	}

	m := Metadata{
		ID:        token,
		Timestamp: c.now().UTC(),
		Version:   c.store.SchemaVersion(),
		Size:      size,
		Checksum:  checksum,
	}
	if err := os.WriteFile(c.metaPath(token), m.Encode(), 0o600); err != nil {
		_ = os.Remove(artifact)
		return nil, apperrors.NewStore(fmt.Errorf("backup: write metadata: %w", err))
	}

	c.log.Info("backup created",
		zap.String("id", m.ID),
		zap.Int64("size", m.Size),
	)
	return &m, nil
}

// Restore verifies the artifact's checksum against its metadata and, on
// match, overwrites the live store file with the artifact bytes. A mismatch
// is an integrity failure and leaves the live store untouched.
func (c *Coordinator) Restore(ctx context.Context, id string) (err error) {
	defer c.observe("restore", &err)

	meta, err := c.readMetadata(id)
	if err != nil {
		return err
	}
	artifact := c.artifactPath(meta.ID)

	// Integrity is checked before the live store is disturbed.
	checksum, _, err := checksumFile(ctx, artifact)
	if err != nil {
		return classifyCopy(err)
	}
	if checksum != meta.Checksum {
		return apperrors.ErrIntegrity.WithInternal(
			fmt.Errorf("backup %s: checksum %s does not match recorded %s", meta.ID, checksum, meta.Checksum))
	}

	if err := c.store.Close(); err != nil {
		return apperrors.NewStore(err)
	}
	defer func() {
		if reopenErr := c.store.Reopen(); reopenErr != nil {
			err = apperrors.NewStore(multierr.Append(err, reopenErr))
		}
	}()

	// SQLite sidecar files from the previous WAL session must not survive a
	// restored image.
	storePath := c.store.Path()
	for _, sidecar := range []string{storePath + "-wal", storePath + "-shm"} {
		_ = os.Remove(sidecar)
	}

	if _, _, err := copyFile(ctx, storePath, artifact); err != nil {
		return classifyCopy(err)
	}

	c.log.Info("backup restored", zap.String("id", meta.ID))
	return nil
}

// List enumerates artifacts that have a matching metadata record, newest
// first. Artifacts without a readable metadata pair are skipped.
func (c *Coordinator) List(ctx context.Context) ([]Metadata, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, apperrors.NewStore(err)
	}

	var metas []Metadata
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.ErrCancelled.WithInternal(err)
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), artifactSuffix) {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), artifactSuffix)
		data, readErr := os.ReadFile(c.metaPath(id))
		if readErr != nil {
			c.log.Warn("skipping artifact without metadata", zap.String("id", id))
			continue
		}
		meta, parseErr := ParseMetadata(data)
		if parseErr != nil {
			c.log.Warn("skipping artifact with unreadable metadata",
				zap.String("id", id), zap.Error(parseErr))
			continue
		}
		metas = append(metas, meta)
	}

	sortNewestFirst(metas)
	return metas, nil
}

// Delete removes the artifact and its metadata record. A missing artifact is
// a not-found failure.
func (c *Coordinator) Delete(ctx context.Context, id string) (err error) {
	defer c.observe("delete", &err)

	id, err = c.sanitizeID(id)
	if err != nil {
		return err
	}

	artifact := c.artifactPath(id)
	if _, statErr := os.Stat(artifact); statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return apperrors.NewNotFound("backup", id)
		}
		return apperrors.NewStore(statErr)
	}

	if removeErr := os.Remove(artifact); removeErr != nil {
		return apperrors.NewStore(removeErr)
	}
	// Metadata may already be gone for orphaned artifacts.
	_ = os.Remove(c.metaPath(id))

	c.log.Info("backup deleted", zap.String("id", id))
	return nil
}

// ExportTo stream-copies the live store image to w, closing the store around
// the copy so no mid-mutation bytes are read.
func (c *Coordinator) ExportTo(ctx context.Context, w io.Writer) (err error) {
	defer c.observe("export", &err)

	if w == nil {
		return apperrors.NewConfiguration("backup: destination is required")
	}

	if err := c.store.Close(); err != nil {
		return apperrors.NewStore(err)
	}
	defer func() {
		if reopenErr := c.store.Reopen(); reopenErr != nil {
			err = apperrors.NewStore(multierr.Append(err, reopenErr))
		}
	}()

	source, openErr := os.Open(c.store.Path())
	if openErr != nil {
		return apperrors.NewStore(openErr)
	}
	defer source.Close()

	if copyErr := copyStream(ctx, w, source); copyErr != nil {
		return classifyCopy(copyErr)
	}
	return nil
}

// ImportFrom replaces the live store image with bytes streamed from r,
// closing the store around the copy.
func (c *Coordinator) ImportFrom(ctx context.Context, r io.Reader) (err error) {
	defer c.observe("import", &err)

	if r == nil {
		return apperrors.NewConfiguration("backup: source is required")
	}

	if err := c.store.Close(); err != nil {
		return apperrors.NewStore(err)
	}
	defer func() {
		if reopenErr := c.store.Reopen(); reopenErr != nil {
			err = apperrors.NewStore(multierr.Append(err, reopenErr))
		}
	}()

	storePath := c.store.Path()
	for _, sidecar := range []string{storePath + "-wal", storePath + "-shm"} {
		_ = os.Remove(sidecar)
	}

	dest, createErr := os.OpenFile(storePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if createErr != nil {
		return apperrors.NewStore(createErr)
	}
	defer dest.Close()

	if copyErr := copyStream(ctx, dest, r); copyErr != nil {
		return classifyCopy(copyErr)
	}
	return nil
}

func (c *Coordinator) readMetadata(id string) (Metadata, error) {
	id, err := c.sanitizeID(id)
	if err != nil {
		return Metadata{}, err
	}

	if _, statErr := os.Stat(c.artifactPath(id)); statErr != nil {
		return Metadata{}, apperrors.NewNotFound("backup", id)
	}

	data, readErr := os.ReadFile(c.metaPath(id))
	if readErr != nil {
		return Metadata{}, apperrors.NewNotFound("backup metadata", id)
	}

	meta, parseErr := ParseMetadata(data)
	if parseErr != nil {
		return Metadata{}, apperrors.ErrIntegrity.WithInternal(parseErr)
	}
	return meta, nil
}

// sanitizeID rejects anything that is not a bare UUID token, keeping callers
// from escaping the backup directory.
func (c *Coordinator) sanitizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return "", apperrors.NewNotFound("backup", id)
	}
	return id, nil
}

func (c *Coordinator) artifactPath(id string) string {
	return filepath.Join(c.dir, id+artifactSuffix)
}

func (c *Coordinator) metaPath(id string) string {
	return filepath.Join(c.dir, id+metaSuffix)
}

func (c *Coordinator) observe(op string, err *error) {
	if err != nil && *err != nil {
		metrics.BackupOps.WithLabelValues(op, "failure").Inc()
		c.log.Warn("backup operation failed", zap.String("operation", op), zap.Error(*err))
		return
	}
	metrics.BackupOps.WithLabelValues(op, "success").Inc()
}

// copyFile copies src to dst in fixed-size chunks, returning the SHA-256 of
// the copied bytes and their count.
func copyFile(ctx context.Context, dst, src string) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", 0, err
	}

	hasher := sha256.New()
	size, copyErr := chunkedCopy(ctx, io.MultiWriter(out, hasher), in)
	closeErr := out.Close()
	if copyErr != nil {
		return "", 0, copyErr
	}
	if closeErr != nil {
		return "", 0, closeErr
	}

	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// checksumFile computes the SHA-256 of a file's current bytes.
func checksumFile(ctx context.Context, path string) (string, int64, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	hasher := sha256.New()
	size, err := chunkedCopy(ctx, hasher, in)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

func copyStream(ctx context.Context, dst io.Writer, src io.Reader) error {
	_, err := chunkedCopy(ctx, dst, src)
	return err
}

// chunkedCopy copies with a fixed buffer, checking cancellation between chunks.
func chunkedCopy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			wn, writeErr := dst.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, writeErr
			}
			if wn < n {
				return written, io.ErrShortWrite
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func classifyCopy(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ErrCancelled.WithInternal(err)
	}
	if errors.Is(err, os.ErrNotExist) {
		return apperrors.ErrNotFound.WithInternal(err)
	}
	return apperrors.NewStore(err)
}
