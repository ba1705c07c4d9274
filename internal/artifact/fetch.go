// Package artifact fetches model artifacts from local paths, HTTP(S) URLs or
// S3 buckets into the models directory before they are loaded.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cozy-creator/lesion-server/internal/config"
	"github.com/cozy-creator/lesion-server/internal/utils/hashutil"
	"github.com/cozy-creator/lesion-server/internal/utils/pathutil"
	"go.uber.org/zap"
)

var ErrEmptyArtifact = errors.New("artifact is empty")

type Fetcher struct {
	logger   *zap.Logger
	s3       *config.S3Config
	progress io.Writer

	// MaxElapsed bounds the total retry time of one HTTP download.
	MaxElapsed time.Duration
}

type Option func(*Fetcher)

func WithProgressOutput(w io.Writer) Option {
	return func(f *Fetcher) {
		f.progress = w
	}
}

func WithS3Config(cfg *config.S3Config) Option {
	return func(f *Fetcher) {
		f.s3 = cfg
	}
}

func NewFetcher(logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Fetcher{
		logger:     logger,
		progress:   os.Stderr,
		MaxElapsed: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch materializes source at dest. An existing non-empty dest is kept
// unless force is set.
func (f *Fetcher) Fetch(ctx context.Context, source, dest string, force bool) error {
	if source == "" {
		return errors.New("no artifact source configured")
	}

	dest, err := pathutil.ExpandPath(dest)
	if err != nil {
		return err
	}
	if !force && verifyFile(dest) == nil {
		f.logger.Info("artifact already present", zap.String("path", dest))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	f.logger.Info("fetching artifact",
		zap.String("source", source),
		zap.String("type", config.SourceType(source)),
		zap.String("dest", dest),
	)

	switch config.SourceType(source) {
	case config.SourceHTTP:
		err = f.downloadWithProgress(ctx, source, dest)
	case config.SourceS3:
		err = f.downloadS3(ctx, source, dest)
	default:
		err = f.copyLocal(strings.TrimPrefix(source, "file:"), dest)
	}
	if err != nil {
		return err
	}

	if err := verifyFile(dest); err != nil {
		return err
	}

	f.logger.Info("artifact ready", zap.String("path", dest), zap.String("digest", fileDigest(dest)))
	return nil
}

func (f *Fetcher) copyLocal(source, dest string) error {
	source, err := pathutil.ExpandPath(source)
	if err != nil {
		return err
	}
	if err := verifyFile(source); err != nil {
		return err
	}

	if abs, _ := filepath.Abs(source); abs != "" {
		if target, _ := filepath.Abs(dest); abs == target {
			return nil
		}
	}

	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	return writeAtomic(dest, in)
}

// writeAtomic streams r into dest through a temporary file.
func writeAtomic(dest string, r io.Reader) error {
	tmpPath := dest + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dest)
}

func verifyFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyArtifact, path)
	}

	return nil
}

func fileDigest(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return hashutil.Blake3Hash(data)
}
