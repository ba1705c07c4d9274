package batch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cozy-creator/lesion-server/internal/predictor"
	"github.com/gammazero/workerpool"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}

type Item struct {
	Path   string            `json:"path"`
	Result *predictor.Result `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Runner classifies files on a fixed pool of workers sharing one predictor.
type Runner struct {
	wp        *workerpool.WorkerPool
	predictor *predictor.Predictor
	progress  io.Writer
}

func NewRunner(p *predictor.Predictor, maxWorkers int, progress io.Writer) *Runner {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	return &Runner{
		wp:        workerpool.New(maxWorkers),
		predictor: p,
		progress:  progress,
	}
}

func (r *Runner) Stop() {
	r.wp.StopWait()
}

// Run predicts every path and returns items in input order. Per-file
// failures are recorded on the item; Run itself only fails on cancellation.
func (r *Runner) Run(ctx context.Context, paths []string) ([]Item, error) {
	items := make([]Item, len(paths))
	if len(paths) == 0 {
		return items, nil
	}

	var progress *mpb.Progress
	var bar *mpb.Bar
	if r.progress != nil {
		progress = mpb.NewWithContext(ctx, mpb.WithOutput(r.progress), mpb.WithWidth(60))
		bar = progress.AddBar(int64(len(paths)),
			mpb.PrependDecorators(
				decor.Name("predict", decor.WC{W: 8, C: decor.DidentRight}),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
	}

	done := make(chan struct{}, len(paths))
	for i, path := range paths {
		r.wp.Submit(func() {
			defer func() { done <- struct{}{} }()

			items[i] = r.predict(ctx, path)
			if bar != nil {
				bar.Increment()
			}
		})
	}

	for range paths {
		select {
		case <-done:
		case <-ctx.Done():
			if bar != nil {
				bar.Abort(false)
				progress.Wait()
			}
			return nil, ctx.Err()
		}
	}

	if progress != nil {
		progress.Wait()
	}

	return items, nil
}

func (r *Runner) predict(ctx context.Context, path string) Item {
	item := Item{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		item.Error = fmt.Sprintf("failed to read file: %v", err)
		return item
	}

	result, err := r.predictor.Predict(ctx, data)
	if err != nil {
		item.Error = err.Error()
		return item
	}

	item.Result = result
	return item
}

// Collect expands directories into the image files they contain. Files named
// explicitly are kept whatever their extension.
func Collect(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isImage(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	}

	return files, nil
}

func isImage(path string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(path)))
}
