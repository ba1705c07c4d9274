package artifact

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"go.uber.org/zap"
)

var httpClient = &http.Client{
	Timeout: 0,
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: 60 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   60 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		IdleConnTimeout:       60 * time.Second,
	},
}

func (f *Fetcher) downloadWithProgress(ctx context.Context, url, destPath string) error {
	tmpPath := destPath + ".tmp"

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = f.MaxElapsed
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second

	return backoff.Retry(func() error {
		err := f.downloadWithResume(ctx, url, destPath, tmpPath)
		if err != nil {
			f.logger.Warn("artifact download attempt failed", zap.String("url", url), zap.Error(err))
		}
		return err
	}, backoff.WithContext(b, ctx))
}

func (f *Fetcher) downloadWithResume(ctx context.Context, url, destPath, tmpPath string) error {
	var initialSize int64
	if info, err := os.Stat(tmpPath); err == nil {
		initialSize = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if initialSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", initialSize))
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var totalSize int64
	switch {
	case initialSize > 0 && resp.StatusCode == http.StatusPartialContent:
		totalSize = initialSize + resp.ContentLength
	case resp.StatusCode == http.StatusOK:
		if initialSize > 0 {
			f.logger.Warn("server does not support resume, restarting download")
			initialSize = 0
		}
		totalSize = resp.ContentLength
	case initialSize > 0 && resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		f.logger.Warn("partial download cannot be resumed, restarting", zap.Int64("offset", initialSize))
		if err := os.Remove(tmpPath); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to remove partial download: %w", err))
		}
		return fmt.Errorf("range from %d not satisfiable", initialSize)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent(fmt.Errorf("download failed with status %d", resp.StatusCode))
	default:
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if initialSize > 0 {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	out, err := os.OpenFile(tmpPath, flag, 0644)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to open file: %w", err))
	}
	defer out.Close()

	progress := mpb.NewWithContext(ctx,
		mpb.WithOutput(f.progress),
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)

	bar := progress.AddBar(totalSize,
		mpb.PrependDecorators(
			decor.Name(filepath.Base(destPath), decor.WC{W: 40, C: decor.DidentRight}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 90),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.UnitKiB, "% .2f", 60),
		),
	)
	if initialSize > 0 {
		bar.SetCurrent(initialSize)
	}

	written, err := io.Copy(out, bar.ProxyReader(resp.Body))
	if err != nil {
		bar.Abort(false)
		progress.Wait()
		return fmt.Errorf("read failed: %w", err)
	}
	bar.SetTotal(initialSize+written, true)
	progress.Wait()

	downloaded := initialSize + written
	if totalSize > 0 && downloaded != totalSize {
		return fmt.Errorf("download size mismatch: expected %d, got %d", totalSize, downloaded)
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := verifyFile(tmpPath); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to verify file: %w", err))
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to move file: %w", err))
	}

	return nil
}
