package feed

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/workpack/internal/workload"
)

// Options 描述下载源及重试策略。
type Options struct {
	// Source 为 http(s) flat-container 根地址或本地目录。
	Source         string
	TempDir        string
	Client         *http.Client
	MaxRetries     int
	InitialBackoff time.Duration
	Logger         *logrus.Logger
}

// Feed 实现 workload.Downloader。
type Feed struct {
	source         string
	remote         bool
	tempDir        string
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	logger         *logrus.Logger
	sleep          func(time.Duration)
}

var _ workload.Downloader = (*Feed)(nil)

// New 校验 Options 并构建 Feed。
func New(opts Options) (*Feed, error) {
	source := strings.TrimRight(strings.TrimSpace(opts.Source), "/")
	if source == "" {
		return nil, errors.New("feed source is required")
	}
	if opts.TempDir == "" {
		return nil, errors.New("temp dir is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	lower := strings.ToLower(source)
	remote := strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
	client := opts.Client
	if client == nil {
		client = NewHTTPClient(0)
	}
	backoff := opts.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Feed{
		source:         source,
		remote:         remote,
		tempDir:        opts.TempDir,
		client:         client,
		maxRetries:     maxRetries,
		initialBackoff: backoff,
		logger:         opts.Logger,
		sleep:          time.Sleep,
	}, nil
}

// PackageFileName 返回 flat-container 中的 nupkg 文件名。
func PackageFileName(id, version string) string {
	return strings.ToLower(id) + "." + strings.ToLower(version) + ".nupkg"
}

// PackageURL 按 NuGet v3 flat-container 约定拼接下载地址。
func PackageURL(base, id, version string) string {
	lowerID := strings.ToLower(id)
	lowerVersion := strings.ToLower(version)
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(base, "/"), lowerID, lowerVersion, PackageFileName(id, version))
}

// DownloadPackage 下载归档到临时目录并返回其路径。失败时不会留下部分文件。
func (f *Feed) DownloadPackage(id, version string) (string, error) {
	if err := os.MkdirAll(f.tempDir, 0o755); err != nil {
		return "", downloadFailure("create temp dir", f.tempDir, err)
	}
	target := filepath.Join(f.tempDir, uuid.NewString()+"-"+PackageFileName(id, version))

	started := time.Now()
	var err error
	if f.remote {
		err = f.fetchRemote(PackageURL(f.source, id, version), target)
	} else {
		err = f.copyLocal(id, version, target)
	}
	fields := logrus.Fields{
		"action":       "download",
		"pack_id":      id,
		"pack_version": version,
		"feed":         f.source,
		"elapsed_ms":   time.Since(started).Milliseconds(),
	}
	if err != nil {
		os.Remove(target)
		f.logger.WithError(err).WithFields(fields).Warn("pack_download_failed")
		return "", err
	}
	f.logger.WithFields(fields).Debug("pack_downloaded")
	return target, nil
}

// fetchRemote 对网络错误、429 与 5xx 做指数退避重试，其余状态码立即失败。
func (f *Feed) fetchRemote(url, target string) error {
	backoff := f.initialBackoff
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			f.logger.WithFields(logrus.Fields{
				"action":  "download",
				"url":     url,
				"attempt": attempt,
				"backoff": backoff.String(),
			}).Info("pack_download_retry")
			f.sleep(backoff)
			backoff *= 2
		}
		retry, err := f.fetchOnce(url, target)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func (f *Feed) fetchOnce(url, target string) (bool, error) {
	resp, err := f.client.Get(url)
	if err != nil {
		return true, downloadFailure("request", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		io.Copy(io.Discard, resp.Body)
		return retry, downloadFailure("request", url, fmt.Errorf("unexpected status %s", resp.Status))
	}
	if err := writeFile(target, resp.Body); err != nil {
		return true, downloadFailure("save", url, err)
	}
	return false, nil
}

// copyLocal 支持分层 (<id>/<version>/<file>) 与扁平 (<file>) 两种本地目录布局。
func (f *Feed) copyLocal(id, version, target string) error {
	name := PackageFileName(id, version)
	candidates := []string{
		filepath.Join(f.source, strings.ToLower(id), strings.ToLower(version), name),
		filepath.Join(f.source, name),
	}
	for _, candidate := range candidates {
		src, err := os.Open(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return downloadFailure("open", candidate, err)
		}
		err = writeFile(target, src)
		src.Close()
		if err != nil {
			return downloadFailure("copy", candidate, err)
		}
		return nil
	}
	return downloadFailure("locate", f.source, fmt.Errorf("package %s not found", name))
}

func writeFile(target string, r io.Reader) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func downloadFailure(op, target string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, target, workload.ErrDownloadFailure, err)
}
