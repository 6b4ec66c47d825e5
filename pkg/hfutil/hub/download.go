package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DownloadConfig describes a single file download.
type DownloadConfig struct {
	RepoID        string
	Filename      string
	Revision      string
	Subfolder     string
	LocalDir      string
	ForceDownload bool
}

// DownloadOption represents an option for download operations
type DownloadOption func(*DownloadConfig) error

// WithRevision sets the revision for the download
func WithRevision(revision string) DownloadOption {
	return func(config *DownloadConfig) error {
		if revision == "" {
			return errors.New("revision cannot be empty")
		}
		config.Revision = revision
		return nil
	}
}

// WithSubfolder sets the subfolder for the download
func WithSubfolder(subfolder string) DownloadOption {
	return func(config *DownloadConfig) error {
		config.Subfolder = subfolder
		return nil
	}
}

// WithForceDownload enables force download mode
func WithForceDownload(force bool) DownloadOption {
	return func(config *DownloadConfig) error {
		config.ForceDownload = force
		return nil
	}
}

// FileMetadata is what a HEAD request tells us about a file.
type FileMetadata struct {
	CommitHash string
	Etag       string
	Size       int64
	Location   string
}

// HfHubURL constructs the resolve URL of a file.
func HfHubURL(endpoint, repoID, revision, filename string) string {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if revision == "" {
		revision = DefaultRevision
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s",
		strings.TrimRight(endpoint, "/"), repoID, url.PathEscape(revision), escapeFilePath(filename))
}

func escapeFilePath(filename string) string {
	parts := strings.Split(filename, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// NormalizeEtag strips the weak prefix and quotes.
func NormalizeEtag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

func (c *HubClient) headers() http.Header {
	h := http.Header{}
	if c.config.UserAgent != "" {
		h.Set(UserAgentHeader, c.config.UserAgent)
	}
	if c.config.Token != "" {
		h.Set(AuthorizationHeader, "Bearer "+c.config.Token)
	}
	return h
}

// doWithRetry issues the request built by newReq, retrying transport errors
// and retryable statuses with exponential backoff.
func (c *HubClient) doWithRetry(ctx context.Context, client *http.Client, newReq func() (*http.Request, error), dl *DownloadConfig, filename string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(exponentialBackoff(attempt, c.config.RetryInterval)):
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.WithError(err).WithField("attempt", attempt+1).Warn("Hub request failed")
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		_ = resp.Body.Close()
		lastErr = handleHTTPError(resp, dl.RepoID, dl.Revision, filename)
		if !retryableHTTPError(nil, resp.StatusCode) {
			return nil, lastErr
		}
		c.logger.WithField("status", resp.StatusCode).WithField("attempt", attempt+1).Warn("Hub request will be retried")
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *HubClient) getMetadata(ctx context.Context, dl *DownloadConfig, filename string) (*FileMetadata, error) {
	fileURL := HfHubURL(c.config.Endpoint, dl.RepoID, dl.Revision, filename)
	client := &http.Client{Timeout: c.config.EtagTimeout}

	resp, err := c.doWithRetry(ctx, client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, fileURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create HEAD request: %w", err)
		}
		req.Header = c.headers()
		req.Header.Set("Accept-Encoding", "identity")
		return req, nil
	}, dl, filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	metadata := &FileMetadata{
		CommitHash: resp.Header.Get(HuggingfaceHeaderXRepoCommit),
		Etag:       NormalizeEtag(resp.Header.Get(HuggingfaceHeaderXLinkedEtag)),
		Location:   fileURL,
	}
	if metadata.Etag == "" {
		metadata.Etag = NormalizeEtag(resp.Header.Get("ETag"))
	}
	if size := resp.Header.Get(HuggingfaceHeaderXLinkedSize); size != "" {
		metadata.Size, _ = strconv.ParseInt(size, 10, 64)
	}
	if metadata.Size == 0 {
		metadata.Size = resp.ContentLength
	}
	if metadata.Size < 0 {
		metadata.Size = 0
	}
	if resp.Request != nil && resp.Request.URL != nil {
		metadata.Location = resp.Request.URL.String()
	}
	return metadata, nil
}

// download fetches one file into dl.LocalDir via a ".incomplete" file and a rename.
func (c *HubClient) download(ctx context.Context, dl *DownloadConfig) (string, error) {
	filename := dl.Filename
	if dl.Subfolder != "" && dl.Subfolder != "." {
		filename = path.Join(dl.Subfolder, filename)
	}
	destPath := filepath.Join(dl.LocalDir, filepath.FromSlash(dl.Filename))

	if c.config.offline() {
		if fileExists(destPath) {
			return destPath, nil
		}
		return "", NewOfflineModeIsEnabledError(
			fmt.Sprintf("cannot fetch '%s' from '%s' while offline and no local copy exists", dl.Filename, dl.RepoID))
	}

	metadata, err := c.getMetadata(ctx, dl, filename)
	if err != nil {
		return "", err
	}
	if !dl.ForceDownload && metadata.Size > 0 {
		if info, err := os.Stat(destPath); err == nil && info.Size() == metadata.Size {
			return destPath, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	start := time.Now()
	progress := c.config.CreateProgressManager()
	progress.LogDownloadStart(dl.RepoID, dl.Filename, metadata.Size)

	incompletePath := destPath + incompleteSuffix
	written, err := c.httpGet(ctx, dl, filename, metadata, incompletePath, progress)
	if err != nil {
		_ = os.Remove(incompletePath)
		return "", err
	}
	if metadata.Size > 0 && written != metadata.Size {
		_ = os.Remove(incompletePath)
		return "", NewFileMetadataError(dl.Filename,
			fmt.Sprintf("downloaded %d bytes, expected %d", written, metadata.Size))
	}
	if err := os.Rename(incompletePath, destPath); err != nil {
		return "", fmt.Errorf("failed to move file to final destination: %w", err)
	}

	progress.LogDownloadComplete(dl.RepoID, dl.Filename, time.Since(start), written)
	return destPath, nil
}

func (c *HubClient) httpGet(ctx context.Context, dl *DownloadConfig, filename string, metadata *FileMetadata, target string, progress *ProgressManager) (int64, error) {
	client := &http.Client{Timeout: c.config.DownloadTimeout}
	resp, err := c.doWithRetry(ctx, client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadata.Location, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create GET request: %w", err)
		}
		req.Header = c.headers()
		return req, nil
	}, dl, filename)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	file, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var dst io.Writer = file
	if bar := progress.CreateFileProgressBar(dl.Filename, metadata.Size); bar != nil {
		defer func() { _ = bar.Finish() }()
		dst = io.MultiWriter(file, bar)
	}

	written, err := copyWithContext(ctx, dst, resp.Body)
	if err != nil {
		return written, fmt.Errorf("failed to write %s: %w", dl.Filename, err)
	}
	return written, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
		return cr.r.Read(p)
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, &contextReader{ctx: ctx, r: src})
}

// retryableHTTPError checks if an HTTP error is retryable
func retryableHTTPError(err error, statusCode int) bool {
	if err != nil {
		return true
	}
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout
}

// exponentialBackoff doubles baseDelay per attempt, capped at 30s.
func exponentialBackoff(attempt int, baseDelay time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(math.Min(float64(baseDelay)*math.Pow(2, float64(attempt-1)), float64(maxBackoff)))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
