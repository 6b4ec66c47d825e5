package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/sgl-project/ome-mtl/pkg/logging"
)

// HubClient downloads individual files from a Hugging Face compatible hub.
type HubClient struct {
	config *HubConfig
	logger logging.Interface
}

// NewHubClient creates a new Hub client with the provided configuration
func NewHubClient(config *HubConfig) (*HubClient, error) {
	if err := config.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid hub config: %w", err)
	}
	return &HubClient{
		config: config,
		logger: config.Logger,
	}, nil
}

// GetConfig returns the client configuration
func (c *HubClient) GetConfig() *HubConfig {
	return c.config
}

// Download fetches filename from repoID into localDir and returns the local path.
func (c *HubClient) Download(ctx context.Context, repoID, filename, localDir string, opts ...DownloadOption) (string, error) {
	if repoID == "" {
		return "", errors.New("repo_id cannot be empty")
	}
	if filename == "" {
		return "", errors.New("filename cannot be empty")
	}
	if localDir == "" {
		return "", errors.New("local_dir cannot be empty")
	}

	dl := &DownloadConfig{
		RepoID:   repoID,
		Filename: filename,
		Revision: DefaultRevision,
		LocalDir: localDir,
	}
	for _, opt := range opts {
		if err := opt(dl); err != nil {
			return "", fmt.Errorf("failed to apply download option: %w", err)
		}
	}

	result, err := c.download(ctx, dl)
	if err != nil {
		c.config.CreateProgressManager().LogError("download", repoID, err)
		return "", err
	}
	return result, nil
}

// DownloadFiles fetches every required file and whichever optional files the
// repository has. A missing optional file is skipped; any other error aborts.
func (c *HubClient) DownloadFiles(ctx context.Context, repoID, localDir string, required, optional []string, opts ...DownloadOption) ([]string, error) {
	paths := make([]string, 0, len(required)+len(optional))
	for _, name := range required {
		p, err := c.Download(ctx, repoID, name, localDir, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to download required file %s: %w", name, err)
		}
		paths = append(paths, p)
	}
	for _, name := range optional {
		p, err := c.Download(ctx, repoID, name, localDir, opts...)
		if err != nil {
			if IsNotFound(err) {
				c.logger.WithField("repo_id", repoID).WithField("filename", name).Debug("Optional file not present")
				continue
			}
			var offline *OfflineModeIsEnabledError
			if errors.As(err, &offline) {
				continue
			}
			return nil, fmt.Errorf("failed to download optional file %s: %w", name, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
