package hub

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/sgl-project/ome-mtl/pkg/logging"
)

// ProgressManager manages progress reporting for downloads
type ProgressManager struct {
	logger             logging.Interface
	enableProgressBars bool
	enableDetailedLogs bool
	out                io.Writer
}

// NewProgressManager creates a new progress manager
func NewProgressManager(logger logging.Interface, enableBars, enableLogs bool) *ProgressManager {
	return &ProgressManager{
		logger:             logger,
		enableProgressBars: enableBars,
		enableDetailedLogs: enableLogs,
		out:                os.Stderr,
	}
}

// CreateFileProgressBar returns nil when progress bars are disabled.
func (pm *ProgressManager) CreateFileProgressBar(filename string, size int64) *progressbar.ProgressBar {
	if !pm.enableProgressBars {
		return nil
	}

	description := filename
	if len(description) > 40 {
		description = description[:37] + "..."
	}

	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(pm.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(pm.out)
		}),
	)
}

// LogDownloadStart logs the start of a download operation
func (pm *ProgressManager) LogDownloadStart(repoID, filename string, size int64) {
	if pm.logger == nil {
		return
	}
	entry := pm.logger.WithField("repo_id", repoID).WithField("filename", filename)
	if size > 0 {
		entry = entry.WithField("size", formatSize(size))
	}
	if pm.enableDetailedLogs {
		entry.Info("Starting download")
		return
	}
	entry.Debug("Starting download")
}

// LogDownloadComplete logs a finished download
func (pm *ProgressManager) LogDownloadComplete(repoID, filename string, duration time.Duration, size int64) {
	if pm.logger == nil {
		return
	}
	pm.logger.
		WithField("repo_id", repoID).
		WithField("filename", filename).
		WithField("size", formatSize(size)).
		WithField("duration", duration.Round(time.Millisecond).String()).
		Info("Download completed")
}

// LogError logs a failed operation
func (pm *ProgressManager) LogError(operation, repoID string, err error) {
	if pm.logger == nil {
		return
	}
	pm.logger.
		WithField("operation", operation).
		WithField("repo_id", repoID).
		WithError(err).
		Error("Hub operation failed")
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
