// Package filesystem wraps source volume operations with retry logic for
// stale NFS file handles. Source media typically lives on network mounts,
// and a re-exported or remounted share can briefly return ESTALE for paths
// that are otherwise fine.
package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"media-optimizer/internal/logging"
	"media-optimizer/internal/metrics"
)

// RetryConfig controls retry behavior for source volume operations.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns retry settings tuned for NFS mounts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isStaleHandle reports whether err is an NFS stale file handle error.
func isStaleHandle(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}
	return false
}

// withRetry runs op, retrying with exponential backoff while it returns a
// stale file handle error. Any other error is returned immediately.
func withRetry(operation, path string, config RetryConfig, op func() error) error {
	backoff := config.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d for %s", operation, attempt, path)
				metrics.FilesystemRetriesTotal.WithLabelValues(operation, "success").Inc()
			}
			return nil
		}

		if !isStaleHandle(err) {
			return err
		}

		lastErr = err
		metrics.FilesystemStaleErrors.WithLabelValues(operation).Inc()

		if attempt < config.MaxRetries {
			logging.Debug("%s stale file handle for %s, retrying in %v (attempt %d/%d)",
				operation, path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("%s failed after %d retries for %s: %v", operation, config.MaxRetries, path, lastErr)
	metrics.FilesystemRetriesTotal.WithLabelValues(operation, "failure").Inc()
	return lastErr
}

// Stat performs os.Stat with retries on stale NFS file handles.
func Stat(path string, config RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := withRetry("stat", path, config, func() error {
		var statErr error
		info, statErr = os.Stat(path)
		return statErr
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Open performs os.Open with retries on stale NFS file handles.
func Open(path string, config RetryConfig) (*os.File, error) {
	var file *os.File
	err := withRetry("open", path, config, func() error {
		var openErr error
		file, openErr = os.Open(path)
		return openErr
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}
