package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Stats summarizes an upload run.
type Stats struct {
	FilesUploaded    int
	FilesSkipped     int
	FilesErrored     int
	SessionsInserted int
	SessionsSkipped  int
	SetsReceived     int
}

// Uploader sends export files, skipping content already uploaded for the user.
type Uploader struct {
	client *Client
	state  *StateDB
	userID int
	dryRun bool
	log    *slog.Logger
}

// New creates an Uploader. state may be nil, which disables deduplication.
func New(client *Client, state *StateDB, userID int, dryRun bool, log *slog.Logger) *Uploader {
	return &Uploader{client: client, state: state, userID: userID, dryRun: dryRun, log: log}
}

// Run uploads each file in order. A file that fails is counted and logged;
// the run continues. The returned error is set when any file failed.
func (u *Uploader) Run(ctx context.Context, paths []string) (*Stats, error) {
	stats := &Stats{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := u.uploadFile(ctx, path, stats); err != nil {
			u.log.Error("upload failed", "path", path, "error", err)
			stats.FilesErrored++
		}
	}
	if stats.FilesErrored > 0 {
		return stats, fmt.Errorf("%d of %d files failed", stats.FilesErrored, len(paths))
	}
	return stats, nil
}

func (u *Uploader) uploadFile(ctx context.Context, path string, stats *Stats) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading export: %w", err)
	}
	hash := Hash(data)

	if u.state != nil {
		done, err := u.state.IsUploaded(u.userID, hash)
		if err != nil {
			return err
		}
		if done {
			u.log.Info("already uploaded, skipping", "path", path)
			stats.FilesSkipped++
			return nil
		}
	}
	if u.dryRun {
		u.log.Info("dry run: would upload", "path", path, "bytes", len(data))
		stats.FilesSkipped++
		return nil
	}

	res, err := u.client.UploadAlpha(ctx, data)
	if err != nil {
		return err
	}
	stats.FilesUploaded++
	stats.SessionsInserted += res.SessionsInserted
	stats.SessionsSkipped += res.SessionsSkipped
	stats.SetsReceived += res.SetsReceived
	u.log.Info("uploaded", "path", path, "inserted", res.SessionsInserted, "skipped", res.SessionsSkipped)

	if u.state != nil {
		return u.state.MarkUploaded(u.userID, hash, path, res.SessionsReceived)
	}
	return nil
}
