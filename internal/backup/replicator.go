package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/valenrosasc/chatbot/internal/database"
	"github.com/valenrosasc/chatbot/internal/events"
	"github.com/valenrosasc/chatbot/internal/metrics"
)

// Replicator mirrors the database file to a Remote after every change.
// Bursts of triggers while an upload is running collapse into one more upload.
type Replicator struct {
	db         database.Snapshotter
	remote     Remote
	remotePath string
	workDir    string
	pending    chan struct{}
	logger     *zerolog.Logger
}

func NewReplicator(db database.Snapshotter, remote Remote, remotePath, workDir string, logger *zerolog.Logger) *Replicator {
	l := logger.With().Str("component", "replicator").Logger()
	return &Replicator{
		db:         db,
		remote:     remote,
		remotePath: remotePath,
		workDir:    workDir,
		pending:    make(chan struct{}, 1),
		logger:     &l,
	}
}

// Trigger schedules a sync and returns immediately.
func (r *Replicator) Trigger() {
	select {
	case r.pending <- struct{}{}:
	default:
	}
}

// HandleEvent is an events.EventHandler that schedules a sync.
func (r *Replicator) HandleEvent(_ context.Context, event events.Event) error {
	r.logger.Debug().Str("event_id", event.ID).Str("type", event.Type).Msg("sync scheduled")
	r.Trigger()
	return nil
}

// Run processes triggers until ctx is cancelled.
func (r *Replicator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.pending:
			if err := r.Sync(ctx); err != nil {
				metrics.IncBackupUpload("error")
				r.logger.Error().Err(err).Msg("Remote backup failed")
				continue
			}
			metrics.IncBackupUpload("ok")
		}
	}
}

// Sync snapshots the database and uploads the snapshot.
func (r *Replicator) Sync(ctx context.Context) error {
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	snapshot := filepath.Join(r.workDir, "citas_upload.db")
	_ = os.Remove(snapshot)
	defer os.Remove(snapshot)

	if err := r.db.Snapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := r.remote.Upload(ctx, snapshot, r.remotePath); err != nil {
		return fmt.Errorf("upload %s: %w", r.remotePath, err)
	}

	r.logger.Info().Str("remote_path", r.remotePath).Msg("Database uploaded")
	return nil
}

// Restore replaces dbPath with the remote copy. A missing remote file is not
// an error: the bot starts with whatever is on disk.
func Restore(ctx context.Context, remote Remote, remotePath, dbPath string, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}

	tmp := dbPath + ".restore"
	err := remote.Download(ctx, remotePath, tmp)
	if errors.Is(err, ErrNotFound) {
		logger.Warn().Str("remote_path", remotePath).Msg("No remote backup found, starting with local database")
		return nil
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", dbPath+suffix, err)
		}
	}
	if err := os.Rename(tmp, dbPath); err != nil {
		return fmt.Errorf("replace %s: %w", dbPath, err)
	}

	logger.Info().Str("remote_path", remotePath).Str("db_path", dbPath).Msg("Database restored from remote backup")
	return nil
}
