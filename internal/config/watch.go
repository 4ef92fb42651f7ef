package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Reloader hands freshly edited config files to a running bot.
// Callers only take the content sections (office text, menu keywords,
// holidays) from a reloaded config; connection settings need a restart.
type Reloader struct {
	path   string
	apply  func(*Config)
	logger *zerolog.Logger
	digest [sha256.Size]byte
}

// NewReloader remembers the current contents of path so that only later
// edits are applied.
func NewReloader(path string, apply func(*Config), logger *zerolog.Logger) (*Reloader, error) {
	if path == "" {
		path = "configs/config.yaml"
	}
	sum, err := fileDigest(path)
	if err != nil {
		return nil, fmt.Errorf("watch config %s: %w", path, err)
	}
	return &Reloader{path: path, apply: apply, logger: logger, digest: sum}, nil
}

// Check compares the file with the last version seen and applies it when
// it changed and validates. A broken edit is reported once, not on every call.
func (r *Reloader) Check() (bool, error) {
	sum, err := fileDigest(r.path)
	if err != nil {
		return false, err
	}
	if sum == r.digest {
		return false, nil
	}
	r.digest = sum

	cfg, err := Load(r.path)
	if err != nil {
		return false, err
	}
	if err := cfg.Validate(); err != nil {
		return false, fmt.Errorf("invalid config %s: %w", r.path, err)
	}
	r.apply(cfg)
	return true, nil
}

// Run calls Check every interval until ctx is done.
func (r *Reloader) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			applied, err := r.Check()
			if err != nil {
				r.logger.Warn().Err(err).Str("path", r.path).Msg("config reload skipped")
				continue
			}
			if applied {
				r.logger.Info().Str("path", r.path).Msg("config reloaded")
			}
		}
	}
}

func fileDigest(path string) ([sha256.Size]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}
