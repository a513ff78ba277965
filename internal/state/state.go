// Package state persists engine snapshots as zstd-compressed JSON files.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/takeshi-yoshida/Naoru/internal/healing"
)

// Config controls snapshot persistence.
type Config struct {
	Path         string        `yaml:"path"`
	SaveInterval time.Duration `yaml:"save_interval"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "naoru_state.json.zst"
	}
	if c.SaveInterval <= 0 {
		c.SaveInterval = 5 * time.Minute
	}
}

// Persister saves and loads engine snapshots.
type Persister struct {
	logger  *zap.Logger
	config  Config
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewPersister creates a persister with reusable compressors.
func NewPersister(logger *zap.Logger, config Config) (*Persister, error) {
	config.ApplyDefaults()

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Persister{
		logger:  logger,
		config:  config,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Close releases the compressor resources.
func (p *Persister) Close() {
	p.encoder.Close()
	p.decoder.Close()
}

// Save writes the snapshot atomically: encode, compress, write to a temp
// file in the target directory, then rename over the destination.
func (p *Persister) Save(snap *healing.EngineSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	compressed := p.encoder.EncodeAll(raw, nil)

	dir := filepath.Dir(p.config.Path)
	tmp, err := os.CreateTemp(dir, ".naoru_state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	if err := os.Rename(tmpName, p.config.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	p.logger.Debug("Engine snapshot saved",
		zap.String("path", p.config.Path),
		zap.Int("raw_bytes", len(raw)),
		zap.Int("compressed_bytes", len(compressed)),
	)
	return nil
}

// Load reads and validates the snapshot file. A missing file is not an
// error; it returns (nil, nil) so callers can start fresh.
func (p *Persister) Load() (*healing.EngineSnapshot, error) {
	compressed, err := os.ReadFile(p.config.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	raw, err := p.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}

	var snap healing.EngineSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != healing.EngineSnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return &snap, nil
}
