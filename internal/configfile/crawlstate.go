package configfile

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/localsearchd/localsearchd/internal/errors"
)

// CrawlMode records which mode the last completed crawl ran in, per §6.1.
type CrawlMode string

const (
	CrawlModeFull        CrawlMode = "full"
	CrawlModeIncremental CrawlMode = "incremental"
)

// CrawlState is the small record the Orchestrator consults to decide
// whether its next crawl can run incrementally (§4.8, §8 scenario 5).
type CrawlState struct {
	LastCompletionTimeMs int64     `yaml:"lastCompletionTimeMs"`
	LastDocumentCount    int       `yaml:"lastDocumentCount"`
	LastCrawlMode        CrawlMode `yaml:"lastCrawlMode"`
}

// LoadCrawlState reads crawl-state.yaml at path. A missing file is not an
// error — it returns the zero value, which the Orchestrator reads as "no
// prior crawl, do a full crawl."
func LoadCrawlState(path string) (CrawlState, error) {
	var state CrawlState

	lock := flock.New(lockPath(path))
	if err := lock.Lock(); err != nil {
		return state, errors.ConfigError("acquire crawl state lock", err).WithDetail("path", path)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, errors.IOError(path, err)
	}

	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, errors.ConfigError("parse crawl state file", err).WithDetail("path", path)
	}
	return state, nil
}

// SaveCrawlState writes state to path, creating parent directories as
// needed, guarded by the same per-file lock convention as Save.
func SaveCrawlState(path string, state CrawlState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IOError(path, err)
	}

	lock := flock.New(lockPath(path))
	if err := lock.Lock(); err != nil {
		return errors.ConfigError("acquire crawl state lock", err).WithDetail("path", path)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := yaml.Marshal(&state)
	if err != nil {
		return errors.ConfigError("marshal crawl state", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IOError(path, err)
	}
	return nil
}
