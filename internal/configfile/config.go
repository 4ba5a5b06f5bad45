// Package configfile persists and loads the crawler's configuration
// surface (§6.1, §6.4): the directory set, pattern lists, and the tuning
// knobs enumerated in the configuration-surface table, plus the small
// crawl-state file the Orchestrator uses to pick its next crawl mode.
package configfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/localsearchd/localsearchd/internal/errors"
)

const directoriesEnvVar = "LUCENE_CRAWLER_DIRECTORIES"

// Config is the full crawler configuration surface. YAML on disk nests it
// under lucene.crawler, mirroring the directories key shown in §6.1 and
// generalizing it to the rest of the §6.4 table.
type Config struct {
	Directories []string `yaml:"directories"`
	Include     []string `yaml:"include"`
	Exclude     []string `yaml:"exclude"`

	ThreadPoolSize int `yaml:"threadPoolSize"`
	// BatchSize is a legacy hint, unused when commit-timer mode is active.
	// Kept for backward config compatibility.
	BatchSize      int `yaml:"batchSize"`
	BatchTimeoutMs int `yaml:"batchTimeoutMs"`

	WatchEnabled        bool `yaml:"watchEnabled"`
	WatchPollIntervalMs int  `yaml:"watchPollIntervalMs"`
	WatchDebounceMs     int  `yaml:"watchDebounceMs"`

	BulkIndexThreshold       int `yaml:"bulkIndexThreshold"`
	SlowNrtRefreshIntervalMs int `yaml:"slowNrtRefreshIntervalMs"`

	MaxContentLength int  `yaml:"maxContentLength"`
	ExtractMetadata  bool `yaml:"extractMetadata"`
	DetectLanguage   bool `yaml:"detectLanguage"`

	CrawlOnStartup                 bool `yaml:"crawlOnStartup"`
	ProgressNotificationIntervalMs int  `yaml:"progressNotificationIntervalMs"`
	// ProgressNotificationFiles is effectively unused, replaced by
	// timer-based progress emission. Kept as a no-op for backward
	// config compatibility.
	ProgressNotificationFiles int `yaml:"progressNotificationFiles"`

	ReconciliationEnabled bool `yaml:"reconciliationEnabled"`

	MaxPassages          int `yaml:"maxPassages"`
	MaxPassageCharLength int `yaml:"maxPassageCharLength"`
}

type fileShape struct {
	Lucene struct {
		Crawler Config `yaml:"crawler"`
	} `yaml:"lucene"`
}

// Default returns the hardcoded baseline configuration.
func Default() Config {
	return Config{
		ThreadPoolSize:                 4,
		BatchTimeoutMs:                 5000,
		WatchEnabled:                   true,
		WatchPollIntervalMs:            5000,
		WatchDebounceMs:                500,
		BulkIndexThreshold:             1000,
		SlowNrtRefreshIntervalMs:       30000,
		MaxContentLength:               1_000_000,
		ExtractMetadata:                true,
		DetectLanguage:                 true,
		CrawlOnStartup:                 true,
		ProgressNotificationIntervalMs: 2000,
		ReconciliationEnabled:          true,
		MaxPassages:                    5,
		MaxPassageCharLength:           200,
	}
}

// Load reads config.yaml at path, falling back to defaults for any field
// absent from the file. The LUCENE_CRAWLER_DIRECTORIES environment
// variable, when non-empty, overrides the file's directories list — per
// §6.1, writes still occur but the override is not re-read from disk.
func Load(path string) (Config, error) {
	cfg := Default()

	lock := flock.New(lockPath(path))
	if err := lock.Lock(); err != nil {
		return cfg, errors.ConfigError("acquire config file lock", err).WithDetail("path", path)
	}
	defer func() { _ = lock.Unlock() }()

	if data, err := os.ReadFile(path); err == nil {
		var shape fileShape
		// Pre-fill with the defaults so keys absent from the file (notably
		// the bool ones, whose zero value is meaningful) keep them.
		shape.Lucene.Crawler = cfg
		if err := yaml.Unmarshal(data, &shape); err != nil {
			return cfg, errors.ConfigError("parse config file", err).WithDetail("path", path)
		}
		mergeNonZero(&cfg, &shape.Lucene.Crawler)
	} else if !os.IsNotExist(err) {
		return cfg, errors.IOError(path, err)
	}

	if envDirs := os.Getenv(directoriesEnvVar); envDirs != "" {
		cfg.Directories = splitEnvDirs(envDirs)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML under the lucene.crawler namespace,
// creating parent directories as needed. Holds the same per-file lock as
// Load so concurrent readers never observe a half-written file.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IOError(path, err)
	}

	lock := flock.New(lockPath(path))
	if err := lock.Lock(); err != nil {
		return errors.ConfigError("acquire config file lock", err).WithDetail("path", path)
	}
	defer func() { _ = lock.Unlock() }()

	var shape fileShape
	shape.Lucene.Crawler = cfg

	data, err := yaml.Marshal(&shape)
	if err != nil {
		return errors.ConfigError("marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IOError(path, err)
	}
	return nil
}

func lockPath(configPath string) string {
	return configPath + ".lock"
}

func splitEnvDirs(raw string) []string {
	parts := strings.Split(raw, ",")
	dirs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			dirs = append(dirs, p)
		}
	}
	return dirs
}

// mergeNonZero copies every non-zero-value field of other into c, leaving
// c's default for anything other leaves unset. Bool fields are copied as
// they are; Load pre-fills other with the defaults, so a bool absent from
// the file arrives here still holding its default.
func mergeNonZero(c, other *Config) {
	if len(other.Directories) > 0 {
		c.Directories = other.Directories
	}
	if len(other.Include) > 0 {
		c.Include = other.Include
	}
	if len(other.Exclude) > 0 {
		c.Exclude = other.Exclude
	}
	if other.ThreadPoolSize != 0 {
		c.ThreadPoolSize = other.ThreadPoolSize
	}
	if other.BatchSize != 0 {
		c.BatchSize = other.BatchSize
	}
	if other.BatchTimeoutMs != 0 {
		c.BatchTimeoutMs = other.BatchTimeoutMs
	}
	c.WatchEnabled = other.WatchEnabled
	if other.WatchPollIntervalMs != 0 {
		c.WatchPollIntervalMs = other.WatchPollIntervalMs
	}
	if other.WatchDebounceMs != 0 {
		c.WatchDebounceMs = other.WatchDebounceMs
	}
	if other.BulkIndexThreshold != 0 {
		c.BulkIndexThreshold = other.BulkIndexThreshold
	}
	if other.SlowNrtRefreshIntervalMs != 0 {
		c.SlowNrtRefreshIntervalMs = other.SlowNrtRefreshIntervalMs
	}
	if other.MaxContentLength != 0 {
		c.MaxContentLength = other.MaxContentLength
	}
	c.ExtractMetadata = other.ExtractMetadata
	c.DetectLanguage = other.DetectLanguage
	c.CrawlOnStartup = other.CrawlOnStartup
	if other.ProgressNotificationIntervalMs != 0 {
		c.ProgressNotificationIntervalMs = other.ProgressNotificationIntervalMs
	}
	if other.ProgressNotificationFiles != 0 {
		c.ProgressNotificationFiles = other.ProgressNotificationFiles
	}
	c.ReconciliationEnabled = other.ReconciliationEnabled
	if other.MaxPassages != 0 {
		c.MaxPassages = other.MaxPassages
	}
	if other.MaxPassageCharLength != 0 {
		c.MaxPassageCharLength = other.MaxPassageCharLength
	}
}

// Validate rejects configurations that would put the Orchestrator into an
// inconsistent state.
func (c Config) Validate() error {
	if c.ThreadPoolSize < 1 {
		return errors.ConfigError("threadPoolSize must be >= 1", nil).WithDetail("value", strconv.Itoa(c.ThreadPoolSize))
	}
	if c.BatchTimeoutMs < 1 {
		return errors.ConfigError("batchTimeoutMs must be >= 1", nil).WithDetail("value", strconv.Itoa(c.BatchTimeoutMs))
	}
	if c.WatchDebounceMs < 0 {
		return errors.ConfigError("watchDebounceMs must be >= 0", nil).WithDetail("value", strconv.Itoa(c.WatchDebounceMs))
	}
	if c.WatchPollIntervalMs < 0 {
		return errors.ConfigError("watchPollIntervalMs must be >= 0", nil).WithDetail("value", strconv.Itoa(c.WatchPollIntervalMs))
	}
	if c.BulkIndexThreshold < 0 {
		return errors.ConfigError("bulkIndexThreshold must be >= 0", nil).WithDetail("value", strconv.Itoa(c.BulkIndexThreshold))
	}
	return nil
}
