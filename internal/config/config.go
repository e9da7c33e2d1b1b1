// Package config handles loading, validation, and hot reload of the
// applockd configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// Version is the current configuration schema version.
const Version = 1

// FileName is the config file name inside the data directory.
const FileName = "config.toml"

// Duration wraps time.Duration so TOML reads "30s" / "5m" strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version"`

	// Targets is the protected application list.
	Targets TargetsConfig `toml:"targets"`

	// Lock controls challenge and grace behavior.
	Lock LockConfig `toml:"lock"`

	// Detector selects how app transitions are observed.
	Detector DetectorConfig `toml:"detector"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging"`
}

// TargetsConfig holds the protected application entries.
type TargetsConfig struct {
	// Entries are app names to protect. Interpretation depends on Match.
	Entries []string `toml:"entries"`

	// Match is the comparison mode: "exact" or "substring".
	Match string `toml:"match"`
}

// LockConfig controls challenge and grace behavior.
type LockConfig struct {
	// Grace is how long after a passed challenge the app stays unlocked.
	Grace Duration `toml:"grace"`

	// ChallengeTimeout bounds how long one challenge may sit unanswered.
	ChallengeTimeout Duration `toml:"challenge_timeout"`

	// Recovery selects what happens after a passed challenge:
	// "restore" brings the hidden instance back, "relaunch" kills it
	// up front and starts fresh on success. Empty means pick per
	// detector strategy: restore for push, relaunch for poll.
	Recovery string `toml:"recovery"`
}

// DetectorConfig selects the observation strategy.
type DetectorConfig struct {
	// Strategy is "push" (workspace notifications) or "poll" (process scan).
	Strategy string `toml:"strategy"`

	// PollInterval is the scan period for the poll strategy.
	PollInterval Duration `toml:"poll_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level"`
}

// Default values. Grace and challenge timeout follow the historical
// locker behavior; the poll floor keeps a misconfigured scan from
// pegging a core.
const (
	DefaultGrace            = 60 * time.Second
	DefaultChallengeTimeout = 60 * time.Second
	DefaultPollInterval     = 300 * time.Millisecond
	MinPollInterval         = 50 * time.Millisecond
	MinChallengeTimeout     = time.Second
)

const (
	StrategyPush = "push"
	StrategyPoll = "poll"
)

// Default returns a configuration with sensible defaults. The target
// list starts empty: a fresh install locks nothing until told to.
func Default() *Config {
	return &Config{
		Version: Version,
		Targets: TargetsConfig{
			Entries: []string{},
			Match:   string(domain.MatchSubstring),
		},
		Lock: LockConfig{
			Grace:            Duration(DefaultGrace),
			ChallengeTimeout: Duration(DefaultChallengeTimeout),
		},
		Detector: DetectorConfig{
			Strategy:     StrategyPush,
			PollInterval: Duration(DefaultPollInterval),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path. A missing file yields defaults.
// Parse and validation errors are returned; callers decide how to fail.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the config atomically (temp file + rename) so a reader
// never observes a half-written file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Validate rejects values that have no safe interpretation. Empty enum
// fields are fine; Normalize fills them or they keep a deliberate
// "unset" meaning. Out-of-range numerics are not errors either;
// Normalize clamps those.
func (c *Config) Validate() error {
	switch c.Targets.Match {
	case "", string(domain.MatchExact), string(domain.MatchSubstring):
	default:
		return fmt.Errorf("invalid match mode %q", c.Targets.Match)
	}

	switch c.Detector.Strategy {
	case "", StrategyPush, StrategyPoll:
	default:
		return fmt.Errorf("invalid detector strategy %q", c.Detector.Strategy)
	}

	// Empty recovery is meaningful: the daemon picks per strategy.
	switch c.Lock.Recovery {
	case "", domain.RecoveryRestore, domain.RecoveryRelaunch:
	default:
		return fmt.Errorf("invalid recovery policy %q", c.Lock.Recovery)
	}

	return nil
}

// Normalize fills empty enum fields and clamps numeric knobs into
// their working ranges.
func (c *Config) Normalize() {
	if c.Targets.Match == "" {
		c.Targets.Match = string(domain.MatchSubstring)
	}
	if c.Detector.Strategy == "" {
		c.Detector.Strategy = StrategyPush
	}
	if c.Lock.Grace < 0 {
		c.Lock.Grace = 0
	}
	if c.Lock.ChallengeTimeout.Std() < MinChallengeTimeout {
		c.Lock.ChallengeTimeout = Duration(MinChallengeTimeout)
	}
	if c.Detector.PollInterval.Std() < MinPollInterval {
		c.Detector.PollInterval = Duration(MinPollInterval)
	}
}

// TargetSet converts the target section into the immutable snapshot the
// lock controller consumes.
func (c *Config) TargetSet() domain.TargetSet {
	entries := make([]string, len(c.Targets.Entries))
	copy(entries, c.Targets.Entries)
	return domain.TargetSet{
		Entries: entries,
		Mode:    domain.MatchMode(c.Targets.Match),
	}
}
