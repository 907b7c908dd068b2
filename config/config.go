// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the daemon's YAML configuration: the mempool
// segment layout, per-segment ACL, the discovery-compatibility check
// level, and log level/format.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root of the router daemon's configuration tree.
type Config struct {
	Segments      []SegmentConfig `yaml:"segments"`
	Compatibility string          `yaml:"compatibility"` // off|major|minor|patch|commit_id|build_date
	Logging       LoggingConfig   `yaml:"logging"`
}

// SegmentConfig describes one shared-memory segment: its mempool size
// classes and the ACL owner/group permitted to attach to it.
type SegmentConfig struct {
	Name     string        `yaml:"name"`
	MemPools []MemPoolSize `yaml:"mempools"`
	ACL      ACLConfig     `yaml:"acl"`
}

// MemPoolSize is one size class within a segment: chunk size (accepts
// human-readable suffixes, e.g. "4kb") and chunk count.
type MemPoolSize struct {
	ChunkSize string `yaml:"chunk_size"`
	NumChunks uint32 `yaml:"num_chunks"`

	// ChunkSizeBytes is filled in by validate; it does not come from YAML.
	ChunkSizeBytes uint32 `yaml:"-"`
}

// ACLConfig names the owner/group allowed to attach to a segment.
type ACLConfig struct {
	Owner string `yaml:"owner"`
	Group string `yaml:"group"`
}

// LoggingConfig holds shmlog's settings. cmd/router consumes Level; Format
// is defaulted but not read by anything, and shmlog always writes JSON.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error (default: info)
	Format string `yaml:"format"` // json|console (default: json)
}

// Load reads and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Segments) == 0 {
		return fmt.Errorf("segments must have at least one entry")
	}
	seen := make(map[string]bool, len(c.Segments))
	for i := range c.Segments {
		s := &c.Segments[i]
		if s.Name == "" {
			return fmt.Errorf("segments[%d].name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("segments[%d]: duplicate segment name %q", i, s.Name)
		}
		seen[s.Name] = true

		if len(s.MemPools) == 0 {
			return fmt.Errorf("segments.%s.mempools must have at least one entry", s.Name)
		}
		for j := range s.MemPools {
			p := &s.MemPools[j]
			bytes, err := ParseByteSize(p.ChunkSize)
			if err != nil {
				return fmt.Errorf("segments.%s.mempools[%d].chunk_size: %w", s.Name, j, err)
			}
			if bytes <= 0 || bytes > (1<<32-1) {
				return fmt.Errorf("segments.%s.mempools[%d].chunk_size out of range", s.Name, j)
			}
			p.ChunkSizeBytes = uint32(bytes)
			if p.NumChunks == 0 {
				return fmt.Errorf("segments.%s.mempools[%d].num_chunks must be > 0", s.Name, j)
			}
		}
		if s.ACL.Owner == "" {
			return fmt.Errorf("segments.%s.acl.owner is required", s.Name)
		}
	}

	if c.Compatibility == "" {
		c.Compatibility = "patch"
	}
	if _, err := ParseCompatibilityLevel(c.Compatibility); err != nil {
		return fmt.Errorf("compatibility: %w", err)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// ParseByteSize converts a human-readable size string ("4kb", "1mb") to bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}
	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}
	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}

// ParseCompatibilityLevel parses the YAML "compatibility" string into a
// roudi.CompatibilityLevel value, expressed here as a plain string to avoid
// config depending on roudi; roudi.ParseCompatibilityLevel does the same
// parse, kept in sync with this one.
func ParseCompatibilityLevel(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "major", "minor", "patch", "commit_id", "build_date":
		return strings.ToLower(strings.TrimSpace(s)), nil
	default:
		return "", fmt.Errorf("unknown compatibility level %q", s)
	}
}
