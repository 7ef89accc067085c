package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

var (
	storageAdapters = []string{"memory", "redis", "sql", "file"}
	logLevels       = []string{"debug", "info", "warn", "error"}
	logFormats      = []string{"json", "text"}
	logOutputs      = []string{"stdout", "stderr"}
)

// problems collects validation messages for one section.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p *problems) positive(name string, d time.Duration) {
	if d <= 0 {
		p.addf("%s must be positive", name)
	}
}

func (p *problems) oneOf(name, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		p.addf("%s must be one of: %s", name, strings.Join(allowed, ", "))
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return errors.New(strings.Join(p, "; "))
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var p problems
	if s.Address == "" {
		p.addf("address cannot be empty")
	}
	p.positive("read_timeout", s.ReadTimeout)
	p.positive("write_timeout", s.WriteTimeout)
	p.positive("idle_timeout", s.IdleTimeout)
	p.positive("read_header_timeout", s.ReadHeaderTimeout)
	p.positive("shutdown_timeout", s.ShutdownTimeout)
	return p.err()
}

// Validate checks the adapter name and the settings that adapter needs.
func (s *StorageConfig) Validate() error {
	var p problems
	p.oneOf("adapter", s.Adapter, storageAdapters)

	switch s.Adapter {
	case "file":
		if err := s.File.Validate(); err != nil {
			p.addf("file config: %v", err)
		}
	case "redis":
		if s.Redis.Addr == "" {
			p.addf("redis config: addr cannot be empty")
		}
	case "sql":
		if !s.SQL.Driver.Valid() {
			p.addf("sql config: unsupported driver %q", s.SQL.Driver)
		}
		if s.SQL.DSN == "" {
			p.addf("sql config: dsn cannot be empty")
		}
	}
	return p.err()
}

func (f *FileConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var p problems
	p.oneOf("level", l.Level, logLevels)
	p.oneOf("format", l.Format, logFormats)
	p.oneOf("output", l.Output, logOutputs)
	return p.err()
}

// Validate checks that an XP table override, when set, is a readable
// JSON or YAML file.
func (s *ScoringConfig) Validate() error {
	if s.XPTablePath == "" {
		return nil
	}
	if err := validateConfigPath(s.XPTablePath); err != nil {
		return fmt.Errorf("xp_table_path: %v", err)
	}
	return nil
}

func (c *CelebrationConfig) Validate() error {
	var p problems
	if c.Cooldown < 0 {
		p.addf("cooldown cannot be negative")
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(strings.TrimSpace(hook))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			p.addf("webhooks[%d] must be an absolute http(s) URL", i)
		}
	}
	return p.err()
}
