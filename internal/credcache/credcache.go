// Package credcache resolves target passwords and caches them for a bounded time.
package credcache

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is used when a Cache is created with a non-positive TTL.
const DefaultTTL = 10 * time.Minute

// Source describes where a target's password comes from. At most one field may be set.
type Source struct {
	Password     string // inline, already expanded
	PasswordEnv  string // environment variable name
	PasswordFile string // file whose trimmed contents are the password
}

func (s Source) kind() string {
	switch {
	case s.PasswordEnv != "":
		return "env"
	case s.PasswordFile != "":
		return "file"
	case s.Password != "":
		return "inline"
	default:
		return "none"
	}
}

type entry struct {
	secret  string
	expires time.Time
}

// Cache holds resolved passwords keyed by target name.
// It is safe for concurrent use.
type Cache struct {
	ttl    time.Duration
	now    func() time.Time
	getenv func(string) string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithGetenv replaces os.Getenv. Used by tests.
func WithGetenv(getenv func(string) string) Option {
	return func(c *Cache) { c.getenv = getenv }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a cache whose entries live for ttl.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		getenv:  os.Getenv,
		logger:  slog.New(slog.DiscardHandler),
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Resolve returns the password for target, reading src only when no live entry exists.
func (c *Cache) Resolve(target string, src Source) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[target]; ok && c.now().Before(e.expires) {
		return e.secret, nil
	}

	secret, err := c.read(target, src)
	if err != nil {
		delete(c.entries, target)
		return "", err
	}
	c.entries[target] = entry{secret: secret, expires: c.now().Add(c.ttl)}
	c.logger.Debug("resolved credentials",
		slog.String("target", target),
		slog.String("source", src.kind()))
	return secret, nil
}

// Invalidate drops the cached password of target, e.g. after an authentication failure.
func (c *Cache) Invalidate(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[target]; ok {
		delete(c.entries, target)
		c.logger.Debug("invalidated credentials", slog.String("target", target))
	}
}

// Purge drops every expired entry and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries, live or expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) read(target string, src Source) (string, error) {
	set := 0
	for _, v := range []string{src.Password, src.PasswordEnv, src.PasswordFile} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return "", fmt.Errorf("target %s: only one of password, password_env and password_file may be set", target)
	}

	switch src.kind() {
	case "env":
		v := c.getenv(src.PasswordEnv)
		if v == "" {
			return "", fmt.Errorf("target %s: environment variable %s is empty or unset", target, src.PasswordEnv)
		}
		return v, nil
	case "file":
		b, err := os.ReadFile(src.PasswordFile)
		if err != nil {
			return "", fmt.Errorf("target %s: failed to read password file: %w", target, err)
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	default:
		return src.Password, nil
	}
}
