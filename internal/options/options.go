// Package options resolves CLI flags, environment variables, and the
// configuration file into one explicit Settings struct. Every option the
// core consumes has a named field with an explicit default; only the
// per-service retry tuning stays dynamic, as a map keyed by service name.
package options

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/retry"
)

// Default values applied when neither flag, env, nor file set the option.
const (
	DefaultConcurrency = 8
	DefaultLimit       = 100
)

// ErrInvalidOptions is wrapped by every option-combination failure so
// callers can classify them as fatal batch-level errors with errors.Is.
var ErrInvalidOptions = errors.New("invalid option combination")

// Settings is the resolved configuration for one CLI invocation.
type Settings struct {
	// ContinueOnError keeps the overall operation successful even when
	// individual items fail. Per-item attempts always run to completion
	// either way; this only controls the overall outcome.
	ContinueOnError bool

	// IgnoreTimestamps transfers items regardless of change state.
	IgnoreTimestamps bool

	// Ready and Draft select items by publication status. When neither
	// is set, ready-only is the default.
	Ready bool
	Draft bool

	// Path keeps only items whose path starts with this prefix.
	// Supported only for path-addressable types.
	Path string

	// Named selects a single item by name/path, skipping the
	// modified-check.
	Named string

	// ManifestRef scopes the operation to a manifest instead of a type.
	ManifestRef string

	// Deletions enables the local-only deletion sub-protocol after a
	// pull batch, and Quiet skips its per-item confirmation prompt.
	Deletions bool
	Quiet     bool

	// Verbose enables per-node detail in compare output.
	Verbose bool

	// CreateOnly disables the push update path for existing items.
	CreateOnly bool

	// Offset and Limit paginate enumeration calls.
	Offset int
	Limit  int

	// Concurrency bounds in-flight transfers per batch. Never unbounded;
	// zero or negative values fall back to the default.
	Concurrency int

	// Retry holds per-service retry policies; the empty key is the
	// fallback policy for services without an override.
	Retry map[string]retry.Config
}

// Load reads the Settings from a viper instance that already has flags,
// env, and config file bound.
func Load(v *viper.Viper) (*Settings, error) {
	v.SetDefault("continueOnError", true)
	v.SetDefault("limit", DefaultLimit)
	v.SetDefault("concurrency", DefaultConcurrency)

	s := &Settings{
		ContinueOnError:  v.GetBool("continueOnError"),
		IgnoreTimestamps: v.GetBool("ignoreTimestamps"),
		Ready:            v.GetBool("ready"),
		Draft:            v.GetBool("draft"),
		Path:             v.GetString("path"),
		Named:            v.GetString("named"),
		ManifestRef:      v.GetString("manifest"),
		Deletions:        v.GetBool("deletions"),
		Quiet:            v.GetBool("quiet"),
		Verbose:          v.GetBool("verbose"),
		CreateOnly:       v.GetBool("createOnly"),
		Offset:           v.GetInt("offset"),
		Limit:            v.GetInt("limit"),
		Concurrency:      v.GetInt("concurrency"),
		Retry:            map[string]retry.Config{"": retryConfig(v, "")},
	}
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}

	// Per-service overrides live under services.<name>.*.
	for name := range v.GetStringMap("services") {
		s.Retry[name] = retryConfig(v, name)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// retryConfig reads one retry policy. An empty service name reads the
// top-level keys; otherwise keys under services.<name> win and fall back
// to the top level.
func retryConfig(v *viper.Viper, service string) retry.Config {
	get := func(key string) string { return key }
	if service != "" {
		get = func(key string) string {
			scoped := "services." + service + "." + key
			if v.IsSet(scoped) {
				return scoped
			}
			return key
		}
	}

	cfg := retry.Config{
		MaxAttempts: v.GetInt(get("retryMaxAttempts")),
		MinTimeout:  time.Duration(v.GetInt(get("retryMinTimeout"))) * time.Millisecond,
		MaxTimeout:  time.Duration(v.GetInt(get("retryMaxTimeout"))) * time.Millisecond,
		Factor:      v.GetFloat64(get("retryFactor")),
		Randomize:   v.GetBool(get("retryRandomize")),
	}
	for _, code := range v.GetIntSlice(get("retryStatusCodes")) {
		cfg.StatusCodes = append(cfg.StatusCodes, code)
	}
	return cfg
}

// RetryFor returns the retry policy for a service, falling back to the
// default policy when no override exists.
func (s *Settings) RetryFor(service string) retry.Config {
	if cfg, ok := s.Retry[service]; ok {
		return cfg
	}
	return s.Retry[""]
}

// StatusFilter returns the statuses to keep: the explicitly requested
// ones, or ready-only when neither flag was given.
func (s *Settings) StatusFilter() []string {
	var statuses []string
	if s.Ready {
		statuses = append(statuses, "ready")
	}
	if s.Draft {
		statuses = append(statuses, "draft")
	}
	if len(statuses) == 0 {
		statuses = []string{"ready"}
	}
	return statuses
}

// Validate rejects option combinations before any network activity.
// Ready/draft filtering and manifest scoping are mutually exclusive; the
// manifest's recorded item set is authoritative and is not re-filtered.
func (s *Settings) Validate() error {
	if s.ManifestRef != "" && (s.Ready || s.Draft) {
		return fmt.Errorf("%w: --ready/--draft cannot be combined with --manifest", ErrInvalidOptions)
	}
	if s.ManifestRef != "" && s.Path != "" {
		return fmt.Errorf("%w: --path cannot be combined with --manifest", ErrInvalidOptions)
	}
	if s.Named != "" && s.ManifestRef != "" {
		return fmt.Errorf("%w: --named cannot be combined with --manifest", ErrInvalidOptions)
	}
	if s.Offset < 0 || s.Limit < 0 {
		return fmt.Errorf("%w: offset and limit must be non-negative", ErrInvalidOptions)
	}
	return nil
}
