package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	domainconfig "github.com/felixgeelhaar/kvguard/domain/config"
)

var (
	// ${VAR}, ${VAR:-default}, ${VAR:?message}
	bracketPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*|:\?[^}]*)?\}`)
	// $VAR
	simplePattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// envExpander expands environment variables in configuration text.
type envExpander struct {
	strict  bool
	lookup  func(string) (string, bool)
	missing []string
}

func newEnvExpander(strict bool) *envExpander {
	return &envExpander{strict: strict, lookup: os.LookupEnv}
}

// Expand expands environment variables in the input string.
// Supported patterns:
//   - ${VAR} expands to the value of VAR
//   - ${VAR:-default} expands to VAR, or default when unset or empty
//   - ${VAR:?message} fails when VAR is unset or empty
//   - $VAR simple expansion
//
// Unset variables expand to "" unless strict is set.
func (e *envExpander) Expand(input string) (string, error) {
	e.missing = nil

	result := bracketPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := bracketPattern.FindStringSubmatch(match)
		name, modifier := sub[1], sub[2]
		value, exists := e.lookup(name)

		switch {
		case strings.HasPrefix(modifier, ":-"):
			if !exists || value == "" {
				return modifier[2:]
			}
		case strings.HasPrefix(modifier, ":?"):
			if !exists || value == "" {
				e.missing = append(e.missing, fmt.Sprintf("%s: %s", name, modifier[2:]))
				return match
			}
		case !exists:
			if e.strict {
				e.missing = append(e.missing, name)
			}
			return ""
		}
		return value
	})

	result = simplePattern.ReplaceAllStringFunc(result, func(match string) string {
		name := match[1:]
		value, exists := e.lookup(name)
		if !exists {
			if e.strict {
				e.missing = append(e.missing, name)
			}
			return ""
		}
		return value
	})

	if len(e.missing) > 0 {
		return "", fmt.Errorf("%w: %s", domainconfig.ErrMissingEnvVar, strings.Join(e.missing, ", "))
	}
	return result, nil
}

// ExpandEnv expands environment variables, leaving unset ones empty.
func ExpandEnv(input string) string {
	result, _ := newEnvExpander(false).Expand(input)
	return result
}

// ExpandEnvStrict expands environment variables and reports missing ones.
func ExpandEnvStrict(input string) (string, error) {
	return newEnvExpander(true).Expand(input)
}

// EnvPrefix prefixes the variables read by ApplyEnvOverrides.
const EnvPrefix = "KVGUARD_"

// ApplyEnvOverrides overwrites configuration fields from KVGUARD_*
// variables so deployments can point at a different store without
// editing the file. Unparseable numeric values are reported.
func ApplyEnvOverrides(cfg *domainconfig.Config) error {
	return applyEnvOverrides(cfg, os.LookupEnv)
}

func applyEnvOverrides(cfg *domainconfig.Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	num := func(name string, dst *int) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s=%q is not an integer", EnvPrefix, name, v))
			return
		}
		*dst = n
	}

	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_ADDRESS", &cfg.Redis.Address)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("REDIS_DB", &cfg.Redis.DB)
	str("CACHE_BACKEND", &cfg.Cache.Backend)
	str("RATE_LIMIT_BACKEND", &cfg.RateLimit.Backend)
	str("RATE_LIMIT_STRATEGY", &cfg.RateLimit.Strategy)
	num("RATE_LIMIT_POINTS", &cfg.RateLimit.Points)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	str("TRACE_EXPORTER", &cfg.Telemetry.TraceExporter)
	str("TRACE_ENDPOINT", &cfg.Telemetry.TraceEndpoint)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domainconfig.ErrInvalidFormat, strings.Join(errs, "; "))
	}
	return nil
}
