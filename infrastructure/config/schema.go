package config

import (
	"encoding/json"
	"fmt"

	domainconfig "github.com/felixgeelhaar/kvguard/domain/config"
)

// JSONSchema represents a JSON Schema document.
type JSONSchema struct {
	Schema               string                 `json:"$schema,omitempty"`
	ID                   string                 `json:"$id,omitempty"`
	Title                string                 `json:"title,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Type                 string                 `json:"type,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Default              any                    `json:"default,omitempty"`
	Minimum              *float64               `json:"minimum,omitempty"`
	Maximum              *float64               `json:"maximum,omitempty"`
	Pattern              string                 `json:"pattern,omitempty"`
	Format               string                 `json:"format,omitempty"`
}

// durationPattern matches strings accepted by time.ParseDuration.
const durationPattern = `^-?([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// GenerateSchema generates a JSON Schema for the kvguard configuration.
func GenerateSchema() *JSONSchema {
	return object("kvguard configuration", map[string]*JSONSchema{
		"name":        {Type: "string", Description: "A human-readable name for this configuration"},
		"version":     {Type: "string", Description: "The configuration schema version", Default: "1.0"},
		"description": {Type: "string", Description: "Describes the deployment"},
		"redis":       generateRedisSchema(),
		"cache":       generateCacheSchema(),
		"rate_limit":  generateRateLimitSchema(),
		"logging":     generateLoggingSchema(),
		"telemetry":   generateTelemetrySchema(),
		"resilience":  generateResilienceSchema(),
	}, "name", "version").with(func(s *JSONSchema) {
		s.Schema = "https://json-schema.org/draft/2020-12/schema"
		s.ID = "https://github.com/felixgeelhaar/kvguard/kvguard.schema.json"
		s.Title = "kvguard Configuration"
	})
}

func generateRedisSchema() *JSONSchema {
	return object("Redis connection shared by redis-backed components", map[string]*JSONSchema{
		"url":           {Type: "string", Description: "redis://, rediss:// or unix:// URL; overrides address", Format: "uri"},
		"address":       {Type: "string", Description: "host:port", Default: "localhost:6379"},
		"password":      {Type: "string", Description: "AUTH password"},
		"db":            {Type: "integer", Description: "Database number", Minimum: floatPtr(0)},
		"pool_size":     {Type: "integer", Description: "Maximum socket connections", Minimum: floatPtr(0)},
		"dial_timeout":  duration("Connection timeout", "5s"),
		"read_timeout":  duration("Socket read timeout", ""),
		"write_timeout": duration("Socket write timeout", ""),
	})
}

func generateCacheSchema() *JSONSchema {
	return object("Cache layer settings", map[string]*JSONSchema{
		"backend":          backend(),
		"default_ttl":      duration("TTL applied when none is given (at least 1s)", "1h"),
		"key_prefix":       {Type: "string", Description: "Namespace for every cache key"},
		"max_size":         {Type: "integer", Description: "Entry bound for the memory backend", Minimum: floatPtr(0), Default: 1000},
		"cleanup_interval": duration("How often the memory backend drops expired entries", "1m0s"),
		"local_size":       {Type: "integer", Description: "In-process tier size in front of redis", Minimum: floatPtr(0)},
		"local_ttl":        duration("Staleness bound of the in-process tier", "1m"),
		"fallback":         {Type: "boolean", Description: "Recompute values when the store is unreachable", Default: false},
	})
}

func generateRateLimitSchema() *JSONSchema {
	return object("Rate limiter settings", map[string]*JSONSchema{
		"backend": backend(),
		"strategy": {
			Type:        "string",
			Description: "Counting strategy; sliding_window and token_bucket are memory only",
			Enum: []string{
				domainconfig.StrategyFixedWindow,
				domainconfig.StrategySlidingWindow,
				domainconfig.StrategyTokenBucket,
			},
			Default: domainconfig.StrategyFixedWindow,
		},
		"points":         {Type: "integer", Description: "Budget per window", Minimum: floatPtr(1), Default: 5},
		"duration":       duration("Window length", "1m0s"),
		"key_prefix":     {Type: "string", Description: "Namespace for limiter keys", Default: "ratelimit:"},
		"sweep_interval": duration("How often idle memory buckets are dropped", ""),
		"fail_open":      {Type: "boolean", Description: "Admit requests when the limiter fails", Default: false},
	})
}

func generateLoggingSchema() *JSONSchema {
	return object("Logger settings", map[string]*JSONSchema{
		"level":  {Type: "string", Enum: []string{"trace", "debug", "info", "warn", "error"}, Default: "info"},
		"format": {Type: "string", Enum: []string{"console", "json"}, Default: "console"},
	})
}

func generateTelemetrySchema() *JSONSchema {
	return object("Metric instruments and action tracing", map[string]*JSONSchema{
		"enabled":      {Type: "boolean", Default: false},
		"service_name": {Type: "string", Default: "kvguard"},
		"trace_exporter": {
			Type:    "string",
			Enum:    []string{domainconfig.ExporterNone, domainconfig.ExporterStdout, domainconfig.ExporterOTLP},
			Default: domainconfig.ExporterNone,
		},
		"trace_endpoint": {Type: "string", Description: "OTLP gRPC collector address", Default: "localhost:4317"},
		"trace_insecure": {Type: "boolean", Default: false},
		"sample_rate":    {Type: "number", Minimum: floatPtr(0), Maximum: floatPtr(1), Default: 1},
	})
}

func generateResilienceSchema() *JSONSchema {
	return object("Resilience settings", map[string]*JSONSchema{
		"circuit_breaker": object("Circuit breaker guarding the cache store", map[string]*JSONSchema{
			"enabled":            {Type: "boolean", Default: false},
			"threshold":          {Type: "integer", Description: "Consecutive failures before opening", Minimum: floatPtr(1), Default: 5},
			"timeout":            duration("How long the circuit stays open", "30s"),
			"half_open_requests": {Type: "integer", Description: "Probes allowed while half-open", Minimum: floatPtr(1), Default: 1},
		}),
	})
}

func object(description string, props map[string]*JSONSchema, required ...string) *JSONSchema {
	closed := false
	return &JSONSchema{
		Type:                 "object",
		Description:          description,
		Properties:           props,
		Required:             required,
		AdditionalProperties: &closed,
	}
}

func (s *JSONSchema) with(fn func(*JSONSchema)) *JSONSchema {
	fn(s)
	return s
}

func duration(description, def string) *JSONSchema {
	s := &JSONSchema{
		Type:        "string",
		Description: description,
		Pattern:     durationPattern,
		Format:      "duration",
	}
	if def != "" {
		s.Default = def
	}
	return s
}

func backend() *JSONSchema {
	return &JSONSchema{
		Type:    "string",
		Enum:    []string{domainconfig.BackendMemory, domainconfig.BackendRedis},
		Default: domainconfig.BackendMemory,
	}
}

func floatPtr(f float64) *float64 {
	return &f
}

// SchemaJSON returns the JSON Schema as an indented JSON string.
func SchemaJSON() (string, error) {
	data, err := json.MarshalIndent(GenerateSchema(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("generate schema: %w", err)
	}
	return string(data), nil
}
