// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assist

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the optional YAML overlay.
const ConfigFileEnv = "ASSIST_CONFIG_FILE"

// Backend selectors.
const (
	StoreRedis  = "redis"
	StoreBadger = "badger"

	RetrieverUpstash  = "upstash"
	RetrieverWeaviate = "weaviate"
	RetrieverNone     = "none"

	ObjectStoreS3   = "s3"
	ObjectStoreGCS  = "gcs"
	ObjectStoreNone = "none"

	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
	ExporterNone       = "none"
)

// Config holds the service configuration.
//
// Values come from the YAML overlay first, then the environment, then
// applyConfigDefaults for anything still unset. Tags carry no envDefault
// so an unset variable never clobbers a value from the file.
type Config struct {
	// Service
	Port            int           `yaml:"port" env:"PORT"`
	LogLevel        string        `yaml:"log_level" env:"ASSIST_LOG_LEVEL"`
	LogFormat       string        `yaml:"log_format" env:"ASSIST_LOG_FORMAT"`
	LogDir          string        `yaml:"log_dir" env:"ASSIST_LOG_DIR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	PersistTimeout  time.Duration `yaml:"persist_timeout" env:"PERSIST_TIMEOUT"`

	// Key-value store
	StoreBackend string `yaml:"store_backend" env:"ASSIST_STORE_BACKEND"`
	RedisURL     string `yaml:"redis_url" env:"REDIS_URL"`
	BadgerPath   string `yaml:"badger_path" env:"BADGER_PATH"`
	BadgerMemory bool   `yaml:"badger_in_memory" env:"BADGER_IN_MEMORY"`

	// Completion provider
	TogetherAPIKey string `yaml:"-" env:"TOGETHER_API_KEY"`
	LLMBaseURL     string `yaml:"llm_base_url" env:"LLM_BASE_URL"`
	LLMModel       string `yaml:"llm_model" env:"LLM_MODEL"`
	PersonaFile    string `yaml:"persona_file" env:"ASSIST_PERSONA_FILE"`

	// Context retrieval
	RetrieverBackend string `yaml:"retriever_backend" env:"ASSIST_RETRIEVER_BACKEND"`
	UpstashVectorURL string `yaml:"upstash_vector_url" env:"UPSTASH_VECTOR_REST_URL"`
	UpstashToken     string `yaml:"-" env:"UPSTASH_VECTOR_REST_TOKEN"`
	WeaviateURL      string `yaml:"weaviate_url" env:"WEAVIATE_SERVICE_URL"`
	WeaviateClass    string `yaml:"weaviate_class" env:"WEAVIATE_CLASS"`

	// Object storage
	ObjectStoreBackend string `yaml:"object_store_backend" env:"ASSIST_OBJECT_STORE"`
	S3Bucket           string `yaml:"s3_bucket" env:"AWS_BUCKET_NAME"`
	S3Region           string `yaml:"s3_region" env:"AWS_REGION"`
	S3AccessKeyID      string `yaml:"-" env:"AWS_ACCESS_KEY_ID"`
	S3SecretKey        string `yaml:"-" env:"AWS_SECRET_ACCESS_KEY"`
	S3Endpoint         string `yaml:"s3_endpoint" env:"S3_ENDPOINT"`
	S3UsePathStyle     bool   `yaml:"s3_use_path_style" env:"S3_USE_PATH_STYLE"`
	S3PublicBaseURL    string `yaml:"s3_public_base_url" env:"S3_PUBLIC_BASE_URL"`
	GCSBucket          string `yaml:"gcs_bucket" env:"GCS_BUCKET"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`

	// Third-party APIs
	PlantIDAPIKey  string `yaml:"-" env:"PLANT_ID_API_KEY"`
	PlantIDBaseURL string `yaml:"plant_id_base_url" env:"PLANT_ID_BASE_URL"`
	NewsAPIKey     string `yaml:"-" env:"APITUBE_API_KEY"`
	NewsBaseURL    string `yaml:"news_base_url" env:"APITUBE_BASE_URL"`
	AirtableAPIKey string `yaml:"-" env:"AIRTABLE_API_KEY"`
	AirtableBaseID string `yaml:"airtable_base_id" env:"AIRTABLE_BASE_ID"`

	// Rate limiting
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
	RateLimitBurst     int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// Telemetry
	TraceExporter  string `yaml:"trace_exporter" env:"ASSIST_TRACE_EXPORTER"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	MetricExporter string `yaml:"metric_exporter" env:"ASSIST_METRIC_EXPORTER"`
}

// LoadConfig reads the YAML overlay at path (or $ASSIST_CONFIG_FILE when
// path is empty), applies the environment, and fills defaults. It does not
// validate; New does, after any command-line overrides.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	return applyConfigDefaults(cfg), nil
}

// applyConfigDefaults fills in anything left zero.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	cfg.StoreBackend = lowerOr(cfg.StoreBackend, StoreRedis)
	if cfg.BadgerPath == "" {
		cfg.BadgerPath = "./data/assist"
	}
	cfg.RetrieverBackend = lowerOr(cfg.RetrieverBackend, RetrieverUpstash)
	if cfg.ObjectStoreBackend == "" {
		if cfg.S3Bucket != "" {
			cfg.ObjectStoreBackend = ObjectStoreS3
		} else {
			cfg.ObjectStoreBackend = ObjectStoreNone
		}
	}
	cfg.ObjectStoreBackend = strings.ToLower(cfg.ObjectStoreBackend)
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 30
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	if cfg.TraceExporter == "" {
		if cfg.OTLPEndpoint != "" {
			cfg.TraceExporter = ExporterOTLP
		} else {
			cfg.TraceExporter = ExporterNone
		}
	}
	cfg.TraceExporter = strings.ToLower(cfg.TraceExporter)
	cfg.MetricExporter = lowerOr(cfg.MetricExporter, ExporterPrometheus)
	return cfg
}

func lowerOr(v, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return def
	}
	return v
}

// Validate checks backend selections and the settings each one needs.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis store"))
		}
	case StoreBadger:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}
	switch c.RetrieverBackend {
	case RetrieverUpstash:
		if c.UpstashVectorURL == "" || c.UpstashToken == "" {
			errs = append(errs, errors.New("UPSTASH_VECTOR_REST_URL and UPSTASH_VECTOR_REST_TOKEN are required for the upstash retriever"))
		}
	case RetrieverWeaviate:
		if c.WeaviateURL == "" {
			errs = append(errs, errors.New("WEAVIATE_SERVICE_URL is required for the weaviate retriever"))
		}
	case RetrieverNone:
	default:
		errs = append(errs, fmt.Errorf("unknown retriever backend %q", c.RetrieverBackend))
	}
	switch c.ObjectStoreBackend {
	case ObjectStoreS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("AWS_BUCKET_NAME is required for the s3 object store"))
		}
	case ObjectStoreGCS:
		if c.GCSBucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET is required for the gcs object store"))
		}
	case ObjectStoreNone:
	default:
		errs = append(errs, fmt.Errorf("unknown object store %q", c.ObjectStoreBackend))
	}
	switch c.TraceExporter {
	case ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		errs = append(errs, fmt.Errorf("unknown trace exporter %q", c.TraceExporter))
	}
	switch c.MetricExporter {
	case ExporterPrometheus, ExporterStdout:
	default:
		errs = append(errs, fmt.Errorf("unknown metric exporter %q", c.MetricExporter))
	}
	if c.TogetherAPIKey == "" {
		errs = append(errs, errors.New("TOGETHER_API_KEY is required"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
