// Package config provides configuration loading for the integrations runner.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the runner configuration.
type Config struct {
	// Service identification
	ServiceName string
	Environment string
	Version     string

	// Server settings (serve mode)
	HTTPPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Observability
	LogLevel  string
	LogFormat string

	// Integration instances
	InstancesFile string

	// Integration context / last run persistence
	Store StoreConfig

	// Event push destination for collectors
	Sink SinkConfig

	// Optional GeoIP city database for IP enrichment
	GeoIPCityDB string

	// Directory holding war-room files, named by entry id
	FilesDir string
}

// StoreConfig selects the integration context backend.
type StoreConfig struct {
	Backend     string // memory, file, redis, postgres
	FileDir     string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	PostgresDSN string
}

// SinkConfig selects where collectors push events.
type SinkConfig struct {
	Type string // none, kafka, s3, clickhouse, splunk-hec

	KafkaBrokers []string
	KafkaTopic   string

	S3Bucket   string
	S3Prefix   string
	S3Region   string
	S3Endpoint string

	ClickHouseHosts    []string
	ClickHouseDatabase string
	ClickHouseTable    string
	ClickHouseUser     string
	ClickHousePassword string

	HECURL        string
	HECToken      string
	HECIndex      string
	HECSourceType string
	HECInsecure   bool
}

var (
	storeBackends = map[string]bool{"memory": true, "file": true, "redis": true, "postgres": true}
	sinkTypes     = map[string]bool{"none": true, "kafka": true, "s3": true, "clickhouse": true, "splunk-hec": true}
)

// Load creates a new Config from environment variables with defaults. A
// .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:   getEnv("SERVICE_NAME", "integrations"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		Version:       getEnv("VERSION", "0.0.0"),
		HTTPPort:      getEnvAsInt("HTTP_PORT", 8090),
		ReadTimeout:   getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:  getEnvAsDuration("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:   getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		InstancesFile: getEnv("INSTANCES_FILE", "instances.yaml"),
		GeoIPCityDB:   getEnv("GEOIP_CITY_DB", ""),
		FilesDir:      getEnv("FILES_DIR", "files"),
		Store: StoreConfig{
			Backend:     getEnv("STORE_BACKEND", "file"),
			FileDir:     getEnv("STORE_DIR", ".integration-context"),
			RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
			RedisDB:     getEnvAsInt("REDIS_DB", 0),
			RedisPass:   getEnv("REDIS_PASSWORD", ""),
			PostgresDSN: getEnv("POSTGRES_DSN", ""),
		},
		Sink: SinkConfig{
			Type:               getEnv("SINK_TYPE", "none"),
			KafkaBrokers:       getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			KafkaTopic:         getEnv("KAFKA_TOPIC", "integration-events"),
			S3Bucket:           getEnv("S3_BUCKET", ""),
			S3Prefix:           getEnv("S3_PREFIX", "events"),
			S3Region:           getEnv("S3_REGION", "us-east-1"),
			S3Endpoint:         getEnv("S3_ENDPOINT", ""),
			ClickHouseHosts:    getEnvAsSlice("CLICKHOUSE_HOSTS", []string{"localhost:9000"}),
			ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "siem"),
			ClickHouseTable:    getEnv("CLICKHOUSE_TABLE", "integration_events"),
			ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
			ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
			HECURL:             getEnv("HEC_URL", ""),
			HECToken:           getEnv("HEC_TOKEN", ""),
			HECIndex:           getEnv("HEC_INDEX", ""),
			HECSourceType:      getEnv("HEC_SOURCETYPE", "_json"),
			HECInsecure:        getEnvAsBool("HEC_INSECURE", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks backend selections and their required settings.
func (c *Config) Validate() error {
	if !storeBackends[c.Store.Backend] {
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required for the postgres store")
	}
	if !sinkTypes[c.Sink.Type] {
		return fmt.Errorf("unknown SINK_TYPE %q", c.Sink.Type)
	}
	if c.Sink.Type == "s3" && c.Sink.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required for the s3 sink")
	}
	if c.Sink.Type == "splunk-hec" && (c.Sink.HECURL == "" || c.Sink.HECToken == "") {
		return fmt.Errorf("HEC_URL and HEC_TOKEN are required for the splunk-hec sink")
	}
	return nil
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Instance is one configured integration instance, the equivalent of the
// host's params() for that integration.
type Instance struct {
	Name        string                 `yaml:"name"`
	Integration string                 `yaml:"integration"`
	Params      map[string]interface{} `yaml:"params"`
}

// InstancesFile is the on-disk layout of the instances file.
type InstancesFile struct {
	Instances []Instance `yaml:"instances"`
}

// LoadInstances reads integration instances from a YAML file. String
// values of the form ${VAR} are expanded from the environment.
func LoadInstances(path string) ([]Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instances file: %w", err)
	}
	return ParseInstances(data)
}

// ParseInstances decodes an instances document.
func ParseInstances(data []byte) ([]Instance, error) {
	var file InstancesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse instances file: %w", err)
	}

	seen := make(map[string]bool, len(file.Instances))
	for i := range file.Instances {
		inst := &file.Instances[i]
		if inst.Name == "" {
			return nil, fmt.Errorf("instance %d: name is required", i)
		}
		if inst.Integration == "" {
			return nil, fmt.Errorf("instance %s: integration is required", inst.Name)
		}
		if seen[inst.Name] {
			return nil, fmt.Errorf("duplicate instance name %q", inst.Name)
		}
		seen[inst.Name] = true
		inst.Params = expandParams(inst.Params)
	}
	return file.Instances, nil
}

func expandParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return map[string]interface{}{}
	}
	for k, v := range params {
		switch val := v.(type) {
		case string:
			params[k] = expandEnv(val)
		case map[string]interface{}:
			params[k] = expandParams(val)
		}
	}
	return params
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

// FindInstance returns the instance with the given name.
func FindInstance(instances []Instance, name string) (*Instance, error) {
	for i := range instances {
		if instances[i].Name == name {
			return &instances[i], nil
		}
	}
	return nil, fmt.Errorf("instance not found: %s", name)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
