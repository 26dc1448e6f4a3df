// Package config loads the YAML configuration of the daemon and coursectl.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

// SupportedVersion is the only configuration schema version accepted.
const SupportedVersion = "1"

// Config represents the complete configuration structure
type Config struct {
	Version   string          `yaml:"version" default:"1"`
	API       APIConfig       `yaml:"api"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Storage   StorageConfig   `yaml:"storage"`
	S3        S3Config        `yaml:"s3"`
	Events    EventsConfig    `yaml:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Server    ServerConfig    `yaml:"server"`
	Preview   PreviewConfig   `yaml:"preview"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type APIConfig struct {
	BaseURL        string   `yaml:"base_url" default:"http://localhost:12701" validate:"required,url"`
	Token          string   `yaml:"token" default:""`
	Timeout        Duration `yaml:"timeout" default:"60s"`
	ListingRefresh Duration `yaml:"listing_refresh" default:"5m"`
}

type TransferConfig struct {
	// Backend is "api" for the remote chunk endpoints or "s3" for direct
	// multipart uploads.
	Backend        string   `yaml:"backend" default:"api" validate:"oneof=api s3"`
	MaxRetries     int      `yaml:"max_retries" default:"3" validate:"gte=1"`
	RetryDelay     Duration `yaml:"retry_delay" default:"1.5s"`
	FilePause      Duration `yaml:"file_pause" default:"500ms"`
	MaxFileSize    int64    `yaml:"max_file_size" default:"0" validate:"gte=0"`
	CheckFileTypes bool     `yaml:"check_file_types" default:"true"`
}

type StorageConfig struct {
	Driver      string      `yaml:"driver" default:"sqlite" validate:"oneof=memory sqlite redis"`
	SQLitePath  string      `yaml:"sqlite_path" default:"./coursesync.db"`
	Compression string      `yaml:"compression" default:"zstd" validate:"oneof=zstd gzip none"`
	Redis       RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password" default:""`
	DB       int    `yaml:"db" default:"0" validate:"gte=0"`
	Prefix   string `yaml:"prefix" default:"coursesync"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" default:""`
	Prefix          string `yaml:"prefix" default:"uploads"`
	Endpoint        string `yaml:"endpoint" default:""`
	Region          string `yaml:"region" default:"auto"`
	AccessKeyID     string `yaml:"access_key_id" default:""`
	SecretAccessKey string `yaml:"secret_access_key" default:""`
	PublicURL       string `yaml:"public_url" default:""`
}

type EventsConfig struct {
	Topic  string `yaml:"topic" default:"coursesync.events"`
	Buffer int    `yaml:"buffer" default:"64" validate:"gte=0"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" default:"false"`
	ServiceName string `yaml:"service_name" default:"coursesync"`
	Endpoint    string `yaml:"endpoint" default:""`
	Insecure    bool   `yaml:"insecure" default:"false"`
}

type ServerConfig struct {
	Host string `yaml:"host" default:"127.0.0.1"`
	Port string `yaml:"port" default:"12700" validate:"required,numeric"`
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type PreviewConfig struct {
	SyntaxTheme string `yaml:"syntax_theme" default:"gruvbox"`
}

type LoggingConfig struct {
	Level string `yaml:"level" default:"info"`
}

// Environment variables that override secrets from the file.
const (
	EnvAPIToken          = "COURSESYNC_API_TOKEN"
	EnvS3AccessKeyID     = "COURSESYNC_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "COURSESYNC_S3_SECRET_ACCESS_KEY"
	EnvRedisPassword     = "COURSESYNC_REDIS_PASSWORD"
	EnvLogLevel          = "COURSESYNC_LOG_LEVEL"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	ApplyEnv(config, os.Getenv)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides secrets with non-empty values returned by getenv.
func ApplyEnv(config *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&config.API.Token, EnvAPIToken)
	set(&config.S3.AccessKeyID, EnvS3AccessKeyID)
	set(&config.S3.SecretAccessKey, EnvS3SecretAccessKey)
	set(&config.Storage.Redis.Password, EnvRedisPassword)
	set(&config.Logging.Level, EnvLogLevel)
}

func (c *Config) Validate() error {
	if c.Version != SupportedVersion {
		return fmt.Errorf("unsupported configuration version %q (want %q)", c.Version, SupportedVersion)
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		problems := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	if c.Transfer.Backend == "s3" && c.S3.Bucket == "" {
		return errors.New("invalid configuration: s3.bucket is required when transfer.backend is s3")
	}
	return nil
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

var durationType = reflect.TypeOf(Duration(0))

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		if field.Type() == durationType {
			if d, err := ParseDuration(defaultValue); err == nil {
				field.SetInt(int64(d))
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int, reflect.Int64:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
