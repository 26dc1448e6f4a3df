package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestConfigDefaultsGoldenFile tests that our defaults match the golden file
func TestConfigDefaultsGoldenFile(t *testing.T) {
	goldenData, err := os.ReadFile("testdata/defaults.yaml")
	require.NoError(t, err)

	var golden Config
	require.NoError(t, yaml.Unmarshal(goldenData, &golden))

	assert.Equal(t, &golden, Default())
}

func TestDefaultsMarshalRoundTrip(t *testing.T) {
	data, err := yaml.Marshal(Default())
	require.NoError(t, err)
	assert.Contains(t, string(data), "retry_delay: 1.5s")

	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, Default(), &back)
}

func TestApplyDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Transfer.MaxRetries != 3 {
		t.Errorf("Expected 3 retries, got %d", cfg.Transfer.MaxRetries)
	}
	if cfg.Transfer.RetryDelay.Std() != 1500*time.Millisecond {
		t.Errorf("Expected retry delay 1.5s, got %s", cfg.Transfer.RetryDelay)
	}
	if cfg.Transfer.FilePause.Std() != 500*time.Millisecond {
		t.Errorf("Expected file pause 500ms, got %s", cfg.Transfer.FilePause)
	}
	if !cfg.Transfer.CheckFileTypes {
		t.Error("Expected file type checks to be enabled by default")
	}
	if cfg.API.Timeout.Std() != time.Minute {
		t.Errorf("Expected API timeout 1m, got %s", cfg.API.Timeout)
	}
	if cfg.Server.Addr() != "127.0.0.1:12700" {
		t.Errorf("Expected server addr 127.0.0.1:12700, got %q", cfg.Server.Addr())
	}
}

func TestApplyDefaultsCustomStruct(t *testing.T) {
	type TestStruct struct {
		StringField   string   `default:"test-string"`
		BoolField     bool     `default:"true"`
		IntField      int      `default:"42"`
		Int64Field    int64    `default:"1099511627776"`
		Float64Field  float64  `default:"3.14"`
		SliceField    []string `default:"a, b,c"`
		DurationField Duration `default:"2m"`
		NoDefault     string
	}

	var s TestStruct
	ApplyDefaults(&s)

	assert.Equal(t, TestStruct{
		StringField:   "test-string",
		BoolField:     true,
		IntField:      42,
		Int64Field:    1 << 40,
		Float64Field:  3.14,
		SliceField:    []string{"a", "b", "c"},
		DurationField: Duration(2 * time.Minute),
	}, s)
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvAPIToken, "")
	t.Setenv(EnvLogLevel, "")

	testCases := []struct {
		name      string
		filename  string
		errorText string
	}{
		{name: "Valid defaults file", filename: "testdata/defaults.yaml"},
		{name: "Missing file", filename: "testdata/does-not-exist.yaml"},
		{name: "Invalid version", filename: "testdata/invalid_version.yaml", errorText: "unsupported configuration version"},
		{name: "S3 without bucket", filename: "testdata/s3_without_bucket.yaml", errorText: "s3.bucket is required"},
		{name: "Bad enum values", filename: "testdata/bad_values.yaml", errorText: "Transfer.Backend"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(tc.filename)
			if tc.errorText == "" {
				require.NoError(t, err)
				assert.Equal(t, Default(), cfg)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorText)
		})
	}
}

func TestLoadCustom(t *testing.T) {
	t.Setenv(EnvAPIToken, "from-env")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load("testdata/custom.yaml")
	require.NoError(t, err)

	assert.Equal(t, "https://courses.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, "from-env", cfg.API.Token)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout.Std())
	assert.Equal(t, 250*time.Millisecond, cfg.Transfer.RetryDelay.Std())
	assert.Equal(t, int64(1<<30), cfg.Transfer.MaxFileSize)
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, "coursesync", cfg.Storage.Redis.Prefix, "unset keys keep their defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\ntransfer:\n  retry_delay: soon\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}
