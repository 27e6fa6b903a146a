package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/config"
	"github.com/Abraxas-365/profilejobs/pkg/errx"
	"github.com/Abraxas-365/profilejobs/pkg/jobx"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Redis.Host != "localhost" || cfg.Redis.Port != 6379 || cfg.Redis.KeyPrefix != "profilejobs" {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.Redis.ReconnectUnit != 500*time.Millisecond || cfg.Redis.ReconnectCap != 10*time.Second || cfg.Redis.ReconnectMaxAttempts != 20 {
		t.Fatalf("reconnect = %+v", cfg.Redis)
	}
	if cfg.Jobx.Concurrency != 5 || cfg.Jobx.ShutdownTimeout != 5*time.Second || cfg.Jobx.JobTimeout != 2*time.Minute {
		t.Fatalf("jobx = %+v", cfg.Jobx)
	}
	if cfg.Snapshot.Backend != config.BackendLocal || cfg.Server.Addr != ":8081" {
		t.Fatalf("snapshot/server = %+v %+v", cfg.Snapshot, cfg.Server)
	}

	policy, err := cfg.Jobx.RetryPolicy()
	if err != nil {
		t.Fatalf("RetryPolicy: %v", err)
	}
	if policy != jobx.DefaultRetryPolicy() {
		t.Fatalf("policy = %+v, want defaults", policy)
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"REDIS_HOST":                   "cache",
		"REDIS_TLS":                    "true",
		"REDIS_RECONNECT_MAX_ATTEMPTS": "0",
		"JOBX_CONCURRENCY":             "12",
		"JOBX_RETRY_BASE_DELAY":        "1s",
		"SNAPSHOT_BACKEND":             "s3",
		"AWS_BUCKET":                   "snaps",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Redis.Host != "cache" || !cfg.Redis.TLS || cfg.Redis.ReconnectMaxAttempts != 0 {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.Jobx.Concurrency != 12 || cfg.Jobx.RetryBaseDelay != time.Second {
		t.Fatalf("jobx = %+v", cfg.Jobx)
	}
	if got := cfg.Redis.ConnectionConfig(); got.Host != "cache" || !got.TLS {
		t.Fatalf("connection config = %+v", got)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"REDIS_PORT":              {"REDIS_PORT": "70000"},
		"REDIS_RECONNECT_CAP":     {"REDIS_RECONNECT_UNIT": "2s", "REDIS_RECONNECT_CAP": "1s"},
		"JOBX_CONCURRENCY":        {"JOBX_CONCURRENCY": "0"},
		"SNAPSHOT_BACKEND":        {"SNAPSHOT_BACKEND": "ftp"},
		"AWS_BUCKET":              {"SNAPSHOT_BACKEND": "s3"},
		"DATABASE_URL":            {"SNAPSHOT_BACKEND": "postgres"},
		"JOBX_RETRY_MAX_ATTEMPTS": {"JOBX_RETRY_MAX_ATTEMPTS": "0"},
		"PROFILE_API_BURST":       {"PROFILE_API_RATE": "5", "PROFILE_API_BURST": "0"},
		"JOBX_HEARTBEAT_INTERVAL": {"JOBX_JOB_TIMEOUT": "1m", "JOBX_HEARTBEAT_INTERVAL": "2m"},
	}
	for field, vars := range cases {
		_, err := config.LoadFrom(vars)
		if err == nil {
			t.Errorf("%s: expected error", field)
			continue
		}
		if !errx.IsType(err, errx.TypeValidation) {
			t.Errorf("%s: err type = %v", field, err)
		}
		var e *errx.Error
		if errors.As(err, &e) && errx.IsCode(err, config.ErrInvalid) && e.Details["field"] != field {
			t.Errorf("%s: field detail = %v", field, e.Details["field"])
		}
	}
}

func TestLoadFrom_ParseError(t *testing.T) {
	_, err := config.LoadFrom(map[string]string{"JOBX_CONCURRENCY": "many"})
	if !errx.IsCode(err, config.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}
