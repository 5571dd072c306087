package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("BACKEND_URL", "http://backend.internal:3000/")
	t.Setenv("SESSION_SECRET", "test-session-secret-32bytes-long!")
	t.Setenv("REALTIME_BACKEND", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("BASE_URL", "")
}

func TestLoad_AllRequiredVarsSet_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// 末尾のスラッシュは除去される
	if cfg.BackendURL != "http://backend.internal:3000" {
		t.Errorf("BackendURL = %q, want %q", cfg.BackendURL, "http://backend.internal:3000")
	}
	if cfg.SessionSecret != "test-session-secret-32bytes-long!" {
		t.Errorf("SessionSecret = %q, want %q", cfg.SessionSecret, "test-session-secret-32bytes-long!")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RealtimeBackend != RealtimeMemory {
		t.Errorf("RealtimeBackend = %q, want %q", cfg.RealtimeBackend, RealtimeMemory)
	}
	if cfg.BackendTimeout != 10*time.Second {
		t.Errorf("BackendTimeout = %v, want %v", cfg.BackendTimeout, 10*time.Second)
	}
	if cfg.BackendRate != 5 {
		t.Errorf("BackendRate = %v, want %v", cfg.BackendRate, 5)
	}
	if cfg.FollowMaxAttempts != 3 {
		t.Errorf("FollowMaxAttempts = %d, want %d", cfg.FollowMaxAttempts, 3)
	}
	if cfg.FollowRetryBase != 200*time.Millisecond {
		t.Errorf("FollowRetryBase = %v, want %v", cfg.FollowRetryBase, 200*time.Millisecond)
	}
	if cfg.ProfileCacheTTL != 30*time.Second {
		t.Errorf("ProfileCacheTTL = %v, want %v", cfg.ProfileCacheTTL, 30*time.Second)
	}
	if cfg.UploadMaxSize != 5242880 {
		t.Errorf("UploadMaxSize = %d, want %d", cfg.UploadMaxSize, 5242880)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8080")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnvVars(t)

	t.Setenv("REALTIME_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("BACKEND_TIMEOUT", "3s")
	t.Setenv("BACKEND_RATE", "0.5")
	t.Setenv("FOLLOW_MAX_ATTEMPTS", "5")
	t.Setenv("FOLLOW_RETRY_BASE", "1s")
	t.Setenv("UPLOAD_MAX_SIZE", "1024")
	t.Setenv("SERVER_PORT", "3000")
	t.Setenv("BASE_URL", "https://zemong.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RealtimeBackend != RealtimeRedis {
		t.Errorf("RealtimeBackend = %q, want %q", cfg.RealtimeBackend, RealtimeRedis)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %q, want %q", cfg.RedisAddr, "redis:6379")
	}
	if cfg.RedisDB != 2 {
		t.Errorf("RedisDB = %d, want %d", cfg.RedisDB, 2)
	}
	if cfg.BackendTimeout != 3*time.Second {
		t.Errorf("BackendTimeout = %v, want %v", cfg.BackendTimeout, 3*time.Second)
	}
	if cfg.BackendRate != 0.5 {
		t.Errorf("BackendRate = %v, want %v", cfg.BackendRate, 0.5)
	}
	if cfg.FollowMaxAttempts != 5 {
		t.Errorf("FollowMaxAttempts = %d, want %d", cfg.FollowMaxAttempts, 5)
	}
	if cfg.FollowRetryBase != time.Second {
		t.Errorf("FollowRetryBase = %v, want %v", cfg.FollowRetryBase, time.Second)
	}
	if cfg.UploadMaxSize != 1024 {
		t.Errorf("UploadMaxSize = %d, want %d", cfg.UploadMaxSize, 1024)
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "3000")
	}
	if cfg.BaseURL != "https://zemong.example.com" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "https://zemong.example.com")
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	setRequiredEnvVars(t)

	t.Setenv("BACKEND_TIMEOUT", "soon")
	t.Setenv("BACKEND_RATE", "-1")
	t.Setenv("FOLLOW_MAX_ATTEMPTS", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.BackendTimeout != 10*time.Second {
		t.Errorf("BackendTimeout = %v, want %v", cfg.BackendTimeout, 10*time.Second)
	}
	if cfg.BackendRate != 5 {
		t.Errorf("BackendRate = %v, want %v", cfg.BackendRate, 5)
	}
	if cfg.FollowMaxAttempts != 3 {
		t.Errorf("FollowMaxAttempts = %d, want %d", cfg.FollowMaxAttempts, 3)
	}
}

func TestLoad_MissingBackendURL_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("BACKEND_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing BACKEND_URL, got nil")
	}
}

func TestLoad_MissingSessionSecret_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SESSION_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing SESSION_SECRET, got nil")
	}
}

func TestLoad_PostgresRequiresDatabaseURL(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("REALTIME_BACKEND", "postgres")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing DATABASE_URL, got nil")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error should mention DATABASE_URL: %v", err)
	}
}

func TestLoad_MultipleMissingVarsReportedTogether(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("BACKEND_URL", "")
	t.Setenv("SESSION_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "BACKEND_URL") || !strings.Contains(err.Error(), "SESSION_SECRET") {
		t.Errorf("error should list all missing vars: %v", err)
	}
}

func TestLoad_UnsupportedRealtimeBackend_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("REALTIME_BACKEND", "firebase")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unsupported backend, got nil")
	}
}
