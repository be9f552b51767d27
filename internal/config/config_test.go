package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Master.TLS != "preferred" {
		t.Errorf("expected master TLS 'preferred', got %s", cfg.Master.TLS)
	}
	if cfg.Master.MaxConnections != 10 {
		t.Errorf("expected master max_connections 10, got %d", cfg.Master.MaxConnections)
	}
	if cfg.Slave.MaxIdleConnections != 5 {
		t.Errorf("expected slave max_idle_connections 5, got %d", cfg.Slave.MaxIdleConnections)
	}

	if cfg.Sync.Limit != 5000 {
		t.Errorf("expected limit 5000, got %d", cfg.Sync.Limit)
	}
	if cfg.Sync.Workers != 1 {
		t.Errorf("expected workers 1, got %d", cfg.Sync.Workers)
	}
	if cfg.Sync.MaxRetries != 3 {
		t.Errorf("expected max_retries 3, got %d", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.CheckpointTable != "mysql_sync_runtime" {
		t.Errorf("expected checkpoint_table mysql_sync_runtime, got %s", cfg.Sync.CheckpointTable)
	}
	if !cfg.Sync.Lock {
		t.Errorf("expected lock enabled by default")
	}
	if cfg.Sync.MaxBatchesPerTable != 0 {
		t.Errorf("expected unbounded batches by default, got %d", cfg.Sync.MaxBatchesPerTable)
	}

	if cfg.Verification.Method != "count" {
		t.Errorf("expected verification method 'count', got %s", cfg.Verification.Method)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected log format 'text', got %s", cfg.Logging.Format)
	}
}

func TestSyncConfigDurations(t *testing.T) {
	s := SyncConfig{SleepSeconds: 0.25, RetryBackoffSeconds: 1.5, QueryTimeoutSeconds: 30}

	if s.Sleep() != 250*time.Millisecond {
		t.Errorf("expected 250ms sleep, got %s", s.Sleep())
	}
	if s.RetryBackoff() != 1500*time.Millisecond {
		t.Errorf("expected 1.5s backoff, got %s", s.RetryBackoff())
	}
	if s.QueryTimeout() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", s.QueryTimeout())
	}
}

func TestSyncConfigSelects(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		table   string
		want    bool
	}{
		{"no filters", nil, nil, "orders", true},
		{"include match", []string{"ord*"}, nil, "orders", true},
		{"include miss", []string{"ord*"}, nil, "users", false},
		{"exclude match", nil, []string{"tmp_*"}, "tmp_orders", false},
		{"exclude wins over include", []string{"*"}, []string{"audit"}, "audit", false},
		{"exact include", []string{"users", "orders"}, nil, "orders", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SyncConfig{Include: tt.include, Exclude: tt.exclude}
			if got := s.Selects(tt.table); got != tt.want {
				t.Errorf("Selects(%q) = %v, want %v", tt.table, got, tt.want)
			}
		})
	}
}

func TestIsNetworked(t *testing.T) {
	for driver, want := range map[string]bool{
		DriverMySQL:    true,
		DriverPostgres: true,
		DriverSQLite:   false,
	} {
		db := DatabaseConfig{Driver: driver}
		if db.IsNetworked() != want {
			t.Errorf("IsNetworked(%s) = %v, want %v", driver, db.IsNetworked(), want)
		}
	}
}
