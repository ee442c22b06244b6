package database

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxOpenConns != 25 {
		t.Errorf("expected MaxOpenConns=25, got %d", config.MaxOpenConns)
	}
	if config.MaxIdleConns != 5 {
		t.Errorf("expected MaxIdleConns=5, got %d", config.MaxIdleConns)
	}
	if config.RetryAttempts != 3 {
		t.Errorf("expected RetryAttempts=3, got %d", config.RetryAttempts)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  &Config{DSN: "postgres://localhost:5432/test", MaxOpenConns: 10, MaxIdleConns: 2, RetryAttempts: 3, RetryDelay: time.Second},
			wantErr: false,
		},
		{
			name:    "empty DSN",
			config:  &Config{},
			wantErr: true,
		},
		{
			name:    "applies defaults for missing values",
			config:  &Config{DSN: "postgres://localhost:5432/test"},
			wantErr: false,
		},
		{
			name:    "clamps idle above open",
			config:  &Config{DSN: "postgres://localhost:5432/test", MaxOpenConns: 5, MaxIdleConns: 50},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.config.MaxIdleConns > tt.config.MaxOpenConns {
				t.Errorf("MaxIdleConns %d exceeds MaxOpenConns %d", tt.config.MaxIdleConns, tt.config.MaxOpenConns)
			}
		})
	}
}

func TestPostgresURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@host/db":    "postgres://u:p@host/db",
		"postgresql://u:p@host/db":  "postgresql://u:p@host/db",
		"host=localhost dbname=foo": "postgres://host=localhost dbname=foo",
	}
	for in, want := range cases {
		if got := postgresURL(in); got != want {
			t.Errorf("postgresURL(%q) = %q, want %q", in, got, want)
		}
	}
}
