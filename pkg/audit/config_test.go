package audit

import (
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RetentionDays != 365 {
		t.Errorf("expected RetentionDays 365, got %d", cfg.RetentionDays)
	}
	if !cfg.LogDenied {
		t.Error("expected LogDenied to be true")
	}
	if !cfg.Enabled {
		t.Error("expected Enabled to be true")
	}
}

func TestConfigApplyEnv(t *testing.T) {
	tests := []struct {
		name          string
		envs          map[string]string
		wantRetention int
		wantLogDenied bool
		wantEnabled   bool
	}{
		{
			name:          "defaults",
			envs:          map[string]string{},
			wantRetention: 365,
			wantLogDenied: true,
			wantEnabled:   true,
		},
		{
			name: "custom values",
			envs: map[string]string{
				"EDMS_AUDIT_RETENTION_DAYS": "30",
				"EDMS_AUDIT_LOG_DENIED":     "false",
				"EDMS_AUDIT_ENABLED":        "false",
			},
			wantRetention: 30,
			wantLogDenied: false,
			wantEnabled:   false,
		},
		{
			name:          "zero retention disables cleanup",
			envs:          map[string]string{"EDMS_AUDIT_RETENTION_DAYS": "0"},
			wantRetention: 0,
			wantLogDenied: true,
			wantEnabled:   true,
		},
		{
			name:          "invalid retention keeps default",
			envs:          map[string]string{"EDMS_AUDIT_RETENTION_DAYS": "invalid"},
			wantRetention: 365,
			wantLogDenied: true,
			wantEnabled:   true,
		},
		{
			name:          "negative retention keeps default",
			envs:          map[string]string{"EDMS_AUDIT_RETENTION_DAYS": "-5"},
			wantRetention: 365,
			wantLogDenied: true,
			wantEnabled:   true,
		},
		{
			name:          "unparseable bool keeps default",
			envs:          map[string]string{"EDMS_AUDIT_ENABLED": "maybe"},
			wantRetention: 365,
			wantLogDenied: true,
			wantEnabled:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envs {
				t.Setenv(k, v)
			}

			cfg := DefaultConfig()
			cfg.ApplyEnv()

			if cfg.RetentionDays != tt.wantRetention {
				t.Errorf("RetentionDays = %d, want %d", cfg.RetentionDays, tt.wantRetention)
			}
			if cfg.LogDenied != tt.wantLogDenied {
				t.Errorf("LogDenied = %v, want %v", cfg.LogDenied, tt.wantLogDenied)
			}
			if cfg.Enabled != tt.wantEnabled {
				t.Errorf("Enabled = %v, want %v", cfg.Enabled, tt.wantEnabled)
			}
		})
	}
}
