package level

import (
	"testing"

	"containeryard/internal/record"
)

func TestDigestFromRaw(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"kv lowercase", "ts=now level=error msg=boom", "error"},
		{"kv quoted", `ts=now level="warn" msg=slow`, "warn"},
		{"kv severity key", "severity=debug starting up", "debug"},
		{"json", `{"level":"info","msg":"ok"}`, "info"},
		{"json severity", `{"severity": "fatal"}`, "fatal"},
		{"yaml-ish colon", "level: trace loading config", "trace"},
		{"syslog err", "<3>kernel: oops", "error"},
		{"syslog warning", "<12>daemon: careful", "warn"},
		{"syslog crit maps to fatal", "<2>kernel: dead", "fatal"},
		{"syslog debug", "<7>daemon: details", "debug"},
		{"bracketed", "[ERROR] disk full", "error"},
		{"bracketed lowercase", "[warn] disk almost full", "warn"},
		{"colon suffix", "ERROR: disk full", "error"},
		{"uppercase bare", "2024-01-01 12:00:00 WARN something", "warn"},
		{"critical aliases to fatal", "level=critical power lost", "fatal"},
		{"err alias", "level=err io failure", "error"},
		{"lowercase bare word ignored", "user info updated", ""},
		{"level word too deep ignored", "a b c d e ERROR late", ""},
		{"sublevel key ignored", "sublevel=error nothing here", ""},
		{"no level", "just some text", ""},
		{"unknown value", "level=verbose noisy", ""},
	}

	d := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record.New("test", tt.raw)
			d.Digest(rec)
			if rec.Level != tt.want {
				t.Errorf("Digest(%q) level = %q, want %q", tt.raw, rec.Level, tt.want)
			}
		})
	}
}

func TestDigestPrecedence(t *testing.T) {
	d := New()

	t.Run("existing level wins", func(t *testing.T) {
		rec := record.New("test", "level=error boom")
		rec.Level = "info"
		d.Digest(rec)
		if rec.Level != "info" {
			t.Errorf("level = %q, want info", rec.Level)
		}
	})

	t.Run("field level wins over raw", func(t *testing.T) {
		rec := record.New("test", "[ERROR] boom")
		rec.SetField("level", "warn")
		d.Digest(rec)
		if rec.Level != "warn" {
			t.Errorf("level = %q, want warn", rec.Level)
		}
	})

	t.Run("unknown field level leaves record alone", func(t *testing.T) {
		rec := record.New("test", "[ERROR] boom")
		rec.SetField("level", "bogus")
		d.Digest(rec)
		if rec.Level != "" {
			t.Errorf("level = %q, want empty", rec.Level)
		}
	})
}
