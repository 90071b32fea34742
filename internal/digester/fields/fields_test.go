package fields

import (
	"testing"

	"containeryard/internal/record"
)

func digest(raw string) map[string]string {
	rec := record.New("test", raw)
	New().Digest(rec)
	return rec.Fields
}

func TestExtractKV(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{
			"simple pairs",
			"method=GET status=200 duration=12.5",
			map[string]string{"method": "GET", "status": "200", "duration": "12.5"},
		},
		{
			"quoted value with spaces",
			`msg="disk is full" level=error`,
			map[string]string{"msg": "disk is full", "level": "error"},
		},
		{
			"keys normalize to lowercase",
			"Method=GET",
			map[string]string{"method": "GET"},
		},
		{
			"dotted key",
			"http.status=200",
			map[string]string{"http.status": "200"},
		},
		{
			"value case preserved",
			"service=NginxProxy",
			map[string]string{"service": "NginxProxy"},
		},
		{
			"first value wins on duplicate",
			"a=1 a=2",
			map[string]string{"a": "1"},
		},
		{"no pairs", "just plain text", nil},
		{"bare equals ignored", "x = y and a=", nil},
		{"numeric key ignored", "123=456", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := digest(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("Digest(%q) fields = %v, want %v", tt.raw, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("field %q = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{
			"flat object",
			`{"level":"error","code":500,"ok":false}`,
			map[string]string{"level": "error", "code": "500", "ok": "false"},
		},
		{
			"nested object",
			`{"http":{"method":"GET","status":200}}`,
			map[string]string{"http.method": "GET", "http.status": "200"},
		},
		{
			"invalid json falls back to kv scan",
			`{"broken":  service=nginx`,
			map[string]string{`"broken"`: "", "service": "nginx"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := digest(tt.raw)
			for k, v := range tt.want {
				if v == "" {
					if _, ok := got[k]; ok {
						t.Errorf("unexpected field %q in %v", k, got)
					}
					continue
				}
				if got[k] != v {
					t.Errorf("field %q = %q, want %q (all: %v)", k, got[k], v, got)
				}
			}
		})
	}
}

func TestDigestDoesNotClobberExistingFields(t *testing.T) {
	rec := record.New("test", "container_name=other status=200")
	rec.SetField("container_name", "web-1")

	New().Digest(rec)

	if rec.Fields["container_name"] != "web-1" {
		t.Errorf("container_name = %q, want web-1", rec.Fields["container_name"])
	}
	if rec.Fields["status"] != "200" {
		t.Errorf("status = %q, want 200", rec.Fields["status"])
	}
}
