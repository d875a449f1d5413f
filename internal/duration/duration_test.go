package duration

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "90s", want: 90 * time.Second},
		{input: "5m", want: 5 * time.Minute},
		{input: "1h30m", want: 90 * time.Minute},
		{input: "1d", want: 24 * time.Hour},
		{input: "2w", want: 14 * 24 * time.Hour},
		{input: "invalid", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Std() != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got.Std(), tt.want)
			}
		})
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	type doc struct {
		Interval Duration `yaml:"interval"`
	}

	var d doc
	if err := yaml.Unmarshal([]byte("interval: 5m\n"), &d); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if d.Interval.Std() != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", d.Interval.Std())
	}

	if err := yaml.Unmarshal([]byte("interval: 120\n"), &d); err != nil {
		t.Fatalf("unmarshal int: %v", err)
	}
	if d.Interval.Std() != 2*time.Minute {
		t.Errorf("interval = %v, want 2m from bare seconds", d.Interval.Std())
	}

	out, err := yaml.Marshal(doc{Interval: Duration(time.Minute)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "interval: 1m0s\n" {
		t.Errorf("marshal = %q", out)
	}
}
