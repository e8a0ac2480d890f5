package logger

import (
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "defaults", level: "", format: "", wantErr: false},
		{name: "debug json", level: "debug", format: "json", wantErr: false},
		{name: "warn console", level: "warn", format: "console", wantErr: false},
		{name: "invalid level", level: "verbose", format: "json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestNewDevelopment(t *testing.T) {
	logger, err := NewDevelopment()
	if err != nil {
		t.Fatalf("NewDevelopment() error = %v", err)
	}
	if !logger.Core().Enabled(-1) { // debug level
		t.Error("expected debug level enabled")
	}
}

func TestWithComponent(t *testing.T) {
	base, err := New("info", "json")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	child := WithComponent(base, "applier")
	if child == base {
		t.Error("WithComponent() should return a new logger")
	}
}
