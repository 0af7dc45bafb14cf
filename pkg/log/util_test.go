package log

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type portName string

func (p portName) String() string { return "port-" + string(p) }

func TestToFields(t *testing.T) {
	now := time.Now()
	err := errors.New("boom")

	tests := []struct {
		name  string
		input []any
		want  int
	}{
		{"empty input", []any{}, 0},
		{"string-int-bool", []any{"a", "x", "b", 123, "c", true}, 3},
		{"time type", []any{"t", now}, 1},
		{"float type", []any{"pi", 3.14}, 1},
		{"small ints", []any{"power", int8(-25), "pos", int32(90)}, 2},
		{"bytes", []any{"data", []byte("xyz")}, 1},
		{"error only", []any{err}, 1},
		{"multiple errors", []any{err, errors.New("again")}, 2},
		{"mixed field types", []any{"msg", "ok", zap.String("x", "y"), "num", 42}, 3},
		{"odd number of args", []any{"key1", "val1", "key2"}, 2},
		{"non-string key", []any{123, "value", true, 99}, 2},
		{"nil values", []any{"a", nil, "b", (*int)(nil)}, 2},
		{"stringer", []any{"port", portName("A")}, 1},
		{"string slice", []any{"ports", []string{"A", "B"}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.input...)

			if len(fields) != tt.want {
				t.Fatalf("got %d fields, want %d: %+v", len(fields), tt.want, fields)
			}

			for _, f := range fields {
				if f.Key == "" {
					t.Errorf("field has empty key: %+v", f)
				}
			}
		})
	}
}

func TestNewWithCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core).WithName("dispatch").WithValues("vehicle", "vh-1")

	l.Info("command issued", "kind", "StopDrive")
	l.Error(errors.New("link down"), "request failed", "actuator", "steering")

	if logs.Len() != 2 {
		t.Fatalf("got %d entries, want 2", logs.Len())
	}

	entry := logs.All()[1]
	if entry.LoggerName != "dispatch" {
		t.Errorf("logger name = %q, want dispatch", entry.LoggerName)
	}
	ctx := entry.ContextMap()
	if ctx["vehicle"] != "vh-1" || ctx["actuator"] != "steering" || ctx["error"] != "link down" {
		t.Errorf("unexpected context: %v", ctx)
	}
}

func TestOptionsValidate(t *testing.T) {
	o := NewOptions()
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("defaults should validate, got %v", errs)
	}

	o.Level = "loud"
	o.Format = "xml"
	if errs := o.Validate(); len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), errs)
	}
}
