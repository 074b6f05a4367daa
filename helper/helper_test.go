package helper

import (
	"testing"
	"time"

	"github.com/BenjaminRains/etlpipe/logger"
)

func TestGetStringFromInterface(t *testing.T) {
	log := logger.NewLogger("etlpipe", "error", false)
	ts := time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		input    interface{}
		expected string
	}{
		{int64(9321), "9321"},
		{"abc", "abc"},
		{float64(1.25), "1.25"},
		{ts, "2024-01-10 09:30:00"},
		{[]uint8("bytes"), "bytes"},
		{true, "true"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := GetStringFromInterface(log, tt.input); got != tt.expected {
			t.Errorf("GetStringFromInterface(%v) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestStringSliceToOrderedMapRoundTrip(t *testing.T) {
	log := logger.NewLogger("etlpipe", "error", false)
	in := []string{"col1", "col2", "col3"}
	m := StringSliceToOrderedMap(in)
	out := make([]string, len(in))
	idx := 0
	OrderedMapValuesToStringSlice(log, m, &out, &idx)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("expected %v at index %v, got %v", in[i], i, out[i])
		}
	}
}

func TestCsvToStringSliceTrimSpaces(t *testing.T) {
	got := CsvToStringSliceTrimSpaces(" patient , appointment,payment ")
	if len(got) != 3 || got[0] != "patient" || got[1] != "appointment" || got[2] != "payment" {
		t.Fatalf("unexpected slice: %v", got)
	}
	if CsvToStringSliceTrimSpaces("  ") != nil {
		t.Fatal("expected nil slice for blank input")
	}
}

func TestAtomBool(t *testing.T) {
	var b AtomBool
	if b.Get() {
		t.Fatal("expected false by default")
	}
	b.Set(true)
	if !b.Get() {
		t.Fatal("expected true after Set(true)")
	}
	b.Set(false)
	if b.Get() {
		t.Fatal("expected false after Set(false)")
	}
}
