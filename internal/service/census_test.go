package service

import (
	"context"
	"testing"
)

func TestStaticCensusVerify(t *testing.T) {
	census := NewStaticCensus([]string{
		"dni:12.345.678-z",
		"nie:X1234567L",
		"malformed entry without separator",
	})

	tests := []struct {
		name           string
		documentType   string
		documentNumber string
		want           bool
	}{
		{"normalized entry matches", "dni", "12345678Z", true},
		{"type is case-insensitive", "DNI", "12345678Z", true},
		{"second entry", "nie", "X1234567L", true},
		{"unknown document", "dni", "99999999R", false},
		{"wrong type for known number", "nie", "12345678Z", false},
		{"malformed entries are skipped", "malformed entry without separator", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := census.Verify(context.Background(), tt.documentType, tt.documentNumber)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Verify(%q, %q) = %v, want %v", tt.documentType, tt.documentNumber, got, tt.want)
			}
		})
	}
}

func TestStaticCensusVerify_EmptyAllowList(t *testing.T) {
	census := NewStaticCensus(nil)

	got, err := census.Verify(context.Background(), "dni", "12345678Z")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got {
		t.Error("empty census verified a document")
	}
}
