package frame

import (
	"errors"
	"testing"

	"biotune/backend/services/bridge-service/internal/models"
)

func TestParseReadings(t *testing.T) {
	cases := []struct {
		line string
		want int
	}{
		{"12,072.5", 72},
		{"12,072", 72},
		{"0,65.2", 65},
		{"1,71.9\r", 71},
		{" 3, 88.0 ,extra", 88},
		{"4,-1.5", -1},
	}

	for _, tc := range cases {
		got, err := Parse([]byte(tc.line))
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tc.line, err)
		}
		if got.Kind != models.KindBPM || got.Value != tc.want {
			t.Fatalf("Parse(%q) = %+v, want bpm %d", tc.line, got, tc.want)
		}
	}
}

func TestParseSkips(t *testing.T) {
	cases := []struct {
		line   string
		want   error
		reason string
	}{
		{"", ErrEmptyFrame, "empty"},
		{"   \t", ErrEmptyFrame, "empty"},
		{"abc", ErrMalformedFrame, "malformed"},
		{"12,abc", ErrInvalidValue, "invalid_value"},
		{"12,", ErrInvalidValue, "invalid_value"},
		{"12,.5", ErrInvalidValue, "invalid_value"},
	}

	for _, tc := range cases {
		_, err := Parse([]byte(tc.line))
		if !errors.Is(err, tc.want) {
			t.Fatalf("Parse(%q) error = %v, want %v", tc.line, err, tc.want)
		}
		if !errors.Is(err, ErrSkip) {
			t.Fatalf("Parse(%q) error %v does not match ErrSkip", tc.line, err)
		}
		if got := Reason(err); got != tc.reason {
			t.Fatalf("Reason(%v) = %q, want %q", err, got, tc.reason)
		}
	}
}
