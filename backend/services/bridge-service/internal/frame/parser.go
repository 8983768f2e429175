package frame

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"biotune/backend/services/bridge-service/internal/models"
)

// ErrSkip is matched by every error Parse returns. None of them are fatal;
// the caller drops the line and moves on.
var ErrSkip = errors.New("frame: skipped")

var (
	ErrEmptyFrame     = fmt.Errorf("%w: empty line", ErrSkip)
	ErrMalformedFrame = fmt.Errorf("%w: malformed frame", ErrSkip)
	ErrInvalidValue   = fmt.Errorf("%w: invalid value", ErrSkip)
)

const fieldSeparator = ","

// Parse extracts a BPM reading from one device line of the form
// "<counter>,<bpm>[.<fraction>][,...]". The value is the second field cut at
// its first '.', read as a base 10 integer.
func Parse(line []byte) (models.Reading, error) {
	text := string(bytes.TrimSpace(line))
	if text == "" {
		return models.Reading{}, ErrEmptyFrame
	}

	fields := strings.Split(text, fieldSeparator)
	if len(fields) < 2 {
		return models.Reading{}, ErrMalformedFrame
	}

	raw := fields[1]
	if idx := strings.IndexByte(raw, '.'); idx >= 0 {
		raw = raw[:idx]
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return models.Reading{}, fmt.Errorf("%w: %q", ErrInvalidValue, fields[1])
	}

	return models.Reading{Kind: models.KindBPM, Value: value}, nil
}

// Reason maps a Parse error to a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyFrame):
		return "empty"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	default:
		return "unknown"
	}
}
