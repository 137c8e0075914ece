package logging

import (
	"encoding"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// plainValue renders a value without quoting, for prefixes such as the component.
func plainValue(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return renderAny(v)
}

// quotedValue renders a key=value field value for the console.
func quotedValue(v slog.Value) string {
	v = v.Resolve()
	s := renderAny(v)
	if v.Kind() == slog.KindString || v.Kind() == slog.KindAny {
		return quoteIfNeeded(s)
	}
	return s
}

func renderAny(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		switch val := v.Any().(type) {
		case error:
			return val.Error()
		case []byte:
			// templates and keys are never dumped to the console
			return fmt.Sprintf("<%d bytes>", len(val))
		case fmt.Stringer:
			return val.String()
		case encoding.TextMarshaler:
			if text, err := val.MarshalText(); err == nil {
				return string(text)
			}
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return strconv.Quote(s)
		}
	}
	return s
}
