// Package duration разбирает человекочитаемые длительности: "5m", "5 minutes",
// "1.5h", "2 days", а также голые миллисекунды ("300000" или число).
package duration

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
	year = time.Duration(365.25 * float64(day))
)

// ErrInvalid — строка не соответствует грамматике.
var ErrInvalid = errors.New("duration: invalid value")

var grammar = regexp.MustCompile(`(?i)^(-?(?:\d+)?\.?\d+) *(milliseconds?|msecs?|ms|seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h|days?|d|weeks?|w|years?|yrs?|y)?$`)

// Parse разбирает строку. Без единицы измерения значение — миллисекунды.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 100 {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	m := grammar.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	d, ok := scale(n, unit(strings.ToLower(m[2])))
	if !ok {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalid, s)
	}
	return d, nil
}

func unit(u string) time.Duration {
	switch u {
	case "years", "year", "yrs", "yr", "y":
		return year
	case "weeks", "week", "w":
		return week
	case "days", "day", "d":
		return day
	case "hours", "hour", "hrs", "hr", "h":
		return time.Hour
	case "minutes", "minute", "mins", "min", "m":
		return time.Minute
	case "seconds", "second", "secs", "sec", "s":
		return time.Second
	default:
		return time.Millisecond
	}
}

// scale умножает n на единицу; ok == false, если результат не помещается в time.Duration.
func scale(n float64, u time.Duration) (time.Duration, bool) {
	v := math.Round(n * float64(u))
	if math.IsNaN(v) || math.Abs(v) >= math.MaxInt64 {
		return 0, false
	}
	return time.Duration(v), true
}

// Millis переводит число миллисекунд в time.Duration.
func Millis(ms float64) (time.Duration, error) {
	d, ok := scale(ms, time.Millisecond)
	if !ok {
		return 0, fmt.Errorf("%w: %v ms out of range", ErrInvalid, ms)
	}
	return d, nil
}

// FromValue принимает time.Duration, числа (миллисекунды) и строки грамматики.
func FromValue(v any) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		return t, nil
	case int:
		return Millis(float64(t))
	case int32:
		return Millis(float64(t))
	case int64:
		return Millis(float64(t))
	case uint:
		return Millis(float64(t))
	case uint32:
		return Millis(float64(t))
	case uint64:
		return Millis(float64(t))
	case float32:
		return Millis(float64(t))
	case float64:
		return Millis(t)
	case string:
		return Parse(t)
	case fmt.Stringer:
		return Parse(t.String())
	}
	return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalid, v)
}
