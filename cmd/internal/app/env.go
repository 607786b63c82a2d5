package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envPrefix namespaces every roomlog setting.
const envPrefix = "ROOMLOG_"

// envReader reads ROOMLOG_* settings. Unset or blank values take the default; values that
// are set but do not parse are recorded and also take the default, so a single Err lists
// every bad setting at startup.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

// newEnvReader reads from lookup (os.LookupEnv when nil).
func newEnvReader(lookup func(string) (string, bool)) *envReader {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &envReader{lookup: lookup}
}

func (e *envReader) raw(key string) (string, string, bool) {
	name := envPrefix + key
	v, ok := e.lookup(name)
	v = strings.TrimSpace(v)
	return name, v, ok && v != ""
}

func (e *envReader) invalid(name, v, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: want %s", name, v, want))
}

// Err joins every invalid setting seen so far.
func (e *envReader) Err() error { return errors.Join(e.errs...) }

func (e *envReader) String(key, def string) string {
	if _, v, ok := e.raw(key); ok {
		return v
	}
	return def
}

// OneOf reads a case-insensitive enum.
func (e *envReader) OneOf(key, def string, allowed ...string) string {
	name, v, ok := e.raw(key)
	if !ok {
		return def
	}
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return a
		}
	}
	e.invalid(name, v, "one of "+strings.Join(allowed, ", "))
	return def
}

func (e *envReader) Bool(key string, def bool) bool {
	name, v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.invalid(name, v, "a boolean")
		return def
	}
	return b
}

// Int reads an int no smaller than floor.
func (e *envReader) Int(key string, def, floor int) int {
	name, v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		e.invalid(name, v, fmt.Sprintf("an integer >= %d", floor))
		return def
	}
	return n
}

// Int32 reads a non-negative int32 (pool sizes).
func (e *envReader) Int32(key string, def int32) int32 {
	name, v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		e.invalid(name, v, "a non-negative 32-bit integer")
		return def
	}
	return int32(n)
}

// Duration reads a positive duration ("250ms", "2m").
func (e *envReader) Duration(key string, def time.Duration) time.Duration {
	name, v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.invalid(name, v, "a positive duration")
		return def
	}
	return d
}

// CSV reads a comma separated list. Empty items are dropped; a list with no items is invalid.
func (e *envReader) CSV(key string, def []string) []string {
	name, v, ok := e.raw(key)
	if !ok {
		return def
	}
	var out []string
	for p := range strings.SplitSeq(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		e.invalid(name, v, "a comma separated list")
		return def
	}
	return out
}
