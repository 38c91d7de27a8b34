package config

import (
	"encoding/json"
	"strconv"
	"sync"
)

// Option keys understood by the parser. Other keys are stored untouched.
const (
	OptChunkRatio     = "chunkRatio"
	OptMaxArcSegments = "maxArcSegments"
	OptUnits          = "units"
	OptIncludeLayers  = "includeLayers"
)

// Options is the key/value store filled by setOption requests.
type Options struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewOptions creates an empty store.
func NewOptions() *Options {
	return &Options{values: make(map[string]interface{})}
}

// Merge copies every key of in into the store, overwriting existing keys.
func (o *Options) Merge(in map[string]interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, v := range in {
		o.values[k] = v
	}
}

// Get returns the raw value for key.
func (o *Options) Get(key string) (interface{}, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[key]
	return v, ok
}

// Snapshot returns a copy of all stored values.
func (o *Options) Snapshot() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]interface{}, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}

// Float reads key as a number. Strings holding numbers are accepted.
func (o *Options) Float(key string, def float64) float64 {
	v, ok := o.Get(key)
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

// Int reads key as an integer, truncating fractional numbers.
func (o *Options) Int(key string, def int) int {
	v, ok := o.Get(key)
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return int(f)
	}
	return def
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

// Bool reads key as a boolean.
func (o *Options) Bool(key string, def bool) bool {
	v, ok := o.Get(key)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		if b, ok := ParseBool(x); ok {
			return b
		}
	}
	return def
}

// String reads key as a string.
func (o *Options) String(key string, def string) string {
	if v, ok := o.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// ApplyParser overlays recognised keys on base.
func (o *Options) ApplyParser(base ParserSettings) ParserSettings {
	if r := o.Float(OptChunkRatio, base.ChunkRatio); r > 0 && r <= 1 {
		base.ChunkRatio = r
	}
	if n := o.Int(OptMaxArcSegments, base.MaxArcSegments); n >= 8 {
		base.MaxArcSegments = n
	}
	switch u := o.String(OptUnits, base.Units); u {
	case "mm", "inch":
		base.Units = u
	}
	base.IncludeLayers = o.Bool(OptIncludeLayers, base.IncludeLayers)
	return base
}
