package memexec

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

// EnvDiff records changes to apply on top of a base environment.
type EnvDiff struct {
	clear   bool
	sawPath bool
	vars    map[string]*string
}

// EnvVar is one entry of an EnvDiff. Removed entries delete the variable.
type EnvVar struct {
	Key     string
	Value   string
	Removed bool
}

func (d *EnvDiff) init() {
	if d.vars == nil {
		d.vars = make(map[string]*string)
	}
}

func (d *EnvDiff) notePath(key string) {
	if key == "PATH" {
		d.sawPath = true
	}
}

// Set overrides key with value.
func (d *EnvDiff) Set(key, value string) {
	d.init()
	d.notePath(key)
	d.vars[key] = &value
}

// Remove deletes key from the result. After Clear there is nothing to
// delete it from, so the key is just forgotten.
func (d *EnvDiff) Remove(key string) {
	d.init()
	d.notePath(key)
	if d.clear {
		delete(d.vars, key)
		return
	}
	d.vars[key] = nil
}

// Clear drops the base environment and every recorded change.
func (d *EnvDiff) Clear() {
	d.clear = true
	d.vars = make(map[string]*string)
}

// Cleared reports whether the base environment is dropped.
func (d *EnvDiff) Cleared() bool { return d.clear }

// Changed reports whether applying the diff can differ from the base.
func (d *EnvDiff) Changed() bool { return d.clear || len(d.vars) > 0 }

// SawPath reports whether PATH was set or removed.
func (d *EnvDiff) SawPath() bool { return d.sawPath }

// Vars returns the recorded changes sorted by key.
func (d *EnvDiff) Vars() []EnvVar {
	out := make([]EnvVar, 0, len(d.vars))
	for _, k := range slices.Sorted(maps.Keys(d.vars)) {
		v := d.vars[k]
		if v == nil {
			out = append(out, EnvVar{Key: k, Removed: true})
			continue
		}
		out = append(out, EnvVar{Key: k, Value: *v})
	}
	return out
}

// Capture applies the diff to base, given as KEY=value entries, or to an
// empty environment when cleared.
func (d *EnvDiff) Capture(base []string) map[string]string {
	result := make(map[string]string, len(base)+len(d.vars))
	if !d.clear {
		for _, kv := range base {
			// A leading = belongs to the name.
			i := strings.IndexByte(kv[min(1, len(kv)):], '=')
			if i < 0 {
				continue
			}
			i += min(1, len(kv))
			result[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range d.vars {
		if v == nil {
			delete(result, k)
			continue
		}
		result[k] = *v
	}
	return result
}

// Environ returns Capture(base) serialized as KEY=value in sorted key order.
func (d *EnvDiff) Environ(base []string) []string {
	m := d.Capture(base)
	out := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, k+"="+m[k])
	}
	return out
}

// LoadFile sets every variable defined in a dotenv file, in sorted order.
func (d *EnvDiff) LoadFile(path string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("reading env file %s: %w", path, err)
	}
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		d.Set(k, vars[k])
	}
	return nil
}
