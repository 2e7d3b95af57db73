// Package util provides internal helpers for slgreetd.
package util

import (
	"sort"
	"strings"
)

// EnvList flattens env into sorted key=value entries. Keys that are empty
// or contain '=' are dropped.
func EnvList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		if k == "" || strings.ContainsRune(k, '=') {
			continue
		}
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// MergeEnv returns base overlaid with each of overlays in order.
func MergeEnv(base map[string]string, overlays ...map[string]string) map[string]string {
	out := make(map[string]string, len(base))
	for k, v := range base {
		out[k] = v
	}
	for _, o := range overlays {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

// ParseEnvAssignment splits "KEY=VALUE". The value may be empty.
func ParseEnvAssignment(s string) (string, string, bool) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return "", "", false
	}
	return k, v, true
}
