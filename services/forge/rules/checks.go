// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Check is a typed rule predicate.
//
// Evaluate returns whether the content passes and, on failure, a
// message explaining what was found.
type Check interface {
	Evaluate(content []byte, path string) (passed bool, detail string)
}

// RequiredMarker passes when the marker string appears in the content.
type RequiredMarker struct {
	Marker string
}

func (c RequiredMarker) Evaluate(content []byte, _ string) (bool, string) {
	if strings.Contains(string(content), c.Marker) {
		return true, ""
	}
	return false, fmt.Sprintf("required marker %q not found", c.Marker)
}

// ForbiddenMarker passes when the marker string does not appear.
type ForbiddenMarker struct {
	Marker string
}

func (c ForbiddenMarker) Evaluate(content []byte, _ string) (bool, string) {
	if !strings.Contains(string(content), c.Marker) {
		return true, ""
	}
	return false, fmt.Sprintf("forbidden marker %q present", c.Marker)
}

// PatternCheck applies a compiled regular expression. MustMatch selects
// whether a match is required or prohibited.
type PatternCheck struct {
	Pattern   *regexp.Regexp
	MustMatch bool
}

func (c PatternCheck) Evaluate(content []byte, _ string) (bool, string) {
	matched := c.Pattern.Match(content)
	if matched == c.MustMatch {
		return true, ""
	}
	if c.MustMatch {
		return false, fmt.Sprintf("pattern %q not matched", c.Pattern.String())
	}
	return false, fmt.Sprintf("prohibited pattern %q matched", c.Pattern.String())
}

// RangeCheck passes when the numeric value at a dotted key falls within
// [Min, Max]. A missing key or non-numeric value fails.
type RangeCheck struct {
	Key string
	Min float64
	Max float64
}

func (c RangeCheck) Evaluate(content []byte, _ string) (bool, string) {
	v, ok := lookupKey(content, c.Key)
	if !ok {
		return false, fmt.Sprintf("key %q not found", c.Key)
	}
	n, ok := asFloat(v)
	if !ok {
		return false, fmt.Sprintf("key %q is not numeric: %v", c.Key, v)
	}
	if n < c.Min || n > c.Max {
		return false, fmt.Sprintf("key %q = %v outside range [%v, %v]", c.Key, n, c.Min, c.Max)
	}
	return true, ""
}

// EnumCheck passes when the value at a dotted key is one of the allowed
// values. A missing key fails.
type EnumCheck struct {
	Key     string
	Allowed []string
}

func (c EnumCheck) Evaluate(content []byte, _ string) (bool, string) {
	v, ok := lookupKey(content, c.Key)
	if !ok {
		return false, fmt.Sprintf("key %q not found", c.Key)
	}
	s := fmt.Sprintf("%v", v)
	for _, allowed := range c.Allowed {
		if s == allowed {
			return true, ""
		}
	}
	return false, fmt.Sprintf("key %q = %q not in %v", c.Key, s, c.Allowed)
}

// FanOutCheck limits reference fan-out per file, a structural proxy for
// layering violations: a document aliasing too many anchors is coupling
// to too much of the configuration surface.
type FanOutCheck struct {
	Max int
}

// aliasPattern matches alias usages outside of scalar context closely
// enough for a heuristic count.
var aliasPattern = regexp.MustCompile(`(^|[\s,\[{:])\*[A-Za-z0-9_-]+`)

func (c FanOutCheck) Evaluate(content []byte, _ string) (bool, string) {
	count := 0
	for _, line := range strings.Split(string(content), "\n") {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		count += len(aliasPattern.FindAllString(line, -1))
	}
	if count <= c.Max {
		return true, ""
	}
	return false, fmt.Sprintf("reference fan-out %d exceeds limit %d", count, c.Max)
}

// CustomCheck wraps a caller-supplied predicate.
type CustomCheck struct {
	Fn func(content []byte, path string) (bool, string)
}

func (c CustomCheck) Evaluate(content []byte, path string) (bool, string) {
	return c.Fn(content, path)
}

// lookupKey resolves a dotted key ("server.port") in YAML content.
func lookupKey(content []byte, key string) (any, bool) {
	var root map[string]any
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, false
	}

	var current any = root
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// asFloat widens YAML numeric types to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
