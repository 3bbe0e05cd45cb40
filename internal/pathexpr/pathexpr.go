// Package pathexpr evaluates dotted path expressions against decoded JSON
// objects (map[string]any / []any trees).
//
// A path is a list of segments separated by '.':
//
//	field          direct field access
//	field[]        iterate the array stored in field
//	field=value    keep the current object when field matches value
//
// Segments compose, so "steps[].activities[].objectTypeId=300" yields every
// activity whose objectTypeId is 300, and "triggers[].metaData.eventDefinitionId"
// yields every event definition id referenced by a journey's triggers.
package pathexpr

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var segmentPattern = regexp.MustCompile(`^([^.\[\]=]+)(\[\])?(?:=(.+))?$`)

type segment struct {
	field  string
	array  bool
	filter string
}

func parse(path string) ([]segment, bool) {
	parts := strings.Split(path, ".")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		m := segmentPattern.FindStringSubmatch(p)
		if m == nil {
			return nil, false
		}
		segs = append(segs, segment{
			field:  m[1],
			array:  m[2] == "[]",
			filter: m[3],
		})
	}
	return segs, true
}

// Match is a value found by EvaluateWithContext together with the merged
// fields of every object on the way to it. Deeper objects override outer ones.
type Match struct {
	Value   any
	Context map[string]any
}

// Evaluate returns every non-nil value reached by path. A malformed path
// stops matching at the bad segment and yields nothing.
func Evaluate(obj any, path string) []any {
	if path == "" || obj == nil {
		return nil
	}
	segs, ok := parse(path)
	if !ok {
		return nil
	}

	var out []any
	walk(obj, segs, nil, func(v any, _ map[string]any) {
		if v != nil {
			out = append(out, v)
		}
	}, false)
	return out
}

// EvaluateAll evaluates each path in turn and returns the combined values
// with duplicates removed, keeping first-seen order.
func EvaluateAll(obj any, paths []string) []any {
	var out []any
	seen := make(map[string]bool)
	for _, p := range paths {
		for _, v := range Evaluate(obj, p) {
			k := dedupKey(v)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

// EvaluateWithContext is Evaluate but also returns, for each value, the
// merged fields of its enclosing objects.
func EvaluateWithContext(obj any, path string) []Match {
	if path == "" || obj == nil {
		return nil
	}
	segs, ok := parse(path)
	if !ok {
		return nil
	}

	var out []Match
	walk(obj, segs, map[string]any{}, func(v any, ctx map[string]any) {
		if v != nil {
			out = append(out, Match{Value: v, Context: ctx})
		}
	}, true)
	return out
}

// FindActivitiesByType returns the activities of an automation whose
// objectTypeId equals typeID. Each activity carries the merged automation
// and step fields it was found under, with its own fields taking precedence.
func FindActivitiesByType(automation map[string]any, typeID int) []map[string]any {
	path := "steps[].activities[].objectTypeId=" + strconv.Itoa(typeID)
	matches := EvaluateWithContext(automation, path)
	out := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Context)
	}
	return out
}

// ExtractDependencyRefs evaluates each dependency type's paths against obj.
// Types with no references are omitted.
func ExtractDependencyRefs(obj any, dependencyPaths map[string][]string) map[string][]any {
	out := make(map[string][]any)
	for depType, paths := range dependencyPaths {
		if refs := EvaluateAll(obj, paths); len(refs) > 0 {
			out[depType] = refs
		}
	}
	return out
}

func walk(obj any, segs []segment, ctx map[string]any, emit func(any, map[string]any), track bool) {
	if len(segs) == 0 {
		emit(obj, ctx)
		return
	}
	if obj == nil {
		return
	}

	switch v := obj.(type) {
	case []any:
		for _, item := range v {
			walk(item, segs, ctx, emit, track)
		}
	case []map[string]any:
		for _, item := range v {
			walk(item, segs, ctx, emit, track)
		}
	case map[string]any:
		seg, rest := segs[0], segs[1:]

		next := ctx
		if track {
			next = make(map[string]any, len(ctx)+len(v))
			for k, x := range ctx {
				next[k] = x
			}
			for k, x := range v {
				next[k] = x
			}
		}

		value, ok := v[seg.field]
		if !ok || value == nil {
			return
		}

		if seg.filter != "" {
			if matches(value, seg.filter) {
				walk(v, rest, next, emit, track)
			}
			return
		}

		if seg.array {
			switch arr := value.(type) {
			case []any:
				for _, item := range arr {
					walk(item, rest, next, emit, track)
				}
			case []map[string]any:
				for _, item := range arr {
					walk(item, rest, next, emit, track)
				}
			}
			return
		}

		walk(value, rest, next, emit, track)
	}
}

// matches compares a field value with a filter literal. Integer literals
// compare numerically against numbers and all-digit strings.
func matches(value any, expected string) bool {
	if n, err := strconv.ParseInt(expected, 10, 64); err == nil {
		switch x := value.(type) {
		case int:
			return int64(x) == n
		case int64:
			return x == n
		case int32:
			return int64(x) == n
		case float64:
			return x == float64(n)
		case float32:
			return float64(x) == float64(n)
		case json.Number:
			if i, err := x.Int64(); err == nil {
				return i == n
			}
			if f, err := x.Float64(); err == nil {
				return f == float64(n)
			}
		case string:
			if isDigits(x) {
				i, err := strconv.ParseInt(x, 10, 64)
				return err == nil && i == n
			}
		}
	}
	return fmt.Sprint(value) == expected
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func dedupKey(v any) string {
	return fmt.Sprintf("%T\x00%v", v, v)
}
