// Package ingest implements the refresh pipeline: fetching task executions
// from the task service, parsing their classification payloads into flat
// team/role/hours triples, and rebuilding the savings table from scratch on
// every run.
package ingest

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"timesaver/internal/types"
)

// valueKind tags a top-level classification value after shape detection.
type valueKind int

const (
	kindInvalid valueKind = iota
	kindLeaf              // bare hours: key is a role, team comes from config
	kindNested            // role -> hours map: key is the team
)

// taggedValue is one top-level classification value after shape detection
// and numeric coercion.
type taggedValue struct {
	kind   valueKind
	leaf   float64
	nested map[string]float64
}

// ClassificationParser interprets the substitute payload embedded in a
// task's template metadata. The payload is one of two shapes, detected per
// top-level key: a bare number (role -> hours, with the team name coming
// from configuration) or a nested object (team -> role -> hours). A single
// task must not mix the two.
type ClassificationParser struct {
	fallbackTeam string
	logger       *slog.Logger
}

// NewClassificationParser creates a parser that uses fallbackTeam as the
// team name for single-level payloads.
func NewClassificationParser(fallbackTeam string, logger *slog.Logger) *ClassificationParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassificationParser{fallbackTeam: fallbackTeam, logger: logger}
}

// Parse flattens a classification payload into (team, role, hours) triples.
// Keys are processed in sorted order; the first valid key fixes the shape
// for the rest of the task. A key of the other shape is a mixed-nesting
// error: triples produced so far are kept, the remainder of the task is
// abandoned, and the error is returned alongside them. Malformed values
// (neither number nor object) are logged and skipped without affecting the
// shape. An absent or empty payload yields no triples and no error.
func (p *ClassificationParser) Parse(taskID string, substitute map[string]any) ([]types.ClassificationEntry, error) {
	if len(substitute) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(substitute))
	for k := range substitute {
		if k == types.EntityRefKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var entries []types.ClassificationEntry
	shape := kindInvalid

	for _, key := range keys {
		tagged := p.classify(taskID, key, substitute[key])
		if tagged.kind == kindInvalid {
			continue
		}

		if shape == kindInvalid {
			shape = tagged.kind
		} else if tagged.kind != shape {
			err := types.NewAppError(
				types.ErrCodeIngestMixedNesting,
				fmt.Sprintf("task %s mixes one-level and two-level classification at key %q", taskID, key),
				nil,
			)
			p.logger.Error("classification mixes nesting levels; abandoning remainder of task",
				"task_id", taskID,
				"key", key,
			)
			return entries, err
		}

		switch tagged.kind {
		case kindLeaf:
			entries = append(entries, types.ClassificationEntry{
				Team:      p.fallbackTeam,
				Role:      key,
				TimeSaved: tagged.leaf,
			})
		case kindNested:
			roles := make([]string, 0, len(tagged.nested))
			for role := range tagged.nested {
				roles = append(roles, role)
			}
			sort.Strings(roles)
			for _, role := range roles {
				entries = append(entries, types.ClassificationEntry{
					Team:      key,
					Role:      role,
					TimeSaved: tagged.nested[role],
				})
			}
		}
	}

	return entries, nil
}

// classify tags one top-level value as leaf, nested, or invalid, coercing
// hour values to numbers as it goes.
func (p *ClassificationParser) classify(taskID, key string, value any) taggedValue {
	switch v := value.(type) {
	case float64:
		return taggedValue{kind: kindLeaf, leaf: v}
	case int:
		return taggedValue{kind: kindLeaf, leaf: float64(v)}
	case map[string]any:
		nested := make(map[string]float64, len(v))
		for role, raw := range v {
			hours, err := coerceHours(raw)
			if err != nil {
				p.logger.Error("classification hour value is not numeric",
					"task_id", taskID,
					"team", key,
					"role", role,
					"value", raw,
				)
				// The triple is still emitted; the coerced value is zero.
			}
			nested[role] = hours
		}
		return taggedValue{kind: kindNested, nested: nested}
	default:
		p.logger.Error("classification value is neither a number nor an object; skipping key",
			"task_id", taskID,
			"key", key,
			"value", value,
		)
		return taggedValue{kind: kindInvalid}
	}
}

// coerceHours converts a role-level hour value to a float. Strings are
// parsed as integers; anything else non-numeric yields zero and an error.
func coerceHours(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", v)
		}
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", raw)
	}
}
