// Package describer implements Describer/Dedup (spec.md §4.H): turns a
// TrackingResult plus an optional cascade summary into at most one
// Observation per frame, suppressing re-reports of the same state.
//
// Grounded on original_source/streamware/smart_detector.py's
// _llm_check_change (textual similarity over prior vs current summary) and
// spec.md §9's resolved open question (dedup by semantic/structural
// comparison, not a TTL).
package describer

import (
	"strconv"
	"strings"
	"time"

	"github.com/orbo-vision/coreflow/internal/frame"
)

// Describer holds the last accepted summary and active-id set for
// deduplication across calls.
type Describer struct {
	lastSummary string
	lastActive  map[int]bool

	similarityThreshold float64 // token-overlap below this is "materially different"
}

// New creates a Describer with the default similarity threshold.
func New() *Describer {
	return &Describer{lastActive: make(map[int]bool), similarityThreshold: 0.6}
}

// Describe accepts a summary iff it is materially different by token
// overlap, or the active-id set changed since the last call, and returns
// the Observation to emit (nil if nothing should be emitted this frame).
func (d *Describer) Describe(result *frame.Result, cascadeSummary string, triggers []frame.Trigger, now time.Time) *frame.Observation {
	summary := buildSummary(result, cascadeSummary)

	idsChanged := d.idsChanged(result)
	materiallyDifferent := tokenOverlap(d.lastSummary, summary) < d.similarityThreshold

	d.lastSummary = summary
	d.lastActive = activeIDSet(result)

	if !idsChanged && !materiallyDifferent {
		return nil
	}

	matched, triggered := matchTriggers(summary, triggers, now)

	obs := &frame.Observation{
		Timestamp:       now,
		FrameSeq:        result.FrameSeq,
		Summary:         truncate(summary, 80),
		Triggered:       triggered,
		MatchedTriggers: matched,
	}
	return obs
}

func (d *Describer) idsChanged(result *frame.Result) bool {
	current := activeIDSet(result)
	if len(current) != len(d.lastActive) {
		return true
	}
	for id := range current {
		if !d.lastActive[id] {
			return true
		}
	}
	return false
}

func activeIDSet(result *frame.Result) map[int]bool {
	ids := make(map[int]bool, len(result.Active))
	for _, obj := range result.Active {
		ids[obj.ID] = true
	}
	return ids
}

// buildSummary composes a short structured summary from tracking state when
// no cascade (vision-language) summary is available, so Describer never
// depends solely on an optional stage.
func buildSummary(result *frame.Result, cascadeSummary string) string {
	if cascadeSummary != "" {
		return cascadeSummary
	}
	if result.ActiveCount == 0 {
		return "no objects tracked"
	}
	classes := make(map[string]int)
	for _, obj := range result.Active {
		classes[obj.Class]++
	}
	var parts []string
	for class, n := range classes {
		parts = append(parts, strconv.Itoa(n)+" "+class)
	}
	return strings.Join(parts, ", ")
}

// tokenOverlap returns the Jaccard overlap of whitespace-split tokens
// between a and b, used as the "cheap textual similarity test" of spec.md
// §4.H.
func tokenOverlap(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		if len(setA) == len(setB) {
			return 1
		}
		return 0
	}
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = true
	}
	return set
}

func matchTriggers(summary string, triggers []frame.Trigger, now time.Time) ([]string, bool) {
	var matched []string
	for i := range triggers {
		tr := &triggers[i]
		if tr.Pattern == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(summary), strings.ToLower(tr.Pattern)) {
			continue
		}
		cooldown := time.Duration(tr.CooldownSecs) * time.Second
		if !tr.LastTriggered.IsZero() && now.Sub(tr.LastTriggered) < cooldown {
			continue
		}
		tr.LastTriggered = now
		matched = append(matched, tr.Label)
	}
	return matched, len(matched) > 0
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
