// Package matcher scores a query descriptor set against the template
// population and decides whether the query shows a known object.
package matcher

import (
	"context"
	"sort"

	"github.com/centrominero/labvision/internal/orb"
	"github.com/centrominero/labvision/internal/store"
)

const maxDescriptorDistance = orb.DescriptorSize * 8

// Rejection reasons reported alongside an unrecognized result.
const (
	ReasonNoFeatures     = "no_features"
	ReasonNoTemplates    = "no_templates"
	ReasonBelowThreshold = "below_threshold"
)

// Options tune one match call. Zero values fall back to the defaults.
type Options struct {
	// MinGoodMatches is the minimum number of good descriptor pairs a
	// template needs before it counts as a candidate at all.
	MinGoodMatches int
	// MaxGoodDistance is the largest Hamming distance a mutually-nearest
	// pair may have and still count as good. Pairs between unrelated
	// descriptor sets concentrate around 128 bits; without this cutoff
	// their average distance still scores above the confidence threshold
	// and a query matching nothing would be accepted.
	MaxGoodDistance int
	// ConfidenceThreshold is the minimum best score for a positive result.
	ConfidenceThreshold float64
}

// DefaultOptions returns the tuning used in production.
func DefaultOptions() Options {
	return Options{
		MinGoodMatches:      10,
		MaxGoodDistance:     64,
		ConfidenceThreshold: 0.3,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MinGoodMatches <= 0 {
		o.MinGoodMatches = def.MinGoodMatches
	}
	if o.MaxGoodDistance <= 0 {
		o.MaxGoodDistance = def.MaxGoodDistance
	}
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = def.ConfidenceThreshold
	}
	return o
}

// Candidate is the best-scoring template for one object key.
type Candidate struct {
	Key         string  `json:"key"`
	Score       float64 `json:"score"`
	NumMatches  int     `json:"num_matches"`
	AvgDistance float64 `json:"avg_distance"`
}

// Result is the outcome of one match call.
type Result struct {
	Recognized bool        `json:"recognized"`
	Key        string      `json:"key,omitempty"`
	Score      float64     `json:"score"`
	NumMatches int         `json:"num_matches"`
	BestScore  float64     `json:"best_score"`
	Reason     string      `json:"reason,omitempty"`
	TopK       []Candidate `json:"top_k,omitempty"`
	// Partial is set when the context expired mid-scan and only part of
	// the template population was considered.
	Partial bool `json:"partial,omitempty"`
}

// Match compares the query descriptors against every template, keeps each
// object's best-scoring template, and accepts the overall best candidate
// when it clears the confidence threshold. The context is checked between
// templates; on expiry the result is computed from the templates scanned
// so far and flagged Partial.
func Match(ctx context.Context, query []orb.Descriptor, templates []store.Template, opts Options) Result {
	opts = opts.withDefaults()

	if len(query) == 0 {
		return Result{Reason: ReasonNoFeatures}
	}
	if len(templates) == 0 {
		return Result{Reason: ReasonNoTemplates}
	}

	best := make(map[string]Candidate)
	partial := false
	for i := range templates {
		if ctx.Err() != nil {
			partial = true
			break
		}
		tpl := &templates[i]
		if len(tpl.Descriptors) == 0 {
			continue
		}
		matches := orb.MatchMutual(query, tpl.Descriptors)
		good := matches[:0]
		for _, m := range matches {
			if m.Distance <= opts.MaxGoodDistance {
				good = append(good, m)
			}
		}
		if len(good) < opts.MinGoodMatches {
			continue
		}
		total := 0
		for _, m := range good {
			total += m.Distance
		}
		avg := float64(total) / float64(len(good))
		score := 1 - avg/maxDescriptorDistance
		if score < 0 {
			score = 0
		}
		cand := Candidate{Key: tpl.Key, Score: score, NumMatches: len(good), AvgDistance: avg}
		if better(cand, best[tpl.Key]) {
			best[tpl.Key] = cand
		}
	}

	if len(best) == 0 {
		return Result{Reason: ReasonBelowThreshold, Partial: partial}
	}

	ranked := make([]Candidate, 0, len(best))
	for _, c := range best {
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].NumMatches != ranked[j].NumMatches {
			return ranked[i].NumMatches > ranked[j].NumMatches
		}
		return ranked[i].Key < ranked[j].Key
	})

	top := ranked[0]
	res := Result{
		Score:      top.Score,
		NumMatches: top.NumMatches,
		BestScore:  top.Score,
		Partial:    partial,
	}
	if top.Score >= opts.ConfidenceThreshold {
		res.Recognized = true
		res.Key = top.Key
		res.TopK = clip(ranked, 5)
	} else {
		res.Reason = ReasonBelowThreshold
		res.TopK = clip(ranked, 3)
	}
	return res
}

// better reports whether a should replace b as an object's best candidate.
// Scores within 1e-6 count as equal; the tie goes to more matches.
func better(a, b Candidate) bool {
	if b.Key == "" {
		return true
	}
	diff := a.Score - b.Score
	if diff > 1e-6 {
		return true
	}
	if diff < -1e-6 {
		return false
	}
	return a.NumMatches > b.NumMatches
}

func clip(c []Candidate, n int) []Candidate {
	if len(c) > n {
		c = c[:n]
	}
	return c
}
