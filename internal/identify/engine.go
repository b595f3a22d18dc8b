package identify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alainbuyze/stampscan/internal/detection"
)

// MatchConfidence is the three-way outcome of comparing a candidate
// against the catalog index.
type MatchConfidence string

const (
	// ConfidenceAutoAccept: the best score reached the auto threshold; a
	// single match is recorded and no disambiguation is needed.
	ConfidenceAutoAccept MatchConfidence = "auto_accept"
	// ConfidenceAmbiguous: plausible matches exist but none is certain;
	// the top matches are recorded for manual selection, none is applied.
	ConfidenceAmbiguous MatchConfidence = "ambiguous"
	// ConfidenceNoMatch: nothing scored above the floor; the crop is
	// flagged for manual re-ingestion.
	ConfidenceNoMatch MatchConfidence = "no_match"
)

// Config holds the identification thresholds and fan-out limit.
type Config struct {
	// TopK is how many matches the index is asked for.
	TopK int `yaml:"top_k"`

	// AutoThreshold and MinThreshold delimit the decision bands. Both
	// boundaries are inclusive: a best score exactly at AutoThreshold
	// auto-accepts, exactly at MinThreshold is ambiguous.
	AutoThreshold float64 `yaml:"auto_threshold"`
	MinThreshold  float64 `yaml:"min_threshold"`

	// Concurrency bounds the number of in-flight external calls.
	Concurrency int `yaml:"concurrency"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		TopK:          3,
		AutoThreshold: 0.90,
		MinThreshold:  0.50,
		Concurrency:   4,
	}
}

// Identification is the outcome for a single candidate.
type Identification struct {
	Detection   detection.Detection
	Description string
	Matches     []Match
	Confidence  MatchConfidence

	// ErrorNote is set when an external collaborator failed for this
	// candidate; the candidate is then recorded as no_match.
	ErrorNote string
}

// Batch pairs the identifications with their original candidate order.
// Ephemeral: callers turn it into session records, it is never persisted
// on its own.
type Batch struct {
	Identifications []Identification
}

// AutoAccepted returns the identifications that matched with certainty.
func (b *Batch) AutoAccepted() []Identification {
	return b.filter(ConfidenceAutoAccept)
}

// Ambiguous returns the identifications needing manual selection.
func (b *Batch) Ambiguous() []Identification {
	return b.filter(ConfidenceAmbiguous)
}

// NoMatch returns the identifications flagged for re-ingestion.
func (b *Batch) NoMatch() []Identification {
	return b.filter(ConfidenceNoMatch)
}

func (b *Batch) filter(c MatchConfidence) []Identification {
	var out []Identification
	for _, id := range b.Identifications {
		if id.Confidence == c {
			out = append(out, id)
		}
	}
	return out
}

// Engine runs identification for a batch of accepted candidates.
type Engine struct {
	describer Describer
	embedder  Embedder
	index     Index
	cfg       Config
}

// NewEngine assembles the engine from its external collaborators.
func NewEngine(describer Describer, embedder Embedder, index Index, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Engine{
		describer: describer,
		embedder:  embedder,
		index:     index,
		cfg:       cfg,
	}
}

// Identify processes every accepted candidate and returns the batch in the
// original candidate order.
//
// Candidates are dispatched to the external describer/embedder/index
// concurrently, bounded by Config.Concurrency, because those calls are the
// only blocking I/O in the pipeline. No candidate's outcome depends on
// another's, so completion order is irrelevant; results land in a slice
// indexed by position.
//
// One candidate's external failure never aborts the batch: the candidate
// is recorded as no_match with an error note and processing continues.
// Cancellation is whole-batch: once ctx is done no new external call
// starts, in-flight calls run to completion, and Identify returns the
// context error so the caller skips persisting the session.
func (e *Engine) Identify(ctx context.Context, accepted []detection.Detection) (*Batch, error) {
	results := make([]Identification, len(accepted))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, e.cfg.Concurrency)

	for i, det := range accepted {
		if err := ctx.Err(); err != nil {
			// Let committed calls finish, then report the cancellation.
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		go func(idx int, det detection.Detection) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			// A goroutine parked on the semaphore can wake up after
			// cancellation; it must not start new external calls.
			if ctx.Err() != nil {
				return
			}
			results[idx] = e.identifyOne(ctx, det)
		}(i, det)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Batch{Identifications: results}, nil
}

// identifyOne runs describe -> embed -> search for a single candidate and
// applies the decision policy. External failures degrade to no_match.
func (e *Engine) identifyOne(ctx context.Context, det detection.Detection) Identification {
	id := Identification{Detection: det}

	description, err := e.describer.Describe(ctx, det.Candidate.Crop)
	if err != nil {
		slog.Warn("describer failed", "detection_id", det.Candidate.DetectionID, "err", err)
		id.Confidence = ConfidenceNoMatch
		id.ErrorNote = fmt.Sprintf("describe failed: %v", err)
		return id
	}
	id.Description = description

	vector, err := e.embedder.Embed(ctx, description)
	if err != nil {
		slog.Warn("embedder failed", "detection_id", det.Candidate.DetectionID, "err", err)
		id.Confidence = ConfidenceNoMatch
		id.ErrorNote = fmt.Sprintf("embed failed: %v", err)
		return id
	}

	matches, err := e.index.Search(ctx, vector, e.cfg.TopK, e.cfg.MinThreshold)
	if err != nil {
		slog.Warn("index search failed", "detection_id", det.Candidate.DetectionID, "err", err)
		id.Confidence = ConfidenceNoMatch
		id.ErrorNote = fmt.Sprintf("search failed: %v", err)
		return id
	}

	id.Confidence, id.Matches = e.decide(matches)

	slog.Debug("candidate identified",
		"detection_id", det.Candidate.DetectionID,
		"confidence", id.Confidence,
		"matches", len(id.Matches))
	return id
}

// decide applies the three-way policy to the index results.
//
// Boundaries are inclusive, matching the catalog's scoring convention:
// best >= AutoThreshold auto-accepts with the single best match;
// MinThreshold <= best < AutoThreshold records up to TopK matches as
// ambiguous with none auto-applied; anything lower (or an empty result)
// is no_match with an empty match list.
func (e *Engine) decide(matches []Match) (MatchConfidence, []Match) {
	if len(matches) == 0 {
		return ConfidenceNoMatch, nil
	}

	// Drop anything the index let through below the floor; scores under
	// MinThreshold never appear in results.
	filtered := matches[:0:0]
	for _, m := range matches {
		if m.Score >= e.cfg.MinThreshold {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		return ConfidenceNoMatch, nil
	}

	best := filtered[0].Score
	if best >= e.cfg.AutoThreshold {
		return ConfidenceAutoAccept, filtered[:1]
	}

	if len(filtered) > e.cfg.TopK {
		filtered = filtered[:e.cfg.TopK]
	}
	return ConfidenceAmbiguous, filtered
}
