// Package scan runs the full capture-to-session flow: detect candidate
// stamps on a sheet image, classify and identify the survivors, then
// persist a complete session record. The CLI and the HTTP server both
// drive the same Runner.
package scan

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/alainbuyze/stampscan/internal/detection"
	"github.com/alainbuyze/stampscan/internal/identify"
	"github.com/alainbuyze/stampscan/internal/imaging"
	"github.com/alainbuyze/stampscan/internal/session"
)

// Runner executes scans. The identification engine may be nil, in which
// case accepted candidates are recorded as pending instead of searched.
type Runner struct {
	pipeline *detection.Pipeline
	engine   *identify.Engine
	recorder *session.Recorder
}

// NewRunner wires a runner from its stages.
func NewRunner(pipeline *detection.Pipeline, engine *identify.Engine, recorder *session.Recorder) *Runner {
	return &Runner{pipeline: pipeline, engine: engine, recorder: recorder}
}

// Result is what a completed scan returns to the caller.
type Result struct {
	Session *session.ScanSession
	Summary session.Summary
	Elapsed time.Duration
}

// ScanFile loads an image from disk and scans it.
func (r *Runner) ScanFile(ctx context.Context, path string) (*Result, error) {
	img, err := imaging.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return r.Scan(ctx, img, session.SourceFile, path)
}

// Scan runs the pipeline over one image and persists the session.
//
// A cancelled context aborts before anything is written: partially
// identified sessions are never recorded. Per-candidate identification
// failures do not abort the scan; they surface as no-match records with
// an error note.
func (r *Runner) Scan(ctx context.Context, img image.Image, source session.Source, sourcePath string) (*Result, error) {
	start := time.Now()

	accepted, rejected, err := r.pipeline.DetectStamps(img)
	if err != nil {
		return nil, fmt.Errorf("detecting stamps: %w", err)
	}
	slog.Info("detection complete",
		"accepted", len(accepted), "rejected", len(rejected), "source", string(source))

	sess := session.New(source, sourcePath, img)
	sess.AddRejected(rejected)

	if r.engine != nil && len(accepted) > 0 {
		batch, err := r.engine.Identify(ctx, accepted)
		if err != nil {
			return nil, fmt.Errorf("identifying stamps: %w", err)
		}
		sess.AddIdentifications(batch)
	} else {
		// No engine configured: record accepted candidates as pending so
		// they can be identified later.
		sess.AddPending(accepted)
	}

	dir, err := r.recorder.Save(sess)
	if err != nil {
		return nil, err
	}

	sum := sess.Summary()
	slog.Info("session saved",
		"session_id", sess.SessionID,
		"dir", dir,
		"identified", sum.Identified,
		"ambiguous", sum.Ambiguous,
		"no_match", sum.NoMatch,
		"rejected", sum.Rejected)

	return &Result{
		Session: sess,
		Summary: sum,
		Elapsed: time.Since(start),
	}, nil
}
