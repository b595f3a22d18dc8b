package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alainbuyze/stampscan/internal/detection"
	"github.com/alainbuyze/stampscan/internal/imaging"
)

// ErrNotFound is returned when a session ID has no directory on disk.
var ErrNotFound = errors.New("session: not found")

const (
	recordFile    = "session.json"
	originalFile  = "original.png"
	annotatedFile = "annotated.png"
	cropsDir      = "crops"
	pendingDir    = "pending"
	resolvedDir   = "resolved"
)

// Recorder persists sessions under a root directory. Layout:
//
//	<root>/sessions/<session_id>/session.json
//	<root>/sessions/<session_id>/original.png
//	<root>/sessions/<session_id>/annotated.png
//	<root>/sessions/<session_id>/crops/NNN_<status>_<suffix>.png
//	<root>/pending/<session_id>_<detection_id>.png
//	<root>/resolved/<session_id>_<detection_id>.png
//
// The directory tree is the source of truth; the optional SQLite index is
// a cache over it.
type Recorder struct {
	root  string
	index *Index
}

// NewRecorder creates the root layout if missing. index may be nil.
func NewRecorder(root string, index *Index) (*Recorder, error) {
	for _, dir := range []string{
		filepath.Join(root, "sessions"),
		filepath.Join(root, pendingDir),
		filepath.Join(root, resolvedDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating session root: %w", err)
		}
	}
	return &Recorder{root: root, index: index}, nil
}

// Root returns the recorder's base directory.
func (r *Recorder) Root() string { return r.root }

// Save persists the session atomically and returns the final session
// directory. Everything is written into a temporary sibling directory
// first and renamed into place, so a crash mid-save never leaves a
// partial session visible. On any write failure the temporary directory
// is removed and nothing is recorded.
func (r *Recorder) Save(sess *ScanSession) (string, error) {
	final := r.sessionDir(sess.SessionID)
	tmp := final + ".tmp"
	if err := r.writeAll(tmp, sess); err != nil {
		if rmErr := os.RemoveAll(tmp); rmErr != nil {
			slog.Warn("cleaning up partial session", "dir", tmp, "error", rmErr)
		}
		return "", fmt.Errorf("saving session %s: %w", sess.SessionID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		if rmErr := os.RemoveAll(tmp); rmErr != nil {
			slog.Warn("cleaning up partial session", "dir", tmp, "error", rmErr)
		}
		return "", fmt.Errorf("saving session %s: %w", sess.SessionID, err)
	}

	r.queueUnmatched(sess)

	if r.index != nil {
		// Index failures degrade to a warning: the directory tree is
		// authoritative and a rebuild recovers the row.
		if err := r.index.Insert(sess); err != nil {
			slog.Warn("indexing session", "session_id", sess.SessionID, "error", err)
		}
	}
	return final, nil
}

func (r *Recorder) writeAll(dir string, sess *ScanSession) error {
	if err := os.MkdirAll(filepath.Join(dir, cropsDir), 0o755); err != nil {
		return err
	}

	if sess.OriginalImage != nil {
		if err := imaging.Save(sess.OriginalImage, filepath.Join(dir, originalFile)); err != nil {
			return fmt.Errorf("writing original: %w", err)
		}
		annotated := detection.RenderOverlays(sess.OriginalImage, sess.Overlays(), detection.DefaultLineThickness)
		if err := imaging.Save(annotated, filepath.Join(dir, annotatedFile)); err != nil {
			return fmt.Errorf("writing annotated: %w", err)
		}
	}

	for i := range sess.Records {
		rec := &sess.Records[i]
		if rec.Crop == nil {
			continue
		}
		name := cropFileName(i, rec)
		if err := imaging.Save(rec.Crop, filepath.Join(dir, cropsDir, name)); err != nil {
			return fmt.Errorf("writing crop %s: %w", name, err)
		}
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, recordFile), data, 0o644); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// cropFileName builds "NNN_<status>_<suffix>.png". The suffix names the
// outcome: the catalog ID for identified stamps, the rejection reason for
// rejected ones, otherwise the shape type.
func cropFileName(ordinal int, rec *DetectionRecord) string {
	status := rec.Status()
	suffix := string(rec.ShapeType)
	switch status {
	case StatusIdentified:
		if m, ok := rec.TopMatch(); ok {
			suffix = m.CatalogID
		}
	case StatusRejected:
		if rec.RejectReason != "" {
			suffix = rec.RejectReason
		}
	case StatusNoMatch:
		suffix = "unmatched"
	}
	return fmt.Sprintf("%03d_%s_%s.png", ordinal, status, sanitize(suffix))
}

// sanitize keeps file names portable across filesystems.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// queueUnmatched copies no-match crops into the pending queue for
// re-ingestion. Ambiguous records stay out of the queue: their top
// matches are already in the session, awaiting a manual pick rather
// than a fresh search. Failures are logged, never fatal: the session
// itself is already durable.
func (r *Recorder) queueUnmatched(sess *ScanSession) {
	for i := range sess.Records {
		rec := &sess.Records[i]
		if rec.Status() != StatusNoMatch {
			continue
		}
		if rec.Crop == nil {
			continue
		}
		name := sess.SessionID + "_" + sanitize(rec.DetectionID) + ".png"
		if err := imaging.Save(rec.Crop, filepath.Join(r.root, pendingDir, name)); err != nil {
			slog.Warn("queueing crop for review", "file", name, "error", err)
		}
	}
}

func (r *Recorder) sessionDir(id string) string {
	return filepath.Join(r.root, "sessions", id)
}

// ListSessions returns the stored session IDs, most recent first. The ID
// format sorts lexicographically by creation time, so a name sort is a
// time sort.
func (r *Recorder) ListSessions() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, "sessions"))
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasSuffix(e.Name(), ".tmp") {
			ids = append(ids, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// LoadSession reads a stored session record. Images are not reloaded.
func (r *Recorder) LoadSession(id string) (*ScanSession, error) {
	data, err := os.ReadFile(filepath.Join(r.sessionDir(id), recordFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	var sess ScanSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &sess, nil
}

// AnnotatedPath returns the annotated image path for a stored session.
func (r *Recorder) AnnotatedPath(id string) string {
	return filepath.Join(r.sessionDir(id), annotatedFile)
}

// PendingCrops lists the file names queued for manual review, oldest
// first.
func (r *Recorder) PendingCrops() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, pendingDir))
	if err != nil {
		return nil, fmt.Errorf("listing pending crops: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".png") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// PendingCropPath returns the on-disk path of a queued crop.
func (r *Recorder) PendingCropPath(name string) string {
	return filepath.Join(r.root, pendingDir, filepath.Base(name))
}

// ResolvePending moves a reviewed crop out of the queue into resolved/.
func (r *Recorder) ResolvePending(name string) error {
	base := filepath.Base(name)
	src := filepath.Join(r.root, pendingDir, base)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("pending crop %s: %w", base, ErrNotFound)
		}
		return fmt.Errorf("resolving crop %s: %w", base, err)
	}
	dst := filepath.Join(r.root, resolvedDir, base)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("resolving crop %s: %w", base, err)
	}
	return nil
}

// LoadCrop reads one stored crop image from a session.
func (r *Recorder) LoadCrop(id, name string) (image.Image, error) {
	path := filepath.Join(r.sessionDir(id), cropsDir, filepath.Base(name))
	img, err := imaging.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading crop %s/%s: %w", id, name, err)
	}
	return img, nil
}
