package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/buckleypaul/fastcap/internal/label"
)

// ErrRunExists is returned when a run directory is already present.
var ErrRunExists = errors.New("store: run directory already exists")

// ReportFile is the session's append-only operator report.
const ReportFile = "report.txt"

// Session manages one session directory: per-run subdirectories with their
// label records, the run history and the session report.
type Session struct {
	root string
	mu   sync.Mutex
}

// New creates a Session rooted at an existing or new directory.
func New(root string) (*Session, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "create session directory")
	}
	return &Session{root: root}, nil
}

// NewSession allocates a timestamped session directory under root.
func NewSession(root string, now time.Time) (*Session, error) {
	return New(filepath.Join(root, now.Format("2006-01-02_150405")))
}

// Dir returns the session directory.
func (s *Session) Dir() string {
	return s.root
}

func (s *Session) historyDir() string {
	return filepath.Join(s.root, "history")
}

// AllocateRun creates the directory for run id. An existing directory is
// never reused.
func (s *Session) AllocateRun(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." || id == "history" {
		return "", errors.Errorf("store: invalid run id %q", id)
	}
	dir := filepath.Join(s.root, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return "", errors.Wrapf(ErrRunExists, "allocate %s", dir)
		}
		return "", errors.Wrapf(err, "allocate %s", dir)
	}
	return dir, nil
}

// LabelPath returns <dir>/<id>.json.
func LabelPath(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

// ShotPath returns <dir>/<n>_<id>.<ext>.
func ShotPath(dir string, n int, id, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%d_%s.%s", n, id, ext))
}

// CreateShot opens the file for shot n of run id for writing. An existing
// file is never overwritten.
func (s *Session) CreateShot(dir string, n int, id, ext string) (io.WriteCloser, error) {
	f, err := os.OpenFile(ShotPath(dir, n, id, ext), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "create shot %d", n)
	}
	return f, nil
}

// WriteLabel writes the run's label record. It refuses to overwrite.
func (s *Session) WriteLabel(dir string, rec label.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(LabelPath(dir, rec.UUID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrap(err, "write label")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "write label")
	}
	return f.Close()
}

// RecordRun appends a run record to the history.
func (s *Session) RecordRun(r RunRecord) error {
	return s.appendRecord("runs.json", r)
}

// Runs returns all run records.
func (s *Session) Runs() ([]RunRecord, error) {
	var records []RunRecord
	err := s.loadRecords("runs.json", &records)
	return records, err
}

// AddNote appends an operator note.
func (s *Session) AddNote(text string, now time.Time) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.appendRecord("notes.json", Note{Timestamp: now, Text: text})
}

// Notes returns all operator notes.
func (s *Session) Notes() ([]Note, error) {
	var records []Note
	err := s.loadRecords("notes.json", &records)
	return records, err
}

// WriteReport appends a session summary to report.txt: the operator notes
// and every run directory created so far.
func (s *Session) WriteReport(now time.Time) error {
	notes, err := s.Notes()
	if err != nil {
		return err
	}
	runs, err := s.Runs()
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== session %s report %s ===\n", filepath.Base(s.root), now.Format(time.RFC3339))
	b.WriteString("notes:\n")
	if len(notes) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, n := range notes {
		fmt.Fprintf(&b, "  [%s] %s\n", n.Timestamp.Format("15:04:05"), n.Text)
	}
	b.WriteString("runs:\n")
	if len(runs) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, r := range runs {
		fmt.Fprintf(&b, "  %s  %d/%d shots  %s\n", r.Dir, r.Shots, r.Requested, r.Outcome)
	}
	b.WriteString("\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(s.root, ReportFile), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Session) appendRecord(filename string, record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.historyDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(dir, filename)

	// A history file that cannot be read or parsed is left untouched.
	var records []json.RawMessage
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &records); err != nil {
			return errors.Wrapf(err, "parse %s", path)
		}
	case !os.IsNotExist(err):
		return err
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	records = append(records, raw)

	data, err = json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Session) loadRecords(filename string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.historyDir(), filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

// Close appends the session report.
func (s *Session) Close() error {
	return s.WriteReport(time.Now())
}
