// Package report reads input lists and reads, merges and writes the JSON
// report artifact shared with downstream tooling. A report is an array of
// objects, each identified by its original_file key.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jmylchreest/jobctl/internal/jobs"
	"github.com/jmylchreest/jobctl/internal/models"
)

// Report keys.
const (
	KeyOriginalFile      = "original_file"
	KeyFoundBranchReport = "found_branch_report"
)

var (
	// ErrInvalidInputFile is returned for an input list that is not a
	// non-empty JSON array of strings.
	ErrInvalidInputFile = errors.New("invalid input file")

	// ErrInvalidReport is returned for a report that is not an array of objects.
	ErrInvalidReport = errors.New("invalid report")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var inputListSchema = jsonschema.MustCompileString("input-list.json", `{
	"type": "array",
	"minItems": 1,
	"items": {"type": "string", "minLength": 1}
}`)

var reportSchema = jsonschema.MustCompileString("report.json", `{
	"type": "array",
	"items": {"type": "object"}
}`)

// Entry is one report object. Keys other than the ones this package writes
// are carried through untouched.
type Entry map[string]any

// OriginalFile returns the entry's original_file value.
func (e Entry) OriginalFile() string {
	s, _ := e[KeyOriginalFile].(string)
	return s
}

// matches reports whether any string value of e equals ref.
func (e Entry) matches(ref string) bool {
	for _, v := range e {
		if s, ok := v.(string); ok && s == ref {
			return true
		}
	}
	return false
}

// LoadInputs resolves an input reference into item references. A readable
// file whose content starts with '[' must be a JSON array of paths; any other
// reference, including one that does not exist locally, is a single item.
func LoadInputs(ref string) ([]string, error) {
	info, err := os.Stat(ref)
	if err != nil || info.IsDir() {
		return []string{ref}, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}

	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(data) == 0 || data[0] != '[' {
		return []string{ref}, nil
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInputFile, ref, err)
	}
	if err := inputListSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInputFile, ref, err)
	}

	var inputs []string
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInputFile, ref, err)
	}
	return inputs, nil
}

// Load reads a report file.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidReport, path, err)
	}
	if err := reportSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidReport, path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidReport, path, err)
	}
	return entries, nil
}

// FromPaths builds a report with one entry per path, as written by discovery.
func FromPaths(paths []string) []Entry {
	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, Entry{KeyOriginalFile: p})
	}
	return entries
}

// FromOutcomes builds one entry per outcome. now replaces an unknown
// completion time when computing durations.
func FromOutcomes(outcomes []models.JobOutcome, now time.Time) []Entry {
	entries := make([]Entry, 0, len(outcomes))
	for _, o := range outcomes {
		e := Entry{
			KeyOriginalFile:  o.InputRef,
			"job_id":         o.JobID(),
			"status":         string(o.Status),
			"result":         o.Result,
			"message":        o.Message,
			"correlation_id": o.CorrelationID,
			"launched_at":    o.LaunchedAt.UTC().Format(time.RFC3339),
			"duration":       jobs.FormatDuration(o.Duration(now)),
		}
		if !o.CompletedAt.IsZero() {
			e["completed_at"] = o.CompletedAt.UTC().Format(time.RFC3339)
		}
		entries = append(entries, e)
	}
	return entries
}

// Merge overlays each update onto the first existing entry holding the
// update's original_file as any of its values, marking it found_branch_report.
// Keys only present on the existing entry are kept. Only entries of existing
// are candidates and each takes at most one update, so an input listed twice
// keeps both rows. Updates without a match are appended. The inputs are not
// modified.
func Merge(existing, updates []Entry) []Entry {
	merged := make([]Entry, len(existing))
	for i, e := range existing {
		merged[i] = cloneEntry(e)
	}
	claimed := make([]bool, len(existing))

	for _, u := range updates {
		ref := u.OriginalFile()
		idx := -1
		if ref != "" {
			for i, e := range existing {
				if !claimed[i] && e.matches(ref) {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			merged = append(merged, cloneEntry(u))
			continue
		}
		claimed[idx] = true
		for k, v := range u {
			merged[idx][k] = v
		}
		merged[idx][KeyFoundBranchReport] = true
	}
	return merged
}

func cloneEntry(e Entry) Entry {
	out := make(Entry, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Write writes entries as an indented JSON array, replacing path atomically.
func Write(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return fmt.Errorf("creating temp report: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing report: %w", err)
	}
	return nil
}

// WriteMerged merges entries into the report at path when it exists, and
// writes entries as a new report otherwise.
func WriteMerged(path string, entries []Entry) error {
	existing, err := Load(path)
	switch {
	case err == nil:
		return Write(path, Merge(existing, entries))
	case errors.Is(err, fs.ErrNotExist):
		return Write(path, entries)
	default:
		return err
	}
}
