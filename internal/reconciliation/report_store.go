package reconciliation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ReportStore persists one JSON report per reconciliation date and serves
// the latest one back by filename order.
type ReportStore interface {
	Save(report *Report) error
	Latest() (*Report, error)
}

type FileReportStore struct {
	dir string
}

func NewFileReportStore(dir string) *FileReportStore {
	return &FileReportStore{dir: dir}
}

func (s *FileReportStore) Save(report *Report) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	content, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, fmt.Sprintf("reconciliation-%s.json", report.Summary.Date))
	return os.WriteFile(path, content, 0o644)
}

func (s *FileReportStore) Latest() (*Report, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "reconciliation-") && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	// Dated filenames sort chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	content, err := os.ReadFile(filepath.Join(s.dir, names[0]))
	if err != nil {
		return nil, err
	}
	var report Report
	if err := json.Unmarshal(content, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func reportDate(t time.Time) string {
	return t.Format("2006-01-02")
}
