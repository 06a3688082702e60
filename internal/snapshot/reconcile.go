package snapshot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/relabel/relabel/internal/db"
)

// ReconcileResult summarizes one pass over the label directory.
type ReconcileResult struct {
	Renamed    int `json:"renamed"`
	Registered int `json:"registered"`
	Missing    int `json:"missing"`
}

// Reconcile brings the pdfs directory and the tracking rows back in line:
// file names are normalized to the tracking-number character set, files
// without a row are registered, and rows pointing at vanished files are
// counted for the caller. Imports that bypass the server (operators copying
// PDFs straight into the share) are the usual source of drift.
func (p *Publisher) Reconcile() (ReconcileResult, error) {
	var res ReconcileResult

	dir := PDFDir(p.dataDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return res, fmt.Errorf("create pdfs dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, fmt.Errorf("read pdfs dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pdf") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".pdf")
		clean := NormalizeTrackingNo(stem)
		if clean == "" {
			slog.Warn("reconcile: unusable label file name", "name", e.Name())
			continue
		}

		if clean != stem {
			target := filepath.Join(dir, clean+".pdf")
			if _, err := os.Stat(target); err == nil {
				slog.Warn("reconcile: rename target exists, skipping", "from", e.Name(), "to", clean+".pdf")
				continue
			}
			if err := os.Rename(filepath.Join(dir, e.Name()), target); err != nil {
				return res, fmt.Errorf("rename %s: %w", e.Name(), err)
			}
			res.Renamed++
		}

		tf, err := db.GetTrackingFile(p.db, clean)
		if err != nil {
			return res, fmt.Errorf("look up %s: %w", clean, err)
		}
		if tf != nil && tf.FilePath != "" {
			continue
		}
		// New file, or a row created by a print report before any import.
		info, err := os.Stat(filepath.Join(dir, clean+".pdf"))
		if err != nil {
			return res, fmt.Errorf("stat %s: %w", clean, err)
		}
		if err := db.RegisterTrackingFile(p.db, clean, filepath.Join("pdfs", clean+".pdf"), info.ModTime()); err != nil {
			return res, fmt.Errorf("register %s: %w", clean, err)
		}
		res.Registered++
	}

	rows, err := db.ListTrackingFiles(p.db, "", "")
	if err != nil {
		return res, fmt.Errorf("list tracking rows: %w", err)
	}
	for _, tf := range rows {
		if tf.FilePath == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(p.dataDir, tf.FilePath)); os.IsNotExist(err) {
			res.Missing++
		}
	}
	return res, nil
}

// NormalizeTrackingNo strips every character outside [0-9A-Za-z_-], the set
// tracking numbers and their file names are allowed to use.
func NormalizeTrackingNo(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c == '_' || c == '-' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ValidTrackingNo reports whether s is non-empty and already normalized.
// Request paths use this to reject traversal attempts before touching disk.
func ValidTrackingNo(s string) bool {
	return s != "" && NormalizeTrackingNo(s) == s
}
