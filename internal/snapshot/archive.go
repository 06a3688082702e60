package snapshot

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relabel/relabel/internal/db"
)

// ArchiveInfo describes one published daily archive.
type ArchiveInfo struct {
	Name   string `json:"name"`
	Date   string `json:"date"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// BuildResult is what an archive build reports back: the published archive
// plus how many label files went into it.
type BuildResult struct {
	ArchiveInfo
	Files int `json:"files"`
}

// ProgressFunc receives phase/done/total while a build runs. May be nil.
type ProgressFunc func(phase string, done, total int)

// BuildDailyArchive bundles every label file uploaded on the given day
// (UTC, date as YYYY-MM-DD) into pdfs-YYYYMMDD.zip. The zip is written to
// a temp file and renamed into place, with a sha256 sidecar next to it so
// downloads can serve checksum headers without re-hashing. Cancelling the
// context abandons the build and removes the temp; whatever archive was
// published before stays untouched.
func (p *Publisher) BuildDailyArchive(ctx context.Context, date string, report ProgressFunc) (BuildResult, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return BuildResult{}, fmt.Errorf("bad archive date %q: %w", date, err)
	}
	if report == nil {
		report = func(string, int, int) {}
	}

	rows, err := db.ListTrackingFilesUploadedBetween(p.db, day, day.Add(24*time.Hour))
	if err != nil {
		return BuildResult{}, fmt.Errorf("list files for %s: %w", date, err)
	}
	report("scan", 0, len(rows))

	zdir := ZipsDir(p.dataDir)
	if err := os.MkdirAll(zdir, 0755); err != nil {
		return BuildResult{}, fmt.Errorf("create zips dir: %w", err)
	}
	name := archiveName(date)
	f, err := os.CreateTemp(zdir, name+".tmp-")
	if err != nil {
		return BuildResult{}, fmt.Errorf("create temp archive: %w", err)
	}
	tmp := f.Name()
	discard := func() {
		f.Close()
		os.Remove(tmp)
	}

	// Hash the archive bytes as they are written; zip output is strictly
	// sequential, so the digest matches the finished file.
	hash := sha256.New()
	zw := zip.NewWriter(io.MultiWriter(f, hash))
	added := 0
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			discard()
			return BuildResult{}, err
		}
		src := filepath.Join(p.dataDir, row.FilePath)
		if err := addArchiveFile(zw, src); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Warn("archive build: label file missing", "tracking_no", row.TrackingNo, "path", row.FilePath)
				continue
			}
			discard()
			return BuildResult{}, fmt.Errorf("add %s: %w", row.FilePath, err)
		}
		added++
		report("zip", i+1, len(rows))
	}
	if err := zw.Close(); err != nil {
		discard()
		return BuildResult{}, fmt.Errorf("finalize archive: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return BuildResult{}, fmt.Errorf("close archive: %w", err)
	}
	report("checksum", len(rows), len(rows))
	sum := hex.EncodeToString(hash.Sum(nil))

	final := filepath.Join(zdir, name)
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return BuildResult{}, fmt.Errorf("publish archive: %w", err)
	}
	if err := writeFileAtomic(final+".sha256", sidecarContent(sum, name)); err != nil {
		// The archive itself is published; the listing recomputes missing
		// sidecars on demand.
		slog.Warn("write checksum sidecar", "archive", name, "error", err)
	}

	st, err := os.Stat(final)
	if err != nil {
		return BuildResult{}, fmt.Errorf("stat archive: %w", err)
	}
	return BuildResult{
		ArchiveInfo: ArchiveInfo{Name: name, Date: date, Size: st.Size(), SHA256: sum},
		Files:       added,
	}, nil
}

// ListArchives returns all published archives, newest date first. Checksums
// come from the sidecars; missing sidecars are recomputed concurrently.
func (p *Publisher) ListArchives(ctx context.Context) ([]ArchiveInfo, error) {
	entries, err := os.ReadDir(ZipsDir(p.dataDir))
	if errors.Is(err, fs.ErrNotExist) {
		return []ArchiveInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read zips dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := archiveDate(e.Name()); ok {
			names = append(names, e.Name())
		}
	}

	infos := make([]ArchiveInfo, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			date, _ := archiveDate(name)
			st, err := os.Stat(filepath.Join(ZipsDir(p.dataDir), name))
			if err != nil {
				return fmt.Errorf("stat %s: %w", name, err)
			}
			sum, err := p.checksumFor(name)
			if err != nil {
				return fmt.Errorf("checksum %s: %w", name, err)
			}
			infos[i] = ArchiveInfo{Name: name, Date: date, Size: st.Size(), SHA256: sum}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Date > infos[j].Date })
	return infos, nil
}

// Dates returns the dates with a published archive, ascending.
func (p *Publisher) Dates() ([]string, error) {
	entries, err := os.ReadDir(ZipsDir(p.dataDir))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read zips dir: %w", err)
	}
	dates := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if d, ok := archiveDate(e.Name()); ok {
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// ArchiveForDate resolves a date to its published archive. Returns a nil
// info when no archive exists for that date.
func (p *Publisher) ArchiveForDate(date string) (*ArchiveInfo, string, error) {
	if _, err := time.ParseInLocation("2006-01-02", date, time.UTC); err != nil {
		return nil, "", fmt.Errorf("bad archive date %q: %w", date, err)
	}
	name := archiveName(date)
	path := filepath.Join(ZipsDir(p.dataDir), name)
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("stat archive: %w", err)
	}
	sum, err := p.checksumFor(name)
	if err != nil {
		return nil, "", err
	}
	return &ArchiveInfo{Name: name, Date: date, Size: st.Size(), SHA256: sum}, path, nil
}

func (p *Publisher) checksumFor(name string) (string, error) {
	side := filepath.Join(ZipsDir(p.dataDir), name+".sha256")
	if data, err := os.ReadFile(side); err == nil {
		if fields := strings.Fields(string(data)); len(fields) > 0 && len(fields[0]) == 64 {
			return fields[0], nil
		}
	}
	sum, err := fileSHA256(filepath.Join(ZipsDir(p.dataDir), name))
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(side, sidecarContent(sum, name)); err != nil {
		slog.Warn("write checksum sidecar", "archive", name, "error", err)
	}
	return sum, nil
}

func addArchiveFile(zw *zip.Writer, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	w, err := zw.Create(filepath.Base(src))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

func archiveName(date string) string {
	return "pdfs-" + strings.ReplaceAll(date, "-", "") + ".zip"
}

// archiveDate extracts the YYYY-MM-DD date from a pdfs-YYYYMMDD.zip name.
func archiveDate(name string) (string, bool) {
	if !strings.HasPrefix(name, "pdfs-") || !strings.HasSuffix(name, ".zip") {
		return "", false
	}
	ymd := strings.TrimSuffix(strings.TrimPrefix(name, "pdfs-"), ".zip")
	if len(ymd) != 8 {
		return "", false
	}
	for i := 0; i < len(ymd); i++ {
		if ymd[i] < '0' || ymd[i] > '9' {
			return "", false
		}
	}
	return ymd[:4] + "-" + ymd[4:6] + "-" + ymd[6:], true
}

func sidecarContent(sum, name string) []byte {
	return []byte(sum + "  " + name + "\n")
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
