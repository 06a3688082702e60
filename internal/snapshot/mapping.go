// Package snapshot owns the published on-disk artifacts: the order mapping
// snapshot clients poll, and the daily label archives. Everything lands at
// its visible path only via write-temp-then-rename, so a reader never sees
// a torn file; a failed publish leaves the previous artifact authoritative.
package snapshot

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/metrics"
)

// Data directory layout.
func MappingPath(dataDir string) string { return filepath.Join(dataDir, "mapping.json") }
func PDFDir(dataDir string) string      { return filepath.Join(dataDir, "pdfs") }
func ZipsDir(dataDir string) string     { return filepath.Join(dataDir, "zips") }

func PDFPath(dataDir, trackingNo string) string {
	return filepath.Join(PDFDir(dataDir), trackingNo+".pdf")
}

// MappingDoc is the wire shape of mapping.json.
type MappingDoc struct {
	Version  string         `json:"version"`
	Mappings []MappingEntry `json:"mappings"`
}

type MappingEntry struct {
	OrderID       string `json:"order_id"`
	CustomerOrder string `json:"customer_order"`
	TrackingNo    string `json:"tracking_no"`
}

type Publisher struct {
	db      *sql.DB
	dataDir string

	mu          sync.Mutex
	lastVersion int64
}

func NewPublisher(database *sql.DB, dataDir string) *Publisher {
	return &Publisher{db: database, dataDir: dataDir}
}

// PublishMapping serializes the full order mapping set with a fresh version
// token and atomically replaces mapping.json. Racing publishers each write
// a complete file; the last rename wins.
func (p *Publisher) PublishMapping() error {
	rows, err := db.ListOrderMappings(p.db)
	if err != nil {
		return fmt.Errorf("list order mappings: %w", err)
	}
	doc := MappingDoc{
		Version:  p.nextVersion(),
		Mappings: make([]MappingEntry, 0, len(rows)),
	}
	for _, m := range rows {
		doc.Mappings = append(doc.Mappings, MappingEntry{
			OrderID:       m.OrderID,
			CustomerOrder: m.CustomerOrder,
			TrackingNo:    m.TrackingNo,
		})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	if err := writeFileAtomic(MappingPath(p.dataDir), data); err != nil {
		return err
	}
	metrics.MappingPublishesTotal.Inc()
	return nil
}

// ReadMapping returns the currently published document. A missing file is
// not an error; clients get an empty document with the seed version.
func (p *Publisher) ReadMapping() (MappingDoc, error) {
	data, err := os.ReadFile(MappingPath(p.dataDir))
	if errors.Is(err, fs.ErrNotExist) {
		return MappingDoc{Version: "1.0", Mappings: []MappingEntry{}}, nil
	}
	if err != nil {
		return MappingDoc{}, fmt.Errorf("read mapping snapshot: %w", err)
	}
	var doc MappingDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return MappingDoc{}, fmt.Errorf("parse mapping snapshot: %w", err)
	}
	if doc.Version == "" {
		doc.Version = "1.0"
	}
	if doc.Mappings == nil {
		doc.Mappings = []MappingEntry{}
	}
	return doc, nil
}

// nextVersion derives a version token from the clock, bumped past the
// previous one so two publishes inside one tick still produce distinct,
// increasing tokens.
func (p *Publisher) nextVersion() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := time.Now().UnixNano()
	if v <= p.lastVersion {
		v = p.lastVersion + 1
	}
	p.lastVersion = v
	return strconv.FormatInt(v, 10)
}

// writeFileAtomic writes data to a uniquely named temp file in the target
// directory and renames it over path. The temp never survives a failure.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish %s: %w", filepath.Base(path), err)
	}
	return nil
}
