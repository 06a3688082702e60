// Package diskstat samples disk usage under the data directory so the
// admin dashboard can show how much room the label archive has left.
package diskstat

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Stats is a point-in-time snapshot of disk usage.
type Stats struct {
	TotalBytes   uint64    `json:"total_bytes"`
	FreeBytes    uint64    `json:"free_bytes"`
	DataDirBytes uint64    `json:"data_dir_bytes"`
	PDFBytes     uint64    `json:"pdf_bytes"`
	ZipBytes     uint64    `json:"zip_bytes"`
	CapturedAt   time.Time `json:"captured_at"`
}

// PctFree returns the percentage of disk space that is free (0-100).
func (s Stats) PctFree() float64 {
	if s.TotalBytes == 0 {
		return 100
	}
	return float64(s.FreeBytes) / float64(s.TotalBytes) * 100
}

// Cache holds the latest sample. Walking the PDF tree is too slow to do on
// every dashboard request, so a background goroutine refreshes it on a timer.
type Cache struct {
	dataDir string
	ttl     time.Duration

	mu     sync.RWMutex
	stats  Stats
	cancel context.CancelFunc
	done   chan struct{}
}

func New(dataDir string, ttl time.Duration) *Cache {
	return &Cache{dataDir: dataDir, ttl: ttl}
}

// Start samples once, then refreshes every ttl until Stop or ctx cancellation.
func (c *Cache) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.refresh()
	go c.loop(ctx)
}

func (c *Cache) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

func (c *Cache) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh()
		}
	}
}

// Get returns the latest sample, or the zero value before Start has run.
func (c *Cache) Get() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Cache) refresh() {
	total, free, err := statFS(c.dataDir)
	if err != nil {
		return // keep the previous sample
	}
	app, pdfs, zips := walkDirSizes(c.dataDir)
	c.mu.Lock()
	c.stats = Stats{
		TotalBytes:   total,
		FreeBytes:    free,
		DataDirBytes: app,
		PDFBytes:     pdfs,
		ZipBytes:     zips,
		CapturedAt:   time.Now().UTC(),
	}
	c.mu.Unlock()
}

func statFS(path string) (total, free uint64, err error) {
	var stat syscall.Statfs_t
	if err = syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize)
	return bsize * stat.Blocks, bsize * stat.Bfree, nil
}

func walkDirSizes(dataDir string) (total, pdfs, zips uint64) {
	filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size := uint64(info.Size())
		total += size
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return nil
		}
		switch {
		case strings.HasPrefix(rel, "pdfs"):
			pdfs += size
		case strings.HasPrefix(rel, "zips"):
			zips += size
		}
		return nil
	})
	return
}
