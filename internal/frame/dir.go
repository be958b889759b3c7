package frame

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const defaultPollInterval = 500 * time.Millisecond

// DirFeed publishes a file from disk whenever it changes. Path may name a
// file, or a directory whose newest regular file is used.
type DirFeed struct {
	Path     string
	Interval time.Duration
	Logger   *slog.Logger
}

// Run polls until ctx is cancelled.
func (d *DirFeed) Run(ctx context.Context, slot *Slot) error {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	interval := d.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	var last fileStamp
	poll := func() {
		path, stamp, err := d.newest()
		if err != nil {
			log.Debug("frame watch", "path", d.Path, "error", err)
			return
		}
		if stamp == last {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("reading frame file", "path", path, "error", err)
			return
		}
		last = stamp
		seq := slot.Put(data)
		log.Debug("frame published", "path", path, "seq", seq, "bytes", len(data))
	}

	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			poll()
		}
	}
}

type fileStamp struct {
	path    string
	size    int64
	modTime time.Time
}

func (d *DirFeed) newest() (string, fileStamp, error) {
	info, err := os.Stat(d.Path)
	if err != nil {
		return "", fileStamp{}, err
	}
	if !info.IsDir() {
		return d.Path, fileStamp{d.Path, info.Size(), info.ModTime()}, nil
	}

	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return "", fileStamp{}, err
	}
	var best fileStamp
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if best.path == "" || fi.ModTime().After(best.modTime) {
			best = fileStamp{filepath.Join(d.Path, e.Name()), fi.Size(), fi.ModTime()}
		}
	}
	if best.path == "" {
		return "", fileStamp{}, fmt.Errorf("no files in %s", d.Path)
	}
	return best.path, best, nil
}
