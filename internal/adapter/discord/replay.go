package discord

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Failure dumps are named error_<uuid>.txt.
const (
	DumpPrefix = "error_"
	DumpSuffix = ".txt"
)

// ReplayResult summarizes a Replay run.
type ReplayResult struct {
	Delivered []string
	Failed    []string
}

// Replay re-sends every failure dump in the dump directory. Dumps that are
// delivered are removed; failed ones are left in place and not re-dumped.
func (d *Dispatcher) Replay(ctx context.Context) (ReplayResult, error) {
	var res ReplayResult

	paths, err := d.Dumps()
	if err != nil {
		return res, err
	}

	for _, path := range paths {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return res, fmt.Errorf("read dump %s: %w", path, err)
		}

		if _, _, err := d.attempt(ctx, body); err != nil {
			d.logger.Warn("replay failed", "path", path, "error", err)
			res.Failed = append(res.Failed, path)
			continue
		}
		if err := os.Remove(path); err != nil {
			return res, fmt.Errorf("remove delivered dump %s: %w", path, err)
		}
		res.Delivered = append(res.Delivered, path)
	}
	return res, nil
}

// Dumps lists failure dump files in name order. A missing directory yields
// no dumps.
func (d *Dispatcher) Dumps() ([]string, error) {
	entries, err := os.ReadDir(d.dumpDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list dumps: %w", err)
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, DumpPrefix) || !strings.HasSuffix(name, DumpSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(d.dumpDir, name))
	}
	sort.Strings(paths)
	return paths, nil
}
