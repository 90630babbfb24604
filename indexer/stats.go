package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/store"
	"golang.org/x/sync/errgroup"
)

// Stats summarizes one index.
type Stats struct {
	Descriptor Descriptor
	Keys       int
	Entries    int
}

// StatsTarget names an index and the ordering its database was created
// with.
type StatsTarget struct {
	Descriptor Descriptor
	Ordering   core.KeyOrdering
}

// BuiltinOrdering resolves the orderings that can be rebuilt from their
// name alone.
func BuiltinOrdering(name string) (core.KeyOrdering, bool) {
	switch name {
	case core.OrderingName(nil):
		return nil, true
	case core.ReverseBytes.Name():
		return core.ReverseBytes, true
	}
	return nil, false
}

// CollectStats scans the targets concurrently, at most concurrency at a
// time, each in its own read transaction. Results keep the order of
// targets.
func CollectStats(ctx context.Context, env store.Env, targets []StatsTarget, concurrency int, logger *slog.Logger) ([]Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]Stats, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := scanStats(env, t)
			if err != nil {
				return fmt.Errorf("stats for %s: %w", t.Descriptor, err)
			}
			logger.Debug("Scanned index", "indexer", t.Descriptor.String(), "keys", s.Keys, "entries", s.Entries)
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanStats(env store.Env, t StatsTarget) (s Stats, err error) {
	s.Descriptor = t.Descriptor
	db, err := env.OpenDatabase(t.Descriptor.DatabaseName(), t.Ordering)
	if err != nil {
		return s, err
	}
	tx, err := env.Begin(false)
	if err != nil {
		return s, err
	}
	defer tx.Abort()
	c, err := db.Cursor(tx)
	if err != nil {
		return s, err
	}
	defer func() {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}()

	_, ok, err := c.First()
	for ; ok && err == nil; _, ok, err = c.NextNoDup() {
		n, cerr := c.Count()
		if cerr != nil {
			return s, cerr
		}
		s.Keys++
		s.Entries += n
	}
	return s, err
}
