package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/INLOpen/atomindex/codec"
	"github.com/INLOpen/atomindex/core"
	"github.com/INLOpen/atomindex/index"
	"github.com/INLOpen/atomindex/store"
	"github.com/RoaringBitmap/roaring/roaring64"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// ManifestPath, when set, is rewritten every time an index is registered.
	ManifestPath     string
	StatsConcurrency int
	Logger           *slog.Logger
	Tracer           trace.Tracer
}

// binding is a registered indexer together with its index, with the key
// type erased.
type binding interface {
	descriptor() Descriptor
	ordering() core.KeyOrdering
	index(ctx context.Context, tx store.Txn, g Graph, id core.AtomID, atom *core.Atom) (int, error)
	unindex(ctx context.Context, tx store.Txn, g Graph, id core.AtomID, atom *core.Atom) (int, error)
	clear(tx store.Txn) (int, error)
	find(tx store.Txn, key []byte) (*index.ResultSet[core.AtomID], error)
}

type bound[K any] struct {
	idx Indexer[K]
	ix  *index.Index[K, core.AtomID]
}

func (b *bound[K]) descriptor() Descriptor     { return b.idx.Descriptor() }
func (b *bound[K]) ordering() core.KeyOrdering { return b.idx.KeyOrdering() }

func (b *bound[K]) index(ctx context.Context, tx store.Txn, g Graph, id core.AtomID, atom *core.Atom) (int, error) {
	return Index(ctx, tx, g, b.idx, id, atom, b.ix)
}

func (b *bound[K]) unindex(ctx context.Context, tx store.Txn, g Graph, id core.AtomID, atom *core.Atom) (int, error) {
	return Unindex(ctx, tx, g, b.idx, id, atom, b.ix)
}

func (b *bound[K]) clear(tx store.Txn) (int, error) { return b.ix.Clear(tx) }

func (b *bound[K]) find(tx store.Txn, key []byte) (*index.ResultSet[core.AtomID], error) {
	return b.ix.Scan(tx, index.Key(key))
}

// Manager attaches indexers to indexes in one store environment and keeps
// them up to date as atoms are added and removed.
type Manager struct {
	env    store.Env
	opts   ManagerOptions
	logger *slog.Logger
	tracer trace.Tracer

	mu       sync.RWMutex
	bindings map[Descriptor]binding
	byType   map[core.TypeHandle][]binding
	// recorded holds manifest entries of indexes not registered in this
	// process, so persisting does not forget them.
	recorded map[Descriptor]struct{}
}

// NewManager creates a manager over env and loads the manifest if one is
// configured.
func NewManager(env store.Env, opts ManagerOptions) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/INLOpen/atomindex/indexer")
	}
	if opts.StatsConcurrency <= 0 {
		opts.StatsConcurrency = 4
	}
	m := &Manager{
		env:      env,
		opts:     opts,
		logger:   logger.With("component", "IndexManager"),
		tracer:   tracer,
		bindings: make(map[Descriptor]binding),
		byType:   make(map[core.TypeHandle][]binding),
		recorded: make(map[Descriptor]struct{}),
	}
	if opts.ManifestPath != "" {
		manifest, err := LoadManifest(opts.ManifestPath)
		if err != nil {
			return nil, err
		}
		if manifest != nil {
			for _, d := range manifest.Indexes {
				m.recorded[d] = struct{}{}
			}
			m.logger.Info("Loaded index manifest", "path", opts.ManifestPath, "indexes", len(manifest.Indexes))
		}
	}
	return m, nil
}

// Register attaches idx to its index, creating the index if needed, and
// freezes idx. Registering an equal indexer again returns the existing
// index.
func Register[K any](m *Manager, idx Indexer[K]) (*index.Index[K, core.AtomID], error) {
	d := idx.Descriptor()
	if d.Type.IsZero() {
		return nil, fmt.Errorf("register %s: %w", d, ErrNoType)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bindings[d]; ok {
		existing, ok := b.(*bound[K])
		if !ok {
			return nil, fmt.Errorf("register %s: already registered with another key type", d)
		}
		return existing.ix, nil
	}

	ix, err := index.Open(m.env, index.Options[K, core.AtomID]{
		Name:       d.DatabaseName(),
		KeyCodec:   idx.KeyCodec(),
		ValueCodec: codec.AtomID{},
		Ordering:   idx.KeyOrdering(),
		Logger:     m.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", d, err)
	}
	idx.Freeze()
	b := &bound[K]{idx: idx, ix: ix}
	m.bindings[d] = b
	m.byType[d.Type] = append(m.byType[d.Type], b)
	m.logger.Info("Registered indexer", "indexer", d.String(), "database", d.DatabaseName())

	if m.opts.ManifestPath != "" {
		if err := PersistManifest(m.opts.ManifestPath, Manifest{Indexes: m.descriptorsLocked()}); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// Lookup returns the index idx is attached to.
func Lookup[K any](m *Manager, idx Indexer[K]) (*index.Index[K, core.AtomID], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bindings[idx.Descriptor()].(*bound[K])
	if !ok {
		return nil, false
	}
	return b.ix, true
}

// IsIndexed reports whether an indexer with descriptor d is registered.
func (m *Manager) IsIndexed(d Descriptor) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.bindings[d]
	return ok
}

func (m *Manager) descriptorsLocked() []Descriptor {
	seen := make(map[Descriptor]struct{}, len(m.bindings))
	out := make([]Descriptor, 0, len(m.bindings)+len(m.recorded))
	for d := range m.bindings {
		seen[d] = struct{}{}
		out = append(out, d)
	}
	for d := range m.recorded {
		if _, ok := seen[d]; !ok {
			out = append(out, d)
		}
	}
	sortDescriptors(out)
	return out
}

// Descriptors lists the registered indexers and the ones recorded in the
// manifest.
func (m *Manager) Descriptors() []Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.descriptorsLocked()
}

func (m *Manager) lookup(d Descriptor) (binding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bindings[d]
	if !ok {
		return nil, fmt.Errorf("%s: %w", d, ErrNotRegistered)
	}
	return b, nil
}

func (m *Manager) forType(typ core.TypeHandle) []binding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]binding(nil), m.byType[typ]...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// IndexAtom adds atom to every index whose indexer targets its type.
func (m *Manager) IndexAtom(ctx context.Context, tx store.Txn, g Graph, id core.AtomID, atom *core.Atom) (err error) {
	ctx, span := m.tracer.Start(ctx, "Manager.IndexAtom")
	defer func() { endSpan(span, err) }()
	if atom == nil {
		return fmt.Errorf("index %s: nil atom", id)
	}
	span.SetAttributes(attribute.String("atom.id", id.String()), attribute.String("atom.type", atom.Type.String()))

	total := 0
	for _, b := range m.forType(atom.Type) {
		n, err := b.index(ctx, tx, g, id, atom)
		if err != nil {
			return err
		}
		total += n
	}
	span.SetAttributes(attribute.Int("index.keys", total))
	m.logger.Debug("Indexed atom", "atom", id, "type", atom.Type, "keys", total)
	return nil
}

// UnindexAtom removes atom from every index whose indexer targets its
// type. atom must be the snapshot that was indexed.
func (m *Manager) UnindexAtom(ctx context.Context, tx store.Txn, g Graph, id core.AtomID, atom *core.Atom) (err error) {
	ctx, span := m.tracer.Start(ctx, "Manager.UnindexAtom")
	defer func() { endSpan(span, err) }()
	if atom == nil {
		return fmt.Errorf("unindex %s: %w", id, ErrMissingSnapshot)
	}
	span.SetAttributes(attribute.String("atom.id", id.String()), attribute.String("atom.type", atom.Type.String()))

	total := 0
	for _, b := range m.forType(atom.Type) {
		n, err := b.unindex(ctx, tx, g, id, atom)
		if err != nil {
			return err
		}
		total += n
	}
	m.logger.Debug("Unindexed atom", "atom", id, "type", atom.Type, "entries", total)
	return nil
}

// Rebuild clears the index of d and indexes every atom of its type again.
// It returns the number of atoms visited.
func (m *Manager) Rebuild(ctx context.Context, tx store.Txn, g Graph, d Descriptor) (n int, err error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Rebuild")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("index.name", d.DatabaseName()))

	b, err := m.lookup(d)
	if err != nil {
		return 0, err
	}
	dropped, err := b.clear(tx)
	if err != nil {
		return 0, err
	}
	err = g.ForEach(ctx, d.Type, func(id core.AtomID, atom *core.Atom) error {
		if _, err := b.index(ctx, tx, g, id, atom); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("rebuild %s: %w", d, err)
	}
	m.logger.Info("Rebuilt index", "indexer", d.String(), "dropped", dropped, "atoms", n)
	return n, nil
}

// FindAtoms returns the ids stored under key in the index of idx.
func FindAtoms[K any](ctx context.Context, m *Manager, tx store.Txn, idx Indexer[K], key K) (*roaring64.Bitmap, error) {
	term, err := NewTerm(idx, key)
	if err != nil {
		return nil, err
	}
	return m.FindAtomsAll(ctx, tx, term)
}

// Term selects the entries under one encoded key of one index.
type Term struct {
	Index Descriptor
	Key   []byte
}

// NewTerm encodes key with the codec of idx.
func NewTerm[K any](idx Indexer[K], key K) (Term, error) {
	b, err := idx.KeyCodec().Encode(key)
	if err != nil {
		return Term{}, fmt.Errorf("%s: encode key: %w", idx.Descriptor(), err)
	}
	return Term{Index: idx.Descriptor(), Key: b}, nil
}

// FindAtomsAll returns the ids present under every term, computed by
// intersecting bitmaps.
func (m *Manager) FindAtomsAll(ctx context.Context, tx store.Txn, terms ...Term) (bm *roaring64.Bitmap, err error) {
	_, span := m.tracer.Start(ctx, "Manager.FindAtomsAll")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Int("terms", len(terms)))

	for _, t := range terms {
		b, err := m.lookup(t.Index)
		if err != nil {
			return nil, err
		}
		rs, err := b.find(tx, t.Key)
		if err != nil {
			return nil, err
		}
		ids, err := index.CollectIDs(rs)
		if err != nil {
			return nil, err
		}
		if bm == nil {
			bm = ids
		} else {
			bm.And(ids)
		}
		if bm.IsEmpty() {
			break
		}
	}
	if bm == nil {
		bm = roaring64.New()
	}
	return bm, nil
}

// MatchAll returns the ids present under every term, in ascending order,
// by walking the result sets together. Every term's index must be ordered.
func (m *Manager) MatchAll(ctx context.Context, tx store.Txn, terms ...Term) (ids []core.AtomID, err error) {
	_, span := m.tracer.Start(ctx, "Manager.MatchAll")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Int("terms", len(terms)))

	sets := make([]*index.ResultSet[core.AtomID], 0, len(terms))
	defer func() {
		for _, rs := range sets {
			if cerr := rs.Close(); cerr != nil {
				m.logger.Warn("Failed to close result set", "error", cerr)
			}
		}
	}()
	for _, t := range terms {
		b, err := m.lookup(t.Index)
		if err != nil {
			return nil, err
		}
		rs, err := b.find(tx, t.Key)
		if err != nil {
			return nil, err
		}
		sets = append(sets, rs)
	}
	return index.Intersect(sets...)
}

// Stats scans every registered index in its own read transaction.
func (m *Manager) Stats(ctx context.Context) ([]Stats, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Stats")
	m.mu.RLock()
	targets := make([]StatsTarget, 0, len(m.bindings))
	for _, b := range m.bindings {
		targets = append(targets, StatsTarget{Descriptor: b.descriptor(), Ordering: b.ordering()})
	}
	m.mu.RUnlock()

	stats, err := CollectStats(ctx, m.env, targets, m.opts.StatsConcurrency, m.logger)
	endSpan(span, err)
	return stats, err
}
