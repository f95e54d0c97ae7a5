package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/dedup/internal/db"
)

// Compile-time check: Backend implements db.Backend.
var _ db.Backend = (*Backend)(nil)

const (
	fieldRecord = "record"
	fieldGrams  = "grams"
	gramsSep    = "\x1f"
	fetchChunk  = 200
)

// keyspace lays out the keys of one index:
// <prefix><index>:doc:<id> (hash), <prefix><index>:ids (set), <prefix><index>:g:<gram> (set).
type keyspace struct {
	base string
}

func newKeyspace(prefix, index string) keyspace {
	return keyspace{base: prefix + index + ":"}
}

func (k keyspace) doc(id string) string { return k.base + "doc:" + id }
func (k keyspace) ids() string          { return k.base + "ids" }
func (k keyspace) gram(g string) string { return k.base + "g:" + g }
func (k keyspace) pattern() string      { return k.base + "*" }

// Backend stores one index as Redis hashes and gram sets.
type Backend struct {
	store *Store
	keys  keyspace
}

// Ping checks connectivity.
func (b *Backend) Ping(ctx context.Context) error {
	return b.store.Ping(ctx)
}

// Close is a no-op; the shared Store owns the connection.
func (b *Backend) Close() error { return nil }

// Candidates reads the gram sets in one round-trip and ranks ids by how many sets contain them.
func (b *Backend) Candidates(ctx context.Context, grams []string, limit int) ([]string, error) {
	if len(grams) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(grams))
	for i, g := range grams {
		cmds[i] = b.store.b().Smembers().Key(b.keys.gram(g)).Build()
	}

	shared := make(map[string]int)
	for i, res := range b.store.doMulti(ctx, cmds) {
		ids, err := res.AsStrSlice()
		if err != nil {
			return nil, &db.Error{Op: db.OpCandidates, Err: fmt.Errorf("gram %q: %w", grams[i], err)}
		}
		for _, id := range ids {
			shared[id]++
		}
	}

	ids := make([]string, 0, len(shared))
	for id := range shared {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if shared[ids[i]] != shared[ids[j]] {
			return shared[ids[i]] > shared[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Fetch loads document hashes in a single DoMulti round-trip.
func (b *Backend) Fetch(ctx context.Context, ids []string) ([]db.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(ids))
	for i, id := range ids {
		cmds[i] = b.store.b().Hgetall().Key(b.keys.doc(id)).Build()
	}

	out := make([]db.Document, 0, len(ids))
	for i, res := range b.store.doMulti(ctx, cmds) {
		m, err := res.AsStrMap()
		if err != nil {
			return nil, &db.Error{Op: db.OpFetch, Err: fmt.Errorf("doc %s: %w", ids[i], err)}
		}
		if len(m) == 0 {
			continue
		}
		out = append(out, db.Document{ID: ids[i], Record: m[fieldRecord], Grams: splitGrams(m[fieldGrams])})
	}
	return out, nil
}

// Scan visits every document listed in the ids set, in id order.
func (b *Backend) Scan(ctx context.Context, fn func(db.Document) error) error {
	cmd := b.store.b().Smembers().Key(b.keys.ids()).Build()
	ids, err := b.store.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return &db.Error{Op: db.OpScan, Err: err}
	}
	sort.Strings(ids)

	for start := 0; start < len(ids); start += fetchChunk {
		end := min(start+fetchChunk, len(ids))
		docs, err := b.Fetch(ctx, ids[start:end])
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := fn(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// Count returns the cardinality of the ids set.
func (b *Backend) Count(ctx context.Context) (int, error) {
	cmd := b.store.b().Scard().Key(b.keys.ids()).Build()
	n, err := b.store.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	return int(n), nil
}

// NewBatch starts a pipelined mutation.
func (b *Backend) NewBatch() db.Batch {
	return &batch{backend: b}
}

func splitGrams(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, gramsSep)
}

type batch struct {
	db.Ops
	backend *Backend
}

// Commit replays buffered operations as pipelined commands. The gram sets of
// replaced or deleted documents are read first so stale postings get removed.
func (t *batch) Commit(ctx context.Context) error {
	ops := t.Ops
	t.Ops = nil
	if len(ops) == 0 {
		return nil
	}

	current, err := t.currentGrams(ctx, ops)
	if err != nil {
		return err
	}

	var cmds []rueidis.Completed
	for _, m := range ops {
		switch m.Op {
		case db.OpPut:
			cmds = append(cmds, t.removeCmds(m.Doc.ID, current[m.Doc.ID], false)...)
			cmds = append(cmds, t.putCmds(m.Doc)...)
			current[m.Doc.ID] = m.Doc.Grams
		case db.OpDelete:
			if _, ok := current[m.Doc.ID]; !ok {
				continue
			}
			cmds = append(cmds, t.removeCmds(m.Doc.ID, current[m.Doc.ID], true)...)
			delete(current, m.Doc.ID)
		case db.OpDeleteAll:
			if err := t.exec(ctx, cmds); err != nil {
				return err
			}
			cmds = nil
			if err := t.wipe(ctx); err != nil {
				return err
			}
			clear(current)
		}
	}
	return t.exec(ctx, cmds)
}

// currentGrams reads the stored grams of every id touched by ops.
// Ids absent from the store are absent from the returned map.
func (t *batch) currentGrams(ctx context.Context, ops db.Ops) (map[string][]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, m := range ops {
		if m.Op == db.OpDeleteAll {
			continue
		}
		if _, ok := seen[m.Doc.ID]; !ok {
			seen[m.Doc.ID] = struct{}{}
			ids = append(ids, m.Doc.ID)
		}
	}

	cmds := make([]rueidis.Completed, len(ids))
	for i, id := range ids {
		cmds[i] = t.backend.store.b().Hget().Key(t.backend.keys.doc(id)).Field(fieldGrams).Build()
	}

	current := make(map[string][]string, len(ids))
	for i, res := range t.backend.store.doMulti(ctx, cmds) {
		s, err := res.ToString()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}
			return nil, &db.Error{Op: db.OpCommit, Err: fmt.Errorf("read grams of %s: %w", ids[i], err)}
		}
		current[ids[i]] = splitGrams(s)
	}
	return current, nil
}

func (t *batch) putCmds(doc db.Document) []rueidis.Completed {
	k, sb := t.backend.keys, t.backend.store.b()
	cmds := []rueidis.Completed{
		sb.Hset().Key(k.doc(doc.ID)).FieldValue().
			FieldValue(fieldRecord, doc.Record).
			FieldValue(fieldGrams, strings.Join(doc.Grams, gramsSep)).
			Build(),
		sb.Sadd().Key(k.ids()).Member(doc.ID).Build(),
	}
	for _, g := range doc.Grams {
		cmds = append(cmds, sb.Sadd().Key(k.gram(g)).Member(doc.ID).Build())
	}
	return cmds
}

func (t *batch) removeCmds(id string, grams []string, dropDoc bool) []rueidis.Completed {
	k, sb := t.backend.keys, t.backend.store.b()
	cmds := make([]rueidis.Completed, 0, len(grams)+2)
	for _, g := range grams {
		cmds = append(cmds, sb.Srem().Key(k.gram(g)).Member(id).Build())
	}
	if dropDoc {
		cmds = append(cmds,
			sb.Del().Key(k.doc(id)).Build(),
			sb.Srem().Key(k.ids()).Member(id).Build(),
		)
	}
	return cmds
}

// wipe deletes every key of the index.
func (t *batch) wipe(ctx context.Context) error {
	var cursor uint64
	for {
		cmd := t.backend.store.b().Scan().Cursor(cursor).Match(t.backend.keys.pattern()).Count(500).Build()
		res, err := t.backend.store.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return &db.Error{Op: db.OpCommit, Err: fmt.Errorf("scan: %w", err)}
		}
		if len(res.Elements) > 0 {
			del := t.backend.store.b().Del().Key(res.Elements...).Build()
			if err := t.backend.store.do(ctx, del).Error(); err != nil {
				return &db.Error{Op: db.OpCommit, Err: fmt.Errorf("del: %w", err)}
			}
		}
		cursor = res.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

func (t *batch) exec(ctx context.Context, cmds []rueidis.Completed) error {
	for _, res := range t.backend.store.doMulti(ctx, cmds) {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpCommit, Err: err}
		}
	}
	return nil
}
