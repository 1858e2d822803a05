package rdfstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Quad is one RDF statement read back from storage: the four term UUIDs
// plus its own row identity.
type Quad struct {
	Subject, Predicate, Object, Context uuid.UUID
	QuadUUID                            uuid.UUID
}

// QuadStore performs transactional reads/writes of quads for one space,
// cooperating with the term, datatype and graph subsystems to keep
// referential integrity without per-row round trips.
type QuadStore struct {
	engine *Engine
	dt     *DatatypeRegistry
	graphs *GraphRegistry
	space  string
	sink   Sink
}

// NewQuadStore constructs the C7 façade for one space.
func NewQuadStore(engine *Engine, dt *DatatypeRegistry, graphs *GraphRegistry, space string, sink Sink) *QuadStore {
	if sink == nil {
		sink = NoopSink{}
	}
	return &QuadStore{engine: engine, dt: dt, graphs: graphs, space: space, sink: sink}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (qs *QuadStore) acquire(ctx context.Context, tx *Transaction) (querier, func(), error) {
	return acquireConn(ctx, qs.engine, tx)
}

// acquireConn returns tx's own connection when a transaction is given, or
// else a fresh one from the tuple pool. Shared by QuadStore and the
// package-level term-resolution helpers so a caller's transaction, once
// given, is used end-to-end rather than silently bypassed.
func acquireConn(ctx context.Context, engine *Engine, tx *Transaction) (querier, func(), error) {
	if tx != nil {
		return tx.Conn(), func() {}, nil
	}
	conn, release, err := engine.AcquireTuple(ctx)
	return conn, release, err
}

// Add inserts one quad, auto-creating any terms and graph the quad
// references. Duplicates are permitted: calling Add twice with the same
// arguments yields two distinct rows.
func (qs *QuadStore) Add(ctx context.Context, s, p, o, g Term, tx *Transaction) error {
	ids, err := ResolveAndInsertMissing(ctx, qs.engine, qs.dt, qs.space, "primary", []Term{s, p, o, g}, tx)
	if err != nil {
		return err
	}
	if g.Kind == KindURI {
		if err := qs.graphs.EnsureExistsBatch(ctx, map[string]bool{g.Text: true}); err != nil {
			return err
		}
	}

	q, release, err := qs.acquire(ctx, tx)
	if err != nil {
		return err
	}
	defer release()

	quadTable := TableName(qs.engine.GlobalPrefix, qs.space, "rdf_quad")
	_, err = q.Exec(ctx,
		"INSERT INTO "+quadTable+" (subject_uuid, predicate_uuid, object_uuid, context_uuid) VALUES ($1,$2,$3,$4)",
		ids[Encode(s)], ids[Encode(p)], ids[Encode(o)], ids[Encode(g)])
	if err != nil {
		return wrapBackend("add_quad", qs.space, err)
	}
	if tx != nil {
		tx.QuadsAdded++
	}
	return nil
}

// Remove deletes at most one quad matching (s,p,o,g). It returns false
// (with no error) if any of the four terms is unknown, or if no matching
// quad row exists; it never errors on "not found".
//
// Duplicates of (s,p,o,g) are common (see Add); the (tableoid, ctid) +
// LIMIT 1 subquery ensures exactly one row is removed per call, matching
// RDF-library "remove one statement" semantics. tableoid is part of the key
// because a ctid is only unique within one partition.
func (qs *QuadStore) Remove(ctx context.Context, s, p, o, g Term, tx *Transaction) (bool, error) {
	texts := []string{s.Text, p.Text, o.Text, g.Text}
	lookup, err := BatchLookupUUIDs(ctx, qs.engine, qs.space, texts)
	if err != nil {
		return false, err
	}
	su, ok1 := lookup[s.Text]
	pu, ok2 := lookup[p.Text]
	ou, ok3 := lookup[o.Text]
	gu, ok4 := lookup[g.Text]
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false, nil
	}

	q, release, err := qs.acquire(ctx, tx)
	if err != nil {
		return false, err
	}
	defer release()

	quadTable := TableName(qs.engine.GlobalPrefix, qs.space, "rdf_quad")
	tag, err := q.Exec(ctx,
		"DELETE FROM "+quadTable+" WHERE (tableoid, ctid) IN (SELECT tableoid, ctid FROM "+quadTable+
			" WHERE subject_uuid=$1 AND predicate_uuid=$2 AND object_uuid=$3 AND context_uuid=$4 LIMIT 1)",
		su, pu, ou, gu)
	if err != nil {
		return false, wrapBackend("remove_quad", qs.space, err)
	}
	removed := tag.RowsAffected() > 0
	if removed && tx != nil {
		tx.QuadsRemoved++
	}
	return removed, nil
}

// QuadInput is one input statement to AddBatch/RemoveBatch.
type QuadInput struct {
	Subject, Predicate, Object, Graph Term
}

// AddBatch inserts many quads in two phases (terms, then quads), matching
// spec §4.7: it collects every unique term across the batch, resolves
// datatypes and UUIDs once, ensures any referenced graphs exist, then
// inserts all unique terms and all quads each in one statement. Returns the
// number of quad rows inserted.
func (qs *QuadStore) AddBatch(ctx context.Context, quads []QuadInput, tx *Transaction) (int64, error) {
	if len(quads) == 0 {
		return 0, nil
	}

	terms := make([]Term, 0, len(quads)*4)
	graphURIs := make(map[string]bool)
	for _, q := range quads {
		terms = append(terms, q.Subject, q.Predicate, q.Object, q.Graph)
		if q.Graph.Kind == KindURI {
			graphURIs[q.Graph.Text] = true
		}
	}

	ids, err := ResolveAndInsertMissing(ctx, qs.engine, qs.dt, qs.space, "primary", terms, tx)
	if err != nil {
		return 0, err
	}
	if len(graphURIs) > 0 {
		if err := qs.graphs.EnsureExistsBatch(ctx, graphURIs); err != nil {
			return 0, err
		}
	}

	conn, release, err := qs.acquire(ctx, tx)
	if err != nil {
		return 0, err
	}
	defer release()

	quadTable := TableName(qs.engine.GlobalPrefix, qs.space, "rdf_quad")
	ss := make([]uuid.UUID, len(quads))
	ps := make([]uuid.UUID, len(quads))
	os_ := make([]uuid.UUID, len(quads))
	cs := make([]uuid.UUID, len(quads))
	for i, qi := range quads {
		ss[i] = ids[Encode(qi.Subject)]
		ps[i] = ids[Encode(qi.Predicate)]
		os_[i] = ids[Encode(qi.Object)]
		cs[i] = ids[Encode(qi.Graph)]
	}
	tag, err := conn.Exec(ctx,
		"INSERT INTO "+quadTable+" (subject_uuid, predicate_uuid, object_uuid, context_uuid) "+
			"SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::uuid[], $4::uuid[])",
		ss, ps, os_, cs)
	if err != nil {
		return 0, wrapBackend("add_quads_batch", qs.space, err)
	}
	inserted := tag.RowsAffected()
	if tx != nil {
		tx.QuadsAdded += inserted
	}
	return inserted, nil
}

// RemoveBatch deletes many quads by exact (s,p,o,c) match, in chunks, using
// WHERE (s,p,o,c) IN (SELECT * FROM unnest(...)) over four parallel UUID
// array parameters rather than the OR-chain the reference implementation
// builds. Every stored row matching an input tuple is deleted, duplicates
// included. Returns the total number of rows removed.
//
// A batch targeting an invalid space id is always a hard error (decided
// open question #3, SPEC_FULL.md §9): this function never logs-and-swallows.
func (qs *QuadStore) RemoveBatch(ctx context.Context, quads []QuadInput, tx *Transaction) (int64, error) {
	if len(quads) == 0 {
		return 0, nil
	}
	const chunkSize = 1000

	terms := make([]Term, 0, len(quads)*4)
	for _, q := range quads {
		terms = append(terms, q.Subject, q.Predicate, q.Object, q.Graph)
	}
	lookup, err := lookupAllOrFail(ctx, qs.engine, qs.space, terms)
	if err != nil {
		return 0, err
	}

	type tuple struct{ s, p, o, c uuid.UUID }
	tuples := make([]tuple, 0, len(quads))
	for _, qi := range quads {
		tuples = append(tuples, tuple{lookup[qi.Subject.Text], lookup[qi.Predicate.Text], lookup[qi.Object.Text], lookup[qi.Graph.Text]})
	}

	conn, release, err := qs.acquire(ctx, tx)
	if err != nil {
		return 0, err
	}
	defer release()

	quadTable := TableName(qs.engine.GlobalPrefix, qs.space, "rdf_quad")
	var removed int64
	for start := 0; start < len(tuples); start += chunkSize {
		end := start + chunkSize
		if end > len(tuples) {
			end = len(tuples)
		}
		chunk := tuples[start:end]
		ss := make([]uuid.UUID, len(chunk))
		ps := make([]uuid.UUID, len(chunk))
		os_ := make([]uuid.UUID, len(chunk))
		cs := make([]uuid.UUID, len(chunk))
		for i, t := range chunk {
			ss[i], ps[i], os_[i], cs[i] = t.s, t.p, t.o, t.c
		}
		tag, err := conn.Exec(ctx,
			"DELETE FROM "+quadTable+" WHERE (subject_uuid, predicate_uuid, object_uuid, context_uuid) IN "+
				"(SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::uuid[], $4::uuid[]))",
			ss, ps, os_, cs)
		if err != nil {
			return removed, wrapBackend("remove_quads_batch", qs.space, err)
		}
		removed += tag.RowsAffected()
	}
	if tx != nil {
		tx.QuadsRemoved += removed
	}
	return removed, nil
}

// lookupAllOrFail resolves every distinct term text to a UUID and errors if
// any is unknown, used by RemoveBatch to enforce the hard-error policy.
func lookupAllOrFail(ctx context.Context, engine *Engine, space string, terms []Term) (map[string]uuid.UUID, error) {
	texts := make([]string, 0, len(terms))
	seen := make(map[string]bool)
	for _, t := range terms {
		if !seen[t.Text] {
			seen[t.Text] = true
			texts = append(texts, t.Text)
		}
	}
	lookup, err := BatchLookupUUIDs(ctx, engine, space, texts)
	if err != nil {
		return nil, err
	}
	for _, text := range texts {
		if _, ok := lookup[text]; !ok {
			return nil, &ValidationError{Field: "term", Reason: "unknown term referenced in batch operation: " + text}
		}
	}
	return lookup, nil
}

// RemoveBySubjects deletes every quad whose subject matches one of the
// given subject URIs, optionally restricted to a single graph. Matching is
// done by term text (not identity) so it works even when the caller has no
// cached UUID.
func (qs *QuadStore) RemoveBySubjects(ctx context.Context, subjectURIs []string, graphURI string, tx *Transaction) (int64, error) {
	if len(subjectURIs) == 0 {
		return 0, nil
	}
	termTable := TableName(qs.engine.GlobalPrefix, qs.space, "term")
	quadTable := TableName(qs.engine.GlobalPrefix, qs.space, "rdf_quad")

	conn, release, err := qs.acquire(ctx, tx)
	if err != nil {
		return 0, err
	}
	defer release()

	sql := "DELETE FROM " + quadTable + " WHERE subject_uuid IN (SELECT term_uuid FROM " + termTable + " WHERE term_text = ANY($1))"
	args := []interface{}{subjectURIs}
	if graphURI != "" {
		sql += " AND context_uuid IN (SELECT term_uuid FROM " + termTable + " WHERE term_text = $2)"
		args = append(args, graphURI)
	}
	tag, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, wrapBackend("remove_quads_by_subjects", qs.space, err)
	}
	if tx != nil {
		tx.QuadsRemoved += tag.RowsAffected()
	}
	return tag.RowsAffected(), nil
}
