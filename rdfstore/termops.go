package rdfstore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// resolvedTerm is a Term with its datatype resolved to an id and its
// identity UUID assigned, ready to be inserted or matched against.
type resolvedTerm struct {
	Term
	DatatypeID int64
	UUID       uuid.UUID
}

// Encode normalizes a Term the way the engine stores it: if Lang is set,
// Datatype is cleared first (decided open question #1, SPEC_FULL.md §9) so
// a literal is never ambiguous between a language-tagged and a typed
// reading.
func Encode(t Term) Term {
	if t.Kind == KindLiteral && t.Lang != "" {
		t.Datatype = ""
	}
	return t
}

// ResolveAndInsertMissing resolves datatype URIs (via the datatype
// registry) and identity UUIDs (via C1) for a set of terms, inserts any
// that are not already present, and returns the identity map keyed by a
// composite of the term's canonical fields. Idempotent: re-inserting an
// existing term is a no-op via ON CONFLICT DO NOTHING.
//
// When tx is non-nil, the insert runs on tx's own connection so missing
// terms land in the same transaction as the quad that references them
// (spec §3.2 invariant 2): a rollback then undoes both together.
func ResolveAndInsertMissing(ctx context.Context, engine *Engine, dt *DatatypeRegistry, space, dataset string, terms []Term, tx *Transaction) (map[Term]uuid.UUID, error) {
	normalized := make([]Term, len(terms))
	datatypeURIs := make([]string, 0, len(terms))
	for i, t := range terms {
		normalized[i] = Encode(t)
		if normalized[i].Kind == KindLiteral && normalized[i].Datatype != "" {
			datatypeURIs = append(datatypeURIs, normalized[i].Datatype)
		}
	}

	var datatypeIDs map[string]int64
	if len(datatypeURIs) > 0 {
		var err error
		datatypeIDs, err = dt.ResolveBatch(ctx, datatypeURIs)
		if err != nil {
			return nil, err
		}
	}

	unique := make(map[Term]resolvedTerm)
	for _, t := range normalized {
		if _, ok := unique[t]; ok {
			continue
		}
		var datatypeID int64
		if t.Kind == KindLiteral && t.Datatype != "" {
			datatypeID = datatypeIDs[t.Datatype]
		}
		unique[t] = resolvedTerm{Term: t, DatatypeID: datatypeID, UUID: t.UUID()}
	}

	termTable := TableName(engine.GlobalPrefix, space, "term")
	conn, release, err := acquireConn(ctx, engine, tx)
	if err != nil {
		return nil, err
	}
	defer release()

	ids := make([]uuid.UUID, 0, len(unique))
	texts := make([]string, 0, len(unique))
	kinds := make([]string, 0, len(unique))
	langs := make([]*string, 0, len(unique))
	dtids := make([]*int64, 0, len(unique))
	for _, rt := range unique {
		var lang *string
		if rt.Lang != "" {
			l := rt.Lang
			lang = &l
		}
		var dtid *int64
		if rt.DatatypeID != 0 {
			id := rt.DatatypeID
			dtid = &id
		}
		ids = append(ids, rt.UUID)
		texts = append(texts, rt.Text)
		kinds = append(kinds, string(rt.Kind))
		langs = append(langs, lang)
		dtids = append(dtids, dtid)
	}

	start := time.Now()
	_, err = conn.Exec(ctx,
		"INSERT INTO "+termTable+" (term_uuid, term_text, term_kind, lang, datatype_id, dataset) "+
			"SELECT u.term_uuid, u.term_text, u.term_kind, u.lang, u.datatype_id, $6 "+
			"FROM unnest($1::uuid[], $2::text[], $3::text[], $4::text[], $5::bigint[]) "+
			"AS u(term_uuid, term_text, term_kind, lang, datatype_id) "+
			"ON CONFLICT (term_uuid, dataset) DO NOTHING",
		ids, texts, kinds, langs, dtids, dataset)
	if err != nil {
		return nil, wrapBackend("insert_missing_terms", space, err)
	}
	if engine.Logger != nil {
		withRequestContext(ctx, opLogger(engine.Logger, "insert_missing_terms", termTable, int64(len(unique)), time.Since(start))).Debug("resolved and inserted missing terms")
	}

	out := make(map[Term]uuid.UUID, len(unique))
	for t, rt := range unique {
		out[t] = rt.UUID
	}
	return out, nil
}

// DecodeRow reconstructs an RDF Term from its stored row fields. Unlike the
// reference implementation, which left datatype_id unresolved (a TODO that
// produced a bare string literal), this consults the datatype registry to
// recover the literal's datatype URI so round-tripping a typed literal
// preserves its type.
func DecodeRow(ctx context.Context, dt *DatatypeRegistry, text string, kind TermKind, lang string, datatypeID int64) (Term, error) {
	t := Term{Text: text, Kind: kind, Lang: lang}
	if kind == KindLiteral && datatypeID != 0 {
		uri, err := dt.URIForID(ctx, datatypeID)
		if err != nil {
			return Term{}, err
		}
		t.Datatype = uri
	}
	return t, nil
}

// BatchLookupUUIDs resolves a set of term texts to their UUIDs via a single
// IN (...) query, used by subject-URI-based delete paths that must match on
// text rather than a cached identity.
func BatchLookupUUIDs(ctx context.Context, engine *Engine, space string, texts []string) (map[string]uuid.UUID, error) {
	if len(texts) == 0 {
		return map[string]uuid.UUID{}, nil
	}
	termTable := TableName(engine.GlobalPrefix, space, "term")
	conn, release, err := engine.AcquireTuple(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.Query(ctx, "SELECT term_text, term_uuid FROM "+termTable+" WHERE term_text = ANY($1)", texts)
	if err != nil {
		return nil, wrapBackend("batch_lookup_uuids", space, err)
	}
	defer rows.Close()

	out := make(map[string]uuid.UUID)
	for rows.Next() {
		var text string
		var id uuid.UUID
		if err := rows.Scan(&text, &id); err != nil {
			return nil, wrapBackend("batch_lookup_uuids_scan", space, err)
		}
		out[text] = id
	}
	return out, rows.Err()
}
