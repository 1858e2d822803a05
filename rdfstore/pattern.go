package rdfstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RegexTerm is a pattern position matched against term_text by regular
// expression, instead of exact equality. It is a distinct type from Term
// deliberately: a bound position can be unset, an exact Term, or a
// RegexTerm, and the three must not be confused with one another.
type RegexTerm struct {
	Pattern string
}

// QuadPattern describes the four positions of a quad match. A nil position
// means "unbound"; a Term means "equals"; a RegexTerm means "matches".
type QuadPattern struct {
	Subject, Predicate, Object, Context interface{}
}

const patternPageSize = 1000

// QuadCursor streams quad matches for one pattern via a server-side named
// cursor, decoding each row back into RDF terms (C6) as it is fetched.
type QuadCursor struct {
	ctx      context.Context
	conn     pgx.Tx
	release  func()
	dt       *DatatypeRegistry
	space    string
	name     string
	pageSize int
	buf      []decodedQuad
	pos      int
	done     bool
	err      error
}

type decodedQuad struct {
	S, P, O, C Term
}

// Next advances the cursor and returns the next quad, or ok=false when the
// result set is exhausted (not an error).
func (c *QuadCursor) Next(ctx context.Context) (q decodedQuad, ok bool, err error) {
	if c.err != nil {
		return decodedQuad{}, false, c.err
	}
	if c.pos < len(c.buf) {
		q = c.buf[c.pos]
		c.pos++
		return q, true, nil
	}
	if c.done {
		return decodedQuad{}, false, nil
	}
	if err := c.fetchPage(ctx); err != nil {
		c.err = err
		return decodedQuad{}, false, err
	}
	if len(c.buf) == 0 {
		c.done = true
		return decodedQuad{}, false, nil
	}
	q = c.buf[0]
	c.pos = 1
	return q, true, nil
}

func (c *QuadCursor) fetchPage(ctx context.Context) error {
	rows, err := c.conn.Query(ctx, fmt.Sprintf("FETCH FORWARD %d FROM %s", c.pageSize, c.name))
	if err != nil {
		return wrapBackend("fetch_cursor_page", c.space, err)
	}
	defer rows.Close()

	var buf []decodedQuad
	for rows.Next() {
		var sText, pText, oText, cText string
		var sKind, pKind, oKind, cKind TermKind
		var sLang, oLang string
		var oDatatypeID int64
		if err := rows.Scan(&sText, &sKind, &pText, &pKind, &oText, &oKind, &oLang, &oDatatypeID, &cText, &cKind, &sLang); err != nil {
			return wrapBackend("scan_cursor_page", c.space, err)
		}
		s := Term{Text: sText, Kind: sKind, Lang: sLang}
		p := Term{Text: pText, Kind: pKind}
		o, err := DecodeRow(ctx, c.dt, oText, oKind, oLang, oDatatypeID)
		if err != nil {
			return err
		}
		cx := Term{Text: cText, Kind: cKind}
		buf = append(buf, decodedQuad{S: s, P: p, O: o, C: cx})
	}
	if err := rows.Err(); err != nil {
		return wrapBackend("cursor_page_rows", c.space, err)
	}
	c.buf = buf
	c.pos = 0
	if len(buf) < c.pageSize {
		c.done = true
	}
	return nil
}

// Close releases the cursor's transaction and connection. Safe to call more
// than once, and safe (expected) on early termination or after an error.
func (c *QuadCursor) Close(ctx context.Context) error {
	if c.conn != nil {
		_, _ = c.conn.Exec(ctx, fmt.Sprintf("CLOSE %s", c.name))
		_ = c.conn.Rollback(ctx)
	}
	if c.release != nil {
		c.release()
		c.release = nil
	}
	return nil
}

// Quads opens a server-side cursor over every quad matching pattern,
// joining Quad to Term four times (s_term, p_term, o_term, c_term) as
// described in spec §4.8. The caller must Close the returned cursor.
func (qs *QuadStore) Quads(ctx context.Context, pattern QuadPattern) (*QuadCursor, error) {
	quadTable := TableName(qs.engine.GlobalPrefix, qs.space, "rdf_quad")
	termTable := TableName(qs.engine.GlobalPrefix, qs.space, "term")

	var where []string
	var args []interface{}
	argN := 0
	nextArg := func(v interface{}) string {
		argN++
		args = append(args, v)
		return "$" + strconv.Itoa(argN)
	}

	addPositionClause := func(alias, uuidCol string, pos interface{}) {
		switch v := pos.(type) {
		case nil:
			return
		case Term:
			where = append(where, fmt.Sprintf("%s.term_text = %s", alias, nextArg(v.Text)))
			where = append(where, fmt.Sprintf("%s.term_kind = %s", alias, nextArg(string(v.Kind))))
			if v.Kind == KindLiteral && v.Lang != "" {
				where = append(where, fmt.Sprintf("%s.lang = %s", alias, nextArg(v.Lang)))
			}
		case RegexTerm:
			where = append(where, fmt.Sprintf("%s.term_text ~ %s", alias, nextArg(v.Pattern)))
		}
	}

	addPositionClause("s_term", "subject_uuid", pattern.Subject)
	addPositionClause("p_term", "predicate_uuid", pattern.Predicate)
	addPositionClause("o_term", "object_uuid", pattern.Object)
	addPositionClause("c_term", "context_uuid", pattern.Context)

	sql := "SELECT s_term.term_text, s_term.term_kind, p_term.term_text, p_term.term_kind, " +
		"o_term.term_text, o_term.term_kind, COALESCE(o_term.lang,''), COALESCE(o_term.datatype_id,0), " +
		"c_term.term_text, c_term.term_kind, COALESCE(s_term.lang,'') " +
		"FROM " + quadTable + " q " +
		"JOIN " + termTable + " s_term ON s_term.term_uuid = q.subject_uuid " +
		"JOIN " + termTable + " p_term ON p_term.term_uuid = q.predicate_uuid " +
		"JOIN " + termTable + " o_term ON o_term.term_uuid = q.object_uuid " +
		"JOIN " + termTable + " c_term ON c_term.term_uuid = q.context_uuid"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	conn, release, err := qs.engine.AcquireTuple(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		release()
		return nil, wrapBackend("begin_cursor_transaction", qs.space, err)
	}

	cursorName := "rdfstore_cursor_" + uuid.New().String()[:8]
	declareSQL := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", cursorName, sql)
	if _, err := tx.Exec(ctx, declareSQL, args...); err != nil {
		_ = tx.Rollback(ctx)
		release()
		return nil, wrapBackend("declare_cursor", qs.space, err)
	}

	return &QuadCursor{
		ctx:      ctx,
		conn:     tx,
		release:  release,
		dt:       qs.dt,
		space:    qs.space,
		name:     cursorName,
		pageSize: patternPageSize,
	}, nil
}

// Count returns the number of quads in the space, optionally restricted to
// one graph's context UUID.
func (qs *QuadStore) Count(ctx context.Context, graphUUID *uuid.UUID) (int64, error) {
	quadTable := TableName(qs.engine.GlobalPrefix, qs.space, "rdf_quad")
	conn, release, err := qs.engine.AcquireTuple(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	sql := "SELECT COUNT(*) FROM " + quadTable
	var args []interface{}
	if graphUUID != nil {
		sql += " WHERE context_uuid = $1"
		args = append(args, *graphUUID)
	}
	start := time.Now()
	var count int64
	if err := conn.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, wrapBackend("count_quads", qs.space, err)
	}
	if qs.engine.Logger != nil {
		withRequestContext(ctx, opLogger(qs.engine.Logger, "count_quads", quadTable, count, time.Since(start))).Debug("counted quads")
	}
	return count, nil
}

// CountByGraphURI resolves graphURI to a context UUID and counts its quads.
// An unknown graph URI is not an error: it simply has no quads, so this
// returns 0.
func (qs *QuadStore) CountByGraphURI(ctx context.Context, graphURI string) (int64, error) {
	if graphURI == "" {
		return qs.Count(ctx, nil)
	}
	lookup, err := BatchLookupUUIDs(ctx, qs.engine, qs.space, []string{graphURI})
	if err != nil {
		return 0, err
	}
	id, ok := lookup[graphURI]
	if !ok {
		return 0, nil
	}
	return qs.Count(ctx, &id)
}
