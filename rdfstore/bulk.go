package rdfstore

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// BulkImportStats reports what one bulk-ingest run did, returned to the
// caller and also streamed incrementally through the signal sink on the
// "import" channel (spec §4.10's progress-reporting supplement).
type BulkImportStats struct {
	ImportID       string
	TriplesParsed  int64
	TriplesLoaded  int64
	TermsExtracted int64
	PartitionMode  bool
	ParseTime      time.Duration
	CopyTime       time.Duration
	PublishTime    time.Duration
	TotalTime      time.Duration
}

// BulkImportOptions configures one bulk-ingest run.
type BulkImportOptions struct {
	SpaceID      string
	DefaultGraph string // used for N-Triples input lacking a fourth column
	ChunkSize    int    // rows buffered per CopyFrom batch; 0 uses a sane default
	UseWorktable bool   // force insert-fallback even if partitioning would apply
}

// BulkImporter drives the 7-phase bulk-ingest pipeline described in spec
// §4.10: stage, parse-to-rows (with parse-time UUID assignment), COPY load,
// term extraction, publish (partition-attach or insert-fallback), analyze/
// vacuum, cleanup.
type BulkImporter struct {
	engine *Engine
	dt     *DatatypeRegistry
	sink   Sink
}

// NewBulkImporter constructs the C10 façade for one space's datatype
// registry.
func NewBulkImporter(engine *Engine, dt *DatatypeRegistry, sink Sink) *BulkImporter {
	if sink == nil {
		sink = NoopSink{}
	}
	return &BulkImporter{engine: engine, dt: dt, sink: sink}
}

type stagedRow struct {
	subjectUUID, predicateUUID, objectUUID, contextUUID uuid.UUID
	subjectText, predicateText, objectText, contextText string
	subjectKind, predicateKind, objectKind, contextKind  TermKind
	objectLang, objectDatatype                           string
}

// Import runs the full pipeline against an N-Triples/N-Quads stream,
// publishing into the space's live tables under dataset "import-<id>".
func (b *BulkImporter) Import(ctx context.Context, r io.Reader, opts BulkImportOptions) (BulkImportStats, error) {
	start := time.Now()
	importID := uuid.New().String()[:8]
	dataset := "import-" + importID
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 50000
	}

	stats := BulkImportStats{ImportID: importID}
	b.emit(ctx, "setup", importID, 0)

	names := TableNames(b.engine.GlobalPrefix, opts.SpaceID)
	stageTerm := "stage_term_" + importID
	stageQuad := "stage_quad_" + importID

	conn, release, err := b.engine.AcquireTuple(ctx)
	if err != nil {
		return stats, err
	}
	defer release()

	if err := b.createStagingTables(ctx, conn, opts.SpaceID, stageTerm, stageQuad, names, dataset); err != nil {
		return stats, err
	}
	cleanup := func() {
		_, _ = conn.Exec(ctx, "DROP TABLE IF EXISTS "+stageQuad)
		_, _ = conn.Exec(ctx, "DROP TABLE IF EXISTS "+stageTerm)
	}

	// Phase 2+3: parse to rows (assigning UUIDs deterministically via C1,
	// memoized so repeated terms cost one hash) on one goroutine, COPY them
	// into the staging table on another, overlapped via a buffered channel
	// so COPY of batch N runs while batch N+1 is still being parsed.
	parseStart := time.Now()
	copyConn, copyRelease, err := b.engine.AcquireTuple(ctx)
	if err != nil {
		cleanup()
		return stats, err
	}
	defer copyRelease()

	var parsed, loaded int64
	batches := make(chan []stagedRow, 4)
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		cache, _ := lru.New[string, uuid.UUID](100000)
		scanner := NewNTriplesScanner(r)
		rows := make([]stagedRow, 0, chunkSize)
		defer close(batches)
		for {
			stmt, ok, err := scanner.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			graph := stmt.Graph
			if graph.Text == "" {
				graph.Text = opts.DefaultGraph
				graph.Kind = KindURI
			}
			rows = append(rows, b.assignRow(cache, stmt.Subject, stmt.Predicate, stmt.Object, graph))
			atomic.AddInt64(&parsed, 1)
			if len(rows) >= chunkSize {
				select {
				case batches <- rows:
				case <-gctx.Done():
					return gctx.Err()
				}
				rows = make([]stagedRow, 0, chunkSize)
			}
		}
		if len(rows) > 0 {
			select {
			case batches <- rows:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	group.Go(func() error {
		for batch := range batches {
			n, err := b.copyRows(gctx, copyConn, opts.SpaceID, stageQuad, batch)
			if err != nil {
				return err
			}
			atomic.AddInt64(&loaded, n)
			b.emit(gctx, "parsing", importID, atomic.LoadInt64(&parsed))
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		cleanup()
		return stats, err
	}
	stats.TriplesParsed = parsed
	stats.TriplesLoaded = loaded
	stats.ParseTime = time.Since(parseStart)
	b.emit(ctx, "copying", importID, loaded)

	// Phase 4: term extraction, one UNION ALL + DISTINCT insert.
	if err := b.extractTerms(ctx, conn, opts.SpaceID, stageTerm, stageQuad, dataset); err != nil {
		cleanup()
		return stats, err
	}
	b.emit(ctx, "extracting_terms", importID, loaded)

	// Phase 5: publication.
	publishStart := time.Now()
	partitioned, err := b.publish(ctx, conn, names, opts.SpaceID, stageTerm, stageQuad, dataset, opts.UseWorktable)
	if err != nil {
		cleanup()
		return stats, err
	}
	stats.PartitionMode = partitioned
	stats.PublishTime = time.Since(publishStart)
	b.emit(ctx, "publishing", importID, loaded)

	// Phase 6: ANALYZE the parent tables after publication, then, in
	// partition mode, VACUUM ANALYZE the attached partitions on an autocommit
	// connection (see analyzeAndVacuum).
	b.analyzeAndVacuum(ctx, names, partitioned, stageQuad, stageTerm)
	b.emit(ctx, "analyzing", importID, loaded)

	if !partitioned {
		cleanup()
	}

	stats.TotalTime = time.Since(start)
	b.emit(ctx, "done", importID, loaded)
	if b.engine.Logger != nil {
		withRequestContext(ctx, opLogger(b.engine.Logger, "bulk_import", names["rdf_quad"], loaded, stats.TotalTime)).Info("bulk import completed")
	}
	return stats, nil
}

func (b *BulkImporter) assignRow(cache *lru.Cache[string, uuid.UUID], s, p, o, g parsedTerm) stagedRow {
	assign := func(pt parsedTerm) uuid.UUID {
		key := pt.Text + "\x00" + string(pt.Kind) + "\x00" + pt.Lang + "\x00" + pt.Datatype
		if id, ok := cache.Get(key); ok {
			return id
		}
		id := UUIDForTerm(pt.Text, pt.Kind, pt.Lang, pt.Datatype)
		cache.Add(key, id)
		return id
	}
	return stagedRow{
		subjectUUID: assign(s), subjectText: s.Text, subjectKind: s.Kind,
		predicateUUID: assign(p), predicateText: p.Text, predicateKind: p.Kind,
		objectUUID: assign(o), objectText: o.Text, objectKind: o.Kind, objectLang: o.Lang, objectDatatype: o.Datatype,
		contextUUID: assign(g), contextText: g.Text, contextKind: g.Kind,
	}
}

func (b *BulkImporter) createStagingTables(ctx context.Context, conn querier, spaceID, stageTerm, stageQuad string, names map[string]string, dataset string) error {
	stmts := []string{
		fmt.Sprintf(`CREATE UNLOGGED TABLE %s (
			term_uuid UUID NOT NULL,
			term_text TEXT NOT NULL,
			term_kind CHAR(1) NOT NULL,
			lang VARCHAR(20),
			datatype_id BIGINT,
			dataset VARCHAR(50) NOT NULL DEFAULT %s,
			PRIMARY KEY (term_uuid, dataset),
			CONSTRAINT %s_term_kind_check CHECK (term_kind IN ('U','L','B','G')),
			CONSTRAINT %s_dataset_ck CHECK (dataset = %s) NOT VALID
		)`, stageTerm, quoteLiteral(dataset), names["term"], stageTerm, quoteLiteral(dataset)),
		fmt.Sprintf(`CREATE UNLOGGED TABLE %s (
			subject_uuid UUID NOT NULL, subject_text TEXT NOT NULL, subject_kind CHAR(1) NOT NULL,
			predicate_uuid UUID NOT NULL, predicate_text TEXT NOT NULL, predicate_kind CHAR(1) NOT NULL,
			object_uuid UUID NOT NULL, object_text TEXT NOT NULL, object_kind CHAR(1) NOT NULL,
			object_lang VARCHAR(20), object_datatype TEXT,
			context_uuid UUID NOT NULL, context_text TEXT NOT NULL, context_kind CHAR(1) NOT NULL,
			dataset VARCHAR(50) NOT NULL DEFAULT %s,
			CONSTRAINT %s_dataset_ck CHECK (dataset = %s) NOT VALID
		)`, stageQuad, quoteLiteral(dataset), stageQuad, quoteLiteral(dataset)),
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return wrapBackend("create_staging_tables", spaceID, err)
		}
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + s + "'"
}

func (b *BulkImporter) copyRows(ctx context.Context, conn *pgxpool.Conn, spaceID, table string, rows []stagedRow) (int64, error) {
	cols := []string{
		"subject_uuid", "subject_text", "subject_kind",
		"predicate_uuid", "predicate_text", "predicate_kind",
		"object_uuid", "object_text", "object_kind", "object_lang", "object_datatype",
		"context_uuid", "context_text", "context_kind",
	}
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
		r := rows[i]
		var lang, dt interface{}
		if r.objectLang != "" {
			lang = r.objectLang
		}
		if r.objectDatatype != "" {
			dt = r.objectDatatype
		}
		return []interface{}{
			r.subjectUUID, r.subjectText, string(r.subjectKind),
			r.predicateUUID, r.predicateText, string(r.predicateKind),
			r.objectUUID, r.objectText, string(r.objectKind), lang, dt,
			r.contextUUID, r.contextText, string(r.contextKind),
		}, nil
	})
	n, err := conn.CopyFrom(ctx, pgx.Identifier{table}, cols, src)
	if err != nil {
		return 0, wrapBackend("copy_staging_rows", spaceID, err)
	}
	return n, nil
}

func (b *BulkImporter) extractTerms(ctx context.Context, conn querier, spaceID, stageTerm, stageQuad, dataset string) error {
	sql := fmt.Sprintf(`
		INSERT INTO %[1]s (term_uuid, term_text, term_kind, lang, datatype_id, dataset)
		SELECT DISTINCT ON (term_uuid) term_uuid, term_text, term_kind, lang, datatype_id, %[3]s
		FROM (
			SELECT subject_uuid AS term_uuid, subject_text AS term_text, subject_kind AS term_kind, NULL::text AS lang, NULL::bigint AS datatype_id FROM %[2]s
			UNION ALL
			SELECT predicate_uuid, predicate_text, predicate_kind, NULL, NULL FROM %[2]s
			UNION ALL
			SELECT object_uuid, object_text, object_kind, object_lang, NULL FROM %[2]s
			UNION ALL
			SELECT context_uuid, context_text, context_kind, NULL, NULL FROM %[2]s
		) t
		ON CONFLICT (term_uuid, dataset) DO NOTHING`,
		stageTerm, stageQuad, quoteLiteral(dataset))
	if _, err := conn.Exec(ctx, sql); err != nil {
		return wrapBackend("extract_staging_terms", spaceID, err)
	}
	return nil
}

// publish attaches the staging tables as partitions when the live tables
// are partitioned by dataset (the normal case per schema.go), or falls
// back to an index-drop/insert/index-rebuild sequence otherwise.
func (b *BulkImporter) publish(ctx context.Context, conn querier, names map[string]string, spaceID, stageTerm, stageQuad, dataset string, forceFallback bool) (partitioned bool, err error) {
	if !forceFallback {
		if _, err := conn.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s
			DROP COLUMN subject_text, DROP COLUMN subject_kind,
			DROP COLUMN predicate_text, DROP COLUMN predicate_kind,
			DROP COLUMN object_text, DROP COLUMN object_kind, DROP COLUMN object_lang, DROP COLUMN object_datatype,
			DROP COLUMN context_text, DROP COLUMN context_kind,
			ADD COLUMN quad_uuid UUID NOT NULL DEFAULT gen_random_uuid(),
			ADD COLUMN created_time TIMESTAMPTZ NOT NULL DEFAULT now()`, stageQuad)); err != nil {
			return false, wrapBackend("reshape_staging_quad", spaceID, err)
		}
		if _, err := conn.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN created_time TIMESTAMPTZ NOT NULL DEFAULT now()`, stageTerm)); err != nil {
			return false, wrapBackend("reshape_staging_term", spaceID, err)
		}
		if _, err := conn.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s SET LOGGED`, stageQuad)); err != nil {
			return false, wrapBackend("set_logged_quad", spaceID, err)
		}
		if _, err := conn.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s SET LOGGED`, stageTerm)); err != nil {
			return false, wrapBackend("set_logged_term", spaceID, err)
		}
		if _, err := conn.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s ATTACH PARTITION %s FOR VALUES IN (%s)`, names["rdf_quad"], stageQuad, quoteLiteral(dataset))); err != nil {
			return false, wrapBackend("attach_quad_partition", spaceID, err)
		}
		if _, err := conn.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s ATTACH PARTITION %s FOR VALUES IN (%s)`, names["term"], stageTerm, quoteLiteral(dataset))); err != nil {
			return false, wrapBackend("attach_term_partition", spaceID, err)
		}
		return true, nil
	}

	// Insert-fallback path: drop secondary indexes, bulk-insert staging rows
	// into the live tables, rebuild indexes non-concurrently (CONCURRENTLY
	// cannot run inside a transaction block, and this whole sequence is not
	// wrapped in one), then the caller drops the staging tables.
	schema := NewSchema(b.engine)
	if err := schema.DropIndexes(ctx, spaceID); err != nil {
		return false, err
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (term_uuid, term_text, term_kind, lang, datatype_id, dataset)
		SELECT term_uuid, term_text, term_kind, lang, datatype_id, 'primary' FROM %s
		ON CONFLICT (term_uuid, dataset) DO NOTHING`, names["term"], stageTerm)); err != nil {
		return false, wrapBackend("insert_fallback_terms", spaceID, err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (subject_uuid, predicate_uuid, object_uuid, context_uuid, dataset)
		SELECT subject_uuid, predicate_uuid, object_uuid, context_uuid, 'primary' FROM %s`, names["rdf_quad"], stageQuad)); err != nil {
		return false, wrapBackend("insert_fallback_quads", spaceID, err)
	}
	if err := schema.RecreateIndexes(ctx, spaceID, false); err != nil {
		return false, err
	}
	return false, nil
}

// analyzeAndVacuum runs ANALYZE on the parent Quad and Term tables over a
// pooled connection acquired after publication has finished; publication is
// not wrapped in a transaction, so this ANALYZE is not part of it. In
// partition mode it then runs VACUUM ANALYZE on the two attached partitions
// over a second autocommit connection (VACUUM cannot run inside a
// transaction block). Failures here are logged, not propagated: the data is
// already live.
func (b *BulkImporter) analyzeAndVacuum(ctx context.Context, names map[string]string, partitioned bool, stageQuad, stageTerm string) {
	conn, release, err := b.engine.AcquireTuple(ctx)
	if err != nil {
		return
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(`ANALYZE %s`, names["rdf_quad"])); err != nil && b.engine.Logger != nil {
		b.engine.Logger.WithError(err).Warn("rdfstore: analyze rdf_quad failed")
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(`ANALYZE %s`, names["term"])); err != nil && b.engine.Logger != nil {
		b.engine.Logger.WithError(err).Warn("rdfstore: analyze term failed")
	}
	release()

	if !partitioned {
		return
	}
	vconn, vrelease, err := b.engine.AcquireTuple(ctx)
	if err != nil {
		return
	}
	defer vrelease()
	for _, target := range []string{stageQuad, stageTerm} {
		if _, err := vconn.Exec(ctx, fmt.Sprintf(`VACUUM ANALYZE %s`, target)); err != nil && b.engine.Logger != nil {
			b.engine.Logger.WithError(err).WithField("table", target).Warn("rdfstore: vacuum analyze failed")
		}
	}
}

func (b *BulkImporter) emit(ctx context.Context, phase, importID string, rows int64) {
	b.sink.Emit(ctx, "import", map[string]interface{}{
		"import_id": importID,
		"phase":     phase,
		"rows":      humanize.Comma(rows),
	})
}
