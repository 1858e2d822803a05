package rdfstore

import (
	"context"
	"fmt"
	"regexp"
)

// maxIndexNameSuffix bounds the fixed text idxName places after the space id
// in a generated index name. The longest such text is "__term_text_gist_trgm"
// (21 bytes); 32 leaves headroom. Combined with the fixed prefix
// "idx_<global>__" this bounds how long a space id may be so every generated
// index name stays under PostgreSQL's 63-byte limit (see validateSpaceID).
const maxIndexNameSuffix = 32

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// validateGlobalPrefix rejects prefixes that would make generated table or
// index names unsafe.
func validateGlobalPrefix(prefix string) error {
	if prefix == "" {
		return &ValidationError{Field: "global_prefix", Reason: "must not be empty"}
	}
	if !identifierPattern.MatchString(prefix) {
		return &ValidationError{Field: "global_prefix", Reason: "must be alphanumeric plus '-'/'_'"}
	}
	return nil
}

// validateSpaceID enforces the identifier-length invariant (spec §3.2.6):
// space_id must be non-empty, contain no "__" (the table-name separator),
// be alphanumeric plus hyphen/underscore, and short enough that the
// longest generated index name fits PostgreSQL's 63-byte identifier limit.
func validateSpaceID(globalPrefix, spaceID string) error {
	if spaceID == "" {
		return &ValidationError{Field: "space_id", Reason: "must not be empty"}
	}
	if !identifierPattern.MatchString(spaceID) {
		return &ValidationError{Field: "space_id", Reason: "must be alphanumeric plus '-'/'_'"}
	}
	if containsDoubleUnderscore(spaceID) {
		return &ValidationError{Field: "space_id", Reason: "must not contain '__'"}
	}
	fixedPrefixLen := len("idx_") + len(globalPrefix) + len("__") + len("__")
	maxLen := 63 - fixedPrefixLen - maxIndexNameSuffix
	if len(spaceID) > maxLen {
		return &ValidationError{Field: "space_id", Reason: fmt.Sprintf("must be at most %d characters under prefix %q", maxLen, globalPrefix)}
	}
	return nil
}

func containsDoubleUnderscore(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '_' && s[i+1] == '_' {
			return true
		}
	}
	return false
}

// TablePrefix returns "{globalPrefix}__{spaceID}__".
func TablePrefix(globalPrefix, spaceID string) string {
	return globalPrefix + "__" + spaceID + "__"
}

// TableName returns the fully qualified table name for one of the five
// per-space base tables ("term", "rdf_quad", "namespace", "graph",
// "datatype").
func TableName(globalPrefix, spaceID, base string) string {
	return TablePrefix(globalPrefix, spaceID) + base
}

// TableNames returns all five base table names for a space, keyed by base
// name.
func TableNames(globalPrefix, spaceID string) map[string]string {
	bases := []string{"term", "rdf_quad", "namespace", "graph", "datatype"}
	out := make(map[string]string, len(bases))
	for _, b := range bases {
		out[b] = TableName(globalPrefix, spaceID, b)
	}
	return out
}

// Schema generates and executes per-space DDL.
type Schema struct {
	engine *Engine
}

// NewSchema constructs a Schema bound to an engine's pools.
func NewSchema(engine *Engine) *Schema { return &Schema{engine: engine} }

// CreateAll creates the five base tables and their indexes for a space, in
// dependency order: datatype, term, rdf_quad, namespace, graph.
func (s *Schema) CreateAll(ctx context.Context, spaceID string) error {
	if err := validateGlobalPrefix(s.engine.GlobalPrefix); err != nil {
		return err
	}
	if err := validateSpaceID(s.engine.GlobalPrefix, spaceID); err != nil {
		return err
	}
	names := TableNames(s.engine.GlobalPrefix, spaceID)

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			datatype_id BIGSERIAL PRIMARY KEY,
			datatype_uri TEXT UNIQUE NOT NULL,
			datatype_name TEXT,
			created_time TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, names["datatype"]),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			term_uuid UUID NOT NULL,
			term_text TEXT NOT NULL,
			term_kind CHAR(1) NOT NULL CHECK (term_kind IN ('U','L','B','G')),
			lang VARCHAR(20),
			datatype_id BIGINT REFERENCES %s(datatype_id),
			created_time TIMESTAMPTZ NOT NULL DEFAULT now(),
			dataset VARCHAR(50) NOT NULL DEFAULT 'primary',
			PRIMARY KEY (term_uuid, dataset)
		) PARTITION BY LIST (dataset)`, names["term"], names["datatype"]),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_primary PARTITION OF %s FOR VALUES IN ('primary')`, names["term"], names["term"]),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (term_text)`, idxName(names["term"], "text"), names["term"]),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (term_kind)`, idxName(names["term"], "kind"), names["term"]),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (term_text, term_kind)`, idxName(names["term"], "text_kind"), names["term"]),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (term_text gin_trgm_ops)`, idxName(names["term"], "text_gin_trgm"), names["term"]),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (term_text gist_trgm_ops)`, idxName(names["term"], "text_gist_trgm"), names["term"]),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			subject_uuid UUID NOT NULL,
			predicate_uuid UUID NOT NULL,
			object_uuid UUID NOT NULL,
			context_uuid UUID NOT NULL,
			quad_uuid UUID NOT NULL DEFAULT gen_random_uuid(),
			created_time TIMESTAMPTZ NOT NULL DEFAULT now(),
			dataset VARCHAR(50) NOT NULL DEFAULT 'primary'
		) PARTITION BY LIST (dataset)`, names["rdf_quad"]),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_primary PARTITION OF %s FOR VALUES IN ('primary')`, names["rdf_quad"], names["rdf_quad"]),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (subject_uuid)`, idxName(names["rdf_quad"], "s"), names["rdf_quad"]),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (predicate_uuid)`, idxName(names["rdf_quad"], "p"), names["rdf_quad"]),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (object_uuid)`, idxName(names["rdf_quad"], "o"), names["rdf_quad"]),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (context_uuid)`, idxName(names["rdf_quad"], "c"), names["rdf_quad"]),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (subject_uuid, predicate_uuid, object_uuid, context_uuid)`, idxName(names["rdf_quad"], "spoc"), names["rdf_quad"]),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			namespace_id BIGSERIAL PRIMARY KEY,
			prefix VARCHAR(50) UNIQUE NOT NULL,
			namespace_uri TEXT UNIQUE NOT NULL,
			created_time TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, names["namespace"]),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			graph_id BIGSERIAL PRIMARY KEY,
			graph_uri TEXT UNIQUE NOT NULL,
			graph_name TEXT,
			triple_count BIGINT NOT NULL DEFAULT 0,
			created_time TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_time TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, names["graph"]),
	}

	conn, release, err := s.engine.AcquireTuple(ctx)
	if err != nil {
		return err
	}
	defer release()

	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return wrapBackend("create_space_schema", spaceID, err)
		}
	}
	return nil
}

// DropAll drops all five base tables for a space, CASCADE, in reverse
// dependency order.
func (s *Schema) DropAll(ctx context.Context, spaceID string) error {
	names := TableNames(s.engine.GlobalPrefix, spaceID)
	conn, release, err := s.engine.AcquireTuple(ctx)
	if err != nil {
		return err
	}
	defer release()

	order := []string{"graph", "namespace", "rdf_quad", "term", "datatype"}
	for _, base := range order {
		if _, err := conn.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, names[base])); err != nil {
			return wrapBackend("drop_space_schema", spaceID, err)
		}
	}
	return nil
}

// DropIndexes drops every secondary index on the Term and Quad tables,
// ahead of an insert-fallback bulk publication.
func (s *Schema) DropIndexes(ctx context.Context, spaceID string) error {
	names := TableNames(s.engine.GlobalPrefix, spaceID)
	conn, release, err := s.engine.AcquireTuple(ctx)
	if err != nil {
		return err
	}
	defer release()

	idxSuffixes := []string{"text", "kind", "text_kind", "text_gin_trgm", "text_gist_trgm"}
	for _, suf := range idxSuffixes {
		if _, err := conn.Exec(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s`, idxName(names["term"], suf))); err != nil {
			return wrapBackend("drop_term_index", spaceID, err)
		}
	}
	for _, suf := range []string{"s", "p", "o", "c", "spoc"} {
		if _, err := conn.Exec(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s`, idxName(names["rdf_quad"], suf))); err != nil {
			return wrapBackend("drop_quad_index", spaceID, err)
		}
	}
	return nil
}

// RecreateIndexes rebuilds the indexes DropIndexes removed. When concurrent
// is true (the steady-state path) it uses CREATE INDEX CONCURRENTLY so live
// reads are not blocked; bulk publication's insert-fallback path uses
// concurrent=false. The statements run one by one on a pooled connection,
// outside any transaction.
func (s *Schema) RecreateIndexes(ctx context.Context, spaceID string, concurrent bool) error {
	names := TableNames(s.engine.GlobalPrefix, spaceID)
	conn, release, err := s.engine.AcquireTuple(ctx)
	if err != nil {
		return err
	}
	defer release()

	maybeConcurrently := ""
	if concurrent {
		maybeConcurrently = "CONCURRENTLY"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE INDEX %s IF NOT EXISTS %s ON %s (term_text)`, maybeConcurrently, idxName(names["term"], "text"), names["term"]),
		fmt.Sprintf(`CREATE INDEX %s IF NOT EXISTS %s ON %s (term_kind)`, maybeConcurrently, idxName(names["term"], "kind"), names["term"]),
		fmt.Sprintf(`CREATE INDEX %s IF NOT EXISTS %s ON %s (term_text, term_kind)`, maybeConcurrently, idxName(names["term"], "text_kind"), names["term"]),
		fmt.Sprintf(`CREATE INDEX %s IF NOT EXISTS %s ON %s USING GIN (term_text gin_trgm_ops)`, maybeConcurrently, idxName(names["term"], "text_gin_trgm"), names["term"]),
		fmt.Sprintf(`CREATE INDEX %s IF NOT EXISTS %s ON %s USING GIST (term_text gist_trgm_ops)`, maybeConcurrently, idxName(names["term"], "text_gist_trgm"), names["term"]),
		fmt.Sprintf(`CREATE INDEX %s IF NOT EXISTS %s ON %s (subject_uuid)`, maybeConcurrently, idxName(names["rdf_quad"], "s"), names["rdf_quad"]),
		fmt.Sprintf(`CREATE INDEX %s IF NOT EXISTS %s ON %s (predicate_uuid)`, maybeConcurrently, idxName(names["rdf_quad"], "p"), names["rdf_quad"]),
		fmt.Sprintf(`CREATE INDEX %s IF NOT EXISTS %s ON %s (object_uuid)`, maybeConcurrently, idxName(names["rdf_quad"], "o"), names["rdf_quad"]),
		fmt.Sprintf(`CREATE INDEX %s IF NOT EXISTS %s ON %s (context_uuid)`, maybeConcurrently, idxName(names["rdf_quad"], "c"), names["rdf_quad"]),
		fmt.Sprintf(`CREATE INDEX %s IF NOT EXISTS %s ON %s (subject_uuid, predicate_uuid, object_uuid, context_uuid)`, maybeConcurrently, idxName(names["rdf_quad"], "spoc"), names["rdf_quad"]),
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return wrapBackend("recreate_index", spaceID, err)
		}
	}
	return nil
}

// Cluster physically reorders each partition's storage: the Quad table on
// its subject index, the Term table on its primary key. CLUSTER applies per
// partition, not to the partitioned parent, so this targets the default
// "primary" partition; bulk-attached partitions are not clustered.
func (s *Schema) Cluster(ctx context.Context, spaceID string) error {
	names := TableNames(s.engine.GlobalPrefix, spaceID)
	conn, release, err := s.engine.AcquireTuple(ctx)
	if err != nil {
		return err
	}
	defer release()

	stmts := []string{
		fmt.Sprintf(`CLUSTER %s_primary USING %s`, names["rdf_quad"], idxName(names["rdf_quad"], "s")),
		fmt.Sprintf(`CLUSTER %s_primary USING %s_primary_pkey`, names["term"], names["term"]),
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return wrapBackend("cluster_space_tables", spaceID, err)
		}
	}
	return nil
}

// idxName generates a short, deterministic index name derived from a table
// name and a suffix, kept under PostgreSQL's 63-byte identifier limit by
// validateSpaceID's length bound.
func idxName(table, suffix string) string {
	return fmt.Sprintf("idx_%s_%s", table, suffix)
}
