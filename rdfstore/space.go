package rdfstore

import (
	"context"
	"regexp"
)

// SpaceManager creates, inspects and destroys the set of five base tables
// that make up one space.
type SpaceManager struct {
	engine *Engine
	schema *Schema
}

// NewSpaceManager constructs the C12 façade bound to an engine's pools.
func NewSpaceManager(engine *Engine) *SpaceManager {
	return &SpaceManager{engine: engine, schema: NewSchema(engine)}
}

// CreateSpaceTables creates all five base tables for a space and seeds its
// datatype registry with the standard XSD/RDF datatypes.
func (sm *SpaceManager) CreateSpaceTables(ctx context.Context, spaceID string) error {
	if err := sm.schema.CreateAll(ctx, spaceID); err != nil {
		return err
	}
	dt := NewDatatypeRegistry(sm.engine, spaceID, 0)
	return dt.BootstrapStandardDatatypes(ctx)
}

// DeleteSpaceTables drops all five base tables for a space, CASCADE.
func (sm *SpaceManager) DeleteSpaceTables(ctx context.Context, spaceID string) error {
	return sm.schema.DropAll(ctx, spaceID)
}

// SpaceExists reports whether a space's Quad table is present, taken as a
// signal the whole set of base tables exists.
func (sm *SpaceManager) SpaceExists(ctx context.Context, spaceID string) (bool, error) {
	quadTable := TableName(sm.engine.GlobalPrefix, spaceID, "rdf_quad")
	conn, release, err := sm.engine.AcquireTuple(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	var exists bool
	err = conn.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", quadTable).Scan(&exists)
	if err != nil {
		return false, wrapBackend("space_exists", "", err)
	}
	return exists, nil
}

// ListSpaces scans pg_tables for every "{global_prefix}__{id}__rdf_quad"
// table name and returns the extracted space ids.
func (sm *SpaceManager) ListSpaces(ctx context.Context) ([]string, error) {
	conn, release, err := sm.engine.AcquireTuple(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.Query(ctx,
		"SELECT tablename FROM pg_tables WHERE tablename LIKE $1",
		sm.engine.GlobalPrefix+"\\_\\_%\\_\\_rdf_quad")
	if err != nil {
		return nil, wrapBackend("list_spaces", "", err)
	}
	defer rows.Close()

	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(sm.engine.GlobalPrefix) + "__(.+)__rdf_quad$")
	var ids []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, wrapBackend("list_spaces_scan", "", err)
		}
		if m := pattern.FindStringSubmatch(table); m != nil {
			ids = append(ids, m[1])
		}
	}
	return ids, rows.Err()
}
