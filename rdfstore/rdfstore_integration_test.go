//go:build integration

package rdfstore

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresContainer starts a PostgreSQL container with pg_trgm
// available, mirroring the teacher's db package container helper.
func setupPostgresContainer(t *testing.T) string {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS pg_trgm")
	require.NoError(t, err)
	pool.Close()

	return dsn
}

func newTestEngine(t *testing.T, dsn string) *Engine {
	engine, err := NewEngine(context.Background(), dsn, EngineOptions{GlobalPrefix: "vg"})
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func uniqueSpaceID(t *testing.T) string {
	// validateSpaceID bounds a space id's length so every generated index
	// name stays under PostgreSQL's 63-byte limit; keep well under that.
	name := strings.ReplaceAll(strings.ToLower(t.Name()), "/", "")
	if len(name) > 16 {
		name = name[len(name)-16:]
	}
	return "sp" + name
}

func TestIntegration_SpaceLifecycle(t *testing.T) {
	dsn := setupPostgresContainer(t)
	engine := newTestEngine(t, dsn)
	sm := NewSpaceManager(engine)
	ctx := context.Background()
	space := uniqueSpaceID(t)

	exists, err := sm.SpaceExists(ctx, space)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, sm.CreateSpaceTables(ctx, space))
	t.Cleanup(func() { _ = sm.DeleteSpaceTables(ctx, space) })

	exists, err = sm.SpaceExists(ctx, space)
	require.NoError(t, err)
	assert.True(t, exists)

	ids, err := sm.ListSpaces(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, space)

	dt := NewDatatypeRegistry(engine, space, 0)
	id, err := dt.GetOrCreate(ctx, XSDInteger)
	require.NoError(t, err)
	assert.NotZero(t, id, "BootstrapStandardDatatypes should have seeded xsd:integer")

	require.NoError(t, sm.DeleteSpaceTables(ctx, space))
	exists, err = sm.SpaceExists(ctx, space)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIntegration_GraphRegistry(t *testing.T) {
	dsn := setupPostgresContainer(t)
	engine := newTestEngine(t, dsn)
	sm := NewSpaceManager(engine)
	ctx := context.Background()
	space := uniqueSpaceID(t)
	require.NoError(t, sm.CreateSpaceTables(ctx, space))
	t.Cleanup(func() { _ = sm.DeleteSpaceTables(ctx, space) })

	sink := &recordingSink{}
	graphs := NewGraphRegistry(engine, space, sink)

	require.NoError(t, graphs.Create(ctx, "http://ex/g1", ""))
	assert.Contains(t, sink.calls, "graphs")
	assert.Contains(t, sink.calls, "graph")

	info, err := graphs.Get(ctx, "http://ex/g1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "g1", info.GraphName, "name should be derived from the URI's last path segment")
	assert.Equal(t, int64(0), info.TripleCount)

	require.NoError(t, graphs.Create(ctx, "http://ex/g1", "")) // no-op on repeat

	list, err := graphs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, graphs.AdjustCount(ctx, "http://ex/g1", 5, nil))
	info, err = graphs.Get(ctx, "http://ex/g1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.TripleCount)

	abs := int64(42)
	require.NoError(t, graphs.AdjustCount(ctx, "http://ex/g1", 0, &abs))
	info, err = graphs.Get(ctx, "http://ex/g1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.TripleCount)

	unknown, err := graphs.Get(ctx, "http://ex/does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, unknown)

	require.NoError(t, graphs.Drop(ctx, "http://ex/g1"))
	gone, err := graphs.Get(ctx, "http://ex/g1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestIntegration_NamespaceRegistry(t *testing.T) {
	dsn := setupPostgresContainer(t)
	engine := newTestEngine(t, dsn)
	sm := NewSpaceManager(engine)
	ctx := context.Background()
	space := uniqueSpaceID(t)
	require.NoError(t, sm.CreateSpaceTables(ctx, space))
	t.Cleanup(func() { _ = sm.DeleteSpaceTables(ctx, space) })

	ns := NewNamespaceRegistry(engine, space)

	id1, err := ns.Add(ctx, "foaf", "http://xmlns.com/foaf/0.1/")
	require.NoError(t, err)
	assert.NotZero(t, id1)

	uri, ok, err := ns.Get(ctx, "foaf")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://xmlns.com/foaf/0.1/", uri)

	// re-adding the same prefix with a different URI updates in place and
	// keeps the same id.
	id2, err := ns.Add(ctx, "foaf", "http://xmlns.com/foaf/0.2/")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	uri, _, err = ns.Get(ctx, "foaf")
	require.NoError(t, err)
	assert.Equal(t, "http://xmlns.com/foaf/0.2/", uri)

	_, ok, err = ns.Get(ctx, "unknown-prefix")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ns.Add(ctx, "rdf", "http://www.w3.org/1999/02/22-rdf-syntax-ns#")
	require.NoError(t, err)
	list, err := ns.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "foaf", list[0].Prefix, "List orders by prefix")
	assert.Equal(t, "rdf", list[1].Prefix)
}

func TestIntegration_QuadStore_AddRemoveAndPattern(t *testing.T) {
	dsn := setupPostgresContainer(t)
	engine := newTestEngine(t, dsn)
	sm := NewSpaceManager(engine)
	ctx := context.Background()
	space := uniqueSpaceID(t)
	require.NoError(t, sm.CreateSpaceTables(ctx, space))
	t.Cleanup(func() { _ = sm.DeleteSpaceTables(ctx, space) })

	dt := NewDatatypeRegistry(engine, space, 0)
	graphs := NewGraphRegistry(engine, space, nil)
	qs := NewQuadStore(engine, dt, graphs, space, nil)

	alice := URI("http://ex/alice")
	name := URI("http://ex/name")
	aliceName := PlainLiteral("Alice")
	g := URI("http://ex/g1")

	require.NoError(t, qs.Add(ctx, alice, name, aliceName, g, nil))

	count, err := qs.CountByGraphURI(ctx, "http://ex/g1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	cursor, err := qs.Quads(ctx, QuadPattern{Subject: alice})
	require.NoError(t, err)
	defer cursor.Close(ctx)

	q, ok, err := cursor.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alice", q.O.Text)
	assert.Equal(t, KindLiteral, q.O.Kind)

	_, ok, err = cursor.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := qs.Remove(ctx, alice, name, aliceName, g, nil)
	require.NoError(t, err)
	assert.True(t, removed)

	count, err = qs.CountByGraphURI(ctx, "http://ex/g1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestIntegration_QuadStore_AddBatchAndRegexPattern(t *testing.T) {
	dsn := setupPostgresContainer(t)
	engine := newTestEngine(t, dsn)
	sm := NewSpaceManager(engine)
	ctx := context.Background()
	space := uniqueSpaceID(t)
	require.NoError(t, sm.CreateSpaceTables(ctx, space))
	t.Cleanup(func() { _ = sm.DeleteSpaceTables(ctx, space) })

	dt := NewDatatypeRegistry(engine, space, 0)
	graphs := NewGraphRegistry(engine, space, nil)
	qs := NewQuadStore(engine, dt, graphs, space, nil)

	g := URI("http://ex/g1")
	batch := []QuadInput{
		{Subject: URI("http://ex/alice"), Predicate: URI("http://ex/name"), Object: PlainLiteral("Alice Smith"), Graph: g},
		{Subject: URI("http://ex/bob"), Predicate: URI("http://ex/name"), Object: PlainLiteral("Bob Jones"), Graph: g},
	}
	n, err := qs.AddBatch(ctx, batch, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	cursor, err := qs.Quads(ctx, QuadPattern{Object: RegexTerm{Pattern: "^Alice"}})
	require.NoError(t, err)
	defer cursor.Close(ctx)

	q, ok, err := cursor.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alice Smith", q.O.Text)

	_, ok, err = cursor.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "the regex should match only the Alice row")

	removed, err := qs.RemoveBatch(ctx, batch, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestIntegration_QuadStore_RemoveBatch_UnknownTermIsHardError(t *testing.T) {
	dsn := setupPostgresContainer(t)
	engine := newTestEngine(t, dsn)
	sm := NewSpaceManager(engine)
	ctx := context.Background()
	space := uniqueSpaceID(t)
	require.NoError(t, sm.CreateSpaceTables(ctx, space))
	t.Cleanup(func() { _ = sm.DeleteSpaceTables(ctx, space) })

	dt := NewDatatypeRegistry(engine, space, 0)
	graphs := NewGraphRegistry(engine, space, nil)
	qs := NewQuadStore(engine, dt, graphs, space, nil)

	_, err := qs.RemoveBatch(ctx, []QuadInput{
		{Subject: URI("http://ex/nope"), Predicate: URI("http://ex/p"), Object: URI("http://ex/o"), Graph: URI("http://ex/g")},
	}, nil)
	require.Error(t, err, "a batch referencing unknown terms is always a hard error")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestIntegration_BulkImporter_PartitionAttach(t *testing.T) {
	dsn := setupPostgresContainer(t)
	engine := newTestEngine(t, dsn)
	sm := NewSpaceManager(engine)
	ctx := context.Background()
	space := uniqueSpaceID(t)
	require.NoError(t, sm.CreateSpaceTables(ctx, space))
	t.Cleanup(func() { _ = sm.DeleteSpaceTables(ctx, space) })

	dt := NewDatatypeRegistry(engine, space, 0)
	bulk := NewBulkImporter(engine, dt, nil)

	input := strings.NewReader(
		"<http://ex/s1> <http://ex/p> <http://ex/o1> .\n" +
			"<http://ex/s2> <http://ex/p> \"42\"^^<http://www.w3.org/2001/XMLSchema#integer> .\n")

	stats, err := bulk.Import(ctx, input, BulkImportOptions{SpaceID: space, DefaultGraph: "http://ex/default", ChunkSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TriplesParsed)
	assert.Equal(t, int64(2), stats.TriplesLoaded)
	assert.True(t, stats.PartitionMode)

	graphs := NewGraphRegistry(engine, space, nil)
	qs := NewQuadStore(engine, dt, graphs, space, nil)
	count, err := qs.CountByGraphURI(ctx, "http://ex/default")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestIntegration_BulkImporter_InsertFallback(t *testing.T) {
	dsn := setupPostgresContainer(t)
	engine := newTestEngine(t, dsn)
	sm := NewSpaceManager(engine)
	ctx := context.Background()
	space := uniqueSpaceID(t)
	require.NoError(t, sm.CreateSpaceTables(ctx, space))
	t.Cleanup(func() { _ = sm.DeleteSpaceTables(ctx, space) })

	dt := NewDatatypeRegistry(engine, space, 0)
	bulk := NewBulkImporter(engine, dt, nil)

	input := strings.NewReader("<http://ex/s1> <http://ex/p> <http://ex/o1> .\n")
	stats, err := bulk.Import(ctx, input, BulkImportOptions{SpaceID: space, DefaultGraph: "http://ex/default", UseWorktable: true})
	require.NoError(t, err)
	assert.False(t, stats.PartitionMode)
	assert.Equal(t, int64(1), stats.TriplesLoaded)

	graphs := NewGraphRegistry(engine, space, nil)
	qs := NewQuadStore(engine, dt, graphs, space, nil)
	count, err := qs.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
