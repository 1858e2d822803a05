package rdfstore

import (
	"context"
	"strings"
	"time"
)

// GraphInfo is one row of the graph registry.
type GraphInfo struct {
	GraphID     int64
	GraphURI    string
	GraphName   string
	TripleCount int64
	CreatedTime time.Time
	UpdatedTime time.Time
}

// GraphRegistry tracks the set of named graphs declared in one space and
// emits lifecycle signals for collaborators that want a change feed.
type GraphRegistry struct {
	engine *Engine
	space  string
	sink   Sink
}

// NewGraphRegistry constructs the C5 façade for one space.
func NewGraphRegistry(engine *Engine, space string, sink Sink) *GraphRegistry {
	if sink == nil {
		sink = NoopSink{}
	}
	return &GraphRegistry{engine: engine, space: space, sink: sink}
}

func deriveGraphName(uri string) string {
	for i := len(uri) - 1; i >= 0; i-- {
		if uri[i] == '/' || uri[i] == '#' {
			return uri[i+1:]
		}
	}
	return uri
}

// Create registers a graph, deriving its display name from the URI's last
// path segment when name is empty, and emits graphs:created + graph:created
// signals. Creating an already-registered graph is a no-op.
func (g *GraphRegistry) Create(ctx context.Context, uri, name string) error {
	if name == "" {
		name = deriveGraphName(uri)
	}
	table := TableName(g.engine.GlobalPrefix, g.space, "graph")
	conn, release, err := g.engine.AcquireTuple(ctx)
	if err != nil {
		return err
	}
	tag, err := conn.Exec(ctx,
		"INSERT INTO "+table+" (graph_uri, graph_name) VALUES ($1,$2) ON CONFLICT (graph_uri) DO NOTHING",
		uri, name)
	release()
	if err != nil {
		return wrapBackend("create_graph", g.space, err)
	}
	if tag.RowsAffected() > 0 {
		g.sink.Emit(ctx, "graphs", map[string]interface{}{"type": "created", "graph_uri": uri})
		g.sink.Emit(ctx, "graph", map[string]interface{}{"type": "created", "graph_uri": uri})
	}
	return nil
}

// Get returns a single graph's registry row, or nil if unknown.
func (g *GraphRegistry) Get(ctx context.Context, uri string) (*GraphInfo, error) {
	table := TableName(g.engine.GlobalPrefix, g.space, "graph")
	conn, release, err := g.engine.AcquireTuple(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var info GraphInfo
	err = conn.QueryRow(ctx,
		"SELECT graph_id, graph_uri, graph_name, triple_count, created_time, updated_time FROM "+table+" WHERE graph_uri=$1",
		uri).Scan(&info.GraphID, &info.GraphURI, &info.GraphName, &info.TripleCount, &info.CreatedTime, &info.UpdatedTime)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil
		}
		return nil, wrapBackend("get_graph", g.space, err)
	}
	return &info, nil
}

// List returns every registered graph, most recently created first.
func (g *GraphRegistry) List(ctx context.Context) ([]GraphInfo, error) {
	table := TableName(g.engine.GlobalPrefix, g.space, "graph")
	conn, release, err := g.engine.AcquireTuple(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.Query(ctx,
		"SELECT graph_id, graph_uri, graph_name, triple_count, created_time, updated_time FROM "+table+" ORDER BY created_time DESC")
	if err != nil {
		return nil, wrapBackend("list_graphs", g.space, err)
	}
	defer rows.Close()

	var out []GraphInfo
	for rows.Next() {
		var info GraphInfo
		if err := rows.Scan(&info.GraphID, &info.GraphURI, &info.GraphName, &info.TripleCount, &info.CreatedTime, &info.UpdatedTime); err != nil {
			return nil, wrapBackend("list_graphs_scan", g.space, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// AdjustCount updates the best-effort triple_count counter, either by a
// relative delta or to an absolute value, and emits graph:updated if the
// count actually changed. This counter is never the source of truth for an
// exact count (decided open question #2, SPEC_FULL.md §9); QuadStore/
// pattern-match Count is.
func (g *GraphRegistry) AdjustCount(ctx context.Context, uri string, delta int64, absolute *int64) error {
	table := TableName(g.engine.GlobalPrefix, g.space, "graph")
	conn, release, err := g.engine.AcquireTuple(ctx)
	if err != nil {
		return err
	}
	defer release()

	var tag = false
	if absolute != nil {
		ct, err := conn.Exec(ctx, "UPDATE "+table+" SET triple_count=$1, updated_time=now() WHERE graph_uri=$2", *absolute, uri)
		if err != nil {
			return wrapBackend("update_graph_triple_count", g.space, err)
		}
		tag = ct.RowsAffected() > 0
	} else if delta != 0 {
		ct, err := conn.Exec(ctx, "UPDATE "+table+" SET triple_count = triple_count + $1, updated_time=now() WHERE graph_uri=$2", delta, uri)
		if err != nil {
			return wrapBackend("update_graph_triple_count", g.space, err)
		}
		tag = ct.RowsAffected() > 0
	}
	if tag {
		g.sink.Emit(ctx, "graph", map[string]interface{}{"type": "updated", "graph_uri": uri})
	}
	return nil
}

// Clear deletes every quad in a graph but preserves its registry row,
// zeroing its counter and emitting graphs:updated + graph:updated.
func (g *GraphRegistry) Clear(ctx context.Context, uri string) error {
	termTable := TableName(g.engine.GlobalPrefix, g.space, "term")
	quadTable := TableName(g.engine.GlobalPrefix, g.space, "rdf_quad")
	graphTable := TableName(g.engine.GlobalPrefix, g.space, "graph")

	conn, release, err := g.engine.AcquireTuple(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = conn.Exec(ctx,
		"DELETE FROM "+quadTable+" WHERE context_uuid = (SELECT term_uuid FROM "+termTable+" WHERE term_text=$1)", uri)
	if err != nil {
		return wrapBackend("clear_graph", g.space, err)
	}
	if _, err := conn.Exec(ctx, "UPDATE "+graphTable+" SET triple_count=0, updated_time=now() WHERE graph_uri=$1", uri); err != nil {
		return wrapBackend("clear_graph_reset_count", g.space, err)
	}
	g.sink.Emit(ctx, "graphs", map[string]interface{}{"type": "updated", "graph_uri": uri})
	g.sink.Emit(ctx, "graph", map[string]interface{}{"type": "updated", "graph_uri": uri})
	return nil
}

// Drop deletes every quad in a graph and removes its registry row, emitting
// graphs:deleted + graph:deleted.
func (g *GraphRegistry) Drop(ctx context.Context, uri string) error {
	termTable := TableName(g.engine.GlobalPrefix, g.space, "term")
	quadTable := TableName(g.engine.GlobalPrefix, g.space, "rdf_quad")
	graphTable := TableName(g.engine.GlobalPrefix, g.space, "graph")

	conn, release, err := g.engine.AcquireTuple(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = conn.Exec(ctx,
		"DELETE FROM "+quadTable+" WHERE context_uuid = (SELECT term_uuid FROM "+termTable+" WHERE term_text=$1)", uri)
	if err != nil {
		return wrapBackend("drop_graph_quads", g.space, err)
	}
	if _, err := conn.Exec(ctx, "DELETE FROM "+graphTable+" WHERE graph_uri=$1", uri); err != nil {
		return wrapBackend("drop_graph_registry_row", g.space, err)
	}
	g.sink.Emit(ctx, "graphs", map[string]interface{}{"type": "deleted", "graph_uri": uri})
	g.sink.Emit(ctx, "graph", map[string]interface{}{"type": "deleted", "graph_uri": uri})
	return nil
}

// EnsureExistsBatch creates every graph URI not already registered, in one
// multi-row insert. The registry keeps no in-memory cache of known graphs:
// every call goes to the database.
func (g *GraphRegistry) EnsureExistsBatch(ctx context.Context, uris map[string]bool) error {
	if len(uris) == 0 {
		return nil
	}
	table := TableName(g.engine.GlobalPrefix, g.space, "graph")
	conn, release, err := g.engine.AcquireTuple(ctx)
	if err != nil {
		return err
	}
	defer release()

	graphURIs := make([]string, 0, len(uris))
	names := make([]string, 0, len(uris))
	for uri := range uris {
		graphURIs = append(graphURIs, uri)
		names = append(names, deriveGraphName(uri))
	}

	rows, err := conn.Query(ctx,
		"INSERT INTO "+table+" (graph_uri, graph_name) "+
			"SELECT * FROM unnest($1::text[], $2::text[]) "+
			"ON CONFLICT (graph_uri) DO NOTHING RETURNING graph_uri",
		graphURIs, names)
	if err != nil {
		return wrapBackend("batch_ensure_graphs_exist", g.space, err)
	}
	defer rows.Close()

	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return wrapBackend("batch_ensure_graphs_exist_scan", g.space, err)
		}
		g.sink.Emit(ctx, "graphs", map[string]interface{}{"type": "created", "graph_uri": uri})
		g.sink.Emit(ctx, "graph", map[string]interface{}{"type": "created", "graph_uri": uri})
	}
	return rows.Err()
}
