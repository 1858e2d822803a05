package rdfstore

import (
	"context"
	"strings"
	"time"
)

// NamespaceInfo is one prefix-to-URI binding in a space's namespace table.
type NamespaceInfo struct {
	NamespaceID int64
	Prefix      string
	NamespaceURI string
	CreatedTime time.Time
}

// NamespaceRegistry manages the prefix-to-URI mappings (foaf, rdf, rdfs,
// ...) declared for one space.
type NamespaceRegistry struct {
	engine *Engine
	space  string
}

// NewNamespaceRegistry constructs the C9 façade for one space.
func NewNamespaceRegistry(engine *Engine, space string) *NamespaceRegistry {
	return &NamespaceRegistry{engine: engine, space: space}
}

// Add inserts a prefix->URI binding, or updates the existing row in place if
// the prefix is already bound to a different URI. Returns the namespace id
// either way.
func (n *NamespaceRegistry) Add(ctx context.Context, prefix, namespaceURI string) (int64, error) {
	table := TableName(n.engine.GlobalPrefix, n.space, "namespace")
	conn, release, err := n.engine.AcquireTuple(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	var id int64
	var existing string
	err = conn.QueryRow(ctx, "SELECT namespace_id, namespace_uri FROM "+table+" WHERE prefix=$1", prefix).Scan(&id, &existing)
	if err == nil {
		if existing != namespaceURI {
			if _, err := conn.Exec(ctx, "UPDATE "+table+" SET namespace_uri=$1 WHERE namespace_id=$2", namespaceURI, id); err != nil {
				return 0, wrapBackend("add_namespace_update", n.space, err)
			}
		}
		return id, nil
	}
	if !strings.Contains(err.Error(), "no rows") {
		return 0, wrapBackend("add_namespace_lookup", n.space, err)
	}

	err = conn.QueryRow(ctx,
		"INSERT INTO "+table+" (prefix, namespace_uri) VALUES ($1,$2) RETURNING namespace_id",
		prefix, namespaceURI).Scan(&id)
	if err != nil {
		return 0, wrapBackend("add_namespace_insert", n.space, err)
	}
	return id, nil
}

// Get returns the URI bound to prefix, or "" with ok=false if unbound.
func (n *NamespaceRegistry) Get(ctx context.Context, prefix string) (uri string, ok bool, err error) {
	table := TableName(n.engine.GlobalPrefix, n.space, "namespace")
	conn, release, aerr := n.engine.AcquireTuple(ctx)
	if aerr != nil {
		return "", false, aerr
	}
	defer release()

	err = conn.QueryRow(ctx, "SELECT namespace_uri FROM "+table+" WHERE prefix=$1", prefix).Scan(&uri)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return "", false, nil
		}
		return "", false, wrapBackend("get_namespace_uri", n.space, err)
	}
	return uri, true, nil
}

// List returns every namespace binding in a space, ordered by prefix.
func (n *NamespaceRegistry) List(ctx context.Context) ([]NamespaceInfo, error) {
	table := TableName(n.engine.GlobalPrefix, n.space, "namespace")
	conn, release, err := n.engine.AcquireTuple(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.Query(ctx, "SELECT namespace_id, prefix, namespace_uri, created_time FROM "+table+" ORDER BY prefix")
	if err != nil {
		return nil, wrapBackend("list_namespaces", n.space, err)
	}
	defer rows.Close()

	var out []NamespaceInfo
	for rows.Next() {
		var ns NamespaceInfo
		if err := rows.Scan(&ns.NamespaceID, &ns.Prefix, &ns.NamespaceURI, &ns.CreatedTime); err != nil {
			return nil, wrapBackend("list_namespaces_scan", n.space, err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}
