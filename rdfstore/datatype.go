package rdfstore

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Standard XSD and RDF datatype URIs, bootstrapped into every new space.
const (
	XSDString           = "http://www.w3.org/2001/XMLSchema#string"
	XSDBoolean          = "http://www.w3.org/2001/XMLSchema#boolean"
	XSDInteger          = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDouble           = "http://www.w3.org/2001/XMLSchema#double"
	XSDDecimal          = "http://www.w3.org/2001/XMLSchema#decimal"
	XSDFloat            = "http://www.w3.org/2001/XMLSchema#float"
	XSDDateTime         = "http://www.w3.org/2001/XMLSchema#dateTime"
	XSDDate             = "http://www.w3.org/2001/XMLSchema#date"
	XSDTime             = "http://www.w3.org/2001/XMLSchema#time"
	XSDHexBinary        = "http://www.w3.org/2001/XMLSchema#hexBinary"
	XSDBase64Binary     = "http://www.w3.org/2001/XMLSchema#base64Binary"
	XSDAnyURI           = "http://www.w3.org/2001/XMLSchema#anyURI"
	XSDLanguage         = "http://www.w3.org/2001/XMLSchema#language"
	XSDNormalizedString = "http://www.w3.org/2001/XMLSchema#normalizedString"
	XSDToken            = "http://www.w3.org/2001/XMLSchema#token"
	XSDNMTOKEN          = "http://www.w3.org/2001/XMLSchema#NMTOKEN"
	XSDName             = "http://www.w3.org/2001/XMLSchema#Name"
	XSDNCName           = "http://www.w3.org/2001/XMLSchema#NCName"
	XSDENTITY           = "http://www.w3.org/2001/XMLSchema#ENTITY"
	XSDID               = "http://www.w3.org/2001/XMLSchema#ID"
	XSDIDREF            = "http://www.w3.org/2001/XMLSchema#IDREF"
	RDFXMLLiteral       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#XMLLiteral"
	RDFHTML             = "http://www.w3.org/1999/02/22-rdf-syntax-ns#HTML"
	RDFLangString       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
)

var standardDatatypes = []string{
	XSDString, XSDBoolean, XSDInteger, XSDDouble, XSDDecimal, XSDFloat,
	XSDDateTime, XSDDate, XSDTime, XSDHexBinary, XSDBase64Binary, XSDAnyURI,
	XSDLanguage, XSDNormalizedString, XSDToken, XSDNMTOKEN, XSDName,
	XSDNCName, XSDENTITY, XSDID, XSDIDREF, RDFXMLLiteral, RDFHTML, RDFLangString,
}

// DatatypeCacheStats mirrors the statistics dict the reference
// implementation's cache exposes for observability.
type DatatypeCacheStats struct {
	Size    int
	Hits    int64
	Misses  int64
	MaxSize int
}

// HitRate returns the cache's hit ratio, or 0 when no lookups have happened.
func (s DatatypeCacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// DatatypeCache is a per-space, process-local bidirectional map between
// datatype URIs and their assigned ids, bounded by an LRU eviction policy.
// Unlike the reference cache (which evicts in FIFO order despite its
// docstring calling it LRU) this is a true LRU, backed by golang-lru.
type DatatypeCache struct {
	mu       sync.Mutex
	byURI    *lru.Cache[string, int64]
	byID     *lru.Cache[int64, string]
	hits     int64
	misses   int64
	maxSize  int
}

// NewDatatypeCache creates a cache bounded to maxSize entries (default 1000
// when maxSize <= 0, matching the reference implementation's default).
func NewDatatypeCache(maxSize int) *DatatypeCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	byURI, _ := lru.New[string, int64](maxSize)
	byID, _ := lru.New[int64, string](maxSize)
	return &DatatypeCache{byURI: byURI, byID: byID, maxSize: maxSize}
}

// Put records a known uri<->id mapping.
func (c *DatatypeCache) Put(uri string, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byURI.Add(uri, id)
	c.byID.Add(id, uri)
}

// PutBatch records several mappings at once.
func (c *DatatypeCache) PutBatch(mappings map[string]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for uri, id := range mappings {
		c.byURI.Add(uri, id)
		c.byID.Add(id, uri)
	}
}

// GetIDByURI returns the cached id for a URI, tracking hit/miss counters.
func (c *DatatypeCache) GetIDByURI(uri string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byURI.Get(uri)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return id, ok
}

// GetURIByID returns the cached URI for an id, tracking hit/miss counters.
func (c *DatatypeCache) GetURIByID(id int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	uri, ok := c.byID.Get(id)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return uri, ok
}

// Stats returns a snapshot of cache size and hit/miss counters.
func (c *DatatypeCache) Stats() DatatypeCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return DatatypeCacheStats{
		Size:    c.byURI.Len(),
		Hits:    c.hits,
		Misses:  c.misses,
		MaxSize: c.maxSize,
	}
}

// DatatypeRegistry resolves datatype URIs to stable integer ids for one
// space, consulting its cache before touching the database.
type DatatypeRegistry struct {
	engine  *Engine
	space   string
	cache   *DatatypeCache
}

// NewDatatypeRegistry constructs a registry for a space with its own cache.
func NewDatatypeRegistry(engine *Engine, space string, cacheSize int) *DatatypeRegistry {
	return &DatatypeRegistry{engine: engine, space: space, cache: NewDatatypeCache(cacheSize)}
}

// BootstrapStandardDatatypes inserts the canonical XSD/RDF datatype set,
// idempotently (a second call is a no-op). Called once by CreateSpaceTables.
func (r *DatatypeRegistry) BootstrapStandardDatatypes(ctx context.Context) error {
	table := TableName(r.engine.GlobalPrefix, r.space, "datatype")
	conn, release, err := r.engine.AcquireTuple(ctx)
	if err != nil {
		return err
	}
	defer release()

	for _, uri := range standardDatatypes {
		name := localName(uri)
		_, err := conn.Exec(ctx,
			"INSERT INTO "+table+" (datatype_uri, datatype_name) VALUES ($1,$2) ON CONFLICT (datatype_uri) DO NOTHING",
			uri, name)
		if err != nil {
			return wrapBackend("bootstrap_standard_datatypes", r.space, err)
		}
	}
	return nil
}

// ResolveBatch resolves a set of datatype URIs to ids, consulting the cache
// first, querying the missing ones, and inserting (with conflict-skip) any
// that are still unknown. The result always has one entry per input URI.
func (r *DatatypeRegistry) ResolveBatch(ctx context.Context, uris []string) (map[string]int64, error) {
	result := make(map[string]int64, len(uris))
	var missing []string
	seen := make(map[string]bool)
	for _, u := range uris {
		if seen[u] {
			continue
		}
		seen[u] = true
		if id, ok := r.cache.GetIDByURI(u); ok {
			result[u] = id
			continue
		}
		missing = append(missing, u)
	}
	if len(missing) == 0 {
		return result, nil
	}

	table := TableName(r.engine.GlobalPrefix, r.space, "datatype")
	conn, release, err := r.engine.AcquireTuple(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.Query(ctx, "SELECT datatype_uri, datatype_id FROM "+table+" WHERE datatype_uri = ANY($1)", missing)
	if err != nil {
		return nil, wrapBackend("resolve_datatype_batch", r.space, err)
	}
	found := make(map[string]bool)
	for rows.Next() {
		var uri string
		var id int64
		if err := rows.Scan(&uri, &id); err != nil {
			rows.Close()
			return nil, wrapBackend("resolve_datatype_batch_scan", r.space, err)
		}
		result[uri] = id
		found[uri] = true
		r.cache.Put(uri, id)
	}
	rows.Close()

	var stillMissing []string
	for _, u := range missing {
		if !found[u] {
			stillMissing = append(stillMissing, u)
		}
	}
	if len(stillMissing) == 0 {
		return result, nil
	}

	for _, u := range stillMissing {
		name := localName(u)
		_, err := conn.Exec(ctx,
			"INSERT INTO "+table+" (datatype_uri, datatype_name) VALUES ($1,$2) ON CONFLICT (datatype_uri) DO NOTHING",
			u, name)
		if err != nil {
			return nil, wrapBackend("insert_missing_datatype", r.space, err)
		}
	}

	rows2, err := conn.Query(ctx, "SELECT datatype_uri, datatype_id FROM "+table+" WHERE datatype_uri = ANY($1)", stillMissing)
	if err != nil {
		return nil, wrapBackend("reload_datatype_batch", r.space, err)
	}
	defer rows2.Close()
	for rows2.Next() {
		var uri string
		var id int64
		if err := rows2.Scan(&uri, &id); err != nil {
			return nil, wrapBackend("reload_datatype_batch_scan", r.space, err)
		}
		result[uri] = id
		r.cache.Put(uri, id)
	}
	return result, nil
}

// GetOrCreate resolves a single datatype URI, a convenience wrapper over
// ResolveBatch.
func (r *DatatypeRegistry) GetOrCreate(ctx context.Context, uri string) (int64, error) {
	m, err := r.ResolveBatch(ctx, []string{uri})
	if err != nil {
		return 0, err
	}
	return m[uri], nil
}

// URIForID resolves a datatype id back to its URI, consulting the cache and
// falling back to the database. Used by DecodeRow to reconstruct typed
// literals (see termops.go) — a correctness fix over the reference
// implementation, which left this resolution as an unfinished TODO.
func (r *DatatypeRegistry) URIForID(ctx context.Context, id int64) (string, error) {
	if uri, ok := r.cache.GetURIByID(id); ok {
		return uri, nil
	}
	table := TableName(r.engine.GlobalPrefix, r.space, "datatype")
	conn, release, err := r.engine.AcquireTuple(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	var uri string
	err = conn.QueryRow(ctx, "SELECT datatype_uri FROM "+table+" WHERE datatype_id = $1", id).Scan(&uri)
	if err != nil {
		return "", wrapBackend("resolve_datatype_id", r.space, err)
	}
	r.cache.Put(uri, id)
	return uri, nil
}

func localName(uri string) string {
	for i := len(uri) - 1; i >= 0; i-- {
		if uri[i] == '#' || uri[i] == '/' {
			return uri[i+1:]
		}
	}
	return uri
}
