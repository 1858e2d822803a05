package rdfstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatatypeCache_PutAndGet(t *testing.T) {
	c := NewDatatypeCache(10)
	c.Put(XSDInteger, 1)

	id, ok := c.GetIDByURI(XSDInteger)
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)

	uri, ok := c.GetURIByID(1)
	assert.True(t, ok)
	assert.Equal(t, XSDInteger, uri)
}

func TestDatatypeCache_MissTracksStats(t *testing.T) {
	c := NewDatatypeCache(10)
	_, ok := c.GetIDByURI(XSDString)
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, float64(0), stats.HitRate())
}

func TestDatatypeCache_HitRate(t *testing.T) {
	c := NewDatatypeCache(10)
	c.Put(XSDBoolean, 2)
	c.GetIDByURI(XSDBoolean) // hit
	c.GetIDByURI(XSDBoolean) // hit
	c.GetIDByURI(XSDFloat)   // miss

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate(), 0.0001)
}

func TestDatatypeCache_PutBatch(t *testing.T) {
	c := NewDatatypeCache(10)
	c.PutBatch(map[string]int64{XSDInteger: 1, XSDDouble: 2})

	id, ok := c.GetIDByURI(XSDDouble)
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)
}

func TestDatatypeCache_EvictsLRU(t *testing.T) {
	c := NewDatatypeCache(2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // evicts "a", the least recently used

	_, ok := c.GetIDByURI("a")
	assert.False(t, ok, "oldest entry should have been evicted once the cache exceeded its bound")
}

func TestDatatypeCache_DefaultMaxSize(t *testing.T) {
	c := NewDatatypeCache(0)
	assert.Equal(t, 1000, c.Stats().MaxSize)
}

func TestLocalName(t *testing.T) {
	assert.Equal(t, "string", localName(XSDString))
	assert.Equal(t, "langString", localName(RDFLangString))
	assert.Equal(t, "noslash", localName("noslash"))
}

func TestStandardDatatypes_AllPresent(t *testing.T) {
	assert.Len(t, standardDatatypes, 24)
	seen := make(map[string]bool)
	for _, uri := range standardDatatypes {
		assert.False(t, seen[uri], "duplicate standard datatype: %s", uri)
		seen[uri] = true
	}
}
