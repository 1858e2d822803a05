package rdfstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode_LangClearsDatatype(t *testing.T) {
	// decided open question #1 (SPEC_FULL.md §9): lang and datatype are
	// mutually exclusive on a stored literal; lang wins.
	in := Term{Text: "42", Kind: KindLiteral, Lang: "en", Datatype: XSDInteger}
	out := Encode(in)
	assert.Equal(t, "en", out.Lang)
	assert.Equal(t, "", out.Datatype)
}

func TestEncode_NonLiteralUnchanged(t *testing.T) {
	in := URI("http://example.org/x")
	assert.Equal(t, in, Encode(in))
}

func TestEncode_TypedLiteralUnchanged(t *testing.T) {
	in := TypedLiteral("1", XSDInteger)
	assert.Equal(t, in, Encode(in))
}
