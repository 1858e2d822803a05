package rdfstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDForTerm_Deterministic(t *testing.T) {
	a := UUIDForTerm("http://example.org/alice", KindURI, "", "")
	b := UUIDForTerm("http://example.org/alice", KindURI, "", "")
	assert.Equal(t, a, b, "identical term fields must hash to the same UUID")
}

func TestUUIDForTerm_DistinguishesLangAndDatatype(t *testing.T) {
	plain := UUIDForTerm("42", KindLiteral, "", "")
	lang := UUIDForTerm("42", KindLiteral, "en", "")
	typed := UUIDForTerm("42", KindLiteral, "", XSDInteger)
	assert.NotEqual(t, plain, lang)
	assert.NotEqual(t, plain, typed)
	assert.NotEqual(t, lang, typed, "a lang-tagged and a typed literal with the same text must not collide")
}

func TestUUIDForTerm_LangPrefixCannotCollideWithDatatype(t *testing.T) {
	// A datatype URI that happens to start with "en" must not collide with
	// the lang:en tag encoding.
	viaLang := UUIDForTerm("x", KindLiteral, "en", "")
	viaDatatype := UUIDForTerm("x", KindLiteral, "", "en:not-a-real-uri")
	assert.NotEqual(t, viaLang, viaDatatype)
}

func TestTerm_UUID_MatchesFreeFunction(t *testing.T) {
	term := LangLiteral("bonjour", "fr")
	assert.Equal(t, UUIDForTerm("bonjour", KindLiteral, "fr", ""), term.UUID())
}

func TestTermConstructors(t *testing.T) {
	assert.Equal(t, Term{Text: "http://x", Kind: KindURI}, URI("http://x"))
	assert.Equal(t, Term{Text: "_:b0", Kind: KindBlank}, Blank("_:b0"))
	assert.Equal(t, Term{Text: "hi", Kind: KindLiteral}, PlainLiteral("hi"))
	assert.Equal(t, Term{Text: "hi", Kind: KindLiteral, Lang: "en"}, LangLiteral("hi", "en"))
	assert.Equal(t, Term{Text: "1", Kind: KindLiteral, Datatype: XSDInteger}, TypedLiteral("1", XSDInteger))
}

func TestTermFromNative(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want Term
	}{
		{"existing term passes through", URI("http://x"), URI("http://x")},
		{"url-shaped string becomes a URI", "http://example.org/thing", URI("http://example.org/thing")},
		{"urn-shaped string becomes a URI", "urn:isbn:0451450523", URI("urn:isbn:0451450523")},
		{"plain string becomes xsd:string", "hello", TypedLiteral("hello", XSDString)},
		{"bool true", true, TypedLiteral("true", XSDBoolean)},
		{"bool false", false, TypedLiteral("false", XSDBoolean)},
		{"int", 7, TypedLiteral("7", XSDInteger)},
		{"int64", int64(9), TypedLiteral("9", XSDInteger)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, TermFromNative(c.in))
		})
	}
}

func TestTermFromNative_Time(t *testing.T) {
	ts := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	got := TermFromNative(ts)
	require.Equal(t, KindLiteral, got.Kind)
	assert.Equal(t, XSDDateTime, got.Datatype)
	assert.Equal(t, "2026-03-05T12:00:00Z", got.Text)
}

func TestTermFromNative_Bytes(t *testing.T) {
	got := TermFromNative([]byte{0x01, 0x02, 0xff})
	assert.Equal(t, XSDBase64Binary, got.Datatype)
	assert.Equal(t, KindLiteral, got.Kind)
}
