package rdfstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNTriplesScanner_BasicTriple(t *testing.T) {
	input := `<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" .` + "\n"
	sc := NewNTriplesScanner(strings.NewReader(input))

	stmt, ok, err := sc.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, parsedTerm{Text: "http://example.org/alice", Kind: KindURI}, stmt.Subject)
	assert.Equal(t, parsedTerm{Text: "http://xmlns.com/foaf/0.1/name", Kind: KindURI}, stmt.Predicate)
	assert.Equal(t, parsedTerm{Text: "Alice", Kind: KindLiteral}, stmt.Object)
	assert.Equal(t, parsedTerm{}, stmt.Graph)

	_, ok, err = sc.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNTriplesScanner_LangAndTypedLiterals(t *testing.T) {
	input := `<http://ex/s> <http://ex/p1> "bonjour"@fr .
<http://ex/s> <http://ex/p2> "42"^^<http://www.w3.org/2001/XMLSchema#integer> .
`
	sc := NewNTriplesScanner(strings.NewReader(input))

	stmt, ok, err := sc.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fr", stmt.Object.Lang)
	assert.Equal(t, "bonjour", stmt.Object.Text)

	stmt, ok, err = sc.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, XSDInteger, stmt.Object.Datatype)
	assert.Equal(t, "42", stmt.Object.Text)
}

func TestNTriplesScanner_NQuadsGraph(t *testing.T) {
	input := `<http://ex/s> <http://ex/p> <http://ex/o> <http://ex/g> .` + "\n"
	sc := NewNTriplesScanner(strings.NewReader(input))

	stmt, ok, err := sc.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, parsedTerm{Text: "http://ex/g", Kind: KindURI}, stmt.Graph)
}

func TestNTriplesScanner_BlankNodes(t *testing.T) {
	input := `_:b0 <http://ex/p> _:b1 .` + "\n"
	sc := NewNTriplesScanner(strings.NewReader(input))

	stmt, ok, err := sc.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindBlank, stmt.Subject.Kind)
	assert.Equal(t, "_:b0", stmt.Subject.Text)
	assert.Equal(t, KindBlank, stmt.Object.Kind)
}

func TestNTriplesScanner_SkipsBlankAndCommentLines(t *testing.T) {
	input := "\n# a comment\n\n<http://ex/s> <http://ex/p> <http://ex/o> .\n"
	sc := NewNTriplesScanner(strings.NewReader(input))

	stmt, ok, err := sc.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://ex/s", stmt.Subject.Text)
}

func TestNTriplesScanner_EscapedQuotesAndNewlines(t *testing.T) {
	input := `<http://ex/s> <http://ex/p> "line one\nline \"two\"" .` + "\n"
	sc := NewNTriplesScanner(strings.NewReader(input))

	stmt, ok, err := sc.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "line one\nline \"two\"", stmt.Object.Text)
}

func TestNTriplesScanner_UnterminatedLiteralIsParseError(t *testing.T) {
	input := `<http://ex/s> <http://ex/p> "unterminated .` + "\n"
	sc := NewNTriplesScanner(strings.NewReader(input))

	_, ok, err := sc.Next()
	assert.False(t, ok)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Line)
}

func TestNTriplesScanner_MissingTerminatingDotIsParseError(t *testing.T) {
	input := `<http://ex/s> <http://ex/p> <http://ex/o>` + "\n"
	sc := NewNTriplesScanner(strings.NewReader(input))

	_, ok, err := sc.Next()
	assert.False(t, ok)
	require.Error(t, err)
}

func TestParsedTerm_ToTerm(t *testing.T) {
	assert.Equal(t, URI("http://ex/s"), parsedTerm{Text: "http://ex/s", Kind: KindURI}.toTerm())
	assert.Equal(t, Blank("_:b0"), parsedTerm{Text: "_:b0", Kind: KindBlank}.toTerm())
	assert.Equal(t, PlainLiteral("hi"), parsedTerm{Text: "hi", Kind: KindLiteral}.toTerm())
	assert.Equal(t, LangLiteral("hi", "en"), parsedTerm{Text: "hi", Kind: KindLiteral, Lang: "en"}.toTerm())
	assert.Equal(t, TypedLiteral("1", XSDInteger), parsedTerm{Text: "1", Kind: KindLiteral, Datatype: XSDInteger}.toTerm())
}
