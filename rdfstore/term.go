package rdfstore

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TermKind classifies a Term's role, matching the engine's on-disk
// term_kind column: U(ri), L(iteral), B(lank), G(raph-named).
type TermKind string

const (
	KindURI     TermKind = "U"
	KindLiteral TermKind = "L"
	KindBlank   TermKind = "B"
	KindGraph   TermKind = "G"
)

// termNamespace is the fixed namespace UUID the engine hashes every term
// under. It must never change: changing it silently invalidates every
// previously computed term_uuid.
var termNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Term is a tagged-union RDF term: exactly one of the Kind-specific payload
// fields is meaningful for a given Kind. Lang and Datatype are only ever
// set on a Literal; Encode (termops.go) normalizes so at most one of them
// is present at a time.
type Term struct {
	Text     string
	Kind     TermKind
	Lang     string
	Datatype string // datatype URI; resolved to/from an id at storage time
}

// URI constructs a URI term.
func URI(text string) Term { return Term{Text: text, Kind: KindURI} }

// Blank constructs a blank-node term.
func Blank(text string) Term { return Term{Text: text, Kind: KindBlank} }

// PlainLiteral constructs a literal with neither a language tag nor an
// explicit datatype (xsd:string is assumed by callers that need a concrete
// datatype URI).
func PlainLiteral(text string) Term { return Term{Text: text, Kind: KindLiteral} }

// LangLiteral constructs a language-tagged literal (rdf:langString).
func LangLiteral(text, lang string) Term {
	return Term{Text: text, Kind: KindLiteral, Lang: lang}
}

// TypedLiteral constructs a literal with an explicit datatype URI.
func TypedLiteral(text, datatypeURI string) Term {
	return Term{Text: text, Kind: KindLiteral, Datatype: datatypeURI}
}

// UUIDForTerm computes the deterministic identity of a term from its
// canonical fields. Two terms with identical (text, kind, lang, datatype)
// always hash to the same UUID, in any process, at any time: this is what
// lets the bulk-ingest path assign final term ids during parsing without a
// database round trip.
//
// Encoding: fields are joined with a single NUL byte; lang and datatype are
// included only when non-empty, each tagged with a short prefix so that
// "lang:en" can never collide with a datatype URI that happens to start
// with "en".
func UUIDForTerm(text string, kind TermKind, lang string, datatype string) uuid.UUID {
	var b strings.Builder
	b.WriteString(text)
	b.WriteByte(0)
	b.WriteString(string(kind))
	if lang != "" {
		b.WriteByte(0)
		b.WriteString("lang:")
		b.WriteString(lang)
	}
	if datatype != "" {
		b.WriteByte(0)
		b.WriteString("datatype:")
		b.WriteString(datatype)
	}
	return uuid.NewSHA1(termNamespace, []byte(b.String()))
}

// UUID returns this term's deterministic identity.
func (t Term) UUID() uuid.UUID {
	return UUIDForTerm(t.Text, t.Kind, t.Lang, t.Datatype)
}

// looksLikeURI mirrors the source classifier: a bare string is treated as a
// URI when it carries a known scheme prefix or an authority separator.
func looksLikeURI(s string) bool {
	if strings.Contains(s, "://") {
		return true
	}
	for _, scheme := range []string{"urn:", "mailto:", "tag:"} {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}

// TermFromNative classifies a native Go value the way the reference
// implementation's determine_term_type/extract_literal_value pair does,
// producing an encoded (not yet identity-assigned) Term. Unsupported types
// fall back to a plain string literal with xsd:string.
func TermFromNative(v interface{}) Term {
	switch val := v.(type) {
	case Term:
		return val
	case string:
		if looksLikeURI(val) {
			return URI(val)
		}
		return TypedLiteral(val, XSDString)
	case bool:
		text := "false"
		if val {
			text = "true"
		}
		return TypedLiteral(text, XSDBoolean)
	case int:
		return TypedLiteral(strconv.FormatInt(int64(val), 10), XSDInteger)
	case int64:
		return TypedLiteral(strconv.FormatInt(val, 10), XSDInteger)
	case float64:
		return TypedLiteral(strconv.FormatFloat(val, 'g', -1, 64), XSDDouble)
	case time.Time:
		return TypedLiteral(val.UTC().Format(time.RFC3339Nano), XSDDateTime)
	case []byte:
		return TypedLiteral(base64.StdEncoding.EncodeToString(val), XSDBase64Binary)
	default:
		return TypedLiteral(fmt.Sprint(val), XSDString)
	}
}
