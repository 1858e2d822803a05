package rdfstore

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parsedTerm is one subject/predicate/object/graph position as read off an
// N-Triples line, before UUID assignment.
type parsedTerm struct {
	Text     string
	Kind     TermKind
	Lang     string
	Datatype string
}

// ntriplesStatement is one parsed line: subject, predicate, object and an
// optional graph (N-Quads extension; plain N-Triples lines leave Graph
// empty and the bulk pipeline substitutes the caller's target graph).
type ntriplesStatement struct {
	Subject, Predicate, Object, Graph parsedTerm
}

// NTriplesScanner streams statements out of an N-Triples or N-Quads file
// one line at a time, so the bulk pipeline never holds the whole input in
// memory.
type NTriplesScanner struct {
	scanner *bufio.Scanner
	lineNo  int
	err     error
}

// NewNTriplesScanner wraps r for line-by-line parsing.
func NewNTriplesScanner(r io.Reader) *NTriplesScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &NTriplesScanner{scanner: s}
}

// Next returns the next parsed statement, or ok=false at EOF. Blank lines
// and lines starting with '#' are skipped transparently.
func (sc *NTriplesScanner) Next() (stmt ntriplesStatement, ok bool, err error) {
	for sc.scanner.Scan() {
		sc.lineNo++
		line := strings.TrimSpace(sc.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stmt, err := parseNTriplesLine(line)
		if err != nil {
			return ntriplesStatement{}, false, &ParseError{Line: sc.lineNo, Msg: err.Error()}
		}
		return stmt, true, nil
	}
	if err := sc.scanner.Err(); err != nil {
		return ntriplesStatement{}, false, fmt.Errorf("rdfstore: scan n-triples input: %w", err)
	}
	return ntriplesStatement{}, false, nil
}

// parseNTriplesLine parses one "subject predicate object [graph] ." line.
// It is a hand-rolled tokenizer rather than a full grammar parser: it walks
// the line left to right, reading one term per call to readTerm, which is
// sufficient for well-formed N-Triples/N-Quads output (the only input this
// pipeline accepts).
func parseNTriplesLine(line string) (ntriplesStatement, error) {
	rest := line
	s, rest, err := readTerm(rest)
	if err != nil {
		return ntriplesStatement{}, fmt.Errorf("subject: %w", err)
	}
	p, rest, err := readTerm(rest)
	if err != nil {
		return ntriplesStatement{}, fmt.Errorf("predicate: %w", err)
	}
	o, rest, err := readTerm(rest)
	if err != nil {
		return ntriplesStatement{}, fmt.Errorf("object: %w", err)
	}
	rest = strings.TrimSpace(rest)

	var g parsedTerm
	if rest != "." && rest != "" {
		g, rest, err = readTerm(rest)
		if err != nil {
			return ntriplesStatement{}, fmt.Errorf("graph: %w", err)
		}
		rest = strings.TrimSpace(rest)
	}
	if !strings.HasPrefix(rest, ".") {
		return ntriplesStatement{}, fmt.Errorf("statement not terminated with '.'")
	}
	return ntriplesStatement{Subject: s, Predicate: p, Object: o, Graph: g}, nil
}

// readTerm reads one leading term (URI, blank node or literal) off s,
// returning the term and the remainder of the line (with leading
// whitespace stripped).
func readTerm(s string) (parsedTerm, string, error) {
	s = strings.TrimLeft(s, " \t")
	if s == "" {
		return parsedTerm{}, s, fmt.Errorf("unexpected end of statement")
	}
	switch s[0] {
	case '<':
		end := strings.IndexByte(s, '>')
		if end < 0 {
			return parsedTerm{}, s, fmt.Errorf("unterminated URI")
		}
		return parsedTerm{Text: s[1:end], Kind: KindURI}, s[end+1:], nil
	case '_':
		i := 1
		for i < len(s) && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		return parsedTerm{Text: s[:i], Kind: KindBlank}, s[i:], nil
	case '"':
		text, rest, err := readQuoted(s)
		if err != nil {
			return parsedTerm{}, s, err
		}
		t := parsedTerm{Text: text, Kind: KindLiteral}
		if strings.HasPrefix(rest, "@") {
			i := 1
			for i < len(rest) && rest[i] != ' ' && rest[i] != '\t' {
				i++
			}
			t.Lang = rest[1:i]
			rest = rest[i:]
		} else if strings.HasPrefix(rest, "^^") {
			rest = rest[2:]
			dtTerm, remainder, err := readTerm(rest)
			if err != nil {
				return parsedTerm{}, s, fmt.Errorf("datatype: %w", err)
			}
			t.Datatype = dtTerm.Text
			rest = remainder
		}
		return t, rest, nil
	default:
		return parsedTerm{}, s, fmt.Errorf("unrecognized term start %q", s[:1])
	}
}

// readQuoted reads a double-quoted N-Triples string literal, unescaping
// \", \\, \n, \r, \t and \uXXXX/\UXXXXXXXX sequences.
func readQuoted(s string) (text, rest string, err error) {
	if s[0] != '"' {
		return "", s, fmt.Errorf("expected '\"'")
	}
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		if c == '"' {
			return b.String(), s[i+1:], nil
		}
		if c == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'u', 'U':
				width := 4
				if s[i] == 'U' {
					width = 8
				}
				if i+width < len(s) {
					if r, perr := strconv.ParseUint(s[i+1:i+1+width], 16, 32); perr == nil {
						b.WriteRune(rune(r))
						i += width
						break
					}
				}
				b.WriteByte('\\')
				b.WriteByte(s[i])
			default:
				b.WriteByte('\\')
				b.WriteByte(s[i])
			}
			i++
			continue
		}
		b.WriteByte(c)
		i++
	}
	return "", s, fmt.Errorf("unterminated string literal")
}

// toTerm converts a parsedTerm into the public Term type, resolving a
// literal's Datatype field the way C1 expects it normalized.
func (pt parsedTerm) toTerm() Term {
	switch pt.Kind {
	case KindLiteral:
		if pt.Lang != "" {
			return LangLiteral(pt.Text, pt.Lang)
		}
		if pt.Datatype != "" {
			return TypedLiteral(pt.Text, pt.Datatype)
		}
		return PlainLiteral(pt.Text)
	case KindBlank:
		return Blank(pt.Text)
	default:
		return URI(pt.Text)
	}
}
