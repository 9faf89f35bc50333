// Package report inspects review answers and provides the fallback report.
package report

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Severity levels used to categorise findings.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

var severityPattern = regexp.MustCompile(`(?i)\b(high|medium|low)\b`)

// Inspection summarises the markdown structure of an answer.
type Inspection struct {
	// Length is the answer length in bytes after trimming whitespace.
	Length int
	// Headings counts markdown headings.
	Headings int
	// Tables counts GFM tables.
	Tables int
	// Rows counts table body rows, headers excluded.
	Rows int
	// Severities counts severity words found in table cells, keyed by lowercase level.
	Severities map[string]int
}

// Empty reports whether the answer has no content at all.
func (i Inspection) Empty() bool {
	return i.Length == 0
}

var parser = goldmark.New(
	goldmark.WithExtensions(extension.Table),
)

// Inspect parses answer as GitHub flavoured markdown.
func Inspect(answer string) Inspection {
	ins := Inspection{
		Length:     len(strings.TrimSpace(answer)),
		Severities: map[string]int{},
	}
	if ins.Length == 0 {
		return ins
	}

	content := []byte(answer)
	doc := parser.Parser().Parse(text.NewReader(content))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n.(type) {
		case *ast.Heading:
			ins.Headings++
		case *east.Table:
			ins.Tables++
		case *east.TableRow:
			ins.Rows++
		case *east.TableCell:
			for _, m := range severityPattern.FindAllString(nodeText(n, content), -1) {
				ins.Severities[strings.ToLower(m)]++
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return ins
}

// nodeText concatenates the text under n.
func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
			b.WriteByte(' ')
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
