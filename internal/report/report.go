// Package report turns the model's narrative into paragraphs of plain and
// bold spans and writes them as PDF, DOCX and HTML documents.
//
// Only blank-line paragraphs, line breaks and **bold** markers are modeled.
// Lists, headings and links pass through as plain text in PDF and DOCX.
package report

import (
	"regexp"
	"strings"
)

// Span is a run of text with a single weight.
type Span struct {
	Text string
	Bold bool
}

// Paragraph is a block of lines separated from its neighbours by a blank
// line. Each line is a sequence of spans.
type Paragraph struct {
	Lines [][]Span
}

var (
	blankLine = regexp.MustCompile(`\n[ \t]*\n`)
	boldPair  = regexp.MustCompile(`\*\*(.*?)\*\*`)
)

// Parse splits text into paragraphs. A trailing unmatched "**" is kept as
// literal text.
func Parse(text string) []Paragraph {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []Paragraph
	for _, block := range blankLine.Split(text, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var para Paragraph
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimRight(line, " \t")
			if line == "" {
				continue
			}
			if spans := Spans(line); len(spans) > 0 {
				para.Lines = append(para.Lines, spans)
			}
		}
		if len(para.Lines) > 0 {
			out = append(out, para)
		}
	}
	return out
}

// Spans splits a single line on **bold** pairs. An empty pair "****" is
// dropped.
func Spans(line string) []Span {
	var spans []Span
	add := func(text string, bold bool) {
		if text == "" {
			return
		}
		if n := len(spans); n > 0 && spans[n-1].Bold == bold {
			spans[n-1].Text += text
			return
		}
		spans = append(spans, Span{Text: text, Bold: bold})
	}
	last := 0
	for _, m := range boldPair.FindAllStringSubmatchIndex(line, -1) {
		add(line[last:m[0]], false)
		add(line[m[2]:m[3]], true)
		last = m[1]
	}
	add(line[last:], false)
	return spans
}

// PlainText joins the spans of p without markers, one line per row.
func (p Paragraph) PlainText() string {
	var b strings.Builder
	for i, line := range p.Lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, s := range line {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}
