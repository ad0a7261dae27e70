package report

import (
	"fmt"
	"io"
	"os"

	"github.com/fumiama/go-docx"
	"github.com/go-pdf/fpdf"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"golang.org/x/sync/errgroup"
)

const (
	pdfFont       = "Helvetica"
	pdfBodySize   = 11
	pdfTitleSize  = 18
	pdfLineHeight = 5.5
)

// WritePDF renders paragraphs under title as an A4 PDF.
func WritePDF(w io.Writer, title string, paras []Paragraph) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(14, 18, 14)
	pdf.SetAutoPageBreak(true, 14)
	// Core fonts are cp1252; unmapped runes become '.'.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont(pdfFont, "B", pdfTitleSize)
	pdf.MultiCell(0, 9, tr(title), "", "C", false)
	pdf.Ln(7)

	for _, para := range paras {
		for _, line := range para.Lines {
			for _, s := range line {
				style := ""
				if s.Bold {
					style = "B"
				}
				pdf.SetFont(pdfFont, style, pdfBodySize)
				pdf.Write(pdfLineHeight, tr(s.Text))
			}
			pdf.Ln(pdfLineHeight)
		}
		pdf.Ln(3.5)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("report: pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("report: pdf: %w", err)
	}
	return nil
}

// WriteDOCX renders paragraphs under title as a Word document. Lines inside
// a paragraph become consecutive Word paragraphs.
func WriteDOCX(w io.Writer, title string, paras []Paragraph) error {
	doc := docx.New().WithDefaultTheme().WithA4Page()

	doc.AddParagraph().Justification("center").AddText(title).Bold().Size("32")

	for i, para := range paras {
		if i > 0 {
			doc.AddParagraph()
		}
		for _, line := range para.Lines {
			p := doc.AddParagraph()
			for _, s := range line {
				r := p.AddText(s.Text)
				if s.Bold {
					r.Bold()
				}
			}
		}
	}

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("report: docx: %w", err)
	}
	return nil
}

// WriteHTML renders the raw narrative as a standalone HTML page. Unlike the
// PDF and DOCX writers it honours the full markdown syntax.
func WriteHTML(w io.Writer, title, text string) error {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	r := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	out := markdown.ToHTML([]byte("# "+title+"\n\n"+text), p, r)
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("report: html: %w", err)
	}
	return nil
}

// Files names the documents produced by Export. Empty fields are skipped.
type Files struct {
	PDF  string
	DOCX string
	HTML string
}

// Export parses text once and writes each requested document.
func Export(text, title string, files Files) error {
	paras := Parse(text)
	var g errgroup.Group
	if files.PDF != "" {
		g.Go(func() error {
			return writeFile(files.PDF, func(w io.Writer) error { return WritePDF(w, title, paras) })
		})
	}
	if files.DOCX != "" {
		g.Go(func() error {
			return writeFile(files.DOCX, func(w io.Writer) error { return WriteDOCX(w, title, paras) })
		})
	}
	if files.HTML != "" {
		g.Go(func() error {
			return writeFile(files.HTML, func(w io.Writer) error { return WriteHTML(w, title, text) })
		})
	}
	return g.Wait()
}

func writeFile(path string, render func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("report: close %s: %w", path, cerr)
		}
	}()
	return render(f)
}
