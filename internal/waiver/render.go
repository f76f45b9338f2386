package waiver

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/iliyamo/festival-registration/internal/model"
)

// creationDate is fixed so that the same input renders the same bytes.
var creationDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	pageMargin = 18.0
	lineHeight = 6.0
	labelWidth = 50.0
)

// Render lays out doc on A4 pages.  Core fonts are CP1252, so every string
// passes through the translator to keep accented letters intact.
func Render(doc *Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetCreationDate(creationDate)
	pdf.SetTitle(doc.Title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	width, _ := pdf.GetPageSize()
	contentWidth := width - 2*pageMargin

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentWidth, 10, tr(doc.Title), "", 1, "C", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(contentWidth, lineHeight, tr(doc.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	for _, s := range doc.Sections {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetFillColor(235, 235, 235)
		pdf.CellFormat(contentWidth, 8, tr(fmt.Sprintf("Sezione %s - %s", s.Key, s.Title)), "", 1, "L", true, 0, "")
		pdf.Ln(2)

		renderFields(pdf, tr, s.Fields, contentWidth)

		pdf.SetFont("Helvetica", "", 10)
		for _, p := range s.Text {
			pdf.MultiCell(contentWidth, 5, tr(p), "", "J", false)
			pdf.Ln(2)
		}

		for _, b := range s.Blocks {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.CellFormat(contentWidth, lineHeight, tr(b.Heading), "", 1, "L", false, 0, "")
			renderFields(pdf, tr, b.Fields, contentWidth)
		}

		for _, sig := range s.Signatures {
			pdf.Ln(6)
			pdf.SetFont("Helvetica", "", 10)
			pdf.CellFormat(contentWidth/2, lineHeight, tr("Luogo e data "+Placeholder), "", 0, "L", false, 0, "")
			pdf.CellFormat(contentWidth/2, lineHeight, tr(sig), "", 1, "R", false, 0, "")
			pdf.Ln(8)
			pdf.SetX(pageMargin + contentWidth/2)
			pdf.CellFormat(contentWidth/2, lineHeight, "", "B", 1, "R", false, 0, "")
		}
		pdf.Ln(4)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("waiver: render: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("waiver: output: %w", err)
	}
	return buf.Bytes(), nil
}

func renderFields(pdf *fpdf.Fpdf, tr func(string) string, fields []Field, width float64) {
	for _, f := range fields {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(labelWidth, lineHeight, tr(f.Label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(width-labelWidth, lineHeight, tr(f.Value), "", 1, "L", false, 0, "")
	}
	if len(fields) > 0 {
		pdf.Ln(2)
	}
}

// Generate builds and renders the waiver for r.
func Generate(r model.Registration) ([]byte, error) {
	doc, err := Build(r)
	if err != nil {
		return nil, err
	}
	return Render(doc)
}
