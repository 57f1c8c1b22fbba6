package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth  = 277.0
	pdfLineHeight = 5.0
)

// PDFExporter renders datasets into a landscape table with wrapped cells.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType implements Exporter.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension implements Exporter.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render creates a PDF document with an optional title and the table body.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 9, tr(data.Title), "", 1, "L", false, 0, "")
		pdf.Ln(3)
	}

	colWidth := pdfPageWidth / float64(len(data.Headers))
	pdf.SetFont("Arial", "B", 9)
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 7, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		lines := make([][]string, len(row))
		height := 1
		for i, value := range row {
			lines[i] = splitLines(pdf, tr(value), colWidth-2)
			if len(lines[i]) > height {
				height = len(lines[i])
			}
		}
		rowHeight := float64(height) * pdfLineHeight
		_, pageHeight := pdf.GetPageSize()
		_, _, _, bottom := pdf.GetMargins()
		if pdf.GetY()+rowHeight > pageHeight-bottom {
			pdf.AddPage()
		}
		x, y := pdf.GetXY()
		for i := range row {
			pdf.Rect(x+float64(i)*colWidth, y, colWidth, rowHeight, "D")
			for j, line := range lines[i] {
				pdf.SetXY(x+float64(i)*colWidth+1, y+float64(j)*pdfLineHeight)
				pdf.CellFormat(colWidth-2, pdfLineHeight, line, "", 0, "L", false, 0, "")
			}
		}
		pdf.SetXY(x, y+rowHeight)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func splitLines(pdf *gofpdf.Fpdf, value string, width float64) []string {
	if value == "" {
		return []string{""}
	}
	raw := pdf.SplitLines([]byte(value), width)
	lines := make([]string, len(raw))
	for i, line := range raw {
		lines[i] = string(line)
	}
	return lines
}
