package report

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"mysokha/internal/core"
)

// ErrFontMissing means no UTF-8 font was loaded, so the PDF cannot render
// the title or the currency symbol.
var ErrFontMissing = errors.New("report font is not available")

type rgb struct{ r, g, b int }

var (
	headFill = rgb{22, 160, 133}
	footFill = rgb{241, 196, 15}
	gridLine = rgb{200, 200, 200}
	white    = rgb{255, 255, 255}
	black    = rgb{0, 0, 0}
)

// PDFStyle carries the font and currency used when printing.
type PDFStyle struct {
	Family         string
	Font           []byte
	CurrencySymbol string
}

type column struct {
	width float64
	align string
}

const (
	pageMargin = 14.0
	rowHeight  = 8.0
	titleY     = 20.0
	tableY     = 30.0
)

// columns sizes the four table columns to the printable width. Number, name
// and amount are fixed; the date column takes the rest.
func columns(printable float64) []column {
	date := printable - 10 - 80 - 40
	if date < 25 {
		date = 25
	}
	return []column{
		{width: 10, align: "CM"},
		{width: date, align: "LM"},
		{width: 80, align: "LM"},
		{width: 40, align: "RM"},
	}
}

func amountText(d decimal.Decimal, symbol string) string {
	return core.NewAmount(d).DisplayWithSymbol(symbol)
}

// WritePDF prints the document table on A4 portrait pages. The header row
// repeats on every page and the totals row closes the table.
func WritePDF(w io.Writer, doc Document, style PDFStyle) error {
	if len(style.Font) == 0 {
		return ErrFontMissing
	}
	family := style.Family
	if family == "" {
		family = "report"
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin)
	pdf.AddUTF8FontFromBytes(family, "", style.Font)
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	cols := columns(pageW - 2*pageMargin)

	pdf.SetFont(family, "", 18)
	pdf.SetTextColor(black.r, black.g, black.b)
	titleW := pdf.GetStringWidth(doc.Title)
	pdf.Text((pageW-titleW)/2, titleY, doc.Title)

	pdf.SetFont(family, "", 10)
	pdf.SetDrawColor(gridLine.r, gridLine.g, gridLine.b)
	pdf.SetY(tableY)

	row := func(cells []string, fill *rgb, text rgb) {
		if fill != nil {
			pdf.SetFillColor(fill.r, fill.g, fill.b)
		}
		pdf.SetTextColor(text.r, text.g, text.b)
		pdf.SetX(pageMargin)
		for i, c := range cols {
			pdf.CellFormat(c.width, rowHeight, cells[i], "1", 0, c.align, fill != nil, 0, "")
		}
		pdf.Ln(rowHeight)
	}
	head := func() {
		row([]string{headerNo, headerDate, headerExpense, headerAmount}, &headFill, white)
	}
	fits := func() bool {
		return pdf.GetY()+rowHeight <= pageH-pageMargin
	}

	head()
	for _, r := range doc.Rows {
		if !fits() {
			pdf.AddPage()
			pdf.SetY(pageMargin)
			head()
		}
		row([]string{strconv.Itoa(r.No), r.Date, r.Name, amountText(r.Amount, style.CurrencySymbol)}, nil, black)
	}
	if !fits() {
		pdf.AddPage()
		pdf.SetY(pageMargin)
	}
	row([]string{"", "", headerTotal, amountText(doc.Total, style.CurrencySymbol)}, &footFill, black)

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
