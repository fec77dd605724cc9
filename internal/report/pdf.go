package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// Generator renders a statement to a file and returns its path. The file is
// normally placed in dir, but callers must cope with paths elsewhere.
type Generator interface {
	Generate(ctx context.Context, st *Statement, dir string) (string, error)
}

// PDFGenerator renders statements as A4 PDFs.
type PDFGenerator struct {
	// Currency is printed after every amount.
	Currency string
}

// FileName returns the file name used for a statement.
func FileName(st *Statement) string {
	return fmt.Sprintf("report_%d_%04d-%02d.pdf", st.ReportID, st.Year, st.Month)
}

var expenseColumns = []struct {
	title string
	width float64
	align string
}{
	{"Date", 22, "L"},
	{"Listing", 38, "L"},
	{"Description", 50, "L"},
	{"Qty", 12, "R"},
	{"Cost", 22, "R"},
	{"Markup", 16, "R"},
	{"Billed", 30, "R"},
}

// Generate writes the PDF under a temporary name and renames it into place,
// so a failed render never leaves a partial file at the final path.
func (g PDFGenerator) Generate(ctx context.Context, st *Statement, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	period := fmt.Sprintf("%s %d", time.Month(st.Month), st.Year)

	pdf.SetTitle(st.Title, true)
	pdf.SetAuthor(st.Portfolio.Name, true)
	pdf.SetCreator("najem", false)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("%s - %s - page %d/{nb}", st.Owner.Name, period, pdf.PageNo())),
			"", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	// Header.
	if len(st.Logo) > 0 {
		opts := fpdf.ImageOptions{ImageType: "JPG", ReadDpi: true}
		pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(st.Logo))
		pdf.ImageOptions("logo", 10, 10, 0, 18, false, opts, 0, "")
		pdf.SetY(32)
	}
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr("Owner statement"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, tr(period+" - "+st.Portfolio.Name), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, tr(st.Owner.Name), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range []string{st.Owner.Email, st.Owner.Phone} {
		if line != "" {
			pdf.CellFormat(0, 5, tr(line), "", 1, "L", false, 0, "")
		}
	}
	if len(st.Listings) > 0 {
		names := make([]string, 0, len(st.Listings))
		for _, l := range st.Listings {
			names = append(names, l.Name)
		}
		pdf.MultiCell(0, 5, tr("Listings: "+strings.Join(names, ", ")), "", "L", false)
	}
	pdf.Ln(4)

	// Expenses.
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range expenseColumns {
		pdf.CellFormat(c.width, 7, c.title, "1", 0, c.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	if len(st.Expenses) == 0 {
		pdf.CellFormat(190, 7, tr("No expenses recorded for "+period+"."), "1", 1, "C", false, 0, "")
	}
	for _, e := range st.Expenses {
		desc := e.Notes
		if e.InventoryName != "" {
			desc = strings.TrimSpace(e.InventoryName + " " + desc)
		}
		qty := ""
		if e.QuantityUsed != nil {
			qty = fmt.Sprint(*e.QuantityUsed)
		}
		cells := []string{
			e.Date.Format("2006-01-02"),
			e.ListingName,
			desc,
			qty,
			g.money(e.TotalCost),
			e.MarkupPercent.String() + "%",
			g.money(e.BilledAmount),
		}
		for i, c := range expenseColumns {
			pdf.CellFormat(c.width, 6, fitText(pdf, tr(cells[i]), c.width-2), "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	// Totals.
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range []struct {
		label  string
		amount decimal.Decimal
	}{
		{"Total cost", st.TotalCost},
		{"Markup", st.TotalMarkup()},
	} {
		pdf.CellFormat(150, 6, row.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, tr(g.money(row.amount)), "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(150, 8, "Amount due", "T", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, tr(g.money(st.TotalBilled)), "T", 1, "R", false, 0, "")

	// Supplies used.
	if len(st.Items) > 0 {
		usage := st.ItemUsage()
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 7, "Supplies used", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for _, item := range st.Items {
			label := item.Name
			if item.Category != "" {
				label += " (" + item.Category + ")"
			}
			pdf.CellFormat(150, 5, tr(label), "", 0, "L", false, 0, "")
			pdf.CellFormat(40, 5, fmt.Sprint(usage[item.ID]), "", 1, "R", false, 0, "")
		}
	}

	if st.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr(st.Notes), "", "L", false)
	}

	if pdf.Err() {
		return "", fmt.Errorf("rendering pdf: %w", pdf.Error())
	}

	final := filepath.Join(dir, FileName(st))
	tmp := final + ".tmp"
	if err := pdf.OutputFileAndClose(tmp); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing pdf: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("moving pdf into place: %w", err)
	}
	return final, nil
}

func (g PDFGenerator) money(d decimal.Decimal) string {
	if g.Currency == "" {
		return d.StringFixed(2)
	}
	return d.StringFixed(2) + " " + g.Currency
}

// fitText cuts s to the first line that fits in width.
func fitText(pdf *fpdf.Fpdf, s string, width float64) string {
	if s == "" || pdf.GetStringWidth(s) <= width {
		return s
	}
	lines := pdf.SplitText(s, width)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}
