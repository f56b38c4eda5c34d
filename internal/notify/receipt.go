package notify

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// ReceiptPDF renders the purchase note attached to the order email.
func ReceiptPDF(o OrderPlaced) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(o.PlacedAt)
	pdf.SetModificationDate(o.PlacedAt)
	pdf.SetTitle("Nota de compra #"+o.OrderID, true)
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageW, _ := pdf.GetPageSize()

	// header band
	pdf.SetFillColor(17, 17, 17)
	pdf.Rect(0, 0, pageW, 32, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.Text(18, 15, "ASTRO MOTORS")
	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(18, 23, tr(`"Conquista la carretera, llega más lejos"`))

	pdf.SetXY(18, 40)
	pdf.SetTextColor(255, 68, 68)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, "Nota de compra", "", 1, "L", false, 0, "")

	pdf.SetTextColor(34, 34, 34)
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range []string{
		"Fecha: " + o.PlacedAt.Format("02/01/2006"),
		"Hora: " + o.PlacedAt.Format("15:04:05"),
		"Cliente: " + nonEmpty(o.Customer.Name, "N/A"),
		"No. de orden: #" + o.OrderID,
		"Destino: " + nonEmpty(o.CountryName, o.CountryCode),
	} {
		pdf.CellFormat(0, 6, tr(row), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, "Detalle de la compra", "", 1, "L", false, 0, "")

	widths := []float64{74, 28, 16, 28, 28}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(85, 85, 85)
	for i, h := range []string{"Producto", "Categoría", "Cant.", "P. unitario", "Importe"} {
		align := "R"
		if i < 2 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 7, tr(h), "B", 0, align, false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(34, 34, 34)
	pdf.SetFillColor(247, 247, 247)
	for i, l := range o.Lines {
		fill := i%2 == 0
		pdf.CellFormat(widths[0], 7, tr(l.ProductName), "", 0, "L", fill, 0, "")
		pdf.CellFormat(widths[1], 7, tr(l.Category), "", 0, "L", fill, 0, "")
		pdf.CellFormat(widths[2], 7, fmt.Sprint(l.Quantity), "", 0, "R", fill, 0, "")
		pdf.CellFormat(widths[3], 7, Money(l.UnitPrice), "", 0, "R", fill, 0, "")
		pdf.CellFormat(widths[4], 7, Money(l.Subtotal), "", 1, "R", fill, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(255, 68, 68)
	pdf.CellFormat(0, 8, "Resumen de cobro", "", 1, "L", false, 0, "")

	total := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.SetTextColor(34, 34, 34)
		pdf.CellFormat(100, 6, "", "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(34, 6, value, "", 1, "R", false, 0, "")
	}
	total("Subtotal:", Money(o.Subtotal), false)
	total("Impuestos:", Money(o.Tax), false)
	total("Gastos de envío:", Money(o.Shipping), false)
	total("Cupón aplicado:", nonEmpty(o.CouponCode, "N/A"), false)
	total("Descuento:", Money(o.Discount), false)
	pdf.SetDrawColor(255, 68, 68)
	y := pdf.GetY() + 1
	pdf.Line(118, y, pageW-18, y)
	pdf.Ln(3)
	total("Total general:", Money(o.GrandTotal), true)

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(85, 85, 85)
	pdf.MultiCell(0, 4, tr("Si no reconoces esta operación, contáctanos de inmediato respondiendo este correo."), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", o.OrderID, err)
	}
	return buf.Bytes(), nil
}

// Money formats an amount the way receipts show it: "$2,370.00 MXN".
func Money(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "$" + b.String() + "." + frac + " MXN"
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
