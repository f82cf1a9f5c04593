// Package invoice renders PDF invoices for paid orders.
package invoice

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/decorluxe-labs/commerce/core/pkg/finance"
	"github.com/decorluxe-labs/commerce/core/pkg/order"
)

// ErrNotAvailable indicates an invoice was requested for an order that
// has not been paid. Invoices exist only for completed purchases.
var ErrNotAvailable = errors.New("invoice not available for unpaid order")

// Render produces the PDF invoice for a paid order.
func Render(o *order.Order) ([]byte, error) {
	if o.PaymentState != order.StatePaid {
		return nil, fmt.Errorf("%w: order %s is %s", ErrNotAvailable, o.ID, o.PaymentState)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+o.ID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(0, 12, "DecorLuxe")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, "Invoice for order "+o.ID)
	pdf.Ln(5)
	pdf.Cell(0, 6, "Issued "+o.UpdatedAt.UTC().Format(time.RFC3339))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(0, 6, "Bill to")
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 5, o.Shipping.FullName)
	pdf.Ln(5)
	pdf.Cell(0, 5, o.Shipping.Address)
	pdf.Ln(5)
	pdf.Cell(0, 5, fmt.Sprintf("%s, %s %s", o.Shipping.City, o.Shipping.State, o.Shipping.ZipCode))
	pdf.Ln(5)
	pdf.Cell(0, 5, o.Shipping.Country)
	pdf.Ln(12)

	// Line item table.
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(240, 236, 228)
	pdf.CellFormat(90, 8, "Item", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Qty", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Unit price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(40, 8, "Subtotal", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, l := range o.Lines {
		unit := finance.Of(l.UnitPriceMinor, o.Currency)
		sub := finance.Of(l.SubtotalMinor(), o.Currency)
		pdf.CellFormat(90, 8, l.ProductName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 8, fmt.Sprintf("%d", l.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, unit.MajorString(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 8, sub.MajorString(), "1", 1, "R", false, 0, "")
	}

	total := finance.Of(o.TotalAmountMinor, o.Currency)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(150, 8, "Total ("+o.Currency+")", "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, total.MajorString(), "1", 1, "R", false, 0, "")

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 9)
	if o.PaymentIntentRef != "" {
		pdf.Cell(0, 5, "Payment reference: "+o.PaymentIntentRef)
		pdf.Ln(5)
	}
	pdf.Cell(0, 5, "Paid in full. Thank you for shopping with DecorLuxe.")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}
