// Package receipts renders and archives proof-of-purchase documents for
// paid orders. A receipt is two content-addressed artifacts: an SVG
// rendering for display and a canonical JSON metadata document that
// embeds the image's locator, so the pair is tamper-evident end to end.
package receipts

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/decorluxe-labs/commerce/core/pkg/finance"
	"github.com/decorluxe-labs/commerce/core/pkg/order"
)

const (
	svgWidth      = 600
	svgHeaderH    = 110
	svgLineHeight = 26
	svgFooterH    = 90
)

// RenderSVG produces the receipt image for a paid order. Output is
// deterministic for a given order, which keeps the artifact store
// idempotent across archival retries.
func RenderSVG(o *order.Order) []byte {
	height := svgHeaderH + len(o.Lines)*svgLineHeight + svgFooterH

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		svgWidth, height, svgWidth, height)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#faf7f2"/>`, svgWidth, height)
	fmt.Fprintf(&b, `<text x="30" y="44" font-family="Georgia, serif" font-size="26" fill="#3d2b1f">DecorLuxe</text>`)
	fmt.Fprintf(&b, `<text x="30" y="72" font-family="monospace" font-size="13" fill="#6b5d4f">Receipt · Order %s</text>`,
		html.EscapeString(o.ID))
	fmt.Fprintf(&b, `<line x1="30" y1="%d" x2="%d" y2="%d" stroke="#d8cfc2" stroke-width="1"/>`,
		svgHeaderH-20, svgWidth-30, svgHeaderH-20)

	y := svgHeaderH
	for _, l := range o.Lines {
		line := finance.Of(l.SubtotalMinor(), o.Currency)
		fmt.Fprintf(&b, `<text x="30" y="%d" font-family="monospace" font-size="13" fill="#3d2b1f">%s × %d</text>`,
			y, html.EscapeString(l.ProductName), l.Quantity)
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="monospace" font-size="13" fill="#3d2b1f" text-anchor="end">%s %s</text>`,
			svgWidth-30, y, html.EscapeString(o.Currency), line.MajorString())
		y += svgLineHeight
	}

	total := finance.Of(o.TotalAmountMinor, o.Currency)
	fmt.Fprintf(&b, `<line x1="30" y1="%d" x2="%d" y2="%d" stroke="#d8cfc2" stroke-width="1"/>`,
		y+6, svgWidth-30, y+6)
	fmt.Fprintf(&b, `<text x="30" y="%d" font-family="monospace" font-size="15" font-weight="bold" fill="#3d2b1f">Total</text>`,
		y+34)
	fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="monospace" font-size="15" font-weight="bold" fill="#3d2b1f" text-anchor="end">%s %s</text>`,
		svgWidth-30, y+34, html.EscapeString(o.Currency), total.MajorString())
	fmt.Fprintf(&b, `<text x="30" y="%d" font-family="monospace" font-size="11" fill="#6b5d4f">Paid · %s</text>`,
		y+62, o.UpdatedAt.UTC().Format(time.RFC3339))
	b.WriteString(`</svg>`)
	return []byte(b.String())
}
