// Package report renders plain-text reports for purchasing staff.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"inventory-service/internal/models"

	"github.com/shopspring/decimal"
)

const (
	reportTitle = "INVENTORY REORDER REPORT"
	ruleWidth   = 110
	nameWidth   = 30
)

// WriteReorderReport writes the open reorder requests as a fixed-width table
func WriteReorderReport(w io.Writer, lines []models.ReorderReportLine, generatedAt time.Time) error {
	rw := &reportWriter{w: w}

	rw.printf("%s\n", reportTitle)
	rw.printf("Generated on: %s\n\n", generatedAt.Format("2006-01-02 15:04:05"))

	if len(lines) == 0 {
		rw.printf("No items need to be reordered.\n")
		return rw.err
	}

	rule := strings.Repeat("-", ruleWidth)
	rw.printf("%s\n", rule)
	rw.printf("%-10s %-10s %-15s %-30s %-11s %-11s %-11s %-10s\n",
		"REORDER", "PRODUCT", "UPC", "PRODUCT NAME", "CURRENT QTY", "REORDER QTY", "SUPPLIER", "STATUS")
	rw.printf("%s\n", rule)

	total := decimal.Zero
	for _, line := range lines {
		rw.printf("%-10d %-10d %-15s %-30s %-11d %-11d %-11s %-10s\n",
			line.ReorderID,
			line.ProductID,
			line.UPC,
			truncate(line.ProductName, nameWidth),
			line.CurrentQuantity,
			line.QuantityRequested,
			supplierLabel(line.SupplierID),
			line.Status)
		total = total.Add(line.EstimatedCost)
	}

	rw.printf("%s\n", rule)
	rw.printf("\nTotal items to reorder: %d\n", len(lines))
	rw.printf("Estimated cost: %s\n", total.StringFixed(2))
	return rw.err
}

// reportWriter keeps the first write error so callers check once
type reportWriter struct {
	w   io.Writer
	err error
}

func (rw *reportWriter) printf(format string, args ...interface{}) {
	if rw.err != nil {
		return
	}
	_, rw.err = fmt.Fprintf(rw.w, format, args...)
}

func supplierLabel(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
