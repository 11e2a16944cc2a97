package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// SalesImportLine is the counted quantity of one UPC in a sales file
type SalesImportLine struct {
	UPC       string `json:"upc"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// SalesImportResult reports what an import recorded and what it skipped
type SalesImportResult struct {
	LinesRead   int                 `json:"lines_read"`
	Recorded    []SalesImportLine   `json:"recorded"`
	Unknown     []string            `json:"unknown_upcs"`
	Inactive    []string            `json:"inactive_upcs"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

// ImportSalesRequest describes a point-of-sale export with one scanned UPC per line
type ImportSalesRequest struct {
	Source         io.Reader
	Actor          string
	IdempotencyKey string
}

// ImportSales counts the UPCs in a sales file and records the known, active
// ones as a single SALE transaction. Unknown and inactive UPCs are skipped
// and reported.
func (s *InventoryService) ImportSales(ctx context.Context, req *ImportSalesRequest) (result *SalesImportResult, err error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ImportSales")
	defer func() { util.EndSpan(span, err) }()

	counts := make(map[string]int)
	var order []string
	result = &SalesImportResult{}

	scanner := bufio.NewScanner(req.Source)
	for scanner.Scan() {
		upc := strings.TrimSpace(scanner.Text())
		if upc == "" {
			continue
		}
		result.LinesRead++
		if _, ok := counts[upc]; !ok {
			order = append(order, upc)
		}
		counts[upc]++
	}
	if err := scanner.Err(); err != nil {
		return nil, models.NewValidationError("file", fmt.Sprintf("failed to read sales file: %v", err))
	}
	if result.LinesRead == 0 {
		return nil, models.NewValidationError("file", "no UPCs found")
	}

	items := make([]LineItemRequest, 0, len(order))
	for _, upc := range order {
		product, err := s.repo.GetProductByUPC(ctx, upc)
		if err != nil {
			if models.IsNotFound(err) {
				result.Unknown = append(result.Unknown, upc)
				continue
			}
			return nil, fmt.Errorf("failed to look up upc %s: %w", upc, err)
		}
		if !product.Active {
			result.Inactive = append(result.Inactive, upc)
			continue
		}

		items = append(items, LineItemRequest{ProductID: product.ID, Quantity: counts[upc]})
		result.Recorded = append(result.Recorded, SalesImportLine{
			UPC:       upc,
			ProductID: product.ID,
			Quantity:  counts[upc],
		})
	}

	if len(result.Unknown) > 0 || len(result.Inactive) > 0 {
		s.logger.Warn("Sales import skipped UPCs",
			zap.Strings("unknown", result.Unknown),
			zap.Strings("inactive", result.Inactive))
	}
	if len(items) == 0 {
		return result, nil
	}

	txn, err := s.RecordTransaction(ctx, &RecordTransactionRequest{
		Type:           models.TransactionTypeSale,
		Items:          items,
		Actor:          req.Actor,
		Notes:          fmt.Sprintf("sales import of %d scans", result.LinesRead),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	result.Transaction = txn
	return result, nil
}
