package service

import (
	"context"
	"fmt"
	"strings"

	"inventory-service/internal/models"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CatalogService manages product master data. Stock movements still go
// through the ledger of the wrapped InventoryService.
type CatalogService struct {
	inv    *InventoryService
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(inv *InventoryService) *CatalogService {
	return &CatalogService{
		inv:    inv,
		logger: util.ComponentLogger("catalog"),
	}
}

// CreateProductRequest represents a request to add a product to the catalog
type CreateProductRequest struct {
	UPC             string          `json:"upc" binding:"required"`
	Name            string          `json:"name" binding:"required"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	CaseSize        int             `json:"case_size"`
	SupplierID      *int64          `json:"supplier_id,omitempty"`
	InitialQuantity int             `json:"initial_quantity"`
	ReorderPoint    int             `json:"reorder_point"`
	ReorderQuantity int             `json:"reorder_quantity" binding:"required"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Actor           string          `json:"actor,omitempty"`
}

func (r *CreateProductRequest) validate() error {
	r.UPC = strings.TrimSpace(r.UPC)
	r.Name = strings.TrimSpace(r.Name)

	if r.UPC == "" {
		return models.NewValidationError("upc", "is required")
	}
	if r.Name == "" {
		return models.NewValidationError("name", "is required")
	}
	if r.CaseSize == 0 {
		r.CaseSize = 1
	}
	if r.CaseSize < 1 {
		return models.NewValidationError("case_size", "must be at least 1")
	}
	if r.InitialQuantity < 0 {
		return models.NewValidationError("initial_quantity", "cannot be negative")
	}
	if r.UnitPrice.IsNegative() {
		return models.NewValidationError("unit_price", "cannot be negative")
	}
	return validateReorderSettings(r.ReorderPoint, r.ReorderQuantity)
}

func validateReorderSettings(point, quantity int) error {
	if point < 0 {
		return models.NewValidationError("reorder_point", "cannot be negative")
	}
	if quantity <= 0 {
		return models.NewValidationError("reorder_quantity", "must be greater than zero")
	}
	return nil
}

// CreateProduct adds an active product. Initial stock is booked as an
// ADJUSTMENT so the history replays to the starting quantity, and the
// threshold check runs before the unit commits.
func (c *CatalogService) CreateProduct(ctx context.Context, req *CreateProductRequest) (product *models.Product, err error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer func() { util.EndSpan(span, err) }()

	if err := req.validate(); err != nil {
		return nil, err
	}

	err = c.inv.execute(ctx, func(ctx context.Context, u *unit) error {
		p := &models.Product{
			UPC:             req.UPC,
			Name:            req.Name,
			Description:     req.Description,
			Category:        req.Category,
			CaseSize:        req.CaseSize,
			SupplierID:      req.SupplierID,
			ReorderPoint:    req.ReorderPoint,
			ReorderQuantity: req.ReorderQuantity,
			UnitPrice:       req.UnitPrice,
			Active:          true,
		}
		if err := u.tx.InsertProduct(ctx, p); err != nil {
			return err
		}

		if req.InitialQuantity > 0 {
			if _, err := c.inv.recorder.record(ctx, u, &RecordTransactionRequest{
				Type:  models.TransactionTypeAdjustment,
				Actor: req.Actor,
				Notes: "initial stock",
				Items: []LineItemRequest{{ProductID: p.ID, Quantity: req.InitialQuantity}},
			}); err != nil {
				return err
			}
		}

		locked, err := u.lockProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		if _, err := c.inv.monitor.evaluate(ctx, u, locked); err != nil {
			return err
		}
		product = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("upc", product.UPC),
		zap.Int("current_quantity", product.CurrentQuantity))
	return product, nil
}

// UpdateProductRequest carries the descriptive fields to change; nil fields are kept
type UpdateProductRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	CaseSize    *int             `json:"case_size,omitempty"`
	SupplierID  *int64           `json:"supplier_id,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
}

// UpdateProduct edits descriptive fields. Quantity and reorder settings have
// their own operations.
func (c *CatalogService) UpdateProduct(ctx context.Context, productID int64, req *UpdateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct",
		attribute.Int64("product.id", productID))
	defer span.End()

	return c.modify(ctx, productID, func(p *models.Product) error {
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return models.NewValidationError("name", "cannot be empty")
			}
			p.Name = name
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.Category != nil {
			p.Category = *req.Category
		}
		if req.CaseSize != nil {
			if *req.CaseSize < 1 {
				return models.NewValidationError("case_size", "must be at least 1")
			}
			p.CaseSize = *req.CaseSize
		}
		if req.SupplierID != nil {
			supplierID := *req.SupplierID
			p.SupplierID = &supplierID
		}
		if req.UnitPrice != nil {
			if req.UnitPrice.IsNegative() {
				return models.NewValidationError("unit_price", "cannot be negative")
			}
			p.UnitPrice = *req.UnitPrice
		}
		return nil
	}, false)
}

// ReorderSettings are the threshold parameters of a product
type ReorderSettings struct {
	ReorderPoint    int `json:"reorder_point"`
	ReorderQuantity int `json:"reorder_quantity"`
}

// UpdateReorderSettings changes the threshold parameters and re-runs the
// threshold check, so raising the reorder point above current stock opens a
// request immediately.
func (c *CatalogService) UpdateReorderSettings(ctx context.Context, productID int64, settings ReorderSettings) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateReorderSettings",
		attribute.Int64("product.id", productID))
	defer span.End()

	if err := validateReorderSettings(settings.ReorderPoint, settings.ReorderQuantity); err != nil {
		return nil, err
	}

	return c.modify(ctx, productID, func(p *models.Product) error {
		p.ReorderPoint = settings.ReorderPoint
		p.ReorderQuantity = settings.ReorderQuantity
		return nil
	}, true)
}

// Deactivate retires a product. Products are never deleted; open reorder
// requests are left for the lifecycle manager to finish.
func (c *CatalogService) Deactivate(ctx context.Context, productID int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Deactivate",
		attribute.Int64("product.id", productID))
	defer span.End()

	product, err := c.modify(ctx, productID, func(p *models.Product) error {
		p.Active = false
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Product deactivated", zap.Int64("product_id", productID))
	return product, nil
}

// modify applies change to the locked product and persists the details
func (c *CatalogService) modify(
	ctx context.Context,
	productID int64,
	change func(p *models.Product) error,
	reevaluate bool,
) (*models.Product, error) {
	var updated *models.Product
	err := c.inv.execute(ctx, func(ctx context.Context, u *unit) error {
		product, err := u.lockProduct(ctx, productID)
		if err != nil {
			return err
		}

		staged := *product
		if err := change(&staged); err != nil {
			return err
		}
		if err := u.tx.UpdateProductDetails(ctx, &staged); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		*product = staged

		if reevaluate {
			if _, err := c.inv.monitor.evaluate(ctx, u, product); err != nil {
				return err
			}
		}
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetQuantityRequest overwrites the on-hand quantity after a physical count
type SetQuantityRequest struct {
	Quantity int    `json:"quantity"`
	Actor    string `json:"actor,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// SetQuantity records an ADJUSTMENT for the difference between the counted
// and the stored quantity. It returns a nil transaction when nothing changes.
func (c *CatalogService) SetQuantity(ctx context.Context, productID int64, req *SetQuantityRequest) (txn *models.Transaction, err error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.SetQuantity",
		attribute.Int64("product.id", productID))
	defer func() { util.EndSpan(span, err) }()

	if req.Quantity < 0 {
		return nil, models.NewValidationError("quantity", "cannot be negative")
	}

	notes := req.Notes
	if notes == "" {
		notes = fmt.Sprintf("quantity set to %d", req.Quantity)
	}

	err = c.inv.execute(ctx, func(ctx context.Context, u *unit) error {
		product, err := u.lockProduct(ctx, productID)
		if err != nil {
			return err
		}

		delta := req.Quantity - product.CurrentQuantity
		if delta == 0 {
			return nil
		}

		txn, err = c.inv.recorder.record(ctx, u, &RecordTransactionRequest{
			Type:  models.TransactionTypeAdjustment,
			Actor: req.Actor,
			Notes: notes,
			Items: []LineItemRequest{{ProductID: productID, Quantity: delta}},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// SearchProducts finds products whose UPC or name contains query
func (c *CatalogService) SearchProducts(ctx context.Context, query string, activeOnly bool) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.SearchProducts")
	defer span.End()

	products, err := c.inv.repo.ListProducts(ctx, store.ProductFilter{
		Query:      strings.TrimSpace(query),
		ActiveOnly: activeOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return products, nil
}
