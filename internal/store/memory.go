package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"inventory-service/internal/models"
)

// MemoryStore is an in-process Repository. Units of work lock the products
// they touch with a per-product mutex and stage their writes until commit,
// so it offers the same isolation guarantees as the Postgres store.
type MemoryStore struct {
	mu           sync.RWMutex
	products     map[int64]*models.Product
	upcIndex     map[string]int64
	transactions []*models.Transaction
	idempotency  map[string]int64
	reorders     map[int64]*models.ReorderRequest

	locks *keyedMutex

	seqMu         sync.Mutex
	nextProduct   int64
	nextTxn       int64
	nextLineItem  int64
	nextReorderID int64
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:    make(map[int64]*models.Product),
		upcIndex:    make(map[string]int64),
		idempotency: make(map[string]int64),
		reorders:    make(map[int64]*models.ReorderRequest),
		locks:       newKeyedMutex(),
	}
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) nextID(seq *int64) int64 {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	*seq++
	return *seq
}

// WithinTx runs fn as one unit of work
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		store:    m,
		products: make(map[int64]*models.Product),
		reorders: make(map[int64]*stagedReorder),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// GetProduct retrieves a product by ID
func (m *MemoryStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, models.NewNotFoundError("product", id)
	}
	return copyProduct(p), nil
}

// GetProductByUPC retrieves a product by its business code
func (m *MemoryStore) GetProductByUPC(ctx context.Context, upc string) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.upcIndex[upc]
	if !ok {
		return nil, models.NewNotFoundError("product", upc)
	}
	return copyProduct(m.products[id]), nil
}

// ListProducts retrieves products matching filter ordered by ID
func (m *MemoryStore) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := strings.ToLower(filter.Query)
	products := []models.Product{}
	for _, p := range m.products {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.UPC), query) &&
			!strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		products = append(products, *copyProduct(p))
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// GetTransaction retrieves a transaction by ID
func (m *MemoryStore) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, txn := range m.transactions {
		if txn.ID == id {
			return copyTransaction(txn), nil
		}
	}
	return nil, models.NewNotFoundError("transaction", id)
}

// FindTransactionByIdempotencyKey returns nil when no transaction carries key
func (m *MemoryStore) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	m.mu.RLock()
	id, ok := m.idempotency[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return m.GetTransaction(ctx, id)
}

// ListProductTransactions retrieves every transaction touching a product, oldest first
func (m *MemoryStore) ListProductTransactions(ctx context.Context, productID int64) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txns := []models.Transaction{}
	for _, txn := range m.transactions {
		for _, item := range txn.Items {
			if item.ProductID == productID {
				txns = append(txns, *copyTransaction(txn))
				break
			}
		}
	}
	return txns, nil
}

// GetReorder retrieves a reorder request by ID
func (m *MemoryStore) GetReorder(ctx context.Context, id int64) (*models.ReorderRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.reorders[id]
	if !ok {
		return nil, models.NewNotFoundError("reorder request", id)
	}
	return copyReorder(req), nil
}

// ListReorders retrieves reorder requests matching filter ordered by ID
func (m *MemoryStore) ListReorders(ctx context.Context, filter ReorderFilter) ([]models.ReorderRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reqs := []models.ReorderRequest{}
	for _, req := range m.reorders {
		if filter.matches(req) {
			reqs = append(reqs, *copyReorder(req))
		}
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID < reqs[j].ID })
	return reqs, nil
}

type stagedReorder struct {
	req             *models.ReorderRequest
	inserted        bool
	expectedVersion int
}

// memTx stages writes against the locked products and applies them on commit
type memTx struct {
	store        *MemoryStore
	unlocks      []func()
	products     map[int64]*models.Product
	newProducts  []int64
	transactions []*models.Transaction
	reorders     map[int64]*stagedReorder
}

var _ Tx = (*memTx)(nil)

func (t *memTx) release() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
	t.unlocks = nil
}

func (t *memTx) requireLocked(id int64) (*models.Product, error) {
	p, ok := t.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d is not locked by this transaction", id)
	}
	return p, nil
}

// LockProduct acquires the per-product lock and returns the staged product
func (t *memTx) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	if p, ok := t.products[id]; ok {
		return copyProduct(p), nil
	}

	if _, err := t.store.GetProduct(ctx, id); err != nil {
		return nil, err
	}

	t.unlocks = append(t.unlocks, t.store.locks.Lock(id))

	// re-read now that concurrent writers on this product are excluded
	p, err := t.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	t.products[id] = p
	return copyProduct(p), nil
}

// InsertProduct stages a new product. The product stays locked by this unit.
func (t *memTx) InsertProduct(ctx context.Context, p *models.Product) error {
	if t.upcTaken(p.UPC) {
		return models.NewConflictError("product", fmt.Sprintf("upc already exists (%s)", p.UPC))
	}

	now := time.Now().UTC()
	p.ID = t.store.nextID(&t.store.nextProduct)
	p.CreatedAt = now
	p.UpdatedAt = now

	t.unlocks = append(t.unlocks, t.store.locks.Lock(p.ID))
	t.products[p.ID] = copyProduct(p)
	t.newProducts = append(t.newProducts, p.ID)
	return nil
}

func (t *memTx) upcTaken(upc string) bool {
	for _, id := range t.newProducts {
		if t.products[id].UPC == upc {
			return true
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.upcIndex[upc]
	return ok
}

// UpdateProductQuantity stages a new current quantity
func (t *memTx) UpdateProductQuantity(ctx context.Context, id int64, quantity int) error {
	p, err := t.requireLocked(id)
	if err != nil {
		return err
	}
	if quantity < 0 {
		return fmt.Errorf("product %d quantity cannot be negative", id)
	}
	p.CurrentQuantity = quantity
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateProductDetails stages catalog fields
func (t *memTx) UpdateProductDetails(ctx context.Context, update *models.Product) error {
	p, err := t.requireLocked(update.ID)
	if err != nil {
		return err
	}
	p.Name = update.Name
	p.Description = update.Description
	p.Category = update.Category
	p.CaseSize = update.CaseSize
	p.SupplierID = update.SupplierID
	p.ReorderPoint = update.ReorderPoint
	p.ReorderQuantity = update.ReorderQuantity
	p.UnitPrice = update.UnitPrice
	p.Active = update.Active
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// InsertTransaction stages a transaction
func (t *memTx) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.IdempotencyKey != nil && t.keyTaken(*txn.IdempotencyKey) {
		return models.NewConflictError("transaction", "idempotency key already used")
	}

	txn.ID = t.store.nextID(&t.store.nextTxn)
	txn.CreatedAt = time.Now().UTC()
	for i := range txn.Items {
		txn.Items[i].ID = t.store.nextID(&t.store.nextLineItem)
		txn.Items[i].TransactionID = txn.ID
	}
	t.transactions = append(t.transactions, copyTransaction(txn))
	return nil
}

func (t *memTx) keyTaken(key string) bool {
	for _, txn := range t.transactions {
		if txn.IdempotencyKey != nil && *txn.IdempotencyKey == key {
			return true
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.idempotency[key]
	return ok
}

// ProductLineItems returns committed and staged line items for a product
func (t *memTx) ProductLineItems(ctx context.Context, productID int64) ([]models.LineItem, error) {
	items := []models.LineItem{}

	t.store.mu.RLock()
	for _, txn := range t.store.transactions {
		for _, item := range txn.Items {
			if item.ProductID == productID {
				items = append(items, item)
			}
		}
	}
	t.store.mu.RUnlock()

	for _, txn := range t.transactions {
		for _, item := range txn.Items {
			if item.ProductID == productID {
				items = append(items, item)
			}
		}
	}
	return items, nil
}

// GetReorder returns the staged view of a reorder request
func (t *memTx) GetReorder(ctx context.Context, id int64) (*models.ReorderRequest, error) {
	if staged, ok := t.reorders[id]; ok {
		return copyReorder(staged.req), nil
	}
	return t.store.GetReorder(ctx, id)
}

// FindOpenReorder returns the open request for a product as seen by this unit
func (t *memTx) FindOpenReorder(ctx context.Context, productID int64) (*models.ReorderRequest, error) {
	for _, staged := range t.reorders {
		if staged.req.ProductID == productID && staged.req.Status.IsOpen() {
			return copyReorder(staged.req), nil
		}
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for id, req := range t.store.reorders {
		if req.ProductID != productID || !req.Status.IsOpen() {
			continue
		}
		if _, overridden := t.reorders[id]; overridden {
			continue
		}
		return copyReorder(req), nil
	}
	return nil, nil
}

// InsertReorder stages a new request, rejecting a second open one
func (t *memTx) InsertReorder(ctx context.Context, req *models.ReorderRequest) error {
	if req.Status.IsOpen() {
		open, err := t.FindOpenReorder(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if open != nil {
			return models.NewConflictError("reorder request", "product already has an open reorder request")
		}
	}

	req.ID = t.store.nextID(&t.store.nextReorderID)
	req.Version = 1
	req.UpdatedAt = time.Now().UTC()
	t.reorders[req.ID] = &stagedReorder{req: copyReorder(req), inserted: true}
	return nil
}

// UpdateReorder stages a transition guarded by the optimistic version
func (t *memTx) UpdateReorder(ctx context.Context, req *models.ReorderRequest, expectedVersion int) error {
	current, err := t.GetReorder(ctx, req.ID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return models.NewConflictError("reorder request",
			fmt.Sprintf("request %d changed since version %d", req.ID, expectedVersion))
	}

	req.Version = expectedVersion + 1
	req.UpdatedAt = time.Now().UTC()

	staged, ok := t.reorders[req.ID]
	if !ok {
		staged = &stagedReorder{expectedVersion: expectedVersion}
		t.reorders[req.ID] = staged
	}
	staged.req = copyReorder(req)
	return nil
}

// commit validates staged writes against committed state and applies them
func (t *memTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range t.newProducts {
		if _, ok := s.upcIndex[t.products[id].UPC]; ok {
			return models.NewConflictError("product", fmt.Sprintf("upc already exists (%s)", t.products[id].UPC))
		}
	}
	for _, txn := range t.transactions {
		if txn.IdempotencyKey != nil {
			if _, ok := s.idempotency[*txn.IdempotencyKey]; ok {
				return models.NewConflictError("transaction", "idempotency key already used")
			}
		}
	}
	for id, staged := range t.reorders {
		if staged.inserted {
			continue
		}
		if committed := s.reorders[id]; committed == nil || committed.Version != staged.expectedVersion {
			return models.NewConflictError("reorder request",
				fmt.Sprintf("request %d changed since version %d", id, staged.expectedVersion))
		}
	}
	for _, staged := range t.reorders {
		if !staged.inserted || !staged.req.Status.IsOpen() {
			continue
		}
		for id, committed := range s.reorders {
			if committed.ProductID != staged.req.ProductID || !committed.Status.IsOpen() {
				continue
			}
			if update, ok := t.reorders[id]; ok && !update.req.Status.IsOpen() {
				continue
			}
			return models.NewConflictError("reorder request", "product already has an open reorder request")
		}
	}

	for id, p := range t.products {
		s.products[id] = copyProduct(p)
		s.upcIndex[p.UPC] = id
	}
	for _, txn := range t.transactions {
		s.transactions = append(s.transactions, txn)
		if txn.IdempotencyKey != nil {
			s.idempotency[*txn.IdempotencyKey] = txn.ID
		}
	}
	for id, staged := range t.reorders {
		s.reorders[id] = staged.req
	}
	return nil
}

// keyedMutex hands out one mutex per product ID
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*sync.Mutex)}
}

// Lock blocks until the key is free and returns its unlock function
func (k *keyedMutex) Lock(key int64) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func copyProduct(p *models.Product) *models.Product {
	c := *p
	if p.SupplierID != nil {
		id := *p.SupplierID
		c.SupplierID = &id
	}
	return &c
}

func copyTransaction(txn *models.Transaction) *models.Transaction {
	c := *txn
	c.Items = append([]models.LineItem(nil), txn.Items...)
	if txn.ReorderID != nil {
		id := *txn.ReorderID
		c.ReorderID = &id
	}
	if txn.IdempotencyKey != nil {
		key := *txn.IdempotencyKey
		c.IdempotencyKey = &key
	}
	return &c
}

func copyReorder(req *models.ReorderRequest) *models.ReorderRequest {
	c := *req
	if req.QuantityReceived != nil {
		q := *req.QuantityReceived
		c.QuantityReceived = &q
	}
	if req.DateOrdered != nil {
		d := *req.DateOrdered
		c.DateOrdered = &d
	}
	if req.DateFulfilled != nil {
		d := *req.DateFulfilled
		c.DateFulfilled = &d
	}
	return &c
}
