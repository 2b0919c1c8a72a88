package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stockledger/backend/internal/domain"
	"stockledger/backend/internal/store"
	"stockledger/backend/internal/xid"
)

// Store is an in-memory Repository used for development and tests. It mirrors
// the transactional guarantees of the Postgres store by doing every posting
// under a single write lock.
type Store struct {
	mu             sync.RWMutex
	items          map[string]domain.Item
	itemHistory    map[string][]domain.ItemHistory
	parties        map[string]domain.Party
	salesByID      map[string]*domain.SaleTransaction
	billNumbers    map[string]string
	returns        []domain.ReturnTransaction
	purchases      []domain.PurchaseTransaction
	reorderByID    map[string]domain.ReorderEntry
	pendingByItem  map[string]string
	usersByID      map[string]domain.UserAccount
	auditLogs      []domain.AuditLog
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_SUPERADMIN_PASSWORD, SEED_ADMIN_PASSWORD and
// SEED_SALES_PASSWORD. Unset variables fall back to hardcoded dev defaults
// with a warning. Production deployments run on PostgreSQL and never hit
// this path.
func seedUsers() map[string]domain.UserAccount {
	superPwd := envOr("SEED_SUPERADMIN_PASSWORD", "super123")
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	salesPwd := envOr("SEED_SALES_PASSWORD", "sales123")
	if os.Getenv("SEED_SUPERADMIN_PASSWORD") == "" || os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SALES_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_SUPERADMIN_PASSWORD, SEED_ADMIN_PASSWORD and SEED_SALES_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		userID   string
		password string
		role     string
	}{
		{"superadmin", superPwd, domain.RoleSuperAdmin},
		{"admin", adminPwd, domain.RoleAdmin},
		{"sales", salesPwd, domain.RoleSales},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.userID, err)
		}
		users[u.userID] = domain.UserAccount{
			UserID:    u.userID,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	items := []domain.Item{
		{ID: "item-seed-01", ProductName: "Copper Wire 2.5mm", ProductCode: "CW-25", Brand: "Finolex", HSNNumber: "8544", TaxRate: 18, SaleRatePaise: 145000, PurchaseRatePaise: 121000, Quantity: 40, AlertQuantity: 10, RackNumber: "A1"},
		{ID: "item-seed-02", ProductName: "LED Bulb 9W", ProductCode: "LB-9", Brand: "Philips", HSNNumber: "8539", TaxRate: 18, SaleRatePaise: 11000, PurchaseRatePaise: 7800, Quantity: 120, AlertQuantity: 24, RackNumber: "B3"},
		{ID: "item-seed-03", ProductName: "Switch Board 6A", ProductCode: "SB-6", Brand: "Anchor", HSNNumber: "8536", TaxRate: 28, SaleRatePaise: 8500, PurchaseRatePaise: 5600, Quantity: 60, AlertQuantity: 15, RackNumber: "B1"},
		{ID: "item-seed-04", ProductName: "PVC Conduit 25mm", ProductCode: "PC-25", Brand: "Precision", HSNNumber: "3917", TaxRate: 5, SaleRatePaise: 6200, PurchaseRatePaise: 4100, Quantity: 8, AlertQuantity: 20, RackNumber: "C2"},
		{ID: "item-seed-05", ProductName: "MCB 16A Single Pole", ProductCode: "MCB-16", Brand: "Havells", HSNNumber: "8536", TaxRate: 18, SaleRatePaise: 21500, PurchaseRatePaise: 15400, Quantity: 35, AlertQuantity: 10, RackNumber: "A2"},
	}
	parties := []domain.Party{
		{ID: "party-seed-01", PartyType: domain.PartyTypeBuyer, PartyName: "Sharma Electricals Wholesale", MobileNumber: "9812001100", GSTNumber: "07AABCS1429B1Z1"},
		{ID: "party-seed-02", PartyType: domain.PartyTypeSeller, PartyName: "Gupta Hardware Stores", MobileNumber: "9812002200", OpeningBalancePaise: 250000, BalanceAmountPaise: 250000},
	}

	itemMap := make(map[string]domain.Item, len(items))
	for _, it := range items {
		it.CreatedAt = now
		it.UpdatedAt = now
		itemMap[it.ID] = it
	}
	partyMap := make(map[string]domain.Party, len(parties))
	for _, p := range parties {
		p.CreatedAt = now
		partyMap[p.ID] = p
	}

	return &Store{
		items:         itemMap,
		itemHistory:   make(map[string][]domain.ItemHistory),
		parties:       partyMap,
		salesByID:     make(map[string]*domain.SaleTransaction),
		billNumbers:   make(map[string]string),
		returns:       make([]domain.ReturnTransaction, 0, 64),
		purchases:     make([]domain.PurchaseTransaction, 0, 64),
		reorderByID:   make(map[string]domain.ReorderEntry),
		pendingByItem: make(map[string]string),
		usersByID:     seedUsers(),
		auditLogs:     make([]domain.AuditLog, 0, 128),
	}
}

func itemIdentityKey(name, code, brand string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "\x00" +
		strings.ToLower(strings.TrimSpace(code)) + "\x00" +
		strings.ToLower(strings.TrimSpace(brand))
}

func (s *Store) ListItems(_ context.Context, filter domain.ItemListFilter) (*domain.ItemPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	matched := make([]domain.Item, 0, len(s.items))
	needle := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, it := range s.items {
		if needle != "" && !itemMatches(it, filter.SearchField, needle) {
			continue
		}
		matched = append(matched, it)
	}
	slices.SortFunc(matched, func(a, b domain.Item) int {
		return strings.Compare(strings.ToLower(a.ProductName), strings.ToLower(b.ProductName))
	})

	total := len(matched)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &domain.ItemPage{
		Items: matched[start:end],
		Pagination: domain.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

func itemMatches(it domain.Item, field, needle string) bool {
	contains := func(v string) bool { return strings.Contains(strings.ToLower(v), needle) }
	switch field {
	case "product_name":
		return contains(it.ProductName)
	case "product_code":
		return contains(it.ProductCode)
	case "brand":
		return contains(it.Brand)
	case "remarks":
		return contains(it.Remarks)
	default:
		return contains(it.ProductName) || contains(it.ProductCode) || contains(it.Brand)
	}
}

func (s *Store) GetItemByID(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &it, nil
}

func (s *Store) GetItemsByIDs(_ context.Context, ids []string) (map[string]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Item, len(ids))
	for _, id := range ids {
		if it, ok := s.items[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (s *Store) FindItemByIdentity(_ context.Context, name, code, brand string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := itemIdentityKey(name, code, brand)
	for _, it := range s.items {
		if itemIdentityKey(it.ProductName, it.ProductCode, it.Brand) == key {
			return &it, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := itemIdentityKey(item.ProductName, item.ProductCode, item.Brand)
	for _, existing := range s.items {
		if itemIdentityKey(existing.ProductName, existing.ProductCode, existing.Brand) == key {
			return nil, fmt.Errorf("%w: item %q already exists", store.ErrConflict, item.ProductName)
		}
	}

	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	s.items[item.ID] = item
	s.reconcileReorderLocked(item)
	return &item, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	key := itemIdentityKey(item.ProductName, item.ProductCode, item.Brand)
	for id, other := range s.items {
		if id == item.ID {
			continue
		}
		if itemIdentityKey(other.ProductName, other.ProductCode, other.Brand) == key {
			return nil, fmt.Errorf("%w: item %q already exists", store.ErrConflict, item.ProductName)
		}
	}

	item.CreatedAt = existing.CreatedAt
	item.CreatedBy = existing.CreatedBy
	item.UpdatedAt = time.Now().UTC()
	s.items[item.ID] = item
	s.reconcileReorderLocked(item)
	return &item, nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.items, id)
	if entryID, ok := s.pendingByItem[id]; ok {
		delete(s.reorderByID, entryID)
		delete(s.pendingByItem, id)
	}
	return nil
}

func (s *Store) SearchItems(_ context.Context, q domain.ItemSearchRequest) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match := func(field, want string) bool {
		want = strings.ToLower(strings.TrimSpace(want))
		return want == "" || strings.Contains(strings.ToLower(field), want)
	}

	out := make([]domain.Item, 0, 16)
	for _, it := range s.items {
		if match(it.ProductName, q.ProductName) &&
			match(it.Brand, q.Brand) &&
			match(it.ProductCode, q.ProductCode) &&
			match(it.Remarks, q.Remarks) {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b domain.Item) int {
		return strings.Compare(strings.ToLower(a.ProductName), strings.ToLower(b.ProductName))
	})
	return out, nil
}

func (s *Store) TotalStockValue(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, it := range s.items {
		total += it.PurchaseRatePaise * int64(it.Quantity)
	}
	return total, nil
}

func (s *Store) CreateItemHistory(_ context.Context, entry domain.ItemHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("hist")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	s.itemHistory[entry.ItemID] = append(s.itemHistory[entry.ItemID], entry)
	return nil
}

func (s *Store) ListItemHistory(_ context.Context, itemID string, limit int) ([]domain.ItemHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.itemHistory[itemID]
	out := make([]domain.ItemHistory, len(entries))
	copy(out, entries)
	slices.SortFunc(out, func(a, b domain.ItemHistory) int {
		return b.ChangedAt.Compare(a.ChangedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListParties(_ context.Context, partyType string) ([]domain.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Party, 0, len(s.parties))
	for _, p := range s.parties {
		if partyType != "" && p.PartyType != partyType {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Party) int {
		return strings.Compare(strings.ToLower(a.PartyName), strings.ToLower(b.PartyName))
	})
	return out, nil
}

func (s *Store) GetPartyByID(_ context.Context, id string) (*domain.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.parties[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateParty(_ context.Context, party domain.Party) (*domain.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.ToLower(strings.TrimSpace(party.PartyName))
	for _, existing := range s.parties {
		if existing.PartyType == party.PartyType && strings.ToLower(existing.PartyName) == name {
			return nil, fmt.Errorf("%w: %s %q already exists", store.ErrConflict, party.PartyType, party.PartyName)
		}
	}

	if party.ID == "" {
		party.ID = xid.New("party")
	}
	party.CreatedAt = time.Now().UTC()
	s.parties[party.ID] = party
	return &party, nil
}

func (s *Store) UpdateParty(_ context.Context, party domain.Party) (*domain.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.parties[party.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	name := strings.ToLower(strings.TrimSpace(party.PartyName))
	for id, other := range s.parties {
		if id == party.ID {
			continue
		}
		if other.PartyType == existing.PartyType && strings.ToLower(other.PartyName) == name {
			return nil, fmt.Errorf("%w: %s %q already exists", store.ErrConflict, existing.PartyType, party.PartyName)
		}
	}

	// Ledger fields only move through postings, never through profile edits.
	party.PartyType = existing.PartyType
	party.OpeningBalancePaise = existing.OpeningBalancePaise
	party.BalanceAmountPaise = existing.BalanceAmountPaise
	party.PaidAmountPaise = existing.PaidAmountPaise
	party.CreatedAt = existing.CreatedAt
	s.parties[party.ID] = party
	return &party, nil
}

func (s *Store) DeleteParty(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.parties[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.parties, id)
	return nil
}

func (s *Store) CreateSale(_ context.Context, tx domain.SaleTransaction, ledgerDeltaPaise int64) (*domain.SaleTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.billNumbers[tx.BillNumber]; exists {
		return nil, fmt.Errorf("%w: bill number %s already used", store.ErrConflict, tx.BillNumber)
	}
	party, ok := s.parties[tx.SellerPartyID]
	if !ok || party.PartyType != domain.PartyTypeSeller {
		return nil, fmt.Errorf("%w: seller party %s", store.ErrNotFound, tx.SellerPartyID)
	}

	// Validate every line before touching any stock so a failed sale leaves
	// nothing half-applied.
	for _, ln := range tx.Lines {
		it, ok := s.items[ln.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item %s", store.ErrNotFound, ln.ItemID)
		}
		if it.Quantity < ln.Quantity {
			return nil, fmt.Errorf("%w for %q: have %d, need %d", store.ErrInsufficientStock, it.ProductName, it.Quantity, ln.Quantity)
		}
	}

	now := time.Now().UTC()
	for i, ln := range tx.Lines {
		it := s.items[ln.ItemID]
		it.Quantity -= ln.Quantity
		it.UpdatedAt = now
		s.items[ln.ItemID] = it
		s.reconcileReorderLocked(it)

		tx.Lines[i].ProductName = it.ProductName
		tx.Lines[i].Brand = it.Brand
		tx.Lines[i].HSNNumber = it.HSNNumber
	}

	party.BalanceAmountPaise += ledgerDeltaPaise
	party.PaidAmountPaise += tx.PaidAmountPaise
	s.parties[party.ID] = party

	if tx.ID == "" {
		tx.ID = xid.New("sale")
	}
	if tx.TransactionDate.IsZero() {
		tx.TransactionDate = now
	}
	tx.CreatedAt = now
	tx.PartyName = party.PartyName

	stored := tx
	stored.Lines = slices.Clone(tx.Lines)
	s.salesByID[stored.ID] = &stored
	s.billNumbers[stored.BillNumber] = stored.ID

	out := stored
	out.Lines = slices.Clone(stored.Lines)
	return &out, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.SaleTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *tx
	out.Lines = slices.Clone(tx.Lines)
	return &out, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleListFilter) ([]domain.SaleSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to, err := parseDateRange(filter.FromDate, filter.ToDate)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SaleSummary, 0, len(s.salesByID))
	for _, tx := range s.salesByID {
		if !inRange(tx.TransactionDate, from, to) {
			continue
		}
		if filter.SellerPartyID != "" && tx.SellerPartyID != filter.SellerPartyID {
			continue
		}
		if filter.GSTFilter == "with" && !tx.WithGST {
			continue
		}
		if filter.GSTFilter == "without" && tx.WithGST {
			continue
		}
		out = append(out, domain.SaleSummary{
			ID:                       tx.ID,
			TransactionDate:          tx.TransactionDate,
			BillNumber:               tx.BillNumber,
			PartyName:                tx.PartyName,
			TotalAmountPaise:         tx.TotalAmountPaise,
			PaidAmountPaise:          tx.PaidAmountPaise,
			BalanceAmountPaise:       tx.BalanceAmountPaise,
			PaymentStatus:            tx.PaymentStatus,
			WithGST:                  tx.WithGST,
			PreviousBalancePaidPaise: tx.PreviousBalancePaidPaise,
		})
	}
	slices.SortFunc(out, func(a, b domain.SaleSummary) int {
		return b.TransactionDate.Compare(a.TransactionDate)
	})
	return out, nil
}

func (s *Store) GetSalesProfit(_ context.Context, filter domain.SaleListFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to, err := parseDateRange(filter.FromDate, filter.ToDate)
	if err != nil {
		return 0, err
	}

	var profit int64
	for _, tx := range s.salesByID {
		if !inRange(tx.TransactionDate, from, to) {
			continue
		}
		if filter.SellerPartyID != "" && tx.SellerPartyID != filter.SellerPartyID {
			continue
		}
		if filter.GSTFilter == "with" && !tx.WithGST {
			continue
		}
		if filter.GSTFilter == "without" && tx.WithGST {
			continue
		}
		for _, ln := range tx.Lines {
			var purchaseRate int64
			if it, ok := s.items[ln.ItemID]; ok {
				purchaseRate = it.PurchaseRatePaise
			}
			profit += (ln.SaleRatePaise - purchaseRate) * int64(ln.Quantity)
		}
	}
	return profit, nil
}

func (s *Store) CreateReturn(_ context.Context, posting domain.ReturnPosting) ([]domain.ReturnTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	party, ok := s.parties[posting.PartyID]
	if !ok || party.PartyType != posting.PartyType {
		return nil, fmt.Errorf("%w: %s party %s", store.ErrNotFound, posting.PartyType, posting.PartyID)
	}
	for _, ln := range posting.Lines {
		it, ok := s.items[ln.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item %s", store.ErrNotFound, ln.ItemID)
		}
		// A return to a buyer (supplier) ships stock out, so it needs stock
		// on hand. A return from a seller (customer) only adds stock.
		if posting.PartyType == domain.PartyTypeBuyer && it.Quantity < ln.Quantity {
			return nil, fmt.Errorf("%w for %q: have %d, need %d", store.ErrInsufficientStock, it.ProductName, it.Quantity, ln.Quantity)
		}
	}

	now := time.Now().UTC()
	out := make([]domain.ReturnTransaction, 0, len(posting.Lines))
	for _, ln := range posting.Lines {
		it := s.items[ln.ItemID]
		if posting.PartyType == domain.PartyTypeBuyer {
			it.Quantity -= ln.Quantity
		} else {
			it.Quantity += ln.Quantity
		}
		it.UpdatedAt = now
		s.items[ln.ItemID] = it
		s.reconcileReorderLocked(it)

		rec := ln
		rec.ID = xid.New("ret")
		rec.PartyType = posting.PartyType
		rec.PartyID = posting.PartyID
		rec.PartyName = party.PartyName
		rec.ProductName = it.ProductName
		rec.Brand = it.Brand
		rec.Reason = posting.Reason
		rec.ReturnDate = now
		s.returns = append(s.returns, rec)
		out = append(out, rec)
	}

	party.BalanceAmountPaise += posting.LedgerDeltaPaise
	s.parties[party.ID] = party
	return out, nil
}

func (s *Store) ListReturns(_ context.Context, filter domain.ReturnListFilter) ([]domain.ReturnTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to, err := parseDateRange(filter.FromDate, filter.ToDate)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ReturnTransaction, 0, len(s.returns))
	for _, r := range s.returns {
		if !inRange(r.ReturnDate, from, to) {
			continue
		}
		if filter.PartyType != "" && r.PartyType != filter.PartyType {
			continue
		}
		if filter.PartyID != "" && r.PartyID != filter.PartyID {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.ReturnTransaction) int {
		return b.ReturnDate.Compare(a.ReturnDate)
	})
	return out, nil
}

func (s *Store) CreatePurchase(_ context.Context, buyerPartyID string, lines []domain.PurchaseLineInput, actorID string) ([]domain.PurchaseTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	party, ok := s.parties[buyerPartyID]
	if !ok || party.PartyType != domain.PartyTypeBuyer {
		return nil, fmt.Errorf("%w: buyer party %s", store.ErrNotFound, buyerPartyID)
	}
	for _, ln := range lines {
		if ln.ItemID != "" {
			if _, ok := s.items[ln.ItemID]; !ok {
				return nil, fmt.Errorf("%w: item %s", store.ErrNotFound, ln.ItemID)
			}
		}
	}

	now := time.Now().UTC()
	out := make([]domain.PurchaseTransaction, 0, len(lines))
	for _, ln := range lines {
		var it domain.Item
		if ln.ItemID != "" {
			it = s.items[ln.ItemID]
			it.Quantity += ln.Quantity
			if ln.PurchaseRatePaise > 0 {
				it.PurchaseRatePaise = ln.PurchaseRatePaise
			}
			if ln.SaleRatePaise > 0 {
				it.SaleRatePaise = ln.SaleRatePaise
			}
			it.UpdatedBy = actorID
			it.UpdatedAt = now
		} else {
			taxRate := 18
			if ln.TaxRate != nil {
				taxRate = *ln.TaxRate
			}
			it = domain.Item{
				ID:                xid.New("item"),
				ProductName:       strings.TrimSpace(ln.ProductName),
				ProductCode:       strings.TrimSpace(ln.ProductCode),
				Brand:             strings.TrimSpace(ln.Brand),
				HSNNumber:         strings.TrimSpace(ln.HSNNumber),
				TaxRate:           taxRate,
				SaleRatePaise:     ln.SaleRatePaise,
				PurchaseRatePaise: ln.PurchaseRatePaise,
				Quantity:          ln.Quantity,
				AlertQuantity:     ln.AlertQuantity,
				RackNumber:        strings.TrimSpace(ln.RackNumber),
				Remarks:           strings.TrimSpace(ln.Remarks),
				CreatedBy:         actorID,
				UpdatedBy:         actorID,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
		}
		s.items[it.ID] = it
		s.reconcileReorderLocked(it)

		s.itemHistory[it.ID] = append(s.itemHistory[it.ID], domain.ItemHistory{
			ID:                xid.New("hist"),
			ItemID:            it.ID,
			ProductName:       it.ProductName,
			ProductCode:       it.ProductCode,
			Brand:             it.Brand,
			HSNNumber:         it.HSNNumber,
			TaxRate:           it.TaxRate,
			SaleRatePaise:     it.SaleRatePaise,
			PurchaseRatePaise: it.PurchaseRatePaise,
			Quantity:          it.Quantity,
			AlertQuantity:     it.AlertQuantity,
			ActionType:        "purchase",
			ChangedBy:         actorID,
			ChangedAt:         now,
		})

		rec := domain.PurchaseTransaction{
			ID:                xid.New("pur"),
			BuyerPartyID:      buyerPartyID,
			PartyName:         party.PartyName,
			ItemID:            it.ID,
			ProductName:       it.ProductName,
			Quantity:          ln.Quantity,
			PurchaseRatePaise: it.PurchaseRatePaise,
			TotalAmountPaise:  it.PurchaseRatePaise * int64(ln.Quantity),
			TransactionDate:   now,
		}
		s.purchases = append(s.purchases, rec)
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) ListPurchases(_ context.Context, filter domain.PurchaseListFilter) ([]domain.PurchaseTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to, err := parseDateRange(filter.FromDate, filter.ToDate)
	if err != nil {
		return nil, err
	}

	out := make([]domain.PurchaseTransaction, 0, len(s.purchases))
	for _, p := range s.purchases {
		if !inRange(p.TransactionDate, from, to) {
			continue
		}
		if filter.BuyerPartyID != "" && p.BuyerPartyID != filter.BuyerPartyID {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.PurchaseTransaction) int {
		return b.TransactionDate.Compare(a.TransactionDate)
	})
	return out, nil
}

// reconcileReorderLocked keeps the pending order sheet consistent with an
// item's current quantity. Callers must hold the write lock.
func (s *Store) reconcileReorderLocked(it domain.Item) {
	entryID, hasPending := s.pendingByItem[it.ID]
	if it.Quantity > it.AlertQuantity || it.AlertQuantity <= 0 {
		if hasPending {
			delete(s.reorderByID, entryID)
			delete(s.pendingByItem, it.ID)
		}
		return
	}

	required := it.AlertQuantity - it.Quantity
	if required < 1 {
		required = 1
	}
	if hasPending {
		entry := s.reorderByID[entryID]
		entry.RequiredQuantity = required
		entry.CurrentQuantity = it.Quantity
		s.reorderByID[entryID] = entry
		return
	}
	entry := domain.ReorderEntry{
		ID:               xid.New("reorder"),
		ItemID:           it.ID,
		RequiredQuantity: required,
		CurrentQuantity:  it.Quantity,
		Status:           domain.ReorderStatusPending,
		CreatedAt:        time.Now().UTC(),
	}
	s.reorderByID[entry.ID] = entry
	s.pendingByItem[it.ID] = entry.ID
}

func (s *Store) ListReorderEntries(_ context.Context, status string) ([]domain.ReorderEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Reads reconcile the sheet against live quantities so a row is never
	// stale relative to the catalog.
	for _, it := range s.items {
		s.reconcileReorderLocked(it)
	}

	out := make([]domain.ReorderEntry, 0, len(s.reorderByID))
	for _, entry := range s.reorderByID {
		if status != "" && entry.Status != status {
			continue
		}
		if it, ok := s.items[entry.ItemID]; ok {
			entry.ProductName = it.ProductName
			entry.ProductCode = it.ProductCode
			entry.Brand = it.Brand
			entry.RackNumber = it.RackNumber
			entry.SaleRatePaise = it.SaleRatePaise
		}
		out = append(out, entry)
	}
	slices.SortFunc(out, func(a, b domain.ReorderEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Store) CompleteReorderEntry(_ context.Context, id string) (*domain.ReorderEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.reorderByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if entry.Status == domain.ReorderStatusCompleted {
		return nil, fmt.Errorf("%w: order entry already completed", store.ErrConflict)
	}
	entry.Status = domain.ReorderStatusCompleted
	s.reorderByID[id] = entry
	delete(s.pendingByItem, entry.ItemID)
	if it, ok := s.items[entry.ItemID]; ok {
		entry.ProductName = it.ProductName
		entry.ProductCode = it.ProductCode
		entry.Brand = it.Brand
	}
	return &entry, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByID[user.UserID]; exists {
		return fmt.Errorf("%w: user %s already exists", store.ErrConflict, user.UserID)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.UserID] = user
	return nil
}

func (s *Store) GetUserByID(_ context.Context, userID string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, len(s.auditLogs))
	copy(out, s.auditLogs)
	slices.SortFunc(out, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func parseDateRange(fromDate, toDate string) (time.Time, time.Time, error) {
	var from, to time.Time
	if fromDate != "" {
		t, err := time.Parse("2006-01-02", fromDate)
		if err != nil {
			return from, to, fmt.Errorf("%w: from_date %q", store.ErrInvalidInput, fromDate)
		}
		from = t
	}
	if toDate != "" {
		t, err := time.Parse("2006-01-02", toDate)
		if err != nil {
			return from, to, fmt.Errorf("%w: to_date %q", store.ErrInvalidInput, toDate)
		}
		to = t.Add(24*time.Hour - time.Nanosecond)
	}
	return from, to, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
