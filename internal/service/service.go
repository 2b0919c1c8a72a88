package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stockledger/backend/internal/cache"
	"stockledger/backend/internal/domain"
	"stockledger/backend/internal/pricing"
	"stockledger/backend/internal/store"
	"stockledger/backend/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

const reportCacheTTL = 60 * time.Second

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	reports cache.ReportCache
	log     zerolog.Logger
}

func New(repo store.Repository, reports cache.ReportCache, logger zerolog.Logger) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	return &Service{
		repo:    repo,
		reports: reports,
		log:     logger,
	}
}

// roleRank orders the three roles so "at least admin" checks stay readable.
func roleRank(role string) int {
	switch role {
	case domain.RoleSuperAdmin:
		return 3
	case domain.RoleAdmin:
		return 2
	case domain.RoleSales:
		return 1
	default:
		return 0
	}
}

func requireRole(ctx context.Context, minimum string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: no actor", ErrForbidden)
	}
	if roleRank(actor.Role) < roleRank(minimum) {
		return actor, fmt.Errorf("%w: %s role required", ErrForbidden, minimum)
	}
	return actor, nil
}

func isSuperAdmin(ctx context.Context) bool {
	actor, ok := ActorFromContext(ctx)
	return ok && actor.Role == domain.RoleSuperAdmin
}

// sanitizeItem hides cost data from anyone below super_admin.
func sanitizeItem(ctx context.Context, it domain.Item) domain.Item {
	if !isSuperAdmin(ctx) {
		it.PurchaseRatePaise = 0
	}
	return it
}

func (s *Service) ListItems(ctx context.Context, filter domain.ItemListFilter) (domain.ItemPage, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return domain.ItemPage{}, err
	}
	page, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return domain.ItemPage{}, err
	}
	for i := range page.Items {
		page.Items[i] = sanitizeItem(ctx, page.Items[i])
	}
	return *page, nil
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.Item, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return domain.Item{}, err
	}
	it, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}
	return sanitizeItem(ctx, *it), nil
}

// SuggestItems backs the catalog autocomplete. Queries shorter than two
// characters return nothing rather than the whole catalog.
func (s *Service) SuggestItems(ctx context.Context, query string) ([]domain.Item, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return []domain.Item{}, nil
	}
	page, err := s.repo.ListItems(ctx, domain.ItemListFilter{Page: 1, Limit: 10, Search: query})
	if err != nil {
		return nil, err
	}
	items := page.Items
	for i := range items {
		items[i] = sanitizeItem(ctx, items[i])
	}
	return items, nil
}

func (s *Service) SearchItems(ctx context.Context, req domain.ItemSearchRequest) ([]domain.Item, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return nil, err
	}
	items, err := s.repo.SearchItems(ctx, req)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = sanitizeItem(ctx, items[i])
	}
	return items, nil
}

func (s *Service) TotalStockValue(ctx context.Context) (int64, error) {
	if _, err := requireRole(ctx, domain.RoleSuperAdmin); err != nil {
		return 0, err
	}
	return s.repo.TotalStockValue(ctx)
}

func validateItemFields(it domain.Item) error {
	if it.ProductName == "" {
		return fmt.Errorf("%w: product_name is required", store.ErrInvalidInput)
	}
	if len(it.ProductName) > 255 {
		return fmt.Errorf("%w: product_name exceeds 255 characters", store.ErrInvalidInput)
	}
	if len(it.Remarks) > 200 {
		return fmt.Errorf("%w: remarks exceed 200 characters", store.ErrInvalidInput)
	}
	if !domain.IsValidTaxRate(it.TaxRate) {
		return fmt.Errorf("%w: tax_rate %d not in {0,5,18,28}", store.ErrInvalidInput, it.TaxRate)
	}
	if it.SaleRatePaise <= 0 {
		return fmt.Errorf("%w: sale_rate must be positive", store.ErrInvalidInput)
	}
	if it.PurchaseRatePaise < 0 {
		return fmt.Errorf("%w: purchase_rate cannot be negative", store.ErrInvalidInput)
	}
	if it.SaleRatePaise < it.PurchaseRatePaise {
		return fmt.Errorf("%w: sale_rate below purchase_rate", store.ErrInvalidInput)
	}
	if it.Quantity < 0 || it.AlertQuantity < 0 {
		return fmt.Errorf("%w: quantities cannot be negative", store.ErrInvalidInput)
	}
	return nil
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.Item{}, err
	}

	taxRate := 18
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	item := domain.Item{
		ProductName:       strings.TrimSpace(req.ProductName),
		ProductCode:       strings.TrimSpace(req.ProductCode),
		Brand:             strings.TrimSpace(req.Brand),
		HSNNumber:         strings.TrimSpace(req.HSNNumber),
		TaxRate:           taxRate,
		SaleRatePaise:     req.SaleRatePaise,
		PurchaseRatePaise: req.PurchaseRatePaise,
		AlertQuantity:     req.AlertQuantity,
		RackNumber:        strings.TrimSpace(req.RackNumber),
		Remarks:           strings.TrimSpace(req.Remarks),
		ImageRef:          strings.TrimSpace(req.ImageRef),
		CreatedBy:         actor.UserID,
		UpdatedBy:         actor.UserID,
	}
	if err := validateItemFields(item); err != nil {
		return domain.Item{}, err
	}

	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return domain.Item{}, err
	}
	s.appendItemHistory(ctx, *created, "create", actor.UserID)
	s.logAudit(ctx, "item_create", "item", created.ID, fmt.Sprintf("name=%s,sale_rate=%d", created.ProductName, created.SaleRatePaise))
	return sanitizeItem(ctx, *created), nil
}

func (s *Service) UpdateItem(ctx context.Context, id string, req domain.ItemUpdateRequest) (domain.Item, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.Item{}, err
	}

	existing, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}

	updated := *existing
	if req.ProductName != nil {
		updated.ProductName = strings.TrimSpace(*req.ProductName)
	}
	if req.ProductCode != nil {
		updated.ProductCode = strings.TrimSpace(*req.ProductCode)
	}
	if req.Brand != nil {
		updated.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.HSNNumber != nil {
		updated.HSNNumber = strings.TrimSpace(*req.HSNNumber)
	}
	if req.TaxRate != nil {
		updated.TaxRate = *req.TaxRate
	}
	if req.SaleRatePaise != nil {
		updated.SaleRatePaise = *req.SaleRatePaise
	}
	if req.PurchaseRatePaise != nil && *req.PurchaseRatePaise != existing.PurchaseRatePaise {
		if actor.Role != domain.RoleSuperAdmin {
			return domain.Item{}, fmt.Errorf("%w: purchase_rate changes require super_admin", ErrForbidden)
		}
		updated.PurchaseRatePaise = *req.PurchaseRatePaise
	}
	if req.Quantity != nil {
		updated.Quantity = *req.Quantity
	}
	if req.AlertQuantity != nil {
		updated.AlertQuantity = *req.AlertQuantity
	}
	if req.RackNumber != nil {
		updated.RackNumber = strings.TrimSpace(*req.RackNumber)
	}
	if req.Remarks != nil {
		updated.Remarks = strings.TrimSpace(*req.Remarks)
	}
	if req.ImageRef != nil {
		updated.ImageRef = strings.TrimSpace(*req.ImageRef)
	}
	updated.UpdatedBy = actor.UserID
	if err := validateItemFields(updated); err != nil {
		return domain.Item{}, err
	}

	saved, err := s.repo.UpdateItem(ctx, updated)
	if err != nil {
		return domain.Item{}, err
	}
	s.appendItemHistory(ctx, *saved, "update", actor.UserID)
	s.logAudit(ctx, "item_update", "item", saved.ID, fmt.Sprintf("name=%s,qty=%d", saved.ProductName, saved.Quantity))
	return sanitizeItem(ctx, *saved), nil
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, domain.RoleSuperAdmin)
	if err != nil {
		return err
	}
	existing, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.appendItemHistory(ctx, *existing, "delete", actor.UserID)
	s.logAudit(ctx, "item_delete", "item", id, fmt.Sprintf("name=%s", existing.ProductName))
	return nil
}

func (s *Service) ListItemHistory(ctx context.Context, itemID string, limit int) ([]domain.ItemHistory, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListItemHistory(ctx, itemID, limit)
	if err != nil {
		return nil, err
	}
	if !isSuperAdmin(ctx) {
		for i := range entries {
			entries[i].PurchaseRatePaise = 0
		}
	}
	return entries, nil
}

func (s *Service) appendItemHistory(ctx context.Context, it domain.Item, action, actorID string) {
	err := s.repo.CreateItemHistory(ctx, domain.ItemHistory{
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
		ActionType:        action,
		ChangedBy:         actorID,
		ChangedAt:         time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("item_id", it.ID).Str("action", action).Msg("failed to append item history")
	}
}

func (s *Service) ListParties(ctx context.Context, partyType string) ([]domain.Party, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return nil, err
	}
	if partyType != domain.PartyTypeBuyer && partyType != domain.PartyTypeSeller {
		return nil, fmt.Errorf("%w: unknown party type %q", store.ErrInvalidInput, partyType)
	}
	return s.repo.ListParties(ctx, partyType)
}

func (s *Service) GetParty(ctx context.Context, id string) (domain.Party, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return domain.Party{}, err
	}
	p, err := s.repo.GetPartyByID(ctx, id)
	if err != nil {
		return domain.Party{}, err
	}
	return *p, nil
}

func (s *Service) CreateParty(ctx context.Context, partyType string, req domain.PartyCreateRequest) (domain.Party, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Party{}, err
	}
	if partyType != domain.PartyTypeBuyer && partyType != domain.PartyTypeSeller {
		return domain.Party{}, fmt.Errorf("%w: unknown party type %q", store.ErrInvalidInput, partyType)
	}
	name := strings.TrimSpace(req.PartyName)
	if name == "" {
		return domain.Party{}, fmt.Errorf("%w: party_name is required", store.ErrInvalidInput)
	}
	if req.OpeningBalancePaise < 0 {
		return domain.Party{}, fmt.Errorf("%w: opening balance cannot be negative", store.ErrInvalidInput)
	}

	party := domain.Party{
		PartyType:           partyType,
		PartyName:           name,
		MobileNumber:        strings.TrimSpace(req.MobileNumber),
		Email:               strings.TrimSpace(req.Email),
		Address:             strings.TrimSpace(req.Address),
		GSTNumber:           strings.ToUpper(strings.TrimSpace(req.GSTNumber)),
		OpeningBalancePaise: req.OpeningBalancePaise,
		BalanceAmountPaise:  req.OpeningBalancePaise,
	}
	created, err := s.repo.CreateParty(ctx, party)
	if err != nil {
		return domain.Party{}, err
	}
	s.logAudit(ctx, "party_create", "party", created.ID, fmt.Sprintf("type=%s,name=%s", created.PartyType, created.PartyName))
	return *created, nil
}

func (s *Service) UpdateParty(ctx context.Context, id string, req domain.PartyUpdateRequest) (domain.Party, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Party{}, err
	}
	existing, err := s.repo.GetPartyByID(ctx, id)
	if err != nil {
		return domain.Party{}, err
	}

	updated := *existing
	if req.PartyName != nil {
		name := strings.TrimSpace(*req.PartyName)
		if name == "" {
			return domain.Party{}, fmt.Errorf("%w: party_name is required", store.ErrInvalidInput)
		}
		updated.PartyName = name
	}
	if req.MobileNumber != nil {
		updated.MobileNumber = strings.TrimSpace(*req.MobileNumber)
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.GSTNumber != nil {
		updated.GSTNumber = strings.ToUpper(strings.TrimSpace(*req.GSTNumber))
	}

	saved, err := s.repo.UpdateParty(ctx, updated)
	if err != nil {
		return domain.Party{}, err
	}
	s.logAudit(ctx, "party_update", "party", saved.ID, fmt.Sprintf("name=%s", saved.PartyName))
	return *saved, nil
}

func (s *Service) DeleteParty(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, domain.RoleSuperAdmin); err != nil {
		return err
	}
	existing, err := s.repo.GetPartyByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteParty(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "party_delete", "party", id, fmt.Sprintf("type=%s,name=%s", existing.PartyType, existing.PartyName))
	return nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleTransaction, error) {
	actor, err := requireRole(ctx, domain.RoleSales)
	if err != nil {
		return domain.SaleTransaction{}, err
	}
	if strings.TrimSpace(req.SellerPartyID) == "" {
		return domain.SaleTransaction{}, fmt.Errorf("%w: seller_party_id is required", store.ErrInvalidInput)
	}
	if len(req.Lines) == 0 {
		return domain.SaleTransaction{}, fmt.Errorf("%w: sale needs at least one line", store.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(req.Lines))
	for _, ln := range req.Lines {
		if ln.ItemID == "" {
			return domain.SaleTransaction{}, fmt.Errorf("%w: line item_id is required", store.ErrInvalidInput)
		}
		if _, dup := seen[ln.ItemID]; dup {
			return domain.SaleTransaction{}, fmt.Errorf("%w: item %s appears more than once", store.ErrInvalidInput, ln.ItemID)
		}
		seen[ln.ItemID] = struct{}{}
	}

	ids := make([]string, 0, len(req.Lines))
	for _, ln := range req.Lines {
		ids = append(ids, ln.ItemID)
	}
	items, err := s.repo.GetItemsByIDs(ctx, ids)
	if err != nil {
		return domain.SaleTransaction{}, err
	}
	for _, id := range ids {
		if _, ok := items[id]; !ok {
			return domain.SaleTransaction{}, fmt.Errorf("%w: item %s", store.ErrNotFound, id)
		}
	}

	priceLines := make([]pricing.Line, 0, len(req.Lines))
	for _, ln := range req.Lines {
		priceLines = append(priceLines, pricing.Line{
			Quantity:        ln.Quantity,
			RatePaise:       ln.SaleRatePaise,
			TaxRate:         items[ln.ItemID].TaxRate,
			DiscountPaise:   ln.DiscountPaise,
			DiscountPercent: ln.DiscountPercent,
		})
	}
	breakdown, err := pricing.ComputeSale(priceLines, req.WithGST)
	if err != nil {
		return domain.SaleTransaction{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	settlement, err := pricing.Settle(breakdown.AggregatePaise, req.PreviousBalancePaidPaise, req.PaidAmountPaise, req.PaymentStatus)
	if err != nil {
		return domain.SaleTransaction{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	lines := make([]domain.SaleLine, 0, len(req.Lines))
	for i, ln := range req.Lines {
		lb := breakdown.Lines[i]
		taxRate := 0
		if req.WithGST {
			taxRate = items[ln.ItemID].TaxRate
		}
		lines = append(lines, domain.SaleLine{
			ItemID:        ln.ItemID,
			Quantity:      ln.Quantity,
			SaleRatePaise: ln.SaleRatePaise,
			TaxRate:       taxRate,
			DiscountPaise: lb.DiscountPaise,
			TotalPaise:    lb.TotalPaise,
		})
	}

	tx := domain.SaleTransaction{
		ID:                       xid.New("sale"),
		BillNumber:               xid.BillNumber(),
		SellerPartyID:            req.SellerPartyID,
		SubtotalPaise:            breakdown.SubtotalPaise,
		TaxAmountPaise:           breakdown.TaxAmountPaise,
		DiscountPaise:            breakdown.DiscountPaise,
		TotalAmountPaise:         settlement.GrandTotalPaise,
		PaidAmountPaise:          settlement.PaidPaise,
		BalanceAmountPaise:       settlement.BalancePaise,
		PreviousBalancePaidPaise: req.PreviousBalancePaidPaise,
		PaymentStatus:            req.PaymentStatus,
		WithGST:                  req.WithGST,
		CreatedBy:                actor.UserID,
		Lines:                    lines,
	}

	created, err := s.repo.CreateSale(ctx, tx, settlement.LedgerDeltaPaise)
	if err != nil {
		return domain.SaleTransaction{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "sale_create", "sale", created.ID,
		fmt.Sprintf("bill=%s,total=%d,paid=%d,lines=%d", created.BillNumber, created.TotalAmountPaise, created.PaidAmountPaise, len(created.Lines)))
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.SaleTransaction, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return domain.SaleTransaction{}, err
	}
	tx, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.SaleTransaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.SaleSummary, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnCreateRequest) ([]domain.ReturnTransaction, error) {
	_, err := requireRole(ctx, domain.RoleSales)
	if err != nil {
		return nil, err
	}

	sellerID := strings.TrimSpace(req.SellerPartyID)
	buyerID := strings.TrimSpace(req.BuyerPartyID)
	if (sellerID == "") == (buyerID == "") {
		return nil, fmt.Errorf("%w: exactly one of seller_party_id or buyer_party_id is required", store.ErrInvalidInput)
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: return needs at least one line", store.ErrInvalidInput)
	}

	partyType := domain.PartyTypeSeller
	partyID := sellerID
	if buyerID != "" {
		partyType = domain.PartyTypeBuyer
		partyID = buyerID
	}

	ids := make([]string, 0, len(req.Lines))
	for _, ln := range req.Lines {
		if ln.ItemID == "" {
			return nil, fmt.Errorf("%w: line item_id is required", store.ErrInvalidInput)
		}
		if ln.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line quantity must be positive", store.ErrInvalidInput)
		}
		if ln.ReturnAmountPaise != nil && *ln.ReturnAmountPaise < 0 {
			return nil, fmt.Errorf("%w: return amount cannot be negative", store.ErrInvalidInput)
		}
		ids = append(ids, ln.ItemID)
	}
	items, err := s.repo.GetItemsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := items[id]; !ok {
			return nil, fmt.Errorf("%w: item %s", store.ErrNotFound, id)
		}
	}

	var totalReturnPaise int64
	lines := make([]domain.ReturnTransaction, 0, len(req.Lines))
	for _, ln := range req.Lines {
		var amount int64
		if partyType == domain.PartyTypeSeller {
			// Seller returns default to the item's current sale rate.
			amount = items[ln.ItemID].SaleRatePaise * int64(ln.Quantity)
			if ln.ReturnAmountPaise != nil {
				amount = *ln.ReturnAmountPaise
			}
		}
		totalReturnPaise += amount
		lines = append(lines, domain.ReturnTransaction{
			ItemID:            ln.ItemID,
			Quantity:          ln.Quantity,
			ReturnAmountPaise: amount,
		})
	}

	var ledgerDelta int64
	if partyType == domain.PartyTypeSeller && req.AdjustLedger {
		ledgerDelta = -totalReturnPaise
	}

	created, err := s.repo.CreateReturn(ctx, domain.ReturnPosting{
		PartyType:        partyType,
		PartyID:          partyID,
		Reason:           strings.TrimSpace(req.Reason),
		LedgerDeltaPaise: ledgerDelta,
		Lines:            lines,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "return_create", "return", partyID,
		fmt.Sprintf("party_type=%s,lines=%d,amount=%d,adjusted=%t", partyType, len(created), totalReturnPaise, ledgerDelta != 0))
	return created, nil
}

func (s *Service) ListReturns(ctx context.Context, filter domain.ReturnListFilter) ([]domain.ReturnTransaction, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return nil, err
	}
	return s.repo.ListReturns(ctx, filter)
}

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) ([]domain.PurchaseTransaction, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.BuyerPartyID) == "" {
		return nil, fmt.Errorf("%w: buyer_party_id is required", store.ErrInvalidInput)
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: purchase needs at least one line", store.ErrInvalidInput)
	}

	existingIDs := make([]string, 0, len(req.Lines))
	for i, ln := range req.Lines {
		if ln.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d quantity must be positive", store.ErrInvalidInput, i+1)
		}
		if ln.ItemID != "" {
			existingIDs = append(existingIDs, ln.ItemID)
			continue
		}
		if strings.TrimSpace(ln.ProductName) == "" {
			return nil, fmt.Errorf("%w: line %d needs item_id or product_name", store.ErrInvalidInput, i+1)
		}
		if ln.SaleRatePaise <= 0 || ln.PurchaseRatePaise <= 0 {
			return nil, fmt.Errorf("%w: line %d rates must be positive for a new item", store.ErrInvalidInput, i+1)
		}
		if ln.SaleRatePaise < ln.PurchaseRatePaise {
			return nil, fmt.Errorf("%w: line %d sale_rate below purchase_rate", store.ErrInvalidInput, i+1)
		}
		if ln.TaxRate != nil && !domain.IsValidTaxRate(*ln.TaxRate) {
			return nil, fmt.Errorf("%w: line %d tax_rate %d not in {0,5,18,28}", store.ErrInvalidInput, i+1, *ln.TaxRate)
		}
	}

	// A line without an id that names a product already in the catalog
	// restocks that item rather than creating a duplicate.
	for i, ln := range req.Lines {
		if ln.ItemID != "" {
			continue
		}
		match, err := s.repo.FindItemByIdentity(ctx, ln.ProductName, ln.ProductCode, ln.Brand)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		req.Lines[i].ItemID = match.ID
	}

	if len(existingIDs) > 0 {
		items, err := s.repo.GetItemsByIDs(ctx, existingIDs)
		if err != nil {
			return nil, err
		}
		for i, ln := range req.Lines {
			if ln.ItemID == "" {
				continue
			}
			it, ok := items[ln.ItemID]
			if !ok {
				return nil, fmt.Errorf("%w: item %s", store.ErrNotFound, ln.ItemID)
			}
			saleRate := it.SaleRatePaise
			purchaseRate := it.PurchaseRatePaise
			if ln.SaleRatePaise > 0 {
				saleRate = ln.SaleRatePaise
			}
			if ln.PurchaseRatePaise > 0 {
				purchaseRate = ln.PurchaseRatePaise
			}
			if saleRate < purchaseRate {
				return nil, fmt.Errorf("%w: line %d sale_rate below purchase_rate", store.ErrInvalidInput, i+1)
			}
		}
	}

	created, err := s.repo.CreatePurchase(ctx, req.BuyerPartyID, req.Lines, actor.UserID)
	if err != nil {
		return nil, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "purchase_create", "purchase", req.BuyerPartyID, fmt.Sprintf("lines=%d", len(created)))
	return created, nil
}

func (s *Service) ListPurchases(ctx context.Context, filter domain.PurchaseListFilter) ([]domain.PurchaseTransaction, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return nil, err
	}
	return s.repo.ListPurchases(ctx, filter)
}

func (s *Service) ListReorderEntries(ctx context.Context, status string) ([]domain.ReorderEntry, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return nil, err
	}
	switch status {
	case "", domain.ReorderStatusPending, domain.ReorderStatusCompleted:
	default:
		return nil, fmt.Errorf("%w: unknown order status %q", store.ErrInvalidInput, status)
	}
	return s.repo.ListReorderEntries(ctx, status)
}

func (s *Service) CompleteReorderEntry(ctx context.Context, id string) (domain.ReorderEntry, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.ReorderEntry{}, err
	}
	entry, err := s.repo.CompleteReorderEntry(ctx, id)
	if err != nil {
		return domain.ReorderEntry{}, err
	}
	s.logAudit(ctx, "order_complete", "order_entry", entry.ID, fmt.Sprintf("item=%s", entry.ItemID))
	return *entry, nil
}

// SalesReport assembles transactions and totals for a filter. The summary is
// served from Redis for non-super_admin callers; super_admin responses carry
// the profit total and always hit the database.
func (s *Service) SalesReport(ctx context.Context, filter domain.SaleListFilter) (domain.SalesReport, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return domain.SalesReport{}, err
	}
	switch filter.GSTFilter {
	case "", "with", "without":
	default:
		return domain.SalesReport{}, fmt.Errorf("%w: gst filter must be with or without", store.ErrInvalidInput)
	}

	withProfit := isSuperAdmin(ctx)
	cacheKey := reportCacheKey(filter)
	if !withProfit {
		if cached, ok, err := s.reports.Get(ctx, cacheKey); err != nil {
			s.log.Warn().Err(err).Msg("report cache read failed")
		} else if ok {
			return *cached, nil
		}
	}

	transactions, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{Transactions: transactions}
	for _, tx := range transactions {
		report.Summary.TotalSalesPaise += tx.TotalAmountPaise
		report.Summary.TotalPaidPaise += tx.PaidAmountPaise
		report.Summary.TotalBalancePaise += tx.BalanceAmountPaise
		if tx.WithGST {
			report.Summary.WithGSTCount++
		} else {
			report.Summary.WithoutGSTCount++
		}
	}
	report.Summary.TotalTransactions = len(transactions)

	if withProfit {
		profit, err := s.repo.GetSalesProfit(ctx, filter)
		if err != nil {
			return domain.SalesReport{}, err
		}
		report.Summary.TotalProfitPaise = &profit
		return report, nil
	}

	if err := s.reports.Set(ctx, cacheKey, &report, reportCacheTTL); err != nil {
		s.log.Warn().Err(err).Msg("report cache write failed")
	}
	return report, nil
}

func reportCacheKey(filter domain.SaleListFilter) string {
	parts := []string{
		"from=" + filter.FromDate,
		"to=" + filter.ToDate,
		"party=" + filter.SellerPartyID,
		"gst=" + filter.GSTFilter,
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Invalidate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("report cache invalidation failed")
	}
}

func (s *Service) ReturnReport(ctx context.Context, filter domain.ReturnListFilter) (domain.ReturnReport, error) {
	if _, err := requireRole(ctx, domain.RoleSales); err != nil {
		return domain.ReturnReport{}, err
	}
	transactions, err := s.repo.ListReturns(ctx, filter)
	if err != nil {
		return domain.ReturnReport{}, err
	}

	report := domain.ReturnReport{Transactions: transactions}
	for _, r := range transactions {
		report.Summary.TotalReturnsPaise += r.ReturnAmountPaise
	}
	report.Summary.TotalTransactions = len(transactions)
	return report, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		s.log.Warn().Err(err).Str("action", action).Str("entity", entityType+"/"+entityID).Msg("failed to write audit log")
	}
}
