package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stockledger/backend/internal/domain"
	"stockledger/backend/internal/store"
	"stockledger/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const itemColumns = `
	id, product_name, COALESCE(product_code,''), COALESCE(brand,''), COALESCE(hsn_number,''),
	tax_rate, sale_rate_paise, purchase_rate_paise, quantity, alert_quantity,
	COALESCE(rack_number,''), COALESCE(remarks,''), COALESCE(image_ref,''),
	COALESCE(created_by,''), COALESCE(updated_by,''), created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*domain.Item, error) {
	var it domain.Item
	err := row.Scan(&it.ID, &it.ProductName, &it.ProductCode, &it.Brand, &it.HSNNumber,
		&it.TaxRate, &it.SaleRatePaise, &it.PurchaseRatePaise, &it.Quantity, &it.AlertQuantity,
		&it.RackNumber, &it.Remarks, &it.ImageRef,
		&it.CreatedBy, &it.UpdatedBy, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *Store) ListItems(ctx context.Context, filter domain.ItemListFilter) (*domain.ItemPage, error) {
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

	where := ""
	args := []any{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + search + "%"
		switch filter.SearchField {
		case "product_name":
			where = "WHERE product_name ILIKE $1"
		case "product_code":
			where = "WHERE product_code ILIKE $1"
		case "brand":
			where = "WHERE brand ILIKE $1"
		case "remarks":
			where = "WHERE remarks ILIKE $1"
		default:
			where = "WHERE (product_name ILIKE $1 OR product_code ILIKE $1 OR brand ILIKE $1)"
		}
		args = append(args, pattern)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items "+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM items
		%s
		ORDER BY lower(product_name)
		LIMIT $%d OFFSET $%d
	`, itemColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, limit)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.ItemPage{
		Items: items,
		Pagination: domain.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

func (s *Store) GetItemByID(ctx context.Context, id string) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return it, nil
}

func (s *Store) GetItemsByIDs(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	if len(ids) == 0 {
		return map[string]domain.Item{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Item, len(ids))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[it.ID] = *it
	}
	return out, rows.Err()
}

func (s *Store) FindItemByIdentity(ctx context.Context, name, code, brand string) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE lower(product_name) = lower($1)
		  AND lower(COALESCE(product_code,'')) = lower($2)
		  AND lower(COALESCE(brand,'')) = lower($3)
	`, strings.TrimSpace(name), strings.TrimSpace(code), strings.TrimSpace(brand))
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return it, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (
			id, product_name, product_code, brand, hsn_number, tax_rate,
			sale_rate_paise, purchase_rate_paise, quantity, alert_quantity,
			rack_number, remarks, image_ref, created_by, updated_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, item.ID, item.ProductName, nullIfEmpty(item.ProductCode), nullIfEmpty(item.Brand),
		nullIfEmpty(item.HSNNumber), item.TaxRate, item.SaleRatePaise, item.PurchaseRatePaise,
		item.Quantity, item.AlertQuantity, nullIfEmpty(item.RackNumber), nullIfEmpty(item.Remarks),
		nullIfEmpty(item.ImageRef), nullIfEmpty(item.CreatedBy), nullIfEmpty(item.UpdatedBy),
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: item %q already exists", store.ErrConflict, item.ProductName)
		}
		return nil, err
	}
	if err := s.reconcileOrderSheet(ctx, s.db, []string{item.ID}); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	item.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET product_name = $2, product_code = $3, brand = $4, hsn_number = $5, tax_rate = $6,
		    sale_rate_paise = $7, purchase_rate_paise = $8, quantity = $9, alert_quantity = $10,
		    rack_number = $11, remarks = $12, image_ref = $13, updated_by = $14, updated_at = $15
		WHERE id = $1
	`, item.ID, item.ProductName, nullIfEmpty(item.ProductCode), nullIfEmpty(item.Brand),
		nullIfEmpty(item.HSNNumber), item.TaxRate, item.SaleRatePaise, item.PurchaseRatePaise,
		item.Quantity, item.AlertQuantity, nullIfEmpty(item.RackNumber), nullIfEmpty(item.Remarks),
		nullIfEmpty(item.ImageRef), nullIfEmpty(item.UpdatedBy), item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: item %q already exists", store.ErrConflict, item.ProductName)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	if err := s.reconcileOrderSheet(ctx, s.db, []string{item.ID}); err != nil {
		return nil, err
	}
	return s.GetItemByID(ctx, item.ID)
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM order_sheet WHERE item_id = $1 AND status = 'pending'
	`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SearchItems(ctx context.Context, q domain.ItemSearchRequest) ([]domain.Item, error) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 4)
	add := func(column, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		args = append(args, "%"+value+"%")
		conditions = append(conditions, fmt.Sprintf("COALESCE(%s,'') ILIKE $%d", column, len(args)))
	}
	add("product_name", q.ProductName)
	add("brand", q.Brand)
	add("product_code", q.ProductCode)
	add("remarks", q.Remarks)

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY lower(product_name)"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 32)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *Store) TotalStockValue(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(purchase_rate_paise * quantity), 0) FROM items
	`).Scan(&total)
	return total, err
}

func (s *Store) CreateItemHistory(ctx context.Context, entry domain.ItemHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("hist")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items_history (
			id, item_id, product_name, product_code, brand, hsn_number, tax_rate,
			sale_rate_paise, purchase_rate_paise, quantity, alert_quantity,
			action_type, changed_by, changed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, entry.ID, entry.ItemID, entry.ProductName, nullIfEmpty(entry.ProductCode),
		nullIfEmpty(entry.Brand), nullIfEmpty(entry.HSNNumber), entry.TaxRate,
		entry.SaleRatePaise, entry.PurchaseRatePaise, entry.Quantity, entry.AlertQuantity,
		entry.ActionType, entry.ChangedBy, entry.ChangedAt)
	return err
}

func (s *Store) ListItemHistory(ctx context.Context, itemID string, limit int) ([]domain.ItemHistory, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, product_name, COALESCE(product_code,''), COALESCE(brand,''),
		       COALESCE(hsn_number,''), tax_rate, sale_rate_paise, purchase_rate_paise,
		       quantity, alert_quantity, action_type, changed_by, changed_at
		FROM items_history
		WHERE item_id = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ItemHistory, 0, 16)
	for rows.Next() {
		var e domain.ItemHistory
		if err := rows.Scan(&e.ID, &e.ItemID, &e.ProductName, &e.ProductCode, &e.Brand,
			&e.HSNNumber, &e.TaxRate, &e.SaleRatePaise, &e.PurchaseRatePaise,
			&e.Quantity, &e.AlertQuantity, &e.ActionType, &e.ChangedBy, &e.ChangedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const partyColumns = `
	id, party_type, party_name, COALESCE(mobile_number,''), COALESCE(email,''),
	COALESCE(address,''), COALESCE(gst_number,''), opening_balance_paise,
	balance_amount_paise, paid_amount_paise, created_at`

func scanParty(row interface{ Scan(...any) error }) (*domain.Party, error) {
	var p domain.Party
	err := row.Scan(&p.ID, &p.PartyType, &p.PartyName, &p.MobileNumber, &p.Email,
		&p.Address, &p.GSTNumber, &p.OpeningBalancePaise,
		&p.BalanceAmountPaise, &p.PaidAmountPaise, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListParties(ctx context.Context, partyType string) ([]domain.Party, error) {
	query := `SELECT ` + partyColumns + ` FROM parties`
	args := []any{}
	if partyType != "" {
		query += ` WHERE party_type = $1`
		args = append(args, partyType)
	}
	query += ` ORDER BY lower(party_name)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parties := make([]domain.Party, 0, 32)
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, err
		}
		parties = append(parties, *p)
	}
	return parties, rows.Err()
}

func (s *Store) GetPartyByID(ctx context.Context, id string) (*domain.Party, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1`, id)
	p, err := scanParty(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) CreateParty(ctx context.Context, party domain.Party) (*domain.Party, error) {
	if party.ID == "" {
		party.ID = xid.New("party")
	}
	party.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parties (
			id, party_type, party_name, mobile_number, email, address, gst_number,
			opening_balance_paise, balance_amount_paise, paid_amount_paise, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, party.ID, party.PartyType, party.PartyName, nullIfEmpty(party.MobileNumber),
		nullIfEmpty(party.Email), nullIfEmpty(party.Address), nullIfEmpty(party.GSTNumber),
		party.OpeningBalancePaise, party.BalanceAmountPaise, party.PaidAmountPaise, party.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s %q already exists", store.ErrConflict, party.PartyType, party.PartyName)
		}
		return nil, err
	}
	return &party, nil
}

func (s *Store) UpdateParty(ctx context.Context, party domain.Party) (*domain.Party, error) {
	// Ledger columns only move through postings, never through profile edits.
	res, err := s.db.ExecContext(ctx, `
		UPDATE parties
		SET party_name = $2, mobile_number = $3, email = $4, address = $5, gst_number = $6
		WHERE id = $1
	`, party.ID, party.PartyName, nullIfEmpty(party.MobileNumber), nullIfEmpty(party.Email),
		nullIfEmpty(party.Address), nullIfEmpty(party.GSTNumber))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: party %q already exists", store.ErrConflict, party.PartyName)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetPartyByID(ctx, party.ID)
}

func (s *Store) DeleteParty(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM parties WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, tx domain.SaleTransaction, ledgerDeltaPaise int64) (*domain.SaleTransaction, error) {
	if len(tx.Lines) == 0 {
		return nil, fmt.Errorf("%w: sale has no lines", store.ErrInvalidInput)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var partyName, partyType string
	err = pgTx.QueryRowContext(ctx, `
		SELECT party_name, party_type FROM parties WHERE id = $1 FOR UPDATE
	`, tx.SellerPartyID).Scan(&partyName, &partyType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: seller party %s", store.ErrNotFound, tx.SellerPartyID)
		}
		return nil, err
	}
	if partyType != domain.PartyTypeSeller {
		return nil, fmt.Errorf("%w: party %s is not a seller", store.ErrInvalidInput, tx.SellerPartyID)
	}

	itemIDs := uniqueItemIDs(tx.Lines)
	type itemState struct {
		name      string
		brand     string
		hsnNumber string
		quantity  int
	}
	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT id, product_name, COALESCE(brand,''), COALESCE(hsn_number,''), quantity
		FROM items
		WHERE id = ANY($1)
		FOR UPDATE
	`, itemIDs)
	if err != nil {
		return nil, err
	}
	states := make(map[string]itemState, len(itemIDs))
	for itemRows.Next() {
		var id string
		var st itemState
		if err := itemRows.Scan(&id, &st.name, &st.brand, &st.hsnNumber, &st.quantity); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		states[id] = st
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	// Validate every line against locked stock before any decrement so a
	// failing sale leaves nothing half-applied.
	needed := make(map[string]int, len(itemIDs))
	for _, ln := range tx.Lines {
		needed[ln.ItemID] += ln.Quantity
	}
	for _, id := range itemIDs {
		st, ok := states[id]
		if !ok {
			return nil, fmt.Errorf("%w: item %s", store.ErrNotFound, id)
		}
		if st.quantity < needed[id] {
			return nil, fmt.Errorf("%w for %q: have %d, need %d", store.ErrInsufficientStock, st.name, st.quantity, needed[id])
		}
	}

	for i, ln := range tx.Lines {
		st := states[ln.ItemID]
		tx.Lines[i].ProductName = st.name
		tx.Lines[i].Brand = st.brand
		tx.Lines[i].HSNNumber = st.hsnNumber
	}
	for id, qty := range needed {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE items SET quantity = quantity - $1, updated_at = now() WHERE id = $2
		`, qty, id); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	if tx.ID == "" {
		tx.ID = xid.New("sale")
	}
	if tx.TransactionDate.IsZero() {
		tx.TransactionDate = now
	}
	tx.CreatedAt = now
	tx.PartyName = partyName

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sale_transactions (
			id, bill_number, seller_party_id, party_name, transaction_date,
			subtotal_paise, tax_amount_paise, discount_paise, total_amount_paise,
			paid_amount_paise, balance_amount_paise, previous_balance_paid_paise,
			payment_status, with_gst, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, tx.ID, tx.BillNumber, tx.SellerPartyID, tx.PartyName, tx.TransactionDate,
		tx.SubtotalPaise, tx.TaxAmountPaise, tx.DiscountPaise, tx.TotalAmountPaise,
		tx.PaidAmountPaise, tx.BalanceAmountPaise, tx.PreviousBalancePaidPaise,
		tx.PaymentStatus, tx.WithGST, nullIfEmpty(tx.CreatedBy), tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: bill number %s already used", store.ErrConflict, tx.BillNumber)
		}
		return nil, err
	}

	for _, ln := range tx.Lines {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_transaction_items (
				sale_id, item_id, product_name, brand, hsn_number,
				quantity, sale_rate_paise, tax_rate, discount_paise, total_paise
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, tx.ID, ln.ItemID, ln.ProductName, nullIfEmpty(ln.Brand), nullIfEmpty(ln.HSNNumber),
			ln.Quantity, ln.SaleRatePaise, ln.TaxRate, ln.DiscountPaise, ln.TotalPaise); err != nil {
			return nil, err
		}
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE parties
		SET balance_amount_paise = balance_amount_paise + $2,
		    paid_amount_paise = paid_amount_paise + $3
		WHERE id = $1
	`, tx.SellerPartyID, ledgerDeltaPaise, tx.PaidAmountPaise); err != nil {
		return nil, err
	}

	if err := s.reconcileOrderSheet(ctx, pgTx, itemIDs); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.SaleTransaction, error) {
	var tx domain.SaleTransaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, bill_number, seller_party_id, party_name, transaction_date,
		       subtotal_paise, tax_amount_paise, discount_paise, total_amount_paise,
		       paid_amount_paise, balance_amount_paise, previous_balance_paid_paise,
		       payment_status, with_gst, COALESCE(created_by,''), created_at
		FROM sale_transactions
		WHERE id = $1
	`, id).Scan(&tx.ID, &tx.BillNumber, &tx.SellerPartyID, &tx.PartyName, &tx.TransactionDate,
		&tx.SubtotalPaise, &tx.TaxAmountPaise, &tx.DiscountPaise, &tx.TotalAmountPaise,
		&tx.PaidAmountPaise, &tx.BalanceAmountPaise, &tx.PreviousBalancePaidPaise,
		&tx.PaymentStatus, &tx.WithGST, &tx.CreatedBy, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, product_name, COALESCE(brand,''), COALESCE(hsn_number,''),
		       quantity, sale_rate_paise, tax_rate, discount_paise, total_paise
		FROM sale_transaction_items
		WHERE sale_id = $1
		ORDER BY product_name
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ln domain.SaleLine
		if err := rows.Scan(&ln.ItemID, &ln.ProductName, &ln.Brand, &ln.HSNNumber,
			&ln.Quantity, &ln.SaleRatePaise, &ln.TaxRate, &ln.DiscountPaise, &ln.TotalPaise); err != nil {
			return nil, err
		}
		tx.Lines = append(tx.Lines, ln)
	}
	return &tx, rows.Err()
}

func saleFilterClause(filter domain.SaleListFilter, args *[]any) (string, error) {
	conditions := make([]string, 0, 4)
	if filter.FromDate != "" {
		t, err := time.Parse("2006-01-02", filter.FromDate)
		if err != nil {
			return "", fmt.Errorf("%w: from_date %q", store.ErrInvalidInput, filter.FromDate)
		}
		*args = append(*args, t)
		conditions = append(conditions, fmt.Sprintf("t.transaction_date >= $%d", len(*args)))
	}
	if filter.ToDate != "" {
		t, err := time.Parse("2006-01-02", filter.ToDate)
		if err != nil {
			return "", fmt.Errorf("%w: to_date %q", store.ErrInvalidInput, filter.ToDate)
		}
		*args = append(*args, t.Add(24*time.Hour))
		conditions = append(conditions, fmt.Sprintf("t.transaction_date < $%d", len(*args)))
	}
	if filter.SellerPartyID != "" {
		*args = append(*args, filter.SellerPartyID)
		conditions = append(conditions, fmt.Sprintf("t.seller_party_id = $%d", len(*args)))
	}
	switch filter.GSTFilter {
	case "with":
		conditions = append(conditions, "t.with_gst = true")
	case "without":
		conditions = append(conditions, "t.with_gst = false")
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.SaleSummary, error) {
	args := []any{}
	where, err := saleFilterClause(filter, &args)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.transaction_date, t.bill_number, t.party_name,
		       t.total_amount_paise, t.paid_amount_paise, t.balance_amount_paise,
		       t.payment_status, t.with_gst, t.previous_balance_paid_paise
		FROM sale_transactions t
	`+where+`
		ORDER BY t.transaction_date DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SaleSummary, 0, 64)
	for rows.Next() {
		var sum domain.SaleSummary
		if err := rows.Scan(&sum.ID, &sum.TransactionDate, &sum.BillNumber, &sum.PartyName,
			&sum.TotalAmountPaise, &sum.PaidAmountPaise, &sum.BalanceAmountPaise,
			&sum.PaymentStatus, &sum.WithGST, &sum.PreviousBalancePaidPaise); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) GetSalesProfit(ctx context.Context, filter domain.SaleListFilter) (int64, error) {
	args := []any{}
	where, err := saleFilterClause(filter, &args)
	if err != nil {
		return 0, err
	}

	var profit int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM((ti.sale_rate_paise - COALESCE(i.purchase_rate_paise, 0)) * ti.quantity), 0)
		FROM sale_transaction_items ti
		JOIN sale_transactions t ON t.id = ti.sale_id
		LEFT JOIN items i ON i.id = ti.item_id
	`+where, args...).Scan(&profit)
	if err != nil {
		return 0, err
	}
	return profit, nil
}

func (s *Store) CreateReturn(ctx context.Context, posting domain.ReturnPosting) ([]domain.ReturnTransaction, error) {
	if len(posting.Lines) == 0 {
		return nil, fmt.Errorf("%w: return has no lines", store.ErrInvalidInput)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var partyName, partyType string
	err = pgTx.QueryRowContext(ctx, `
		SELECT party_name, party_type FROM parties WHERE id = $1 FOR UPDATE
	`, posting.PartyID).Scan(&partyName, &partyType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: party %s", store.ErrNotFound, posting.PartyID)
		}
		return nil, err
	}
	if partyType != posting.PartyType {
		return nil, fmt.Errorf("%w: party %s is not a %s", store.ErrInvalidInput, posting.PartyID, posting.PartyType)
	}

	itemIDs := make([]string, 0, len(posting.Lines))
	for _, ln := range posting.Lines {
		itemIDs = append(itemIDs, ln.ItemID)
	}
	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT id, product_name, COALESCE(brand,''), quantity
		FROM items
		WHERE id = ANY($1)
		FOR UPDATE
	`, itemIDs)
	if err != nil {
		return nil, err
	}
	type itemState struct {
		name     string
		brand    string
		quantity int
	}
	states := make(map[string]itemState, len(itemIDs))
	for itemRows.Next() {
		var id string
		var st itemState
		if err := itemRows.Scan(&id, &st.name, &st.brand, &st.quantity); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		states[id] = st
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	for _, ln := range posting.Lines {
		st, ok := states[ln.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item %s", store.ErrNotFound, ln.ItemID)
		}
		// Returning stock to a buyer ships goods out, so it needs stock on
		// hand. A return from a seller only adds stock.
		if posting.PartyType == domain.PartyTypeBuyer && st.quantity < ln.Quantity {
			return nil, fmt.Errorf("%w for %q: have %d, need %d", store.ErrInsufficientStock, st.name, st.quantity, ln.Quantity)
		}
	}

	now := time.Now().UTC()
	out := make([]domain.ReturnTransaction, 0, len(posting.Lines))
	for _, ln := range posting.Lines {
		st := states[ln.ItemID]
		delta := ln.Quantity
		if posting.PartyType == domain.PartyTypeBuyer {
			delta = -ln.Quantity
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE items SET quantity = quantity + $1, updated_at = now() WHERE id = $2
		`, delta, ln.ItemID); err != nil {
			return nil, err
		}

		rec := ln
		rec.ID = xid.New("ret")
		rec.PartyType = posting.PartyType
		rec.PartyID = posting.PartyID
		rec.PartyName = partyName
		rec.ProductName = st.name
		rec.Brand = st.brand
		rec.Reason = posting.Reason
		rec.ReturnDate = now
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO return_transactions (
				id, party_type, party_id, party_name, item_id, product_name, brand,
				quantity, return_amount_paise, reason, return_date
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, rec.ID, rec.PartyType, rec.PartyID, rec.PartyName, rec.ItemID, rec.ProductName,
			nullIfEmpty(rec.Brand), rec.Quantity, rec.ReturnAmountPaise,
			nullIfEmpty(rec.Reason), rec.ReturnDate); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	if posting.LedgerDeltaPaise != 0 {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE parties SET balance_amount_paise = balance_amount_paise + $2 WHERE id = $1
		`, posting.PartyID, posting.LedgerDeltaPaise); err != nil {
			return nil, err
		}
	}

	if err := s.reconcileOrderSheet(ctx, pgTx, itemIDs); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListReturns(ctx context.Context, filter domain.ReturnListFilter) ([]domain.ReturnTransaction, error) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 4)
	if filter.FromDate != "" {
		t, err := time.Parse("2006-01-02", filter.FromDate)
		if err != nil {
			return nil, fmt.Errorf("%w: from_date %q", store.ErrInvalidInput, filter.FromDate)
		}
		args = append(args, t)
		conditions = append(conditions, fmt.Sprintf("return_date >= $%d", len(args)))
	}
	if filter.ToDate != "" {
		t, err := time.Parse("2006-01-02", filter.ToDate)
		if err != nil {
			return nil, fmt.Errorf("%w: to_date %q", store.ErrInvalidInput, filter.ToDate)
		}
		args = append(args, t.Add(24*time.Hour))
		conditions = append(conditions, fmt.Sprintf("return_date < $%d", len(args)))
	}
	if filter.PartyType != "" {
		args = append(args, filter.PartyType)
		conditions = append(conditions, fmt.Sprintf("party_type = $%d", len(args)))
	}
	if filter.PartyID != "" {
		args = append(args, filter.PartyID)
		conditions = append(conditions, fmt.Sprintf("party_id = $%d", len(args)))
	}

	query := `
		SELECT id, party_type, party_id, party_name, item_id, product_name,
		       COALESCE(brand,''), quantity, return_amount_paise, COALESCE(reason,''), return_date
		FROM return_transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY return_date DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ReturnTransaction, 0, 32)
	for rows.Next() {
		var r domain.ReturnTransaction
		if err := rows.Scan(&r.ID, &r.PartyType, &r.PartyID, &r.PartyName, &r.ItemID, &r.ProductName,
			&r.Brand, &r.Quantity, &r.ReturnAmountPaise, &r.Reason, &r.ReturnDate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreatePurchase(ctx context.Context, buyerPartyID string, lines []domain.PurchaseLineInput, actorID string) ([]domain.PurchaseTransaction, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: purchase has no lines", store.ErrInvalidInput)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var partyName, partyType string
	err = pgTx.QueryRowContext(ctx, `
		SELECT party_name, party_type FROM parties WHERE id = $1
	`, buyerPartyID).Scan(&partyName, &partyType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: buyer party %s", store.ErrNotFound, buyerPartyID)
		}
		return nil, err
	}
	if partyType != domain.PartyTypeBuyer {
		return nil, fmt.Errorf("%w: party %s is not a buyer", store.ErrInvalidInput, buyerPartyID)
	}

	now := time.Now().UTC()
	out := make([]domain.PurchaseTransaction, 0, len(lines))
	touched := make([]string, 0, len(lines))
	for _, ln := range lines {
		itemID := ln.ItemID
		if itemID != "" {
			var productName string
			var purchaseRate, saleRate int64
			err := pgTx.QueryRowContext(ctx, `
				SELECT product_name, purchase_rate_paise, sale_rate_paise
				FROM items WHERE id = $1 FOR UPDATE
			`, itemID).Scan(&productName, &purchaseRate, &saleRate)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, fmt.Errorf("%w: item %s", store.ErrNotFound, itemID)
				}
				return nil, err
			}
			if ln.PurchaseRatePaise > 0 {
				purchaseRate = ln.PurchaseRatePaise
			}
			if ln.SaleRatePaise > 0 {
				saleRate = ln.SaleRatePaise
			}
			if _, err := pgTx.ExecContext(ctx, `
				UPDATE items
				SET quantity = quantity + $2, purchase_rate_paise = $3, sale_rate_paise = $4,
				    updated_by = $5, updated_at = now()
				WHERE id = $1
			`, itemID, ln.Quantity, purchaseRate, saleRate, nullIfEmpty(actorID)); err != nil {
				return nil, err
			}
			ln.PurchaseRatePaise = purchaseRate
			ln.ProductName = productName
		} else {
			itemID = xid.New("item")
			taxRate := 18
			if ln.TaxRate != nil {
				taxRate = *ln.TaxRate
			}
			if _, err := pgTx.ExecContext(ctx, `
				INSERT INTO items (
					id, product_name, product_code, brand, hsn_number, tax_rate,
					sale_rate_paise, purchase_rate_paise, quantity, alert_quantity,
					rack_number, remarks, created_by, updated_by, created_at, updated_at
				)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			`, itemID, strings.TrimSpace(ln.ProductName), nullIfEmpty(ln.ProductCode),
				nullIfEmpty(ln.Brand), nullIfEmpty(ln.HSNNumber), taxRate,
				ln.SaleRatePaise, ln.PurchaseRatePaise, ln.Quantity, ln.AlertQuantity,
				nullIfEmpty(ln.RackNumber), nullIfEmpty(ln.Remarks),
				nullIfEmpty(actorID), nullIfEmpty(actorID), now, now); err != nil {
				if isUniqueViolation(err) {
					return nil, fmt.Errorf("%w: item %q already exists", store.ErrConflict, ln.ProductName)
				}
				return nil, err
			}
		}
		touched = append(touched, itemID)

		var snap domain.ItemHistory
		err := pgTx.QueryRowContext(ctx, `
			SELECT product_name, COALESCE(product_code,''), COALESCE(brand,''),
			       COALESCE(hsn_number,''), tax_rate, sale_rate_paise, purchase_rate_paise,
			       quantity, alert_quantity
			FROM items WHERE id = $1
		`, itemID).Scan(&snap.ProductName, &snap.ProductCode, &snap.Brand,
			&snap.HSNNumber, &snap.TaxRate, &snap.SaleRatePaise, &snap.PurchaseRatePaise,
			&snap.Quantity, &snap.AlertQuantity)
		if err != nil {
			return nil, err
		}
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO items_history (
				id, item_id, product_name, product_code, brand, hsn_number, tax_rate,
				sale_rate_paise, purchase_rate_paise, quantity, alert_quantity,
				action_type, changed_by, changed_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`, xid.New("hist"), itemID, snap.ProductName, nullIfEmpty(snap.ProductCode),
			nullIfEmpty(snap.Brand), nullIfEmpty(snap.HSNNumber), snap.TaxRate,
			snap.SaleRatePaise, snap.PurchaseRatePaise, snap.Quantity, snap.AlertQuantity,
			"purchase", actorID, now); err != nil {
			return nil, err
		}

		rec := domain.PurchaseTransaction{
			ID:                xid.New("pur"),
			BuyerPartyID:      buyerPartyID,
			PartyName:         partyName,
			ItemID:            itemID,
			ProductName:       snap.ProductName,
			Quantity:          ln.Quantity,
			PurchaseRatePaise: snap.PurchaseRatePaise,
			TotalAmountPaise:  snap.PurchaseRatePaise * int64(ln.Quantity),
			TransactionDate:   now,
		}
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO purchase_transactions (
				id, buyer_party_id, party_name, item_id, product_name,
				quantity, purchase_rate_paise, total_amount_paise, transaction_date
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, rec.ID, rec.BuyerPartyID, rec.PartyName, rec.ItemID, rec.ProductName,
			rec.Quantity, rec.PurchaseRatePaise, rec.TotalAmountPaise, rec.TransactionDate); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	if err := s.reconcileOrderSheet(ctx, pgTx, touched); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListPurchases(ctx context.Context, filter domain.PurchaseListFilter) ([]domain.PurchaseTransaction, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filter.FromDate != "" {
		t, err := time.Parse("2006-01-02", filter.FromDate)
		if err != nil {
			return nil, fmt.Errorf("%w: from_date %q", store.ErrInvalidInput, filter.FromDate)
		}
		args = append(args, t)
		conditions = append(conditions, fmt.Sprintf("transaction_date >= $%d", len(args)))
	}
	if filter.ToDate != "" {
		t, err := time.Parse("2006-01-02", filter.ToDate)
		if err != nil {
			return nil, fmt.Errorf("%w: to_date %q", store.ErrInvalidInput, filter.ToDate)
		}
		args = append(args, t.Add(24*time.Hour))
		conditions = append(conditions, fmt.Sprintf("transaction_date < $%d", len(args)))
	}
	if filter.BuyerPartyID != "" {
		args = append(args, filter.BuyerPartyID)
		conditions = append(conditions, fmt.Sprintf("buyer_party_id = $%d", len(args)))
	}

	query := `
		SELECT id, buyer_party_id, party_name, item_id, product_name,
		       quantity, purchase_rate_paise, total_amount_paise, transaction_date
		FROM purchase_transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY transaction_date DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PurchaseTransaction, 0, 32)
	for rows.Next() {
		var p domain.PurchaseTransaction
		if err := rows.Scan(&p.ID, &p.BuyerPartyID, &p.PartyName, &p.ItemID, &p.ProductName,
			&p.Quantity, &p.PurchaseRatePaise, &p.TotalAmountPaise, &p.TransactionDate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// reconcileOrderSheet brings pending order sheet rows back in line with live
// item quantities. With a nil itemIDs slice it sweeps the whole sheet.
func (s *Store) reconcileOrderSheet(ctx context.Context, q execQuerier, itemIDs []string) error {
	scope := ""
	args := []any{}
	if itemIDs != nil {
		scope = " AND i.id = ANY($1)"
		args = append(args, itemIDs)
	}

	if _, err := q.ExecContext(ctx, `
		UPDATE order_sheet os
		SET required_quantity = GREATEST(1, i.alert_quantity - i.quantity),
		    current_quantity = i.quantity
		FROM items i
		WHERE os.item_id = i.id AND os.status = 'pending'
		  AND i.alert_quantity > 0 AND i.quantity <= i.alert_quantity`+scope, args...); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `
		DELETE FROM order_sheet os
		USING items i
		WHERE os.item_id = i.id AND os.status = 'pending'
		  AND (i.quantity > i.alert_quantity OR i.alert_quantity <= 0)`+scope, args...); err != nil {
		return err
	}
	if itemIDs == nil {
		if _, err := q.ExecContext(ctx, `
			DELETE FROM order_sheet os
			WHERE os.status = 'pending'
			  AND NOT EXISTS (SELECT 1 FROM items i WHERE i.id = os.item_id)
		`); err != nil {
			return err
		}
	}

	missingScope := ""
	if itemIDs != nil {
		missingScope = " AND i.id = ANY($1)"
	}
	rows, err := q.QueryContext(ctx, `
		SELECT i.id, GREATEST(1, i.alert_quantity - i.quantity), i.quantity
		FROM items i
		WHERE i.alert_quantity > 0 AND i.quantity <= i.alert_quantity
		  AND NOT EXISTS (
			SELECT 1 FROM order_sheet os
			WHERE os.item_id = i.id AND os.status = 'pending'
		  )`+missingScope, args...)
	if err != nil {
		return err
	}
	type missing struct {
		itemID   string
		required int
		current  int
	}
	toInsert := make([]missing, 0, 8)
	for rows.Next() {
		var m missing
		if err := rows.Scan(&m.itemID, &m.required, &m.current); err != nil {
			_ = rows.Close()
			return err
		}
		toInsert = append(toInsert, m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	now := time.Now().UTC()
	for _, m := range toInsert {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO order_sheet (id, item_id, required_quantity, current_quantity, status, created_at)
			VALUES ($1,$2,$3,$4,'pending',$5)
		`, xid.New("reorder"), m.itemID, m.required, m.current, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListReorderEntries(ctx context.Context, status string) ([]domain.ReorderEntry, error) {
	if err := s.reconcileOrderSheet(ctx, s.db, nil); err != nil {
		return nil, err
	}

	query := `
		SELECT os.id, os.item_id, COALESCE(i.product_name,''), COALESCE(i.product_code,''),
		       COALESCE(i.brand,''), COALESCE(i.rack_number,''), COALESCE(i.sale_rate_paise,0),
		       os.required_quantity, os.current_quantity, os.status, os.created_at
		FROM order_sheet os
		LEFT JOIN items i ON i.id = os.item_id`
	args := []any{}
	if status != "" {
		query += ` WHERE os.status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY os.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ReorderEntry, 0, 32)
	for rows.Next() {
		var e domain.ReorderEntry
		if err := rows.Scan(&e.ID, &e.ItemID, &e.ProductName, &e.ProductCode,
			&e.Brand, &e.RackNumber, &e.SaleRatePaise,
			&e.RequiredQuantity, &e.CurrentQuantity, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CompleteReorderEntry(ctx context.Context, id string) (*domain.ReorderEntry, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status FROM order_sheet WHERE id = $1 FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.ReorderStatusCompleted {
		return nil, fmt.Errorf("%w: order entry already completed", store.ErrConflict)
	}
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE order_sheet SET status = 'completed' WHERE id = $1
	`, id); err != nil {
		return nil, err
	}

	var e domain.ReorderEntry
	err = pgTx.QueryRowContext(ctx, `
		SELECT os.id, os.item_id, COALESCE(i.product_name,''), COALESCE(i.product_code,''),
		       COALESCE(i.brand,''), COALESCE(i.rack_number,''), COALESCE(i.sale_rate_paise,0),
		       os.required_quantity, os.current_quantity, os.status, os.created_at
		FROM order_sheet os
		LEFT JOIN items i ON i.id = os.item_id
		WHERE os.id = $1
	`, id).Scan(&e.ID, &e.ItemID, &e.ProductName, &e.ProductCode,
		&e.Brand, &e.RackNumber, &e.SaleRatePaise,
		&e.RequiredQuantity, &e.CurrentQuantity, &e.Status, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.UserID, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s already exists", store.ErrConflict, user.UserID)
	}
	return err
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, password, role, active, created_at
		FROM users
		WHERE user_id = $1
	`, userID).Scan(&u.UserID, &u.Password, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorID, entry.ActorRole, entry.Action, entry.EntityType,
		nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_role, action, entity_type, COALESCE(entity_id,''), COALESCE(detail,''), created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorRole, &e.Action, &e.EntityType,
			&e.EntityID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func uniqueItemIDs(lines []domain.SaleLine) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, ln := range lines {
		if _, ok := seen[ln.ItemID]; ok {
			continue
		}
		seen[ln.ItemID] = struct{}{}
		ids = append(ids, ln.ItemID)
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
