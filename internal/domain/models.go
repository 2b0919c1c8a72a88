package domain

import "time"

// All monetary amounts are stored as integer paise to keep arithmetic exact.

type Item struct {
	ID                string    `json:"id"`
	ProductName       string    `json:"product_name"`
	ProductCode       string    `json:"product_code,omitempty"`
	Brand             string    `json:"brand,omitempty"`
	HSNNumber         string    `json:"hsn_number,omitempty"`
	TaxRate           int       `json:"tax_rate"`
	SaleRatePaise     int64     `json:"sale_rate_paise"`
	PurchaseRatePaise int64     `json:"purchase_rate_paise,omitempty"`
	Quantity          int       `json:"quantity"`
	AlertQuantity     int       `json:"alert_quantity"`
	RackNumber        string    `json:"rack_number,omitempty"`
	Remarks           string    `json:"remarks,omitempty"`
	ImageRef          string    `json:"image_ref,omitempty"`
	CreatedBy         string    `json:"created_by,omitempty"`
	UpdatedBy         string    `json:"updated_by,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ItemCreateRequest struct {
	ProductName       string `json:"product_name"`
	ProductCode       string `json:"product_code"`
	Brand             string `json:"brand"`
	HSNNumber         string `json:"hsn_number"`
	TaxRate           *int   `json:"tax_rate,omitempty"`
	SaleRatePaise     int64  `json:"sale_rate_paise"`
	PurchaseRatePaise int64  `json:"purchase_rate_paise"`
	AlertQuantity     int    `json:"alert_quantity"`
	RackNumber        string `json:"rack_number"`
	Remarks           string `json:"remarks"`
	ImageRef          string `json:"image_ref"`
}

type ItemUpdateRequest struct {
	ProductName       *string `json:"product_name,omitempty"`
	ProductCode       *string `json:"product_code,omitempty"`
	Brand             *string `json:"brand,omitempty"`
	HSNNumber         *string `json:"hsn_number,omitempty"`
	TaxRate           *int    `json:"tax_rate,omitempty"`
	SaleRatePaise     *int64  `json:"sale_rate_paise,omitempty"`
	PurchaseRatePaise *int64  `json:"purchase_rate_paise,omitempty"`
	Quantity          *int    `json:"quantity,omitempty"`
	AlertQuantity     *int    `json:"alert_quantity,omitempty"`
	RackNumber        *string `json:"rack_number,omitempty"`
	Remarks           *string `json:"remarks,omitempty"`
	ImageRef          *string `json:"image_ref,omitempty"`
}

// ItemHistory is an append-only snapshot of an item taken on every
// create/update/delete. Rows are never mutated after insert.
type ItemHistory struct {
	ID                string    `json:"id"`
	ItemID            string    `json:"item_id"`
	ProductName       string    `json:"product_name"`
	ProductCode       string    `json:"product_code,omitempty"`
	Brand             string    `json:"brand,omitempty"`
	HSNNumber         string    `json:"hsn_number,omitempty"`
	TaxRate           int       `json:"tax_rate"`
	SaleRatePaise     int64     `json:"sale_rate_paise"`
	PurchaseRatePaise int64     `json:"purchase_rate_paise"`
	Quantity          int       `json:"quantity"`
	AlertQuantity     int       `json:"alert_quantity"`
	ActionType        string    `json:"action_type"`
	ChangedBy         string    `json:"changed_by"`
	ChangedAt         time.Time `json:"changed_at"`
}

type ItemListFilter struct {
	Page        int
	Limit       int
	Search      string
	SearchField string
}

type ItemSearchRequest struct {
	ProductName string `json:"product_name"`
	Brand       string `json:"brand"`
	ProductCode string `json:"product_code"`
	Remarks     string `json:"remarks"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type ItemPage struct {
	Items      []Item     `json:"items"`
	Pagination Pagination `json:"pagination"`
}

const (
	PartyTypeBuyer  = "buyer"
	PartyTypeSeller = "seller"
)

// Party is a buyer (stock source) or seller (stock destination). The two are
// structurally identical; PartyType keeps the ledgers apart.
type Party struct {
	ID                  string    `json:"id"`
	PartyType           string    `json:"party_type"`
	PartyName           string    `json:"party_name"`
	MobileNumber        string    `json:"mobile_number,omitempty"`
	Email               string    `json:"email,omitempty"`
	Address             string    `json:"address,omitempty"`
	GSTNumber           string    `json:"gst_number,omitempty"`
	OpeningBalancePaise int64     `json:"opening_balance_paise"`
	BalanceAmountPaise  int64     `json:"balance_amount_paise"`
	PaidAmountPaise     int64     `json:"paid_amount_paise"`
	CreatedAt           time.Time `json:"created_at"`
}

type PartyCreateRequest struct {
	PartyName           string `json:"party_name"`
	MobileNumber        string `json:"mobile_number"`
	Email               string `json:"email"`
	Address             string `json:"address"`
	GSTNumber           string `json:"gst_number"`
	OpeningBalancePaise int64  `json:"opening_balance_paise"`
}

type PartyUpdateRequest struct {
	PartyName    *string `json:"party_name,omitempty"`
	MobileNumber *string `json:"mobile_number,omitempty"`
	Email        *string `json:"email,omitempty"`
	Address      *string `json:"address,omitempty"`
	GSTNumber    *string `json:"gst_number,omitempty"`
}

const (
	PaymentStatusFullyPaid     = "fully_paid"
	PaymentStatusPartiallyPaid = "partially_paid"
)

type SaleLineInput struct {
	ItemID          string   `json:"item_id"`
	Quantity        int      `json:"quantity"`
	SaleRatePaise   int64    `json:"sale_rate_paise"`
	DiscountPaise   int64    `json:"discount_paise"`
	DiscountPercent *float64 `json:"discount_percent,omitempty"`
}

type SaleCreateRequest struct {
	SellerPartyID            string          `json:"seller_party_id"`
	Lines                    []SaleLineInput `json:"items"`
	PaymentStatus            string          `json:"payment_status"`
	PaidAmountPaise          int64           `json:"paid_amount_paise"`
	WithGST                  bool            `json:"with_gst"`
	PreviousBalancePaidPaise int64           `json:"previous_balance_paid_paise"`
}

type SaleLine struct {
	ItemID        string `json:"item_id"`
	ProductName   string `json:"product_name,omitempty"`
	Brand         string `json:"brand,omitempty"`
	HSNNumber     string `json:"hsn_number,omitempty"`
	Quantity      int    `json:"quantity"`
	SaleRatePaise int64  `json:"sale_rate_paise"`
	TaxRate       int    `json:"tax_rate"`
	DiscountPaise int64  `json:"discount_paise"`
	TotalPaise    int64  `json:"total_paise"`
}

// SaleTransaction is immutable once posted; only a compensating return can
// undo its effects.
type SaleTransaction struct {
	ID                       string     `json:"id"`
	BillNumber               string     `json:"bill_number"`
	SellerPartyID            string     `json:"seller_party_id"`
	PartyName                string     `json:"party_name,omitempty"`
	TransactionDate          time.Time  `json:"transaction_date"`
	SubtotalPaise            int64      `json:"subtotal_paise"`
	TaxAmountPaise           int64      `json:"tax_amount_paise"`
	DiscountPaise            int64      `json:"discount_paise"`
	TotalAmountPaise         int64      `json:"total_amount_paise"`
	PaidAmountPaise          int64      `json:"paid_amount_paise"`
	BalanceAmountPaise       int64      `json:"balance_amount_paise"`
	PreviousBalancePaidPaise int64      `json:"previous_balance_paid_paise"`
	PaymentStatus            string     `json:"payment_status"`
	WithGST                  bool       `json:"with_gst"`
	CreatedBy                string     `json:"created_by,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	Lines                    []SaleLine `json:"items"`
}

type SaleListFilter struct {
	FromDate      string
	ToDate        string
	SellerPartyID string
	GSTFilter     string
}

type ReturnLineInput struct {
	ItemID            string `json:"item_id"`
	Quantity          int    `json:"quantity"`
	ReturnAmountPaise *int64 `json:"return_amount_paise,omitempty"`
}

type ReturnCreateRequest struct {
	SellerPartyID string            `json:"seller_party_id,omitempty"`
	BuyerPartyID  string            `json:"buyer_party_id,omitempty"`
	Lines         []ReturnLineInput `json:"items"`
	Reason        string            `json:"reason"`
	AdjustLedger  bool              `json:"adjust_ledger"`
}

type ReturnTransaction struct {
	ID                string    `json:"id"`
	PartyType         string    `json:"party_type"`
	PartyID           string    `json:"party_id"`
	PartyName         string    `json:"party_name,omitempty"`
	ItemID            string    `json:"item_id"`
	ProductName       string    `json:"product_name,omitempty"`
	Brand             string    `json:"brand,omitempty"`
	Quantity          int       `json:"quantity"`
	ReturnAmountPaise int64     `json:"return_amount_paise"`
	Reason            string    `json:"reason,omitempty"`
	ReturnDate        time.Time `json:"return_date"`
}

// ReturnPosting carries a validated, price-resolved return through the store
// layer. LedgerDeltaPaise is the signed change applied to the seller balance
// (zero when no adjustment was requested or the party is a buyer).
type ReturnPosting struct {
	PartyType        string
	PartyID          string
	Reason           string
	LedgerDeltaPaise int64
	Lines            []ReturnTransaction
}

type ReturnListFilter struct {
	FromDate  string
	ToDate    string
	PartyType string
	PartyID   string
}

type PurchaseLineInput struct {
	ItemID            string `json:"item_id,omitempty"`
	ProductName       string `json:"product_name,omitempty"`
	ProductCode       string `json:"product_code,omitempty"`
	Brand             string `json:"brand,omitempty"`
	HSNNumber         string `json:"hsn_number,omitempty"`
	TaxRate           *int   `json:"tax_rate,omitempty"`
	SaleRatePaise     int64  `json:"sale_rate_paise"`
	PurchaseRatePaise int64  `json:"purchase_rate_paise"`
	Quantity          int    `json:"quantity"`
	AlertQuantity     int    `json:"alert_quantity"`
	RackNumber        string `json:"rack_number,omitempty"`
	Remarks           string `json:"remarks,omitempty"`
}

type PurchaseCreateRequest struct {
	BuyerPartyID string              `json:"buyer_party_id"`
	Lines        []PurchaseLineInput `json:"items"`
}

type PurchaseTransaction struct {
	ID                string    `json:"id"`
	BuyerPartyID      string    `json:"buyer_party_id"`
	PartyName         string    `json:"party_name,omitempty"`
	ItemID            string    `json:"item_id"`
	ProductName       string    `json:"product_name,omitempty"`
	Quantity          int       `json:"quantity"`
	PurchaseRatePaise int64     `json:"purchase_rate_paise"`
	TotalAmountPaise  int64     `json:"total_amount_paise"`
	TransactionDate   time.Time `json:"transaction_date"`
}

type PurchaseListFilter struct {
	FromDate     string
	ToDate       string
	BuyerPartyID string
}

const (
	ReorderStatusPending   = "pending"
	ReorderStatusCompleted = "completed"
)

// ReorderEntry is a projection of item quantity against the alert threshold,
// never an independent source of truth.
type ReorderEntry struct {
	ID               string    `json:"id"`
	ItemID           string    `json:"item_id"`
	ProductName      string    `json:"product_name,omitempty"`
	ProductCode      string    `json:"product_code,omitempty"`
	Brand            string    `json:"brand,omitempty"`
	RackNumber       string    `json:"rack_number,omitempty"`
	SaleRatePaise    int64     `json:"sale_rate_paise,omitempty"`
	RequiredQuantity int       `json:"required_quantity"`
	CurrentQuantity  int       `json:"current_quantity"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

type SaleSummary struct {
	ID                       string    `json:"id"`
	TransactionDate          time.Time `json:"transaction_date"`
	BillNumber               string    `json:"bill_number"`
	PartyName                string    `json:"party_name"`
	TotalAmountPaise         int64     `json:"total_amount_paise"`
	PaidAmountPaise          int64     `json:"paid_amount_paise"`
	BalanceAmountPaise       int64     `json:"balance_amount_paise"`
	PaymentStatus            string    `json:"payment_status"`
	WithGST                  bool      `json:"with_gst"`
	PreviousBalancePaidPaise int64     `json:"previous_balance_paid_paise"`
}

type SalesReportSummary struct {
	TotalSalesPaise   int64  `json:"total_sales_paise"`
	TotalPaidPaise    int64  `json:"total_paid_paise"`
	TotalBalancePaise int64  `json:"total_balance_paise"`
	TotalProfitPaise  *int64 `json:"total_profit_paise,omitempty"`
	TotalTransactions int    `json:"total_transactions"`
	WithGSTCount      int    `json:"with_gst_count"`
	WithoutGSTCount   int    `json:"without_gst_count"`
}

type SalesReport struct {
	Transactions []SaleSummary      `json:"transactions"`
	Summary      SalesReportSummary `json:"summary"`
}

type ReturnReportSummary struct {
	TotalReturnsPaise int64 `json:"total_returns_paise"`
	TotalTransactions int   `json:"total_transactions"`
}

type ReturnReport struct {
	Transactions []ReturnTransaction `json:"transactions"`
	Summary      ReturnReportSummary `json:"summary"`
}

const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleSales      = "sales"
)

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

type RegisterRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type Actor struct {
	UserID string
	Role   string
}

// UserAccount is the persistence model for auth credentials; Password holds
// the bcrypt hash, never plaintext.
type UserAccount struct {
	UserID    string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidTaxRates are the GST slabs the catalog accepts.
var ValidTaxRates = []int{0, 5, 18, 28}

func IsValidTaxRate(rate int) bool {
	for _, r := range ValidTaxRates {
		if rate == r {
			return true
		}
	}
	return false
}

func IsValidRole(role string) bool {
	return role == RoleSuperAdmin || role == RoleAdmin || role == RoleSales
}
