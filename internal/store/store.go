package store

import (
	"context"
	"errors"

	"stockledger/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Repository interface {
	ListItems(ctx context.Context, filter domain.ItemListFilter) (*domain.ItemPage, error)
	GetItemByID(ctx context.Context, id string) (*domain.Item, error)
	GetItemsByIDs(ctx context.Context, ids []string) (map[string]domain.Item, error)
	FindItemByIdentity(ctx context.Context, name, code, brand string) (*domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	DeleteItem(ctx context.Context, id string) error
	SearchItems(ctx context.Context, q domain.ItemSearchRequest) ([]domain.Item, error)
	TotalStockValue(ctx context.Context) (int64, error)
	CreateItemHistory(ctx context.Context, entry domain.ItemHistory) error
	ListItemHistory(ctx context.Context, itemID string, limit int) ([]domain.ItemHistory, error)

	ListParties(ctx context.Context, partyType string) ([]domain.Party, error)
	GetPartyByID(ctx context.Context, id string) (*domain.Party, error)
	CreateParty(ctx context.Context, party domain.Party) (*domain.Party, error)
	UpdateParty(ctx context.Context, party domain.Party) (*domain.Party, error)
	DeleteParty(ctx context.Context, id string) error

	CreateSale(ctx context.Context, tx domain.SaleTransaction, ledgerDeltaPaise int64) (*domain.SaleTransaction, error)
	GetSaleByID(ctx context.Context, id string) (*domain.SaleTransaction, error)
	ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.SaleSummary, error)
	GetSalesProfit(ctx context.Context, filter domain.SaleListFilter) (int64, error)

	CreateReturn(ctx context.Context, posting domain.ReturnPosting) ([]domain.ReturnTransaction, error)
	ListReturns(ctx context.Context, filter domain.ReturnListFilter) ([]domain.ReturnTransaction, error)

	CreatePurchase(ctx context.Context, buyerPartyID string, lines []domain.PurchaseLineInput, actorID string) ([]domain.PurchaseTransaction, error)
	ListPurchases(ctx context.Context, filter domain.PurchaseListFilter) ([]domain.PurchaseTransaction, error)

	ListReorderEntries(ctx context.Context, status string) ([]domain.ReorderEntry, error)
	CompleteReorderEntry(ctx context.Context, id string) (*domain.ReorderEntry, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByID(ctx context.Context, userID string) (*domain.UserAccount, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}
