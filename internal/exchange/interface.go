package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// TradingAPI определяет интерфейс торгового REST API биржи.
// Движок зависит только от этого интерфейса; Client реализует его
// поверх REST API Paradex.
type TradingAPI interface {
	// FetchAccountSummary возвращает сводку аккаунта (свободный залог)
	FetchAccountSummary(ctx context.Context) (*AccountSummary, error)

	// FetchPositions возвращает все позиции аккаунта
	FetchPositions(ctx context.Context) ([]Position, error)

	// SubmitOrderBatch отправляет пакет ордеров одним атомарным запросом
	SubmitOrderBatch(ctx context.Context, orders []Order) error
}

// AccountSummary - сводка аккаунта
type AccountSummary struct {
	Account         string          `json:"account"`
	FreeCollateral  decimal.Decimal `json:"free_collateral"`
	SettlementAsset string          `json:"settlement_asset"`
}

// Position - позиция из REST API.
// Поле цены входа у API встречается под разными именами в зависимости
// от версии, поэтому парсим все варианты и выбираем первый непустой.
type Position struct {
	Market string `json:"market"`
	Status string `json:"status"` // OPEN или CLOSED

	EntryPrice    *decimal.Decimal `json:"entry_price,omitempty"`
	AvgEntryPrice *decimal.Decimal `json:"avg_entry_price,omitempty"`
	OpenPrice     *decimal.Decimal `json:"open_price,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`

	ClosedAt      *int64 `json:"closed_at,omitempty"`
	LastUpdatedAt *int64 `json:"last_updated_at,omitempty"`

	RealizedPnl *decimal.Decimal `json:"realized_positional_pnl,omitempty"`
}

// ResolveEntryPrice возвращает цену входа по цепочке альтернативных
// полей: entry_price -> avg_entry_price -> open_price -> price.
// Выигрывает первое присутствующее; если нет ни одного - nil.
func (p *Position) ResolveEntryPrice() *decimal.Decimal {
	for _, v := range []*decimal.Decimal{p.EntryPrice, p.AvgEntryPrice, p.OpenPrice, p.Price} {
		if v != nil {
			return v
		}
	}
	return nil
}

// ResolveClosedAt возвращает момент закрытия позиции в миллисекундах:
// closed_at, иначе last_updated_at, иначе 0.
func (p *Position) ResolveClosedAt() int64 {
	if p.ClosedAt != nil {
		return *p.ClosedAt
	}
	if p.LastUpdatedAt != nil {
		return *p.LastUpdatedAt
	}
	return 0
}

// Статусы позиций
const (
	PositionStatusOpen   = "OPEN"
	PositionStatusClosed = "CLOSED"
)

// Order - лимитный ордер для отправки на биржу
type Order struct {
	Market      string          `json:"market"`
	Side        string          `json:"side"` // BUY или SELL
	Type        string          `json:"type"` // LIMIT
	Size        decimal.Decimal `json:"size"`
	LimitPrice  decimal.Decimal `json:"price"`
	ClientID    string          `json:"client_id"`
	TimeInForce string          `json:"instruction,omitempty"` // GTC, POST_ONLY
}

// Стороны и типы ордеров
const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"

	OrderTypeLimit = "LIMIT"

	TimeInForceGTC      = "GTC"
	TimeInForcePostOnly = "POST_ONLY"
)

// Статусы ордеров из push-уведомлений
const (
	OrderStatusNew       = "NEW"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
)

// APIError - ошибка от API биржи
type APIError struct {
	Code     int
	Message  string
	Original error
}

func (e *APIError) Error() string {
	return "paradex: " + e.Message
}

// Unwrap возвращает исходную ошибку для errors.Is/errors.As
func (e *APIError) Unwrap() error {
	return e.Original
}
