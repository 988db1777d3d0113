package bot

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paradexbot/internal/exchange"
)

// ============================================================
// Решение о выставлении пары ордеров и сборка батча
// ============================================================

// RejectReason - причина отказа от возможности
type RejectReason string

const (
	RejectPositionOpen       RejectReason = "position_open"
	RejectInsufficientMargin RejectReason = "insufficient_margin"
	RejectTooManyOpenOrders  RejectReason = "too_many_open_orders"
)

// OrderBatch - зарегистрированная пара ордеров в полёте.
// Обе ноги несут client id вида <batch id>-buy / <batch id>-sell,
// по которым о них отчитывается поток статусов ордеров.
type OrderBatch struct {
	ID            string
	BuyClientID   string
	SellClientID  string
	Direction     Direction
	BuyPrice      decimal.Decimal
	SellPrice     decimal.Decimal
	Size          decimal.Decimal
	ExpectedNet   decimal.Decimal
	Orders        []exchange.Order
	SubmittedAtMs int64
}

// ContainsClientID сообщает, принадлежит ли client id одной из ног батча
func (b *OrderBatch) ContainsClientID(clientID string) bool {
	return clientID == b.BuyClientID || clientID == b.SellClientID
}

// Decider применяет риск-гейты к кандидату и собирает батч
type Decider struct {
	market         string
	orderSizeCap   *decimal.Decimal
	maxOpenBatches int
}

// NewDecider создаёт решатель для одного рынка
func NewDecider(market string, orderSizeCap *decimal.Decimal, maxOpenBatches int) *Decider {
	return &Decider{
		market:         market,
		orderSizeCap:   orderSizeCap,
		maxOpenBatches: maxOpenBatches,
	}
}

// Decide проверяет кандидата против состояния счёта и лимита батчей.
// Порядок гейтов фиксирован: позиция, потолок размера, маржа, лимит батчей.
// Возвращает либо собранный батч, либо причину отказа.
func (dec *Decider) Decide(c *Candidate, account *AccountTracker, inFlight int) (*OrderBatch, RejectReason) {
	if account.HasOpenPosition {
		return nil, RejectPositionOpen
	}

	size := c.Size
	if dec.orderSizeCap != nil && size.GreaterThan(*dec.orderSizeCap) {
		size = *dec.orderSizeCap
	}

	// Маржа считается по нотионалу входной ноги:
	// для LONG входит покупка, для SHORT - продажа
	entryPrice := c.BuyPrice
	if c.Direction == DirectionShort {
		entryPrice = c.SellPrice
	}
	if !account.MarginGate(entryPrice.Mul(size)) {
		return nil, RejectInsufficientMargin
	}

	if inFlight >= dec.maxOpenBatches {
		return nil, RejectTooManyOpenOrders
	}

	id := uuid.NewString()
	batch := &OrderBatch{
		ID:           id,
		BuyClientID:  id + "-buy",
		SellClientID: id + "-sell",
		Direction:    c.Direction,
		BuyPrice:     c.BuyPrice,
		SellPrice:    c.SellPrice,
		Size:         size,
		ExpectedNet:  c.Net,
	}

	// Покупка ставится GTC, продажа только мейкером (post-only):
	// пересечение ценой продажи чужой заявки отменит ногу, а не исполнит тейкером
	batch.Orders = []exchange.Order{
		{
			Market:      dec.market,
			Side:        exchange.OrderSideBuy,
			Type:        exchange.OrderTypeLimit,
			Size:        size,
			LimitPrice:  c.BuyPrice,
			ClientID:    batch.BuyClientID,
			TimeInForce: exchange.TimeInForceGTC,
		},
		{
			Market:      dec.market,
			Side:        exchange.OrderSideSell,
			Type:        exchange.OrderTypeLimit,
			Size:        size,
			LimitPrice:  c.SellPrice,
			ClientID:    batch.SellClientID,
			TimeInForce: exchange.TimeInForcePostOnly,
		},
	}

	return batch, ""
}
