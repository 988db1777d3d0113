package bot

import (
	"github.com/shopspring/decimal"

	"paradexbot/internal/exchange"
)

// ============================================================
// Трекер баланса и позиции по рынку
// ============================================================

// AccountTracker хранит последнее известное состояние счёта.
// Мутируется ТОЛЬКО из горутины движка; внешние читатели получают
// копию через снапшот движка, не через этот тип.
type AccountTracker struct {
	market string

	leverage    decimal.Decimal
	reservedPct decimal.Decimal

	// Свободный залог в USD по последнему успешному запросу.
	// При ошибке запроса сохраняется предыдущее значение.
	Balance decimal.Decimal

	HasOpenPosition bool
	EntryPrice      *decimal.Decimal

	// PnL последней закрытой позиции. Отслеживается и отдаётся наружу,
	// но решения по новым ордерам от него не зависят.
	LastClosedPnL *decimal.Decimal
}

// NewAccountTracker создаёт трекер для одного рынка
func NewAccountTracker(market string, leverage int, reservedPct decimal.Decimal) *AccountTracker {
	return &AccountTracker{
		market:      market,
		leverage:    decimal.NewFromInt(int64(leverage)),
		reservedPct: reservedPct,
	}
}

// ApplySummary обновляет свободный залог из сводки счёта
func (a *AccountTracker) ApplySummary(summary *exchange.AccountSummary) {
	if summary == nil {
		return
	}
	a.Balance = summary.FreeCollateral
}

// ApplyPositions пересчитывает состояние позиции из списка позиций биржи.
// Открытая позиция по нашему рынку имеет приоритет; иначе из закрытых
// берётся самая свежая по времени закрытия для фиксации её PnL.
func (a *AccountTracker) ApplyPositions(positions []exchange.Position) {
	var open *exchange.Position
	var lastClosed *exchange.Position
	var lastClosedAt int64

	for i := range positions {
		p := &positions[i]
		if p.Market != a.market {
			continue
		}

		switch p.Status {
		case exchange.PositionStatusOpen:
			if open == nil {
				open = p
			}
		case exchange.PositionStatusClosed:
			if ts := p.ResolveClosedAt(); lastClosed == nil || ts > lastClosedAt {
				lastClosed = p
				lastClosedAt = ts
			}
		}
	}

	if open != nil {
		a.HasOpenPosition = true
		// Имя поля с ценой входа гуляет между версиями API,
		// берём первое заполненное; отсутствие всех - nil, не ошибка
		a.EntryPrice = open.ResolveEntryPrice()
		return
	}

	a.HasOpenPosition = false
	a.EntryPrice = nil
	if lastClosed != nil {
		a.LastClosedPnL = lastClosed.RealizedPnl
	}
}

// MarginGate проверяет, укладывается ли нотионал входной ноги в доступную
// маржу: notional / leverage <= balance * reservedPct. Равенство проходит.
func (a *AccountTracker) MarginGate(entryNotional decimal.Decimal) bool {
	required := entryNotional.Div(a.leverage)
	available := a.Balance.Mul(a.reservedPct)
	return required.LessThanOrEqual(available)
}
