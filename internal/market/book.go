package market

import (
	"github.com/shopspring/decimal"
)

// Стороны заявок в стакане (формат Paradex)
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Level - уровень цены в стакане
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Insert - инкрементальная вставка уровня из канала дельт
type Insert struct {
	Side  string // BUY или SELL
	Price decimal.Decimal
	Size  decimal.Decimal
}

// View - представление вершины стакана для одного рынка
//
// Обновляется из двух источников:
// - снапшоты (order_book_snapshot.*): полная замена bids/asks
// - дельты (order_book.*.deltas): вставки, улучшающие best bid/ask
//
// Это best-effort аппроксимация вершины стакана: удаления и отмены
// уровней не моделируются. Все четыре поля вершины либо заполнены
// одновременно, либо view считается не готовым к сканированию.
type View struct {
	BestBidPrice decimal.Decimal
	BestBidQty   decimal.Decimal
	BestAskPrice decimal.Decimal
	BestAskQty   decimal.Decimal

	// Полные стороны последнего снапшота (best-first, глубина ограничена
	// подпиской). Нужны полноглубинному скану.
	Bids []Level
	Asks []Level

	hasBid bool
	hasAsk bool
}

// NewView создаёт пустое представление стакана
func NewView() *View {
	return &View{}
}

// Ready возвращает true, когда обе стороны вершины стакана известны
func (v *View) Ready() bool {
	return v.hasBid && v.hasAsk
}

// ApplySnapshot заменяет состояние стакана данными свежего снапшота.
// Массивы ожидаются best-first. Снапшот с пустой стороной отбрасывается
// целиком: обе стороны обновляются только вместе, свежие уровни одной
// стороны никогда не сопоставляются уровням прошлого снапшота другой.
func (v *View) ApplySnapshot(bids, asks []Level) {
	if len(bids) == 0 || len(asks) == 0 {
		return
	}

	v.Bids = bids
	v.BestBidPrice = bids[0].Price
	v.BestBidQty = bids[0].Size
	v.hasBid = true

	v.Asks = asks
	v.BestAskPrice = asks[0].Price
	v.BestAskQty = asks[0].Size
	v.hasAsk = true
}

// ApplyInserts обрабатывает пакет инкрементальных вставок.
//
// BUY с ценой строго выше текущего best bid (или при отсутствии bid)
// становится новым best bid; SELL с ценой строго ниже текущего best ask
// (или при отсутствии ask) становится новым best ask.
//
// Записи с неположительным размером или отрицательной ценой
// пропускаются, остальной пакет обрабатывается дальше.
func (v *View) ApplyInserts(entries []Insert) {
	for _, e := range entries {
		if e.Size.Sign() <= 0 || e.Price.Sign() < 0 {
			continue
		}
		switch e.Side {
		case SideBuy:
			if !v.hasBid || e.Price.GreaterThan(v.BestBidPrice) {
				v.BestBidPrice = e.Price
				v.BestBidQty = e.Size
				v.hasBid = true
			}
		case SideSell:
			if !v.hasAsk || e.Price.LessThan(v.BestAskPrice) {
				v.BestAskPrice = e.Price
				v.BestAskQty = e.Size
				v.hasAsk = true
			}
		default:
			// Неизвестная сторона - пропускаем запись
		}
	}
}
