package bot

import (
	"github.com/shopspring/decimal"
)

// ============================================================
// Расчёт чистой прибыли инверсии bid/ask с учётом комиссий
// ============================================================

// Direction - направление исполнения пары ордеров
type Direction string

const (
	// DirectionLong: тейкер-покупка по ask, мейкер-продажа по bid
	DirectionLong Direction = "LONG"
	// DirectionShort: мейкер-покупка по ask, тейкер-продажа по bid
	DirectionShort Direction = "SHORT"
)

// FeeSchedule - ставки комиссий биржи в долях
// (0.0003 = 0.03%). Мейкерская ставка может быть отрицательной (rebate).
type FeeSchedule struct {
	Taker decimal.Decimal
	Maker decimal.Decimal
}

// ProfitEstimate - результат оценки одного варианта исполнения
type ProfitEstimate struct {
	Direction Direction
	Gross     decimal.Decimal // (sell - buy) * size
	Fees      decimal.Decimal // сумма комиссий обеих ног
	Net       decimal.Decimal // Gross - Fees
}

// NetProfit вычисляет чистую прибыль пары ордеров:
// покупка size по buyPrice со ставкой feeBuy,
// продажа size по sellPrice со ставкой feeSell.
// Комиссия каждой ноги начисляется на её нотионал.
func NetProfit(buyPrice, sellPrice, size, feeBuy, feeSell decimal.Decimal) decimal.Decimal {
	gross := sellPrice.Sub(buyPrice).Mul(size)
	fees := buyPrice.Mul(size).Mul(feeBuy).Add(sellPrice.Mul(size).Mul(feeSell))
	return gross.Sub(fees)
}

// EvaluateBoth оценивает оба варианта исполнения одной инверсии:
// покупаем по askPrice, продаём по bidPrice (bidPrice > askPrice).
// LONG платит тейкера на покупке и мейкера на продаже, SHORT наоборот.
func EvaluateBoth(askPrice, bidPrice, size decimal.Decimal, fees FeeSchedule) (long, short ProfitEstimate) {
	gross := bidPrice.Sub(askPrice).Mul(size)

	longFees := askPrice.Mul(size).Mul(fees.Taker).Add(bidPrice.Mul(size).Mul(fees.Maker))
	shortFees := askPrice.Mul(size).Mul(fees.Maker).Add(bidPrice.Mul(size).Mul(fees.Taker))

	long = ProfitEstimate{
		Direction: DirectionLong,
		Gross:     gross,
		Fees:      longFees,
		Net:       gross.Sub(longFees),
	}
	short = ProfitEstimate{
		Direction: DirectionShort,
		Gross:     gross,
		Fees:      shortFees,
		Net:       gross.Sub(shortFees),
	}
	return long, short
}

// PickDirection выбирает вариант с большей чистой прибылью.
// Порог minProfit включительный: Net == minProfit принимается.
// При равенстве вариантов выбирается LONG.
// Возвращает (estimate, false) если ни один вариант не проходит порог.
func PickDirection(long, short ProfitEstimate, minProfit decimal.Decimal) (ProfitEstimate, bool) {
	best := long
	if short.Net.GreaterThan(long.Net) {
		best = short
	}
	if best.Net.LessThan(minProfit) {
		return ProfitEstimate{}, false
	}
	return best, true
}
