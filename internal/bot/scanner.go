package bot

import (
	"github.com/shopspring/decimal"

	"paradexbot/internal/market"
)

// ============================================================
// Сканер инверсий bid/ask: три независимые стратегии обнаружения
// ============================================================

// Источник кандидата (для логов и метрик)
const (
	SourceTop     = "top_of_book"
	SourceInserts = "inserts"
	SourceDepth   = "depth"
)

// Candidate - найденная возможность: пара цен, размер и направление
type Candidate struct {
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
	Size      decimal.Decimal
	Direction Direction
	Gross     decimal.Decimal
	Fees      decimal.Decimal
	Net       decimal.Decimal
	Source    string
}

// Scanner - чистые функции обнаружения над рыночным срезом.
// Состояния не держит, все параметры фиксируются при создании.
type Scanner struct {
	fees FeeSchedule

	minProfitUSD    decimal.Decimal
	minProfitSpread decimal.Decimal
	orderSizeCap    *decimal.Decimal // nil = без ограничения
}

// NewScanner создаёт сканер с заданными комиссиями и порогами
func NewScanner(fees FeeSchedule, minProfitUSD, minProfitSpread decimal.Decimal, orderSizeCap *decimal.Decimal) *Scanner {
	return &Scanner{
		fees:            fees,
		minProfitUSD:    minProfitUSD,
		minProfitSpread: minProfitSpread,
		orderSizeCap:    orderSizeCap,
	}
}

// clipSize ограничивает размер конфигурированным потолком
func (s *Scanner) clipSize(size decimal.Decimal) decimal.Decimal {
	if s.orderSizeCap != nil && size.GreaterThan(*s.orderSizeCap) {
		return *s.orderSizeCap
	}
	return size
}

// evaluate проверяет пару цен по обоим вариантам комиссий
// и возвращает кандидата с большим чистым профитом, если порог пройден
func (s *Scanner) evaluate(buy, sell, size decimal.Decimal, source string) *Candidate {
	if size.Sign() <= 0 {
		return nil
	}

	long, short := EvaluateBoth(buy, sell, size, s.fees)
	best, ok := PickDirection(long, short, s.minProfitUSD)
	if !ok {
		return nil
	}

	return &Candidate{
		BuyPrice:  buy,
		SellPrice: sell,
		Size:      size,
		Direction: best.Direction,
		Gross:     best.Gross,
		Fees:      best.Fees,
		Net:       best.Net,
		Source:    source,
	}
}

// ScanTop проверяет вершину стакана на инверсию bid > ask.
// Размер = min(qty bid, qty ask) с учётом потолка.
func (s *Scanner) ScanTop(view *market.View) *Candidate {
	if !view.Ready() {
		return nil
	}
	if !view.BestBidPrice.GreaterThan(view.BestAskPrice) {
		return nil
	}

	size := decimal.Min(view.BestBidQty, view.BestAskQty)
	size = s.clipSize(size)

	return s.evaluate(view.BestAskPrice, view.BestBidPrice, size, SourceTop)
}

// ScanInserts проверяет пару только что вставленных уровней.
// Срабатывает только на ровно двух вставках: одной BUY и одной SELL.
// Равные цены - не возможность: нужен строгий перекос sell > buy.
func (s *Scanner) ScanInserts(entries []market.Insert) *Candidate {
	if len(entries) != 2 {
		return nil
	}

	var buyLeg, sellLeg *market.Insert
	for i := range entries {
		switch entries[i].Side {
		case market.SideBuy:
			buyLeg = &entries[i]
		case market.SideSell:
			sellLeg = &entries[i]
		}
	}
	if buyLeg == nil || sellLeg == nil {
		return nil
	}

	// Покупаем на уровне BUY, продаём на уровне SELL
	if !sellLeg.Price.GreaterThan(buyLeg.Price) {
		return nil
	}

	size := decimal.Min(buyLeg.Size, sellLeg.Size)
	size = s.clipSize(size)

	return s.evaluate(buyLeg.Price, sellLeg.Price, size, SourceInserts)
}

// ScanDepth обходит полные списки bid и ask (bid внешний, ask внутренний)
// и возвращает ПЕРВУЮ подходящую пару, после чего останавливается.
// Первая пара не обязательно самая прибыльная - порядок обхода фиксирован
// намеренно, менять на поиск максимума нельзя без пересмотра поведения.
func (s *Scanner) ScanDepth(view *market.View) *Candidate {
	if len(view.Bids) == 0 || len(view.Asks) == 0 {
		return nil
	}

	for _, bid := range view.Bids {
		for _, ask := range view.Asks {
			var buy, sell decimal.Decimal
			var dir Direction

			switch {
			case bid.Price.GreaterThanOrEqual(ask.Price.Add(s.minProfitSpread)):
				// Инверсия: bid выше ask - покупаем ask, продаём bid
				buy, sell, dir = ask.Price, bid.Price, DirectionLong
			case ask.Price.GreaterThanOrEqual(bid.Price.Add(s.minProfitSpread)):
				buy, sell, dir = bid.Price, ask.Price, DirectionShort
			default:
				continue
			}

			size := s.clipSize(decimal.Min(bid.Size, ask.Size))
			if size.Sign() <= 0 {
				continue
			}

			// Вариант комиссий фиксирован классификацией пары, не перебирается
			long, short := EvaluateBoth(buy, sell, size, s.fees)
			est := long
			if dir == DirectionShort {
				est = short
			}
			if est.Net.LessThan(s.minProfitUSD) {
				continue
			}

			return &Candidate{
				BuyPrice:  buy,
				SellPrice: sell,
				Size:      size,
				Direction: dir,
				Gross:     est.Gross,
				Fees:      est.Fees,
				Net:       est.Net,
				Source:    SourceDepth,
			}
		}
	}

	return nil
}
