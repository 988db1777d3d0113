package bot

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paradexbot/internal/exchange"
	"paradexbot/internal/market"
)

// ============================================================
// Движок: единственный владелец торгового состояния
// ============================================================
//
// Все события (стакан, статусы ордеров, счёт, таймер) сериализуются
// в один канал и обрабатываются ОДНОЙ горутиной. Сетевые вызовы
// уходят в отдельные горутины и возвращают результат событием в тот же
// канал, поэтому на горячем состоянии нет ни одного лока.

// Event - событие входной очереди движка
type Event interface {
	eventType() string
}

// BookSnapshotEvent - свежая вершина стакана (массивы от лучшей цены)
type BookSnapshotEvent struct {
	Bids []market.Level
	Asks []market.Level
}

// BookDeltaEvent - инкрементальные вставки уровней
type BookDeltaEvent struct {
	Inserts []market.Insert
}

// OrderStatusEvent - push-уведомление о смене статуса ордера
type OrderStatusEvent struct {
	ClientID string
	Status   string
}

// AccountUpdateEvent - push-уведомление об изменении счёта (без payload)
type AccountUpdateEvent struct{}

// Результаты отложенных сетевых вызовов
type balanceResult struct {
	summary *exchange.AccountSummary
	err     error
}

type positionsResult struct {
	positions []exchange.Position
	err       error
}

type submitResult struct {
	batchID string
	err     error
}

func (BookSnapshotEvent) eventType() string  { return "book_snapshot" }
func (BookDeltaEvent) eventType() string     { return "book_delta" }
func (OrderStatusEvent) eventType() string   { return "order_status" }
func (AccountUpdateEvent) eventType() string { return "account_update" }
func (balanceResult) eventType() string      { return "balance_result" }
func (positionsResult) eventType() string    { return "positions_result" }
func (submitResult) eventType() string       { return "submit_result" }

// BatchSummary - сводка батча для внешних читателей
type BatchSummary struct {
	ID           string    `json:"id"`
	Direction    Direction `json:"direction"`
	BuyPrice     string    `json:"buy_price"`
	SellPrice    string    `json:"sell_price"`
	Size         string    `json:"size"`
	ExpectedNet  string    `json:"expected_net"`
	BuyClientID  string    `json:"buy_client_id"`
	SellClientID string    `json:"sell_client_id"`
}

// StatusSnapshot - копия состояния движка для status API.
// Обновляется движком после каждого события, читается под RLock.
type StatusSnapshot struct {
	Market          string         `json:"market"`
	BookReady       bool           `json:"book_ready"`
	BestBid         string         `json:"best_bid,omitempty"`
	BestAsk         string         `json:"best_ask,omitempty"`
	Balance         string         `json:"balance_usd"`
	HasOpenPosition bool           `json:"has_open_position"`
	EntryPrice      string         `json:"entry_price,omitempty"`
	LastClosedPnL   string         `json:"last_closed_pnl,omitempty"`
	OpenBatches     []BatchSummary `json:"open_batches"`
}

// Config - параметры движка
type Config struct {
	Market          string
	Fees            FeeSchedule
	MinProfitUSD    decimal.Decimal
	MinProfitSpread decimal.Decimal
	OrderSizeCap    *decimal.Decimal
	Leverage        int
	ReservedPct     decimal.Decimal
	MaxOpenBatches  int

	PollInterval   time.Duration
	BalanceRefresh time.Duration
	InboxSize      int
}

// Engine - однопоточный торговый цикл
type Engine struct {
	log *zap.Logger
	api exchange.TradingAPI
	cfg Config

	view    *market.View
	account *AccountTracker
	scanner *Scanner
	decider *Decider

	// Батчи в полёте, в порядке регистрации
	inFlight []*OrderBatch

	inbox chan Event

	snapMu sync.RWMutex
	snap   StatusSnapshot
}

// NewEngine собирает движок из конфигурации и торгового API
func NewEngine(cfg Config, api exchange.TradingAPI, log *zap.Logger) *Engine {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1024
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BalanceRefresh <= 0 {
		cfg.BalanceRefresh = 30 * time.Second
	}

	return &Engine{
		log:     log,
		api:     api,
		cfg:     cfg,
		view:    market.NewView(),
		account: NewAccountTracker(cfg.Market, cfg.Leverage, cfg.ReservedPct),
		scanner: NewScanner(cfg.Fees, cfg.MinProfitUSD, cfg.MinProfitSpread, cfg.OrderSizeCap),
		decider: NewDecider(cfg.Market, cfg.OrderSizeCap, cfg.MaxOpenBatches),
		inbox:   make(chan Event, cfg.InboxSize),
		snap:    StatusSnapshot{Market: cfg.Market, OpenBatches: []BatchSummary{}},
	}
}

// Post ставит событие во входную очередь движка.
// Блокируется при заполненной очереди, сохраняя порядок прибытия.
func (e *Engine) Post(ev Event) {
	e.inbox <- ev
}

// Snapshot возвращает копию состояния для внешних читателей
func (e *Engine) Snapshot() StatusSnapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap
}

// Run запускает цикл обработки до отмены контекста.
// Перед торговлей выполняется стартовая сверка баланса и позиций:
// состояние движка полностью выводимо из свежего запроса к бирже.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("запуск движка",
		zap.String("market", e.cfg.Market),
		zap.Int("max_open_batches", e.cfg.MaxOpenBatches))

	e.reconcileStartup(ctx)

	balanceTicker := time.NewTicker(e.cfg.BalanceRefresh)
	defer balanceTicker.Stop()
	pollTicker := time.NewTicker(e.cfg.PollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("движок остановлен", zap.Int("open_batches", len(e.inFlight)))
			return ctx.Err()

		case ev := <-e.inbox:
			RecordEvent(ev.eventType())
			e.handle(ctx, ev)
			e.publishSnapshot()

		case <-pollTicker.C:
			RecordEvent("tick")
			e.dispatchPositionsRefresh(ctx)

		case <-balanceTicker.C:
			RecordEvent("tick")
			e.dispatchBalanceRefresh(ctx)
		}
	}
}

// reconcileStartup синхронно подтягивает баланс и позиции до первого события
func (e *Engine) reconcileStartup(ctx context.Context) {
	summary, err := e.api.FetchAccountSummary(ctx)
	if err != nil {
		e.log.Warn("стартовый запрос баланса не удался", zap.Error(err))
	} else {
		e.account.ApplySummary(summary)
	}

	positions, err := e.api.FetchPositions(ctx)
	if err != nil {
		e.log.Warn("стартовый запрос позиций не удался", zap.Error(err))
	} else {
		e.account.ApplyPositions(positions)
	}

	e.log.Info("стартовая сверка завершена",
		zap.String("balance", e.account.Balance.String()),
		zap.Bool("has_open_position", e.account.HasOpenPosition))

	e.publishSnapshot()
}

func (e *Engine) handle(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case BookSnapshotEvent:
		e.view.ApplySnapshot(ev.Bids, ev.Asks)
		e.scanAfterSnapshot(ctx)

	case BookDeltaEvent:
		e.view.ApplyInserts(ev.Inserts)
		e.scanAfterDelta(ctx, ev.Inserts)

	case OrderStatusEvent:
		e.handleOrderStatus(ctx, ev)

	case AccountUpdateEvent:
		e.dispatchBalanceRefresh(ctx)
		e.dispatchPositionsRefresh(ctx)

	case balanceResult:
		if ev.err != nil {
			// Предыдущее значение остаётся действующим
			e.log.Warn("не удалось обновить баланс", zap.Error(ev.err))
			return
		}
		e.account.ApplySummary(ev.summary)

	case positionsResult:
		if ev.err != nil {
			e.log.Warn("не удалось обновить позиции", zap.Error(ev.err))
			return
		}
		e.account.ApplyPositions(ev.positions)

	case submitResult:
		e.handleSubmitResult(ev)
	}
}

// scanAfterSnapshot: сначала вершина стакана, затем полная глубина.
// Полноглубинный скан пропускается при открытой позиции.
// На одно событие выполняется не более одной попытки отправки.
func (e *Engine) scanAfterSnapshot(ctx context.Context) {
	if c := e.scanner.ScanTop(e.view); c != nil {
		e.tryCandidate(ctx, c)
		return
	}
	if e.account.HasOpenPosition {
		return
	}
	if c := e.scanner.ScanDepth(e.view); c != nil {
		e.tryCandidate(ctx, c)
	}
}

// scanAfterDelta: парная проверка вставленных уровней, затем вершина
func (e *Engine) scanAfterDelta(ctx context.Context, inserts []market.Insert) {
	if c := e.scanner.ScanInserts(inserts); c != nil {
		e.tryCandidate(ctx, c)
		return
	}
	if c := e.scanner.ScanTop(e.view); c != nil {
		e.tryCandidate(ctx, c)
	}
}

// tryCandidate прогоняет кандидата через риск-гейты и при одобрении
// регистрирует батч ДО асинхронной отправки: следующее событие уже
// видит занятый слот и не отправит второй батч против того же перекоса.
func (e *Engine) tryCandidate(ctx context.Context, c *Candidate) {
	batch, reason := e.decider.Decide(c, e.account, len(e.inFlight))
	if batch == nil {
		RecordOpportunity(c.Source, false)
		RecordRejection(reason)
		e.log.Info("возможность отклонена",
			zap.String("source", c.Source),
			zap.String("reason", string(reason)),
			zap.String("buy", c.BuyPrice.String()),
			zap.String("sell", c.SellPrice.String()),
			zap.String("net", c.Net.String()))
		return
	}

	batch.SubmittedAtMs = time.Now().UnixMilli()
	e.inFlight = append(e.inFlight, batch)

	RecordOpportunity(c.Source, true)
	net, _ := c.Net.Float64()
	NetProfitObserved.Observe(net)

	e.log.Info("отправка батча",
		zap.String("batch_id", batch.ID),
		zap.String("source", c.Source),
		zap.String("direction", string(batch.Direction)),
		zap.String("buy", batch.BuyPrice.String()),
		zap.String("sell", batch.SellPrice.String()),
		zap.String("size", batch.Size.String()),
		zap.String("expected_net", batch.ExpectedNet.String()))

	orders := batch.Orders
	id := batch.ID
	go func() {
		err := e.api.SubmitOrderBatch(ctx, orders)
		e.Post(submitResult{batchID: id, err: err})
	}()
}

// handleSubmitResult снимает батч с учёта при неудачной отправке.
// Повторных попыток нет: следующая возможность свободна пробовать заново.
func (e *Engine) handleSubmitResult(ev submitResult) {
	RecordSubmission(ev.err)
	if ev.err == nil {
		e.log.Info("батч принят биржей", zap.String("batch_id", ev.batchID))
		return
	}

	e.log.Error("отправка батча не удалась",
		zap.String("batch_id", ev.batchID),
		zap.Error(ev.err))
	e.removeBatchByID(ev.batchID)
}

// handleOrderStatus обрабатывает терминальный статус ноги.
// Батч снимается с учёта по ПЕРВОЙ терминальной ноге; вторая нога с этого
// момента живёт на бирже без сопровождения движком. Поведение сохранено
// как есть и может оставлять неотслеживаемый ордер, если биржа сама
// не отменяет парную ногу.
func (e *Engine) handleOrderStatus(ctx context.Context, ev OrderStatusEvent) {
	if ev.Status != exchange.OrderStatusFilled && ev.Status != exchange.OrderStatusCancelled {
		return
	}

	for i, b := range e.inFlight {
		if !b.ContainsClientID(ev.ClientID) {
			continue
		}
		e.inFlight = append(e.inFlight[:i], e.inFlight[i+1:]...)
		BatchesCompleted.WithLabelValues(ev.Status).Inc()
		e.log.Info("батч завершён",
			zap.String("batch_id", b.ID),
			zap.String("client_id", ev.ClientID),
			zap.String("status", ev.Status))

		e.dispatchBalanceRefresh(ctx)
		e.dispatchPositionsRefresh(ctx)
		return
	}
}

func (e *Engine) removeBatchByID(id string) {
	for i, b := range e.inFlight {
		if b.ID == id {
			e.inFlight = append(e.inFlight[:i], e.inFlight[i+1:]...)
			return
		}
	}
}

// dispatchBalanceRefresh выполняет запрос в отдельной горутине;
// результат вернётся событием balanceResult
func (e *Engine) dispatchBalanceRefresh(ctx context.Context) {
	go func() {
		summary, err := e.api.FetchAccountSummary(ctx)
		e.Post(balanceResult{summary: summary, err: err})
	}()
}

func (e *Engine) dispatchPositionsRefresh(ctx context.Context) {
	go func() {
		positions, err := e.api.FetchPositions(ctx)
		e.Post(positionsResult{positions: positions, err: err})
	}()
}

// publishSnapshot публикует копию состояния для status API и метрик
func (e *Engine) publishSnapshot() {
	snap := StatusSnapshot{
		Market:          e.cfg.Market,
		BookReady:       e.view.Ready(),
		Balance:         e.account.Balance.String(),
		HasOpenPosition: e.account.HasOpenPosition,
		OpenBatches:     make([]BatchSummary, 0, len(e.inFlight)),
	}
	if e.view.Ready() {
		snap.BestBid = e.view.BestBidPrice.String()
		snap.BestAsk = e.view.BestAskPrice.String()
	}
	if e.account.EntryPrice != nil {
		snap.EntryPrice = e.account.EntryPrice.String()
	}
	if e.account.LastClosedPnL != nil {
		snap.LastClosedPnL = e.account.LastClosedPnL.String()
		pnl, _ := e.account.LastClosedPnL.Float64()
		LastClosedPnL.Set(pnl)
	}
	for _, b := range e.inFlight {
		snap.OpenBatches = append(snap.OpenBatches, BatchSummary{
			ID:           b.ID,
			Direction:    b.Direction,
			BuyPrice:     b.BuyPrice.String(),
			SellPrice:    b.SellPrice.String(),
			Size:         b.Size.String(),
			ExpectedNet:  b.ExpectedNet.String(),
			BuyClientID:  b.BuyClientID,
			SellClientID: b.SellClientID,
		})
	}

	balance, _ := e.account.Balance.Float64()
	UpdateAccountState(balance, e.account.HasOpenPosition, len(e.inFlight))

	e.snapMu.Lock()
	e.snap = snap
	e.snapMu.Unlock()
}
