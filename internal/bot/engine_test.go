package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paradexbot/internal/exchange"
	"paradexbot/internal/market"
)

// fakeAPI - тестовый двойник торгового API
type fakeAPI struct {
	mu sync.Mutex

	summary      *exchange.AccountSummary
	summaryErr   error
	positions    []exchange.Position
	positionsErr error

	submitErr error
	submitted [][]exchange.Order
}

func (f *fakeAPI) FetchAccountSummary(ctx context.Context) (*exchange.AccountSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary, f.summaryErr
}

func (f *fakeAPI) FetchPositions(ctx context.Context) ([]exchange.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions, f.positionsErr
}

func (f *fakeAPI) SubmitOrderBatch(ctx context.Context, orders []exchange.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, orders)
	return f.submitErr
}

func (f *fakeAPI) submittedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func testEngine(t *testing.T, api *fakeAPI) *Engine {
	t.Helper()
	e := NewEngine(Config{
		Market:          "ETH-USD-PERP",
		Fees:            zeroFees(),
		MinProfitUSD:    decimal.Zero,
		MinProfitSpread: d("1"),
		Leverage:        1,
		ReservedPct:     d("1.0"),
		MaxOpenBatches:  1,
	}, api, zap.NewNop())
	e.account.Balance = d("1000000")
	return e
}

// awaitEvent снимает следующее событие из очереди движка
func awaitEvent(t *testing.T, e *Engine) Event {
	t.Helper()
	select {
	case ev := <-e.inbox:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for engine event")
		return nil
	}
}

func invertedSnapshot() BookSnapshotEvent {
	return BookSnapshotEvent{
		Bids: []market.Level{{Price: d("101"), Size: d("1")}},
		Asks: []market.Level{{Price: d("100"), Size: d("1")}},
	}
}

func TestEngineSubmitsOnTopInversion(t *testing.T) {
	api := &fakeAPI{}
	e := testEngine(t, api)
	ctx := context.Background()

	e.handle(ctx, invertedSnapshot())

	if len(e.inFlight) != 1 {
		t.Fatalf("inFlight = %d, want 1", len(e.inFlight))
	}
	batch := e.inFlight[0]
	if len(batch.Orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(batch.Orders))
	}

	res, ok := awaitEvent(t, e).(submitResult)
	if !ok {
		t.Fatal("expected submitResult event")
	}
	if res.err != nil {
		t.Fatalf("submit error: %v", res.err)
	}
	e.handle(ctx, res)

	if len(e.inFlight) != 1 {
		t.Errorf("inFlight after ack = %d, want 1", len(e.inFlight))
	}
	if api.submittedCount() != 1 {
		t.Errorf("submitted = %d, want 1", api.submittedCount())
	}
}

func TestEngineSubmitFailureUnregisters(t *testing.T) {
	api := &fakeAPI{submitErr: errors.New("order batch rejected")}
	e := testEngine(t, api)
	ctx := context.Background()

	e.handle(ctx, invertedSnapshot())
	if len(e.inFlight) != 1 {
		t.Fatalf("inFlight = %d, want 1", len(e.inFlight))
	}

	res, ok := awaitEvent(t, e).(submitResult)
	if !ok {
		t.Fatal("expected submitResult event")
	}
	if res.err == nil {
		t.Fatal("submit error lost")
	}
	e.handle(ctx, res)

	// Неудачная отправка не блокирует следующие попытки
	if len(e.inFlight) != 0 {
		t.Errorf("inFlight after failure = %d, want 0", len(e.inFlight))
	}
}

func TestEnginePositionGateBlocksSubmission(t *testing.T) {
	api := &fakeAPI{}
	e := testEngine(t, api)
	e.account.HasOpenPosition = true
	ctx := context.Background()

	e.handle(ctx, invertedSnapshot())

	if len(e.inFlight) != 0 {
		t.Errorf("inFlight = %d, want 0", len(e.inFlight))
	}
	if api.submittedCount() != 0 {
		t.Errorf("submitted = %d, want 0", api.submittedCount())
	}
}

func TestEngineBatchCapBlocksSecondSubmission(t *testing.T) {
	api := &fakeAPI{}
	e := testEngine(t, api)
	ctx := context.Background()

	e.handle(ctx, invertedSnapshot())
	if len(e.inFlight) != 1 {
		t.Fatalf("inFlight = %d, want 1", len(e.inFlight))
	}

	// Второй перекос при занятом слоте не порождает батча
	e.handle(ctx, invertedSnapshot())
	if len(e.inFlight) != 1 {
		t.Errorf("inFlight = %d, want 1", len(e.inFlight))
	}
}

func TestEngineTerminalStatusRemovesBatch(t *testing.T) {
	for _, status := range []string{exchange.OrderStatusFilled, exchange.OrderStatusCancelled} {
		t.Run(status, func(t *testing.T) {
			api := &fakeAPI{summary: &exchange.AccountSummary{FreeCollateral: d("500")}}
			e := testEngine(t, api)
			ctx := context.Background()

			e.handle(ctx, invertedSnapshot())
			if len(e.inFlight) != 1 {
				t.Fatalf("inFlight = %d, want 1", len(e.inFlight))
			}
			batch := e.inFlight[0]
			awaitEvent(t, e) // submitResult

			// Терминальный статус любой ноги снимает батч с учёта
			e.handle(ctx, OrderStatusEvent{ClientID: batch.SellClientID, Status: status})
			if len(e.inFlight) != 0 {
				t.Fatalf("inFlight = %d, want 0", len(e.inFlight))
			}

			// Завершение батча запускает сверку баланса и позиций
			sawBalance, sawPositions := false, false
			for i := 0; i < 2; i++ {
				switch ev := awaitEvent(t, e).(type) {
				case balanceResult:
					sawBalance = true
					e.handle(ctx, ev)
				case positionsResult:
					sawPositions = true
					e.handle(ctx, ev)
				}
			}
			if !sawBalance || !sawPositions {
				t.Errorf("refresh events: balance=%v positions=%v", sawBalance, sawPositions)
			}
			if !e.account.Balance.Equal(d("500")) {
				t.Errorf("Balance = %s, want 500", e.account.Balance)
			}
		})
	}
}

func TestEngineNonTerminalStatusKeepsBatch(t *testing.T) {
	api := &fakeAPI{}
	e := testEngine(t, api)
	ctx := context.Background()

	e.handle(ctx, invertedSnapshot())
	batch := e.inFlight[0]
	awaitEvent(t, e)

	e.handle(ctx, OrderStatusEvent{ClientID: batch.BuyClientID, Status: exchange.OrderStatusNew})
	if len(e.inFlight) != 1 {
		t.Errorf("inFlight = %d, want 1", len(e.inFlight))
	}
}

func TestEngineUnknownClientIDIgnored(t *testing.T) {
	api := &fakeAPI{}
	e := testEngine(t, api)
	ctx := context.Background()

	e.handle(ctx, invertedSnapshot())
	awaitEvent(t, e)

	e.handle(ctx, OrderStatusEvent{ClientID: "foreign-buy", Status: exchange.OrderStatusFilled})
	if len(e.inFlight) != 1 {
		t.Errorf("inFlight = %d, want 1", len(e.inFlight))
	}
}

func TestEngineDeltaScanSubmits(t *testing.T) {
	api := &fakeAPI{}
	e := testEngine(t, api)
	ctx := context.Background()

	e.handle(ctx, BookDeltaEvent{Inserts: []market.Insert{
		{Side: market.SideBuy, Price: d("100"), Size: d("0.5")},
		{Side: market.SideSell, Price: d("101"), Size: d("0.5")},
	}})

	if len(e.inFlight) != 1 {
		t.Fatalf("inFlight = %d, want 1", len(e.inFlight))
	}
	b := e.inFlight[0]
	if !b.BuyPrice.Equal(d("100")) || !b.SellPrice.Equal(d("101")) || !b.Size.Equal(d("0.5")) {
		t.Errorf("batch = buy %s sell %s size %s", b.BuyPrice, b.SellPrice, b.Size)
	}
	awaitEvent(t, e)
}

func TestEngineBalanceErrorKeepsPriorValue(t *testing.T) {
	api := &fakeAPI{}
	e := testEngine(t, api)
	ctx := context.Background()

	e.handle(ctx, balanceResult{err: errors.New("http 502")})
	if !e.account.Balance.Equal(d("1000000")) {
		t.Errorf("Balance = %s, want prior 1000000", e.account.Balance)
	}

	e.handle(ctx, positionsResult{err: errors.New("http 502")})
	if e.account.HasOpenPosition {
		t.Error("HasOpenPosition changed on failed refresh")
	}
}

func TestEngineSnapshotForReaders(t *testing.T) {
	api := &fakeAPI{}
	e := testEngine(t, api)
	ctx := context.Background()

	e.handle(ctx, invertedSnapshot())
	e.publishSnapshot()
	awaitEvent(t, e)

	snap := e.Snapshot()
	if snap.Market != "ETH-USD-PERP" {
		t.Errorf("Market = %q", snap.Market)
	}
	if !snap.BookReady || snap.BestBid != "101" || snap.BestAsk != "100" {
		t.Errorf("book: ready=%v bid=%s ask=%s", snap.BookReady, snap.BestBid, snap.BestAsk)
	}
	if len(snap.OpenBatches) != 1 {
		t.Fatalf("OpenBatches = %d, want 1", len(snap.OpenBatches))
	}
	if snap.OpenBatches[0].ID == "" {
		t.Error("batch summary without id")
	}
}

func TestEngineStartupReconcile(t *testing.T) {
	api := &fakeAPI{
		summary: &exchange.AccountSummary{FreeCollateral: d("2500")},
		positions: []exchange.Position{
			{Market: "ETH-USD-PERP", Status: exchange.PositionStatusOpen, EntryPrice: dp("2400")},
		},
	}
	e := testEngine(t, api)
	e.account.Balance = decimal.Zero

	e.reconcileStartup(context.Background())

	if !e.account.Balance.Equal(d("2500")) {
		t.Errorf("Balance = %s, want 2500", e.account.Balance)
	}
	if !e.account.HasOpenPosition {
		t.Error("HasOpenPosition = false, want true")
	}

	snap := e.Snapshot()
	if !snap.HasOpenPosition || snap.EntryPrice != "2400" {
		t.Errorf("snapshot: open=%v entry=%s", snap.HasOpenPosition, snap.EntryPrice)
	}
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	api := &fakeAPI{summary: &exchange.AccountSummary{FreeCollateral: d("10")}}
	e := testEngine(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	e.Post(invertedSnapshot())
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
