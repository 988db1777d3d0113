package handlers

import (
	"encoding/json"
	"net/http"

	"paradexbot/internal/bot"
)

// StatusProvider отдает копию текущего состояния движка.
// Реализуется bot.Engine; снимок безопасен для чтения из других горутин.
type StatusProvider interface {
	Snapshot() bot.StatusSnapshot
}

// StatusHandler обрабатывает HTTP запросы статуса бота.
//
// Endpoints:
// - GET /api/v1/status - полное состояние: книга, баланс, позиция, батчи
// - GET /api/v1/batches - только список батчей в полете
type StatusHandler struct {
	engine StatusProvider
}

// NewStatusHandler создает новый StatusHandler с внедрением зависимостей.
func NewStatusHandler(engine StatusProvider) *StatusHandler {
	return &StatusHandler{
		engine: engine,
	}
}

// GetStatus возвращает текущее состояние движка.
//
// GET /api/v1/status
//
// Response 200 OK:
//
//	{
//	  "market": "ETH-USD-PERP",
//	  "book_ready": true,
//	  "best_bid": "2501.5",
//	  "best_ask": "2501.9",
//	  "balance_usd": "10250.00",
//	  "has_open_position": false,
//	  "open_batches": [...]
//	}
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.engine == nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "engine not initialized",
		})
		return
	}

	snap := h.engine.Snapshot()

	// Пустой список сериализуем как [], а не null
	if snap.OpenBatches == nil {
		snap.OpenBatches = []bot.BatchSummary{}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(snap)
}

// GetBatches возвращает список батчей ордеров в полете.
//
// GET /api/v1/batches
//
// Response 200 OK:
//
//	[
//	  {
//	    "id": "c0a1...",
//	    "direction": "LONG",
//	    "buy_price": "2500",
//	    "sell_price": "2502",
//	    "size": "0.5",
//	    "expected_net": "0.87",
//	    "buy_client_id": "c0a1...-buy",
//	    "sell_client_id": "c0a1...-sell"
//	  }
//	]
func (h *StatusHandler) GetBatches(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.engine == nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error: "engine not initialized",
		})
		return
	}

	batches := h.engine.Snapshot().OpenBatches
	if batches == nil {
		batches = []bot.BatchSummary{}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(batches)
}
