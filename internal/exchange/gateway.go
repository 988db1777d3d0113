package exchange

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paradexbot/internal/market"
)

// GatewayConfig - параметры шлюза рыночных и приватных данных
type GatewayConfig struct {
	WSURL  string
	Market string
	// Depth - глубина снапшотов стакана (уровней на сторону)
	Depth     int
	Reconnect WSReconnectConfig
	// AuthTimeout - ожидание ответа на auth на свежем соединении
	AuthTimeout time.Duration
}

// Gateway - JSON-RPC 2.0 клиент WebSocket API Paradex.
// После подключения аутентифицируется по JWT и подписывается на каналы
// стакана, счёта и ордеров; push-уведомления разбираются в типизированные
// callbacks. Битые записи стакана пропускаются поштучно, не прерывая пакет.
type Gateway struct {
	cfg  GatewayConfig
	auth *Authenticator
	conn *WSConn
	log  *zap.Logger

	reqID int64

	snapshotChannel string
	deltaChannel    string
	ordersChannel   string

	onSnapshot      func(bids, asks []market.Level)
	onDelta         func([]market.Insert)
	onOrderStatus   func(clientID, status string)
	onAccountUpdate func()
	onConnState     func(connected bool)
}

// NewGateway создаёт шлюз; Connect запускает соединение
func NewGateway(cfg GatewayConfig, auth *Authenticator, log *zap.Logger) *Gateway {
	if cfg.Depth <= 0 {
		cfg.Depth = 15
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 10 * time.Second
	}

	g := &Gateway{
		cfg:  cfg,
		auth: auth,
		log:  log,

		snapshotChannel: fmt.Sprintf("order_book_snapshot.%s.%d", cfg.Market, cfg.Depth),
		deltaChannel:    fmt.Sprintf("order_book.%s.snapshot@%d@50ms", cfg.Market, cfg.Depth),
		ordersChannel:   fmt.Sprintf("orders.%s", cfg.Market),
	}

	g.conn = NewWSConn(cfg.WSURL, cfg.Reconnect, log)
	g.conn.SetOnSetup(g.setupConnection)
	g.conn.SetOnMessage(g.handleMessage)
	g.conn.SetOnStateChange(func(s WSConnState) {
		if g.onConnState != nil {
			g.onConnState(s == WSStateConnected)
		}
	})
	return g
}

// Callbacks устанавливаются до Connect

// OnSnapshot устанавливает обработчик снапшотов стакана
func (g *Gateway) OnSnapshot(fn func(bids, asks []market.Level)) { g.onSnapshot = fn }

// OnDelta устанавливает обработчик инкрементальных вставок
func (g *Gateway) OnDelta(fn func([]market.Insert)) { g.onDelta = fn }

// OnOrderStatus устанавливает обработчик статусов ордеров
func (g *Gateway) OnOrderStatus(fn func(clientID, status string)) { g.onOrderStatus = fn }

// OnAccountUpdate устанавливает обработчик уведомлений счёта
func (g *Gateway) OnAccountUpdate(fn func()) { g.onAccountUpdate = fn }

// OnConnState устанавливает уведомление о смене состояния соединения
func (g *Gateway) OnConnState(fn func(connected bool)) { g.onConnState = fn }

// Connect устанавливает соединение и подписки
func (g *Gateway) Connect() error {
	return g.conn.Connect()
}

// Close закрывает соединение
func (g *Gateway) Close() error {
	return g.conn.Close()
}

// IsConnected сообщает состояние соединения
func (g *Gateway) IsConnected() bool {
	return g.conn.IsConnected()
}

func (g *Gateway) nextID() int64 {
	return atomic.AddInt64(&g.reqID, 1)
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int64       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcMessage struct {
	ID     int64               `json:"id"`
	Method string              `json:"method"`
	Error  *rpcError           `json:"error"`
	Result jsoniter.RawMessage `json:"result"`
	Params struct {
		Channel string              `json:"channel"`
		Data    jsoniter.RawMessage `json:"data"`
	} `json:"params"`
}

// setupConnection аутентифицирует свежее соединение и восстанавливает
// подписки. Выполняется до запуска цикла чтения, поэтому ответ на auth
// читается синхронно с этого же соединения.
func (g *Gateway) setupConnection(conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.AuthTimeout)
	defer cancel()

	token, err := g.auth.Token(ctx)
	if err != nil {
		return fmt.Errorf("ws auth: %w", err)
	}

	authID := g.nextID()
	if err := conn.WriteJSON(rpcRequest{
		JSONRPC: "2.0",
		Method:  "auth",
		Params:  map[string]string{"bearer": token},
		ID:      authID,
	}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(g.cfg.AuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	// Ответ читается сырым кадром: поля RawMessage в rpcMessage
	// разбирает только jsoniter, а не encoding/json из ReadJSON
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	var reply rpcMessage
	if err := json.Unmarshal(frame, &reply); err != nil {
		return fmt.Errorf("parse auth reply: %w", err)
	}
	if reply.ID != authID || reply.Error != nil {
		// Протухший JWT на переподключении: сбрасываем кэш для следующей попытки
		g.auth.Invalidate()
		if reply.Error != nil {
			return &APIError{Code: reply.Error.Code, Message: reply.Error.Message}
		}
		return fmt.Errorf("unexpected auth reply id %d", reply.ID)
	}

	for _, channel := range []string{
		g.snapshotChannel,
		g.deltaChannel,
		"account",
		g.ordersChannel,
	} {
		if err := conn.WriteJSON(rpcRequest{
			JSONRPC: "2.0",
			Method:  "subscribe",
			Params:  map[string]string{"channel": channel},
			ID:      g.nextID(),
		}); err != nil {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
	}

	g.log.Info("подписки оформлены",
		zap.String("market", g.cfg.Market),
		zap.Int("depth", g.cfg.Depth))
	return nil
}

func (g *Gateway) handleMessage(raw []byte) {
	var msg rpcMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.log.Warn("нечитаемое WS сообщение", zap.Error(err))
		return
	}

	if msg.Error != nil {
		g.log.Warn("ошибка от сервера",
			zap.Int("code", msg.Error.Code),
			zap.String("message", msg.Error.Message))
		return
	}

	// Интересны только push-уведомления, ответы на subscribe пропускаем
	if msg.Method != "subscription" {
		return
	}

	switch msg.Params.Channel {
	case g.snapshotChannel:
		g.handleSnapshot(msg.Params.Data)
	case g.deltaChannel:
		g.handleDelta(msg.Params.Data)
	case "account":
		if g.onAccountUpdate != nil {
			g.onAccountUpdate()
		}
	case g.ordersChannel:
		g.handleOrderStatus(msg.Params.Data)
	}
}

// handleSnapshot разбирает снапшот стакана: bids/asks как массивы
// пар [цена, количество] от лучшей цены
func (g *Gateway) handleSnapshot(data jsoniter.RawMessage) {
	if g.onSnapshot == nil {
		return
	}

	var payload struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		g.log.Warn("нечитаемый снапшот стакана", zap.Error(err))
		return
	}

	g.onSnapshot(g.parseLevels(payload.Bids), g.parseLevels(payload.Asks))
}

func (g *Gateway) parseLevels(entries [][]string) []market.Level {
	levels := make([]market.Level, 0, len(entries))
	for _, e := range entries {
		if len(e) < 2 {
			g.log.Warn("неполный уровень стакана", zap.Strings("entry", e))
			continue
		}
		price, err := decimal.NewFromString(e[0])
		if err != nil {
			g.log.Warn("нечисловая цена уровня", zap.String("price", e[0]))
			continue
		}
		size, err := decimal.NewFromString(e[1])
		if err != nil {
			g.log.Warn("нечисловое количество уровня", zap.String("size", e[1]))
			continue
		}
		levels = append(levels, market.Level{Price: price, Size: size})
	}
	return levels
}

// handleDelta разбирает вставки уровней из инкрементального канала
func (g *Gateway) handleDelta(data jsoniter.RawMessage) {
	if g.onDelta == nil {
		return
	}

	var payload struct {
		Inserts []struct {
			Side  string `json:"side"`
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"inserts"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		g.log.Warn("нечитаемая дельта стакана", zap.Error(err))
		return
	}
	if len(payload.Inserts) == 0 {
		return
	}

	inserts := make([]market.Insert, 0, len(payload.Inserts))
	for _, in := range payload.Inserts {
		price, err := decimal.NewFromString(in.Price)
		if err != nil {
			g.log.Warn("нечисловая цена вставки", zap.String("price", in.Price))
			continue
		}
		size, err := decimal.NewFromString(in.Size)
		if err != nil {
			g.log.Warn("нечисловое количество вставки", zap.String("size", in.Size))
			continue
		}
		inserts = append(inserts, market.Insert{Side: in.Side, Price: price, Size: size})
	}
	if len(inserts) > 0 {
		g.onDelta(inserts)
	}
}

func (g *Gateway) handleOrderStatus(data jsoniter.RawMessage) {
	if g.onOrderStatus == nil {
		return
	}

	var payload struct {
		ClientID string `json:"client_id"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		g.log.Warn("нечитаемый статус ордера", zap.Error(err))
		return
	}
	if payload.ClientID == "" || payload.Status == "" {
		return
	}
	g.onOrderStatus(payload.ClientID, payload.Status)
}
