package exchange

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSReconnectConfig - параметры переподключения WebSocket
type WSReconnectConfig struct {
	// Начальная задержка; удваивается после каждой неудачи до MaxDelay
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxRetries = 0 - переподключаться бесконечно
	MaxRetries int

	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// DefaultWSReconnectConfig: задержки 2s, 4s, 8s, 16s
func DefaultWSReconnectConfig() WSReconnectConfig {
	return WSReconnectConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     0,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   20 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

// WSConnState - состояние соединения
type WSConnState int32

const (
	WSStateDisconnected WSConnState = iota
	WSStateConnecting
	WSStateConnected
	WSStateReconnecting
	WSStateClosed
)

func (s WSConnState) String() string {
	switch s {
	case WSStateDisconnected:
		return "disconnected"
	case WSStateConnecting:
		return "connecting"
	case WSStateConnected:
		return "connected"
	case WSStateReconnecting:
		return "reconnecting"
	case WSStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WSConn держит одно WebSocket соединение с биржей и прозрачно
// переподключается при разрывах. После каждого подключения заново
// выполняется onSetup (аутентификация и подписки), затем входящие
// сообщения идут в onMessage.
type WSConn struct {
	url string
	cfg WSReconnectConfig
	log *zap.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32 // atomic WSConnState
	retryCount int32

	closeChan chan struct{}
	closeOnce sync.Once

	onMessage func([]byte)
	// onSetup вызывается на свежем соединении до запуска чтения;
	// ошибка здесь рвёт соединение и запускает переподключение
	onSetup func(*websocket.Conn) error
	// onStateChange уведомляет о смене состояния (метрики)
	onStateChange func(WSConnState)
}

// NewWSConn создаёт менеджер соединения; Connect запускает его.
// Нулевые поля конфигурации заменяются значениями по умолчанию.
func NewWSConn(url string, cfg WSReconnectConfig, log *zap.Logger) *WSConn {
	def := DefaultWSReconnectConfig()
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}

	return &WSConn{
		url:       url,
		cfg:       cfg,
		log:       log,
		closeChan: make(chan struct{}),
	}
}

// SetOnMessage устанавливает обработчик входящих сообщений
func (w *WSConn) SetOnMessage(handler func([]byte)) { w.onMessage = handler }

// SetOnSetup устанавливает процедуру инициализации свежего соединения
func (w *WSConn) SetOnSetup(handler func(*websocket.Conn) error) { w.onSetup = handler }

// SetOnStateChange устанавливает уведомление о смене состояния
func (w *WSConn) SetOnStateChange(handler func(WSConnState)) { w.onStateChange = handler }

// State возвращает текущее состояние соединения
func (w *WSConn) State() WSConnState {
	return WSConnState(atomic.LoadInt32(&w.state))
}

// IsConnected сообщает, установлено ли соединение
func (w *WSConn) IsConnected() bool { return w.State() == WSStateConnected }

func (w *WSConn) setState(s WSConnState) {
	atomic.StoreInt32(&w.state, int32(s))
	if w.onStateChange != nil {
		w.onStateChange(s)
	}
}

// Connect устанавливает первое соединение.
// Ошибка возвращается только на первой попытке; дальнейшие разрывы
// обрабатываются внутренним циклом переподключения.
func (w *WSConn) Connect() error {
	select {
	case <-w.closeChan:
		return fmt.Errorf("ws connection is closed")
	default:
	}

	w.setState(WSStateConnecting)
	if err := w.dial(); err != nil {
		w.setState(WSStateDisconnected)
		return err
	}

	w.setState(WSStateConnected)
	atomic.StoreInt32(&w.retryCount, 0)
	go w.readPump()
	go w.pingPump()

	w.log.Info("WebSocket подключён", zap.String("url", w.url))
	return nil
}

func (w *WSConn) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: w.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.url, err)
	}

	if w.onSetup != nil {
		if err := w.onSetup(conn); err != nil {
			conn.Close()
			return fmt.Errorf("connection setup: %w", err)
		}
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
	return nil
}

// Send пишет JSON сообщение в соединение
func (w *WSConn) Send(msg interface{}) error {
	if w.State() != WSStateConnected {
		return fmt.Errorf("not connected (state: %s)", w.State())
	}

	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no active connection")
	}
	return conn.WriteJSON(msg)
}

func (w *WSConn) readPump() {
	for {
		select {
		case <-w.closeChan:
			return
		default:
		}

		w.connMu.RLock()
		conn := w.conn
		w.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			w.handleDisconnect(err)
			return
		}

		if w.onMessage != nil {
			w.onMessage(message)
		}
	}
}

func (w *WSConn) pingPump() {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.closeChan:
			return
		case <-ticker.C:
			if w.State() != WSStateConnected {
				return
			}

			w.connMu.RLock()
			conn := w.conn
			w.connMu.RUnlock()
			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(w.cfg.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.log.Warn("ping не прошёл", zap.Error(err))
				w.handleDisconnect(err)
				return
			}
		}
	}
}

func (w *WSConn) handleDisconnect(err error) {
	select {
	case <-w.closeChan:
		return
	default:
	}

	// Разрыв уже обрабатывается другой горутиной
	state := w.State()
	if state == WSStateReconnecting || state == WSStateClosed {
		return
	}
	w.setState(WSStateReconnecting)

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connMu.Unlock()

	if err != nil {
		w.log.Warn("WebSocket разорван", zap.Error(err))
	}

	go w.reconnectLoop()
}

func (w *WSConn) reconnectLoop() {
	delay := w.cfg.InitialDelay

	for {
		select {
		case <-w.closeChan:
			return
		default:
		}

		attempt := atomic.AddInt32(&w.retryCount, 1)
		if w.cfg.MaxRetries > 0 && int(attempt) > w.cfg.MaxRetries {
			w.log.Error("исчерпаны попытки переподключения",
				zap.Int("max_retries", w.cfg.MaxRetries))
			w.setState(WSStateDisconnected)
			return
		}

		w.log.Info("переподключение",
			zap.Duration("delay", delay),
			zap.Int32("attempt", attempt))

		select {
		case <-w.closeChan:
			return
		case <-time.After(delay):
		}

		if err := w.dial(); err != nil {
			w.log.Warn("переподключение не удалось", zap.Error(err))
			delay *= 2
			if delay > w.cfg.MaxDelay {
				delay = w.cfg.MaxDelay
			}
			continue
		}

		w.setState(WSStateConnected)
		atomic.StoreInt32(&w.retryCount, 0)
		go w.readPump()
		go w.pingPump()

		w.log.Info("WebSocket переподключён", zap.String("url", w.url))
		return
	}
}

// Close останавливает соединение и цикл переподключения
func (w *WSConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeChan)
		w.setState(WSStateClosed)

		w.connMu.Lock()
		defer w.connMu.Unlock()
		if w.conn != nil {
			err = w.conn.Close()
			w.conn = nil
		}
	})
	return err
}
