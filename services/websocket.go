package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/qianlnk/autowolf/models"
)

// WebSocket 消息类型
const (
	MessageEvent           = "event"            // 观战事件
	MessageDecisionRequest = "decision_request" // 发给远程代理的决策请求
	MessageDecision        = "decision"         // 远程代理的回复
	MessageError           = "error"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 15 * time.Second
	maxMessage   = 512 * 1024
)

// Message WebSocket消息结构
type Message struct {
	Type      string          `json:"type"`
	GameID    string          `json:"game_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

func newMessage(msgType, gameID, requestID string, content any) (Message, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return Message{}, fmt.Errorf("序列化消息失败: %w", err)
	}
	return Message{Type: msgType, GameID: gameID, RequestID: requestID, Content: raw}, nil
}

type seat struct {
	gameID string
	player int
}

// client 一个连接，写操作需要串行
type client struct {
	id      string
	seat    seat // player 为 NoPlayer 表示观战
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

func (c *client) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

type pendingRequest struct {
	seat  seat
	reply chan models.Decision
}

// WebSocketManager WebSocket连接管理器：向观战者广播事件，并作为远程代理的传输层
type WebSocketManager struct {
	clients map[string]*client         // connectionID -> client
	seats   map[seat]string            // 座位 -> connectionID
	pending map[string]*pendingRequest // requestID -> 等待中的请求
	mutex   sync.RWMutex
	logger  zerolog.Logger
}

// NewWebSocketManager 创建WebSocket管理器实例
func NewWebSocketManager(logger zerolog.Logger) *WebSocketManager {
	return &WebSocketManager{
		clients: make(map[string]*client),
		seats:   make(map[seat]string),
		pending: make(map[string]*pendingRequest),
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
}

// RegisterConnection 注册新的WebSocket连接，player 为 NoPlayer 时作为观战者。
// 同一座位的旧连接会被关闭
func (wm *WebSocketManager) RegisterConnection(gameID string, player int, conn *websocket.Conn) string {
	c := &client{
		id:   uuid.NewString(),
		seat: seat{gameID: gameID, player: player},
		conn: conn,
		done: make(chan struct{}),
	}

	wm.mutex.Lock()
	if player != models.NoPlayer {
		if oldID, exists := wm.seats[c.seat]; exists {
			wm.removeLocked(oldID)
		}
		wm.seats[c.seat] = c.id
	}
	wm.clients[c.id] = c
	wm.mutex.Unlock()

	wm.logger.Info().Str("game_id", gameID).Int("player", player).Str("connection", c.id).Msg("connection registered")
	go wm.handleMessages(c)
	go wm.startPingHandler(c)
	return c.id
}

// Append 实现 storage.Sink，把事件广播给该局的观战者。
// 远程代理只接收自己的决策请求，不接收事件
func (wm *WebSocketManager) Append(_ context.Context, event models.Event) error {
	msg, err := newMessage(MessageEvent, event.GameID, "", event)
	if err != nil {
		return err
	}
	wm.BroadcastToGame(event.GameID, msg)
	return nil
}

// BroadcastToGame 向某局所有观战者广播消息
func (wm *WebSocketManager) BroadcastToGame(gameID string, msg Message) {
	wm.mutex.RLock()
	targets := make([]*client, 0)
	for _, c := range wm.clients {
		if c.seat.gameID == gameID && c.seat.player == models.NoPlayer {
			targets = append(targets, c)
		}
	}
	wm.mutex.RUnlock()

	for _, c := range targets {
		if err := c.write(msg); err != nil {
			wm.logger.Warn().Err(err).Str("connection", c.id).Msg("broadcast failed")
			go wm.RemoveConnection(c.id)
		}
	}
}

// SendToPlayer 向指定座位发送消息
func (wm *WebSocketManager) SendToPlayer(gameID string, player int, msg Message) error {
	wm.mutex.RLock()
	connID, exists := wm.seats[seat{gameID: gameID, player: player}]
	c := wm.clients[connID]
	wm.mutex.RUnlock()

	if !exists || c == nil {
		return errors.New("玩家未连接")
	}
	if err := c.write(msg); err != nil {
		go wm.RemoveConnection(c.id)
		return fmt.Errorf("发送消息失败: %w", err)
	}
	return nil
}

// Connected 座位是否有连接
func (wm *WebSocketManager) Connected(gameID string, player int) bool {
	wm.mutex.RLock()
	defer wm.mutex.RUnlock()

	_, exists := wm.seats[seat{gameID: gameID, player: player}]
	return exists
}

// startPingHandler 启动心跳检测
func (wm *WebSocketManager) startPingHandler(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			c.writeMu.Unlock()
			if err != nil {
				wm.logger.Info().Err(err).Str("connection", c.id).Msg("ping failed")
				wm.RemoveConnection(c.id)
				return
			}
		}
	}
}

// RemoveConnection 移除WebSocket连接，该座位等待中的请求立即失败
func (wm *WebSocketManager) RemoveConnection(connID string) {
	wm.mutex.Lock()
	defer wm.mutex.Unlock()

	wm.removeLocked(connID)
}

func (wm *WebSocketManager) removeLocked(connID string) {
	c, exists := wm.clients[connID]
	if !exists {
		return
	}
	delete(wm.clients, connID)
	if wm.seats[c.seat] == connID {
		delete(wm.seats, c.seat)
	}
	for id, p := range wm.pending {
		if p.seat == c.seat {
			close(p.reply)
			delete(wm.pending, id)
		}
	}
	close(c.done)

	c.writeMu.Lock()
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "连接关闭")
	_ = c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(100*time.Millisecond))
	c.writeMu.Unlock()
	c.conn.Close()

	wm.logger.Info().Str("connection", connID).Str("game_id", c.seat.gameID).Int("player", c.seat.player).Msg("connection removed")
}

// handleMessages 处理接收到的WebSocket消息
func (wm *WebSocketManager) handleMessages(c *client) {
	c.conn.SetReadLimit(maxMessage)

	for {
		_, p, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wm.logger.Debug().Err(err).Str("connection", c.id).Msg("read failed")
			}
			wm.RemoveConnection(c.id)
			return
		}

		var msg Message
		if err := json.Unmarshal(p, &msg); err != nil {
			wm.replyError(c, "", "消息格式错误")
			continue
		}

		switch msg.Type {
		case MessageDecision:
			var d models.Decision
			if err := json.Unmarshal(msg.Content, &d); err != nil {
				wm.replyError(c, msg.RequestID, "决定格式错误")
				continue
			}
			if err := wm.deliver(c.seat, msg.RequestID, d); err != nil {
				wm.replyError(c, msg.RequestID, err.Error())
			}
		default:
			wm.replyError(c, msg.RequestID, fmt.Sprintf("未知的消息类型: %s", msg.Type))
		}
	}
}

func (wm *WebSocketManager) replyError(c *client, requestID, text string) {
	msg, err := newMessage(MessageError, c.seat.gameID, requestID, text)
	if err == nil {
		_ = c.write(msg)
	}
}

// deliver 把远程代理的回复交给等待中的请求，只接受该座位自己的请求
func (wm *WebSocketManager) deliver(from seat, requestID string, d models.Decision) error {
	wm.mutex.Lock()
	defer wm.mutex.Unlock()

	p, exists := wm.pending[requestID]
	if !exists {
		return errors.New("请求不存在或已超时")
	}
	if p.seat != from {
		return errors.New("不能替其他玩家做决定")
	}
	delete(wm.pending, requestID)
	p.reply <- d
	return nil
}

// RemoteAgent 返回通过 WebSocket 接入的座位代理
func (wm *WebSocketManager) RemoteAgent(gameID string, player int) *RemoteAgent {
	return &RemoteAgent{manager: wm, seat: seat{gameID: gameID, player: player}}
}

// RemoteAgent 远程代理：发送 decision_request，等待带相同 request_id 的 decision
type RemoteAgent struct {
	manager *WebSocketManager
	seat    seat
}

// Decide 实现 Agent
func (a *RemoteAgent) Decide(ctx context.Context, req models.Request) (models.Decision, error) {
	wm := a.manager
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	reply := make(chan models.Decision, 1)

	wm.mutex.Lock()
	wm.pending[req.RequestID] = &pendingRequest{seat: a.seat, reply: reply}
	wm.mutex.Unlock()
	defer func() {
		wm.mutex.Lock()
		delete(wm.pending, req.RequestID)
		wm.mutex.Unlock()
	}()

	msg, err := newMessage(MessageDecisionRequest, a.seat.gameID, req.RequestID, req)
	if err != nil {
		return models.Decision{}, err
	}
	if err := wm.SendToPlayer(a.seat.gameID, a.seat.player, msg); err != nil {
		return models.Decision{}, err
	}

	select {
	case d, ok := <-reply:
		if !ok {
			return models.Decision{}, errors.New("连接已断开")
		}
		return d, nil
	case <-ctx.Done():
		return models.Decision{}, ctx.Err()
	}
}
