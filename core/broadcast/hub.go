package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"SyncFM/logger"
	"SyncFM/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

// Peer 一个连接到电台的 WebSocket 客户端
type Peer struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closed bool // send 已关闭，由 hub.mu 保护
}

// Hub 电台广播中心，注册、移除和广播都在 Run 中串行处理
type Hub struct {
	peers map[*Peer]struct{}

	register   chan *Peer
	unregister chan *Peer
	broadcast  chan []byte

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once

	sendBuffer int
	greet      func(Sender)
}

// NewHub 创建广播中心，每个客户端最多缓冲 sendBuffer 帧
// 广播时缓冲区已满的客户端会被断开
func NewHub(sendBuffer int) *Hub {
	if sendBuffer < 1 {
		sendBuffer = 1
	}
	return &Hub{
		peers:      make(map[*Peer]struct{}),
		register:   make(chan *Peer),
		unregister: make(chan *Peer),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		sendBuffer: sendBuffer,
	}
}

// OnJoin 设置新客户端加入时的首帧发送函数
// 在 Run 循环中调用，不能阻塞，需在 Run 之前设置
func (h *Hub) OnJoin(fn func(Sender)) {
	h.greet = fn
}

// Run 广播中心主循环，Stop 后返回
func (h *Hub) Run() {
	for {
		select {
		case p := <-h.register:
			h.addPeer(p)
			if h.greet != nil {
				h.greet(p)
			}
			h.announceCount()

		case p := <-h.unregister:
			if h.removePeer(p) {
				h.announceCount()
			}

		case frame := <-h.broadcast:
			h.fanout(frame)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止主循环并关闭所有客户端
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// NewPeer 包装已升级的连接，尚未注册
func (h *Hub) NewPeer(conn *websocket.Conn) *Peer {
	return &Peer{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}
}

// Register 注册客户端
func (h *Hub) Register(p *Peer) {
	select {
	case h.register <- p:
	case <-h.done:
	}
}

// Unregister 注销客户端并关闭其发送缓冲
func (h *Hub) Unregister(p *Peer) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

// Broadcast 向所有客户端广播
func (h *Hub) Broadcast(frame []byte) {
	select {
	case h.broadcast <- frame:
	case <-h.done:
	}
}

// Count 当前在线人数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) addPeer(p *Peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	n := len(h.peers)
	h.mu.Unlock()

	metrics.Listeners.Set(float64(n))
	logger.Info("Listener connected", logger.String("peer", p.ID), logger.Int("listeners", n))
}

// removePeer 移除客户端，返回其是否仍在线
func (h *Hub) removePeer(p *Peer) bool {
	h.mu.Lock()
	if _, ok := h.peers[p]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.peers, p)
	p.closeSend()
	n := len(h.peers)
	h.mu.Unlock()

	metrics.Listeners.Set(float64(n))
	logger.Info("Listener disconnected", logger.String("peer", p.ID), logger.Int("listeners", n))
	return true
}

func (h *Hub) announceCount() {
	frame, err := Encode(MsgTypeListeners, ListenersData{Count: h.Count()}, time.Now())
	if err != nil {
		logger.Error("Failed to encode listener count", logger.ErrorField(err))
		return
	}
	h.fanout(frame)
}

// fanout 分发消息，跟不上的客户端直接断开
func (h *Hub) fanout(frame []byte) {
	h.mu.RLock()
	peers := make([]*Peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	dropped := false
	for _, p := range peers {
		if !p.Send(frame) {
			metrics.PeersDropped.Inc()
			logger.Warn("Dropping slow listener", logger.String("peer", p.ID))
			dropped = h.removePeer(p) || dropped
		}
	}
	if dropped {
		h.announceCount()
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		p.closeSend()
	}
	h.peers = make(map[*Peer]struct{})
	metrics.Listeners.Set(0)
}

// closeSend 关闭发送缓冲，调用方需持有 hub.mu 写锁
func (p *Peer) closeSend() {
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

// Send 非阻塞发送，缓冲区已满或客户端已离开时返回 false
func (p *Peer) Send(frame []byte) bool {
	p.hub.mu.RLock()
	defer p.hub.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

// ReadPump 读取消息并交给 handler 处理，连接断开后注销客户端
func (p *Peer) ReadPump(ctx context.Context, handler func(ctx context.Context, from Sender, msg *WSMessage)) {
	defer func() {
		p.hub.Unregister(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.String("peer", p.ID), logger.ErrorField(err))
			}
			return
		}

		msg, err := Decode(frame)
		if err != nil {
			logger.Debug("invalid message format", logger.String("peer", p.ID), logger.ErrorField(err))
			p.SendError("invalid message format")
			continue
		}

		if msg.Type == MsgTypePing {
			if pong, err := Encode(MsgTypePong, nil, time.Now()); err == nil {
				p.Send(pong)
			}
			continue
		}

		handler(ctx, p, msg)
	}
}

// WritePump 发送消息（每帧一条 WebSocket 消息）并定时发送心跳
func (p *Peer) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendError 发送错误消息
func (p *Peer) SendError(message string) {
	frame, err := Encode(MsgTypeError, ErrorData{Message: message}, time.Now())
	if err != nil {
		return
	}
	p.Send(frame)
}
