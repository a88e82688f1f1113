package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"SyncFM/core/broadcast"
	"SyncFM/logger"
	"SyncFM/model"
)

const clientWriteWait = 10 * time.Second

// WSClient is a station connection on the listener side. It implements
// Reporter.
type WSClient struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	listeners atomic.Int64
}

// Dial connects to the station websocket at url.
func Dial(ctx context.Context, url string) (*WSClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &WSClient{conn: conn}, nil
}

// Run feeds every snapshot to m until the connection closes or ctx is done.
func (c *WSClient) Run(ctx context.Context, m *Machine) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-done:
		}
	}()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read from station: %w", err)
		}

		msg, err := broadcast.Decode(frame)
		if err != nil {
			logger.Warn("Ignoring malformed frame", logger.ErrorField(err))
			continue
		}

		switch msg.Type {
		case broadcast.MsgTypeSync:
			var snap model.Snapshot
			if err := json.Unmarshal(msg.Data, &snap); err != nil {
				logger.Warn("Ignoring malformed snapshot", logger.ErrorField(err))
				continue
			}
			m.HandleSnapshot(snap)
		case broadcast.MsgTypeListeners:
			var d broadcast.ListenersData
			if err := json.Unmarshal(msg.Data, &d); err == nil {
				c.listeners.Store(int64(d.Count))
			}
		case broadcast.MsgTypeError:
			var d broadcast.ErrorData
			_ = json.Unmarshal(msg.Data, &d)
			logger.Warn("Station reported an error", logger.String("message", d.Message))
		}
	}
}

// Listeners returns the last listener count announced by the station.
func (c *WSClient) Listeners() int {
	return int(c.listeners.Load())
}

func (c *WSClient) send(t broadcast.MessageType, data interface{}) error {
	frame, err := broadcast.Encode(t, data, time.Now())
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *WSClient) ReportTrackEnd(track string) error {
	return c.send(broadcast.MsgTypeTrackEnd, broadcast.TrackEndData{Track: track})
}

func (c *WSClient) ReportDuration(track string, seconds float64) error {
	return c.send(broadcast.MsgTypeTrackDuration, broadcast.TrackDurationData{Track: track, Seconds: seconds})
}

// Close sends a close frame and closes the connection.
func (c *WSClient) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
