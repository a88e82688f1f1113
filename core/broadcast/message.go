package broadcast

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType 消息类型
type MessageType string

const (
	MsgTypeSync          MessageType = "sync"          // 电台状态同步（服务端 -> 所有人）
	MsgTypeListeners     MessageType = "listeners"     // 在线人数（服务端 -> 所有人）
	MsgTypeTrackEnd      MessageType = "trackEnd"      // 歌曲播放结束（客户端 -> 服务端）
	MsgTypeTrackDuration MessageType = "trackDuration" // 上报歌曲时长（客户端 -> 服务端）
	MsgTypeError         MessageType = "error"         // 错误消息
	MsgTypePing          MessageType = "ping"          // 心跳
	MsgTypePong          MessageType = "pong"          // 心跳响应
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ListenersData 在线人数消息
type ListenersData struct {
	Count int `json:"count"`
}

// TrackEndData 播放结束消息，可为空
type TrackEndData struct {
	Track string `json:"track,omitempty"`
}

// TrackDurationData 时长上报消息，也接受纯数字
type TrackDurationData struct {
	Track   string  `json:"track,omitempty"`
	Seconds float64 `json:"seconds"`
}

// ErrorData 错误消息
type ErrorData struct {
	Message string `json:"message"`
}

var errNoPayload = errors.New("missing payload")

// Encode 编码消息，data 可为 nil
func Encode(t MessageType, data interface{}, now time.Time) ([]byte, error) {
	msg := WSMessage{Type: t, Timestamp: now.UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", t, err)
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

// Decode 解析消息
func Decode(frame []byte) (*WSMessage, error) {
	var msg WSMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, errors.New("message has no type")
	}
	return &msg, nil
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseTrackEnd 解析播放结束消息，空消息表示当前歌曲
func ParseTrackEnd(raw json.RawMessage) (TrackEndData, error) {
	var d TrackEndData
	if isEmpty(raw) {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("trackEnd payload: %w", err)
	}
	return d, nil
}

// ParseTrackDuration 解析时长上报，支持对象和数字两种格式
func ParseTrackDuration(raw json.RawMessage) (TrackDurationData, error) {
	var d TrackDurationData
	if isEmpty(raw) {
		return d, fmt.Errorf("trackDuration payload: %w", errNoPayload)
	}
	if err := json.Unmarshal(raw, &d.Seconds); err == nil {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("trackDuration payload: %w", err)
	}
	return d, nil
}
