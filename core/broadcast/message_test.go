package broadcast

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	frame, err := Encode(MsgTypeListeners, ListenersData{Count: 3}, now)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"listeners","data":{"count":3},"timestamp":1700000000123}`, string(frame))

	msg, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, MsgTypeListeners, msg.Type)

	bare, err := Encode(MsgTypePong, nil, now)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","timestamp":1700000000123}`, string(bare))

	_, err = Decode([]byte(`{"data":1}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseTrackEnd(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    TrackEndData
		wantErr bool
	}{
		{name: "absent", raw: ``},
		{name: "null", raw: `null`},
		{name: "object", raw: `{"track":"day/a.ogg"}`, want: TrackEndData{Track: "day/a.ogg"}},
		{name: "wrong type", raw: `42`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrackEnd(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTrackDuration(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    TrackDurationData
		wantErr bool
	}{
		{name: "bare number", raw: `187.42`, want: TrackDurationData{Seconds: 187.42}},
		{name: "object", raw: `{"track":"night/b.ogg","seconds":200}`, want: TrackDurationData{Track: "night/b.ogg", Seconds: 200}},
		{name: "absent", raw: ``, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{name: "string", raw: `"200"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrackDuration(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
