package model

// UpcomingTrack is one entry of the upcoming list carried by a snapshot.
type UpcomingTrack struct {
	Filename string `json:"filename"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
}

// Snapshot is an immutable read of the station timeline at one instant.
// It is the payload of the "sync" event.
type Snapshot struct {
	Track        string          `json:"track,omitempty"`
	Title        string          `json:"title,omitempty"`
	Artist       string          `json:"artist,omitempty"`
	Mode         Mode            `json:"mode"`
	Seek         float64         `json:"seek"`
	IsPlaying    bool            `json:"isPlaying"`
	IsPreparing  bool            `json:"isPreparing,omitempty"`
	Playlist     []UpcomingTrack `json:"playlist"`
	CurrentIndex int             `json:"currentIndex"`
	TotalTracks  int             `json:"totalTracks"`
	ServerTime   int64           `json:"serverTime"` // unix ms
}

// HasTrack reports whether the snapshot describes a playing or paused track.
func (s Snapshot) HasTrack() bool {
	return s.Track != "" && !s.IsPreparing
}
