package model

import (
	"path"
	"strings"
)

// UnknownArtist is shown when a file carries no artist tag.
const UnknownArtist = "Unknown Artist"

// Track is one playable audio file of the catalog.
// ID is the slash-separated path relative to the music root and doubles as
// the URL path under /music/.
type Track struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// FallbackTitle derives a display title from a track id ("day/Foo Bar.ogg" -> "Foo Bar").
func FallbackTitle(id string) string {
	base := path.Base(id)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Mode is the day/night partition of the catalog.
type Mode string

const (
	ModeDay   Mode = "day"
	ModeNight Mode = "night"
)

// Modes lists every mode in a stable order.
var Modes = []Mode{ModeDay, ModeNight}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeDay || m == ModeNight
}

func (m Mode) String() string {
	return string(m)
}

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, bool) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	return m, m.Valid()
}
