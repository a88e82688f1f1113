package radio

import (
	"math/rand"

	"SyncFM/model"
)

// Playlist is the shuffled play order of one mode's catalog.
type Playlist struct {
	mode   model.Mode
	tracks []model.Track
	index  int
	rng    *rand.Rand
}

// NewPlaylist shuffles a copy of tracks and positions at the first one.
// tracks must not be empty.
func NewPlaylist(mode model.Mode, tracks []model.Track, rng *rand.Rand) *Playlist {
	p := &Playlist{
		mode:   mode,
		tracks: append([]model.Track(nil), tracks...),
		rng:    rng,
	}
	p.shuffle()
	return p
}

// shuffle is an unbiased Fisher-Yates over the whole order.
func (p *Playlist) shuffle() {
	p.rng.Shuffle(len(p.tracks), func(i, j int) {
		p.tracks[i], p.tracks[j] = p.tracks[j], p.tracks[i]
	})
	p.index = 0
}

func (p *Playlist) Mode() model.Mode { return p.mode }

func (p *Playlist) Len() int { return len(p.tracks) }

func (p *Playlist) Index() int { return p.index }

func (p *Playlist) Current() model.Track { return p.tracks[p.index] }

// AtEnd reports whether the current track is the last of this order.
func (p *Playlist) AtEnd() bool { return p.index >= len(p.tracks)-1 }

// Next moves to the following track, reshuffling when the order is
// exhausted. The second result reports a reshuffle.
func (p *Playlist) Next() (model.Track, bool) {
	p.index++
	if p.index >= len(p.tracks) {
		p.shuffle()
		return p.Current(), true
	}
	return p.Current(), false
}

// Upcoming lists up to n tracks after the current one, wrapping around the
// order and never repeating the current track.
func (p *Playlist) Upcoming(n int) []model.Track {
	if n < 0 {
		n = 0
	}
	out := make([]model.Track, 0, n)
	for i := 1; i <= n && i < len(p.tracks); i++ {
		out = append(out, p.tracks[(p.index+i)%len(p.tracks)])
	}
	return out
}
