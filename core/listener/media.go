package listener

// ReadyState mirrors the subset of the HTML media readiness levels the
// reconciliation rules look at.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveEnoughData
)

// Media is a locally clocked audio element.
type Media interface {
	Load(src string)
	Source() string
	ReadyState() ReadyState
	CurrentTime() float64
	SetCurrentTime(seconds float64)
	Paused() bool
	Play() error
	Pause()
}

// Reporter carries the two feedback signals back to the station.
// track names the track the report is about; it may be empty.
type Reporter interface {
	ReportTrackEnd(track string) error
	ReportDuration(track string, seconds float64) error
}
