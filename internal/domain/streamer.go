package domain

// Streamer is one active publisher registration: a connection currently
// pushing a live feed into a room. Created on start-stream, removed on
// end-stream or on transport disconnect. A room may hold any number of
// concurrent streamers; viewers pick which one to watch.
type Streamer struct {
	ConnectionID string
	RoomID       string
	StreamID     string
	DisplayName  string
}

// Info returns the discovery view of the streamer.
func (s Streamer) Info() StreamInfo {
	return StreamInfo{StreamID: s.StreamID, DisplayName: s.DisplayName}
}
