package main

import "time"

// RedrawTickMsg drives the fixed-cadence poll of the render bridge.
type RedrawTickMsg struct {
	At time.Time
}

// StationStoppedMsg signals that the background pipeline exited.
type StationStoppedMsg struct {
	Err error
}
