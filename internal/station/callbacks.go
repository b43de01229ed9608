package station

import "github.com/rxtech-lab/argo-station/internal/types"

// OnStationStartCallback is called once the station's pipelines are running.
type OnStationStartCallback func() error

// OnStationStopCallback is called when the station stops. err is nil on a
// clean shutdown.
type OnStationStopCallback func(err error)

// OnSnapshotCallback is called after each new snapshot publication.
type OnSnapshotCallback func(snapshot *types.ViewSnapshot) error

// OnConnectionChangeCallback is called when the connection status changes.
type OnConnectionChangeCallback func(status types.ConnectionStatus) error

// OnErrorCallback is called when a non-fatal error occurs.
type OnErrorCallback func(err error)

// Callbacks holds lifecycle callback functions for the station. All fields
// are pointers; nil means no callback will be invoked.
type Callbacks struct {
	// OnStationStart is called when the station starts successfully.
	OnStationStart *OnStationStartCallback

	// OnStationStop is called when the station stops (always called via defer).
	OnStationStop *OnStationStopCallback

	// OnSnapshot is called after each snapshot publication. Invoked from
	// the station's monitor goroutine, never from the render thread.
	OnSnapshot *OnSnapshotCallback

	// OnConnectionChange is called when the connection status changes.
	OnConnectionChange *OnConnectionChangeCallback

	// OnError is called when a non-fatal error occurs.
	OnError *OnErrorCallback
}
