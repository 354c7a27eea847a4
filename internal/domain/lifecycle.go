package domain

// Status represents the lifecycle state of a naming store.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusReady         Status = "ready"
)

// Event represents an action that triggers a lifecycle transition or is
// published after a store mutation.
type Event string

const (
	EventLoad   Event = "load"
	EventLoaded Event = "loaded"

	EventIDIssued        Event = "id_issued"
	EventSettingsChanged Event = "settings_changed"
)

// Transition defines a valid state change: an event moves a store from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the store lifecycle.
// A ready store may be loaded again; the fresh load replaces its contents.
var Transitions = []Transition{
	{Event: EventLoad, Src: StatusUninitialized, Dst: StatusLoading},
	{Event: EventLoad, Src: StatusReady, Dst: StatusLoading},
	{Event: EventLoaded, Src: StatusLoading, Dst: StatusReady},
}
