package session

// RouteHint is the single-turn signal handed to the dispatcher. It is never
// persisted; the persisted mode alone decides routing on later turns.
type RouteHint string

const (
	// RouteStay keeps the next message on the current handler.
	RouteStay RouteHint = "stay"
	// RouteSwitchToGeneral tells the dispatcher this response concluded the
	// guided workflow and the next message belongs to the general handler.
	RouteSwitchToGeneral RouteHint = "switch_to_general"
)
