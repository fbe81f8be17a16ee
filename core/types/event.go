package types

// Event represents a typed notification emitted during vault state
// transitions. Attributes carry string-rendered payload fields so observers
// (schedulers, indexers) can react without importing engine types.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
