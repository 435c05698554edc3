package types

// Event is the flattened form of a domain event: a dotted type name plus
// string attributes, suitable for journaling and external consumption.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
