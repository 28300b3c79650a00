package types

// Event is the flattened form of an engine event. Amounts are base-unit
// integers rendered in decimal; addresses are checksummed hex.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the attribute stored under key, or "" when absent.
func (e *Event) Attr(key string) string {
	if e == nil {
		return ""
	}
	return e.Attributes[key]
}

// Ilk returns the collateral type the event concerns, if any.
func (e *Event) Ilk() string { return e.Attr("ilk") }
