package event

import "time"

// Wildcard subscribes to every event type.
const Wildcard = "*"

// Event types published by the workflow core, namespaced "<entity>:<action>".
const (
	DocumentCreated       = "document:created"
	DocumentStatusChanged = "document:status_changed"
	ApprovalSubmitted     = "approval:submitted"
	ApprovalDecided       = "approval:decided"
	StockReserved         = "stock:reserved"
	StockConsumed         = "stock:consumed"
	StockReleased         = "stock:released"
)

// Event is the domain event carried by the bus. It is not persisted by the
// bus; ID and Timestamp are stamped at publish time.
type Event struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	EntityType    string                 `json:"entityType"`
	EntityID      string                 `json:"entityId"`
	Action        string                 `json:"action"`
	Payload       map[string]interface{} `json:"payload"`
	PerformedByID *string                `json:"performedById,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// TimestampString renders Timestamp as ISO-8601.
func (e Event) TimestampString() string {
	return e.Timestamp.UTC().Format(time.RFC3339Nano)
}

// Resolve implements condition.EvalContext.
//
//	payload.<path>         explicit payload lookup
//	event.<field>          type | entityType | entityId | action | performedById
//	<path>                 shorthand for payload.<path>
func (e Event) Resolve(path []string) (interface{}, bool) {
	if len(path) == 0 {
		return nil, false
	}
	switch path[0] {
	case "payload":
		return resolveMap(e.Payload, path[1:])
	case "event":
		if len(path) != 2 {
			return nil, false
		}
		switch path[1] {
		case "type":
			return e.Type, true
		case "entityType":
			return e.EntityType, true
		case "entityId":
			return e.EntityID, true
		case "action":
			return e.Action, true
		case "performedById":
			if e.PerformedByID == nil {
				return nil, false
			}
			return *e.PerformedByID, true
		}
		return nil, false
	}
	return resolveMap(e.Payload, path)
}

// Lookup is Resolve for an already-split payload path.
func (e Event) Lookup(path ...string) (interface{}, bool) {
	return resolveMap(e.Payload, path)
}

func resolveMap(m map[string]interface{}, path []string) (interface{}, bool) {
	if len(path) == 0 || m == nil {
		return nil, false
	}
	val, ok := m[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return val, true
	}
	sub, ok := val.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return resolveMap(sub, path[1:])
}
