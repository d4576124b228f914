package events

const (
	TypeServerInfo     = "server.info"
	TypeDeviceAdded    = "device.added"
	TypeDeviceUpdated  = "device.updated"
	TypeDeviceRemoved  = "device.removed"
	TypeAdapterUpdated = "adapter.updated"
	TypeAgentRequest   = "agent.request"
	TypeAgentResolved  = "agent.resolved"
	TypeAgentCancelled = "agent.cancelled"
	TypeDaemonUpdated  = "daemon.updated"
)

// Event is a state change published to API clients. ID is assigned when the
// event is broadcast and sorts in emission order.
type Event struct {
	ID   string
	Type string
	Data any
}

// BackendTypes groups event types by the component emitting them.
var BackendTypes = map[string][]string{
	"devices": {TypeDeviceAdded, TypeDeviceUpdated, TypeDeviceRemoved},
	"adapter": {TypeAdapterUpdated},
	"agent":   {TypeAgentRequest, TypeAgentResolved, TypeAgentCancelled},
	"daemon":  {TypeDaemonUpdated},
}

// FilterTypes returns a filter passing only the given types, or nil (pass-all)
// when types is empty.
func FilterTypes(types []string) func(Event) bool {
	if len(types) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return func(e Event) bool {
		_, ok := allowed[e.Type]
		return ok
	}
}

// FilterBackend returns a filter passing the types of the named components.
// Unknown names are ignored; nil is returned when nothing is known.
func FilterBackend(names []string) func(Event) bool {
	var types []string
	for _, name := range names {
		types = append(types, BackendTypes[name]...)
	}
	return FilterTypes(types)
}

// NewFilter combines an include list and an exclude list. It returns nil when
// both are empty.
func NewFilter(include, exclude []string) func(Event) bool {
	in := FilterTypes(include)
	if len(exclude) == 0 {
		return in
	}
	excluded := make(map[string]struct{}, len(exclude))
	for _, t := range exclude {
		excluded[t] = struct{}{}
	}
	return func(e Event) bool {
		if _, ok := excluded[e.Type]; ok {
			return false
		}
		return in == nil || in(e)
	}
}
