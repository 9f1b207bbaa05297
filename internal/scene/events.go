package scene

// EventType names a structural change of the hierarchy.
type EventType string

const (
	EventProfileAdded     EventType = "profileAdded"
	EventProfileRemoved   EventType = "profileRemoved"
	EventProfileRenamed   EventType = "profileRenamed"
	EventFolderAdded      EventType = "folderAdded"
	EventFolderRemoved    EventType = "folderRemoved"
	EventFolderRenamed    EventType = "folderRenamed"
	EventEntityAdded      EventType = "entityAdded"
	EventEntityRemoved    EventType = "entityRemoved"
	EventEntityRenamed    EventType = "entityRenamed"
	EventEntityUpdated    EventType = "entityUpdated"
	EventComponentAdded   EventType = "componentAdded"
	EventComponentUpdated EventType = "componentUpdated"
	EventComponentRemoved EventType = "componentRemoved"
	EventReset            EventType = "reset"
)

// Event describes one completed mutation. Listeners receive it only after
// the hierarchy's maps reflect the change.
type Event struct {
	Type EventType

	// ID is the affected node. For component events it is the entity ID.
	ID       string
	ParentID string

	// Profile reports whether ParentID names a ProfileCategory.
	Profile bool

	// Name is the node name; for renames it is the new name.
	Name    string
	OldName string

	// Component is set on component events.
	Component string

	// Document carries the entity document on EventEntityAdded, the delta on
	// EventComponentUpdated and EventEntityUpdated, and the full tree on EventReset.
	Document Document
}

// Listener receives hierarchy events synchronously on the mutation thread.
type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it. Listeners run in subscription order.
func (h *Hierarchy) Subscribe(fn Listener) (unsubscribe func()) {
	h.nextSub++
	id := h.nextSub
	h.subs = append(h.subs, subscription{id: id, fn: fn})
	return func() {
		for i := range h.subs {
			if h.subs[i].id == id {
				h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

func (h *Hierarchy) emit(ev Event) {
	subs := h.subs
	for i := range subs {
		subs[i].fn(ev)
	}
}
