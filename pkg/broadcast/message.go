package broadcast

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ilingu/ilix-server/pkg/types"
)

// EventName identifies the kind of a data event on the wire.
type EventName string

const (
	EventPool     EventName = "pool"
	EventTransfer EventName = "transfer"
	EventLogout   EventName = "logout"
)

// Event is the payload of a data message: a pool snapshot, a transfer, or a
// bare logout notification.
type Event struct {
	Name EventName
	Data any // JSON-serialized on the wire; nil for logout
}

// PoolEvent notifies subscribers of a pool membership change.
func PoolEvent(p types.Pool) Event {
	return Event{Name: EventPool, Data: p}
}

// TransferEvent notifies a recipient of a new or grown transfer.
func TransferEvent(t types.Transfer) Event {
	return Event{Name: EventTransfer, Data: t}
}

// LogoutEvent notifies subscribers that their pool was destroyed.
func LogoutEvent() Event {
	return Event{Name: EventLogout}
}

type messageKind int

const (
	kindPing messageKind = iota
	kindConnected
	kindData
)

// Message is one record of the event stream: a keepalive ping, the initial
// connection acknowledgment, or a data event.
type Message struct {
	kind  messageKind
	event Event
}

// Ping is the keepalive probe, written as an SSE comment line.
var Ping = Message{kind: kindPing}

// Connected is the synchronous acknowledgment pushed to a fresh subscriber.
var Connected = Message{kind: kindConnected}

// Data wraps an event for delivery.
func Data(ev Event) Message {
	return Message{kind: kindData, event: ev}
}

// WriteTo encodes the message as a server-sent-events record.
func (m Message) WriteTo(w io.Writer) error {
	switch m.kind {
	case kindPing:
		_, err := io.WriteString(w, ": Ping\n\n")
		return err
	case kindConnected:
		_, err := io.WriteString(w, "event: connected\ndata: client connected\n\n")
		return err
	case kindData:
		if m.event.Data == nil {
			_, err := fmt.Fprintf(w, "event: %s\ndata:\n\n", m.event.Name)
			return err
		}
		payload, err := json.Marshal(m.event.Data)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.event.Name, payload)
		return err
	default:
		return fmt.Errorf("unknown message kind %d", m.kind)
	}
}
