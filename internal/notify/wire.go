package notify

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/golden-feast/internal/domain/order"
)

// Wire event names.
const (
	EventJoinRoom     = "joinRoom"
	EventLeaveRoom    = "leaveRoom"
	EventNewOrder     = "newOrder"
	EventError        = "error"
	orderUpdatePrefix = "orderUpdate:"
)

// OrderUpdateEvent returns the event name used for a customer's updates.
func OrderUpdateEvent(customerID string) string {
	return orderUpdatePrefix + customerID
}

// Command is a decoded client message.
type Command struct {
	Event string
	Room  string
}

// DecodeCommand parses {"event": "...", "data": "<room>"}.
func DecodeCommand(b []byte) (Command, error) {
	var cmd Command
	d := jx.DecodeBytes(b)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "event":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "event")
			}
			cmd.Event = v
		case "data":
			if d.Next() != jx.String {
				return d.Skip()
			}
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "data")
			}
			cmd.Room = v
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return Command{}, errors.Wrap(err, "decode command")
	}
	if cmd.Event == "" {
		return Command{}, errors.New("decode command: event required")
	}
	return cmd, nil
}

// EncodeFrame wraps an event into {"event": name, "data": <data>}. data must
// be valid JSON.
func EncodeFrame(ev Event) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("event", func(e *jx.Encoder) { e.Str(ev.Name) })
		e.Field("data", func(e *jx.Encoder) {
			if len(ev.Data) == 0 {
				e.Null()
				return
			}
			e.Raw(ev.Data)
		})
	})
	return e.Bytes()
}

// ErrorEvent builds an error event carrying reason.
func ErrorEvent(reason string) Event {
	var e jx.Encoder
	e.Str(reason)
	return Event{Name: EventError, Data: e.Bytes()}
}

// NewOrderEvent encodes {orderId, customerName, status, items}.
func NewOrderEvent(n order.NewOrderNotice) Event {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(n.OrderID) })
		e.Field("customerName", func(e *jx.Encoder) { e.Str(n.CustomerName) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(n.Status)) })
		e.Field("items", func(e *jx.Encoder) { encodeItems(e, n.Items) })
	})
	return Event{Name: EventNewOrder, Data: e.Bytes()}
}

// OrderUpdatedEvent encodes {orderId, status, items, message}.
func OrderUpdatedEvent(n order.UpdateNotice) Event {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(n.OrderID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(n.Status)) })
		e.Field("items", func(e *jx.Encoder) { encodeItems(e, n.Items) })
		e.Field("message", func(e *jx.Encoder) { e.Str(n.Message) })
	})
	return Event{Name: OrderUpdateEvent(n.CustomerID), Data: e.Bytes()}
}

func encodeItems(e *jx.Encoder, items []order.NoticeItem) {
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
				e.Field("qty", func(e *jx.Encoder) { e.Int(it.Quantity) })
				e.Field("price", func(e *jx.Encoder) { e.Raw([]byte(it.Price.StringFixed(2))) })
			})
		}
	})
}
