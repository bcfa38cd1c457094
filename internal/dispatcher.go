package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultStoreTimeout = 3 * time.Second

// Sender delivers one encoded outbound frame to a single connection. It must
// not block; a false return means the frame was dropped.
type Sender interface {
	Send(payload []byte) bool
}

// History is the message log consulted on join and appended to on send.
type History interface {
	Append(ctx context.Context, room string, rec MessageRecord) error
	Recent(ctx context.Context, room string) ([]MessageRecord, error)
}

// Dispatcher is the entry point for inbound client events. It owns all
// in-memory coordination state (sessions, rosters, typing flags) and emits
// outbound events to single connections or whole rooms. Handlers never fail
// an event: missing sessions degrade to empty attribution, store errors are
// logged and swallowed, unknown rooms behave as empty.
//
// Events arriving on one connection are serialized by the transport's read
// loop, and each component guards its own state, so no handler needs a
// global lock. Events in different rooms proceed independently.
type Dispatcher struct {
	registry  *Registry
	directory *Directory
	typing    *TypingTracker
	history   History
	metrics   *Metrics
	log       *slog.Logger

	connMutex sync.RWMutex
	conns     map[string]Sender

	storeTimeout time.Duration
}

// DispatcherConfig carries the dispatcher's tunables.
type DispatcherConfig struct {
	// Quiescence is the typing auto-clear window.
	Quiescence time.Duration
	// StoreTimeout bounds every message-log round trip.
	StoreTimeout time.Duration
}

func NewDispatcher(history History, metrics *Metrics, log *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	d := &Dispatcher{
		registry:     NewRegistry(),
		directory:    NewDirectory(),
		history:      history,
		metrics:      metrics,
		log:          log,
		conns:        make(map[string]Sender),
		storeTimeout: cfg.StoreTimeout,
	}
	d.typing = NewTypingTracker(cfg.Quiescence, d.broadcastTypers)
	return d
}

// Connect attaches a transport connection so room broadcasts can reach it.
func (d *Dispatcher) Connect(connID string, sender Sender) {
	d.connMutex.Lock()
	d.conns[connID] = sender
	d.connMutex.Unlock()
	d.metrics.IncConn()
}

// Disconnect handles transport-level connection loss: the session is removed,
// the former room gets a leave notification plus refreshed roster and typing
// list, and the connection stops receiving broadcasts.
func (d *Dispatcher) Disconnect(connID string) {
	d.connMutex.Lock()
	delete(d.conns, connID)
	d.connMutex.Unlock()
	d.metrics.DecConn()

	session, ok := d.registry.Remove(connID)
	if !ok {
		return
	}
	d.leaveRoom(session)
}

// leaveRoom clears membership and typing state for a departed session and
// notifies whoever is left in the room. Zero remaining recipients is fine.
func (d *Dispatcher) leaveRoom(session Session) {
	d.directory.RemoveMember(session.Room, session.ConnID)
	d.typing.ClearTyping(session.Room, session.UserName)
	d.broadcastRoom(session.Room, EventNotification, fmt.Sprintf("%s left", session.UserName), "")
	d.broadcastRoom(session.Room, EventUserList, d.directory.Members(session.Room), "")
	d.broadcastRoom(session.Room, EventTypers, d.typing.CurrentTypers(session.Room), "")
}

// Dispatch decodes one inbound frame from connID and routes it to the
// matching handler. Malformed frames are logged and ignored; they never
// terminate the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, connID string, raw []byte) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		d.log.Debug("ignoring malformed frame", "conn", connID, "err", err)
		return
	}
	d.metrics.IncEvent()

	switch envelope.Event {
	case EventJoin:
		var payload JoinPayload
		if decodePayload(d.log, connID, envelope, &payload) {
			d.HandleJoin(ctx, connID, payload.Room, payload.UserName)
		}
	case EventSendMessage:
		var payload SendMessagePayload
		if decodePayload(d.log, connID, envelope, &payload) {
			d.HandleSendMessage(connID, payload.Room, payload.Message)
		}
	case EventTyping:
		var payload TypingPayload
		if decodePayload(d.log, connID, envelope, &payload) {
			d.HandleTyping(connID, payload.Room)
		}
	case EventReactMessage:
		var payload ReactPayload
		if decodePayload(d.log, connID, envelope, &payload) {
			d.HandleReact(payload.Room, payload.MessageID, payload.Reaction)
		}
	case EventEditMessage:
		var payload EditPayload
		if decodePayload(d.log, connID, envelope, &payload) {
			d.HandleEdit(payload.Room, payload.MessageID, payload.NewText)
		}
	case EventDeleteMessage:
		var payload DeletePayload
		if decodePayload(d.log, connID, envelope, &payload) {
			d.HandleDelete(payload.Room, payload.MessageID)
		}
	default:
		d.log.Debug("ignoring unknown event", "conn", connID, "event", envelope.Event)
	}
}

func decodePayload(log *slog.Logger, connID string, envelope Envelope, out any) bool {
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		log.Debug("ignoring bad payload", "conn", connID, "event", envelope.Event, "err", err)
		return false
	}
	return true
}

// HandleJoin registers the session, adds the member to the room, replays the
// room's retained history to the joiner, and announces the arrival to the
// room. A connection re-joining moves to the new room: its previous room gets
// the same cleanup and notifications a disconnect would produce.
func (d *Dispatcher) HandleJoin(ctx context.Context, connID, room, userName string) {
	if previous, ok := d.registry.Lookup(connID); ok {
		d.leaveRoom(previous)
	}

	d.registry.Register(connID, userName, room)
	d.directory.AddMember(room, connID, userName)

	// History replay happens outside any coordination state; a slow or
	// unavailable store delays only the joiner's backlog, not the room.
	fetchCtx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	records, err := d.history.Recent(fetchCtx, room)
	cancel()
	if err != nil {
		d.metrics.IncStoreFailure()
		d.log.Warn("history fetch failed", "room", room, "err", err)
		records = nil
	}
	if records == nil {
		records = []MessageRecord{}
	}
	d.sendTo(connID, EventRecentMessages, records)

	d.broadcastRoom(room, EventNotification, fmt.Sprintf("%s joined", userName), "")
	d.broadcastRoom(room, EventUserList, d.directory.Members(room), "")
}

// HandleSendMessage builds the message record, broadcasts it to the whole
// room (sender included, so clients can render optimistically and must treat
// their own echo as idempotent), clears the sender's typing flag, and
// persists the record in the background. Persistence is best-effort: live
// delivery never waits on the store.
func (d *Dispatcher) HandleSendMessage(connID, room string, msg OutgoingMessage) {
	sender := ""
	session, ok := d.registry.Lookup(connID)
	if ok {
		sender = session.UserName
	}

	record := MessageRecord{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      msg.Text,
		Timestamp: time.Now().UnixMilli(),
		ReplyTo:   msg.ReplyTo,
		ImageURL:  msg.ImageURL,
	}
	d.broadcastRoom(room, EventReceiveMessage, record, "")

	if ok && d.typing.ClearTyping(room, sender) {
		d.broadcastRoom(room, EventTypers, d.typing.CurrentTypers(room), "")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.storeTimeout)
		defer cancel()
		if err := d.history.Append(ctx, room, record); err != nil {
			d.metrics.IncStoreFailure()
			d.log.Warn("history append failed", "room", room, "err", err)
		}
	}()
}

// HandleTyping flags the sender as typing and, when the typing set actually
// changed, pushes the refreshed list to everyone else in the room. Unknown
// senders are a no-op.
func (d *Dispatcher) HandleTyping(connID, room string) {
	session, ok := d.registry.Lookup(connID)
	if !ok {
		return
	}
	if d.typing.MarkTyping(room, session.UserName) {
		d.broadcastRoom(room, EventTypers, d.typing.CurrentTypers(room), connID)
	}
}

// HandleReact relays a reaction to the room. Nothing is validated or
// persisted; the event is presentation-only.
func (d *Dispatcher) HandleReact(room, messageID, reaction string) {
	d.broadcastRoom(room, EventMessageReaction, ReactionBroadcast{MessageID: messageID, Reaction: reaction}, "")
}

// HandleEdit relays replacement text for a message to the room.
func (d *Dispatcher) HandleEdit(room, messageID, newText string) {
	d.broadcastRoom(room, EventUpdateMessage, UpdateBroadcast{MessageID: messageID, NewText: newText}, "")
}

// HandleDelete relays a message removal to the room.
func (d *Dispatcher) HandleDelete(room, messageID string) {
	d.broadcastRoom(room, EventRemoveMessage, RemoveBroadcast{MessageID: messageID}, "")
}

// RoomExists reports whether a room currently has members.
func (d *Dispatcher) RoomExists(room string) bool {
	return d.directory.Exists(room)
}

// broadcastTypers pushes the room's current typing set to all members. It
// runs when a typing flag expires on its own, so there is no originating
// connection to exclude.
func (d *Dispatcher) broadcastTypers(room string) {
	d.broadcastRoom(room, EventTypers, d.typing.CurrentTypers(room), "")
}

// sendTo delivers one event to a single connection.
func (d *Dispatcher) sendTo(connID, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		d.log.Error("encode event", "event", event, "err", err)
		return
	}
	d.connMutex.RLock()
	sender, ok := d.conns[connID]
	d.connMutex.RUnlock()
	if ok && sender.Send(payload) {
		d.metrics.IncDelivered()
	}
}

// broadcastRoom fans one event out to every current member of the room,
// skipping excludeID when set. The event is encoded once; delivery to each
// member is best-effort.
func (d *Dispatcher) broadcastRoom(room, event string, data any, excludeID string) {
	members := d.directory.Members(room)
	if len(members) == 0 {
		return
	}
	payload, err := encodeEvent(event, data)
	if err != nil {
		d.log.Error("encode event", "event", event, "err", err)
		return
	}
	d.connMutex.RLock()
	defer d.connMutex.RUnlock()
	for _, member := range members {
		if member.ID == excludeID {
			continue
		}
		if sender, ok := d.conns[member.ID]; ok {
			if sender.Send(payload) {
				d.metrics.IncDelivered()
			}
		}
	}
}
