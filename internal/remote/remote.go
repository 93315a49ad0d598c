// Package remote lets viewers follow a list model over a websocket.
//
// Every connection becomes a controller of the list. It first receives a snapshot
// of the current items, then one event per notification. A viewer must answer
// each "item-removed" event with an ack frame, otherwise the removal blocks.
package remote

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/modelcore/logging"
	"github.com/grovetools/modelcore/pkg/model"
	"github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 4096
	wsWriteTimeout    = 10 * time.Second
)

// KindSnapshot is the kind of the first event of every connection.
const KindSnapshot = "snapshot"

// Event is the wire form of a notification.
type Event struct {
	Kind      string         `json:"kind"`
	Model     string         `json:"model"`
	Version   uint64         `json:"version,omitempty"`
	Key       string         `json:"key,omitempty"`
	ParentKey string         `json:"parentKey,omitempty"`
	Value     interface{}    `json:"value,omitempty"`
	Completed *bool          `json:"completed,omitempty"`
	Items     []SnapshotItem `json:"items,omitempty"`
}

// SnapshotItem is one item of a snapshot event.
type SnapshotItem struct {
	Key       string      `json:"key"`
	ParentKey string      `json:"parentKey,omitempty"`
	Value     interface{} `json:"value,omitempty"`
}

// Frame is sent by viewers. The only recognised type is "ack".
type Frame struct {
	Type string `json:"type"`
}

// Handler serves the websocket endpoint for one list model.
type Handler struct {
	List   *model.ListModel
	Logger *logrus.Entry

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// NewHandler creates a Handler for list.
func NewHandler(list *model.ListModel, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logging.NewLogger("remote")
	}
	return &Handler{List: list, Logger: logger}
}

// Close disconnects every viewer and refuses new ones. Viewers detach from the
// list as their connections end.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.conns {
		_ = conn.Close()
	}
}

func (h *Handler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.conns == nil {
		h.conns = make(map[*websocket.Conn]struct{})
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *Handler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.WithError(err).WithField("remote", r.RemoteAddr).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if !h.track(conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		return
	}
	defer h.untrack(conn)

	name := "ws:" + r.RemoteAddr
	logger := h.Logger.WithField("viewer", name)
	box := model.NewMailbox(name)
	ctrl := model.NewController(name, box)

	if err := ctrl.Attach(h.List); err != nil {
		logger.WithError(err).Warn("Cannot attach viewer")
		box.Close()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "model destroyed"))
		return
	}
	logger.Info("Viewer connected")

	// The controller detaches before its mailbox closes, so the list never posts
	// to a closed target.
	defer func() {
		ctrl.DetachAll()
		box.Close()
		logger.Info("Viewer disconnected")
	}()

	if err := h.writeEvent(conn, h.snapshot()); err != nil {
		logger.WithError(err).Debug("Failed to send snapshot")
		return
	}

	var t tomb.Tomb
	t.Go(func() error {
		return h.writeLoop(t.Context(nil), conn, box)
	})
	t.Go(func() error {
		err := h.readLoop(conn, ctrl)
		t.Kill(err)
		return err
	})
	<-t.Dying()
	_ = conn.Close()
	if err := t.Wait(); err != nil {
		logger.WithError(err).Debug("Viewer connection ended")
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, box *model.Mailbox) error {
	for {
		msg, err := box.Receive(ctx)
		if err != nil {
			return nil
		}
		if err := h.writeEvent(conn, EventOf(msg)); err != nil {
			return err
		}
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, ctrl model.Controller) error {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if frame.Type == "ack" {
			h.List.RemovalAcknowledged(ctrl)
		}
	}
}

func (h *Handler) writeEvent(conn *websocket.Conn, event Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(event)
}

func (h *Handler) snapshot() Event {
	event := Event{Kind: KindSnapshot, Model: h.List.Name(), Version: h.List.Version()}
	var walk func(items []*model.Item, parent string)
	walk = func(items []*model.Item, parent string) {
		for _, it := range items {
			event.Items = append(event.Items, SnapshotItem{
				Key:       it.Key(),
				ParentKey: parent,
				Value:     it.Value(),
			})
			walk(it.Children(), it.Key())
		}
	}
	walk(h.List.Items(), "")
	return event
}

// EventOf converts a model message to its wire form.
func EventOf(msg model.Message) Event {
	event := Event{
		Kind:    string(msg.Kind),
		Model:   msg.Model,
		Version: msg.Version,
	}
	switch p := msg.Payload.(type) {
	case model.ItemEvent:
		event.Key = p.Key
		event.ParentKey = p.ParentKey
		if p.Item != nil && msg.Kind != model.KindItemRemoved {
			event.Value = p.Item.Value()
		}
	case model.JobResult:
		completed := p.Completed
		event.Completed = &completed
	}
	return event
}
