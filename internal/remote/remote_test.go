package remote

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/modelcore/pkg/model"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, list *model.ListModel) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	server := httptest.NewServer(NewHandler(list, logrus.NewEntry(logger)))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return server, conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestViewerReceivesSnapshotAndUpdates(t *testing.T) {
	list := model.NewListModel("inbox", model.WithPollInterval(time.Millisecond))
	t.Cleanup(list.Destroy)

	require.NoError(t, list.AddItem(model.NewItem("msg-1", "hello")))
	require.NoError(t, list.AddSubItem("msg-1", model.NewItem("att-1", "file.pdf")))

	_, conn := newServer(t, list)

	snapshot := readEvent(t, conn)
	assert.Equal(t, KindSnapshot, snapshot.Kind)
	assert.Equal(t, "inbox", snapshot.Model)
	require.Len(t, snapshot.Items, 2)
	assert.Equal(t, SnapshotItem{Key: "msg-1", Value: "hello"}, snapshot.Items[0])
	assert.Equal(t, SnapshotItem{Key: "att-1", ParentKey: "msg-1", Value: "file.pdf"}, snapshot.Items[1])

	require.NoError(t, list.AddItem(model.NewItem("msg-2", "world")))
	added := readEvent(t, conn)
	assert.Equal(t, string(model.KindItemAdded), added.Kind)
	assert.Equal(t, "msg-2", added.Key)
	assert.Equal(t, "world", added.Value)
	assert.Equal(t, list.Version(), added.Version)
}

func TestRemovalWaitsForViewerAck(t *testing.T) {
	list := model.NewListModel("inbox", model.WithPollInterval(time.Millisecond))
	t.Cleanup(list.Destroy)
	require.NoError(t, list.AddItem(model.NewItem("msg-1", "hello")))

	_, conn := newServer(t, list)
	readEvent(t, conn)

	removed := make(chan error, 1)
	go func() { removed <- list.RemoveItem("msg-1") }()

	event := readEvent(t, conn)
	assert.Equal(t, string(model.KindItemRemoved), event.Kind)
	assert.Equal(t, "msg-1", event.Key)
	assert.Nil(t, event.Value)

	select {
	case err := <-removed:
		t.Fatalf("removal finished before the ack: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, conn.WriteJSON(Frame{Type: "ack"}))
	select {
	case err := <-removed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("removal did not finish after the ack")
	}
	_, ok := list.FindItemByKey("msg-1")
	assert.False(t, ok)
}

func TestDisconnectDetachesViewer(t *testing.T) {
	list := model.NewListModel("inbox", model.WithPollInterval(time.Millisecond))
	t.Cleanup(list.Destroy)

	_, conn := newServer(t, list)
	readEvent(t, conn)
	assert.True(t, list.HasControllers())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	require.Eventually(t, func() bool { return !list.HasControllers() }, 5*time.Second, time.Millisecond)

	// A removal no longer waits on the departed viewer.
	require.NoError(t, list.AddItem(model.NewItem("msg-1", "hello")))
	require.NoError(t, list.RemoveItem("msg-1"))
}

func TestDestroyedListRefusesViewers(t *testing.T) {
	list := model.NewListModel("inbox")
	list.Destroy()

	_, conn := newServer(t, list)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestEventOfJobDone(t *testing.T) {
	event := EventOf(model.Message{
		Kind:    model.KindJobDone,
		Model:   "import",
		Version: 3,
		Payload: model.JobResult{Completed: true},
	})
	require.NotNil(t, event.Completed)
	assert.True(t, *event.Completed)
	assert.Equal(t, "import", event.Model)
	assert.Equal(t, uint64(3), event.Version)
}

func TestCloseDisconnectsViewers(t *testing.T) {
	list := model.NewListModel("inbox", model.WithPollInterval(time.Millisecond))

	logger, _ := test.NewNullLogger()
	handler := NewHandler(list, logrus.NewEntry(logger))
	server := httptest.NewServer(handler)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	readEvent(t, conn)

	handler.Close()

	destroyed := make(chan struct{})
	go func() {
		list.Destroy()
		close(destroyed)
	}()
	select {
	case <-destroyed:
	case <-time.After(5 * time.Second):
		t.Fatal("list still has viewers after Close")
	}
}
