package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/workspace"
)

func dialSocket(t *testing.T, srv *httptest.Server, id string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/workspaces/" + id + "/socket"
	return websocket.DefaultDialer.Dial(u, header)
}

func readEvent(t *testing.T, conn *websocket.Conn) workspace.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e workspace.Event
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestSocket_StreamsDocumentAndConsole(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	st := e.createWorkspace(t, nil)
	conn, _, err := dialSocket(t, srv, st.ID, nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readEvent(t, conn)
	assert.Equal(t, workspace.EventReload, hello.Type)
	require.NotNil(t, hello.Document)
	assert.Equal(t, uint64(1), hello.Document.Generation)

	frame := `{"source":"sandbox","data":{"type":"console","method":"log","args":["from the socket"]}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	got := readEvent(t, conn)
	assert.Equal(t, workspace.EventConsole, got.Type)
	require.NotNil(t, got.Console)
	assert.Equal(t, []string{"from the socket"}, got.Console.Args)

	// A run from the REST side reaches the socket too.
	rec := e.do(t, http.MethodPost, "/api/workspaces/"+st.ID+"/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// A manual run clears the console first.
	assert.Equal(t, workspace.EventClear, readEvent(t, conn).Type)
	reload := readEvent(t, conn)
	assert.Equal(t, workspace.EventReload, reload.Type)
	assert.Equal(t, uint64(2), reload.Document.Generation)
}

func TestSocket_InvalidFramesGetNoReply(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	st := e.createWorkspace(t, nil)
	conn, _, err := dialSocket(t, srv, st.ID, nil)
	require.NoError(t, err)
	defer conn.Close()
	readEvent(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"source":"evil","data":{}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err, "nothing is sent back for dropped frames")

	ws, err := e.hub.Get(st.ID)
	require.NoError(t, err)
	assert.Empty(t, ws.Console())
}

func TestSocket_ClosesWithWorkspace(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	st := e.createWorkspace(t, nil)
	conn, _, err := dialSocket(t, srv, st.ID, nil)
	require.NoError(t, err)
	defer conn.Close()
	readEvent(t, conn)

	require.NoError(t, e.hub.Close(st.ID))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestSocket_Rejections(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	_, resp, err := dialSocket(t, srv, "unknown", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	st := e.createWorkspace(t, nil)
	_, resp, err = dialSocket(t, srv, st.ID, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
