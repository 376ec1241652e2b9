package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyiku/tangram-back/internal/geometry"
	"github.com/kyiku/tangram-back/internal/testutil"
	"github.com/kyiku/tangram-back/internal/worker"
)

func newWebSocketServer(t *testing.T) string {
	t.Helper()
	e := echo.New()
	h := NewWebSocketHandler(worker.NewEngine(), "https://tangram.example.com", nil)
	e.GET("/ws", h.Connect)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWebSocketHandler_Connect(t *testing.T) {
	url := newWebSocketServer(t)

	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	req := worker.NewCheckRequest(50, 50, []geometry.Polygon{testutil.Square(10, 10, 20)}, testutil.Square(10, 10, 20), true)
	req.ID = 12
	require.NoError(t, conn.WriteJSON(req))

	var resp worker.Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, worker.TypeCheckResult, resp.Type)
	assert.Equal(t, uint64(12), resp.ID)
	assert.Len(t, resp.Overlay, 50*50*4)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, worker.TypePong, resp.Type)
}

func TestWebSocketHandler_Origin(t *testing.T) {
	url := newWebSocketServer(t)

	tests := []struct {
		name   string
		origin string
		wantOK bool
	}{
		{name: "正常系: 許可されたオリジン", origin: "https://tangram.example.com", wantOK: true},
		{name: "正常系: localhost", origin: "http://localhost:5173", wantOK: true},
		{name: "異常系: 不明なオリジン", origin: "https://evil.example.com", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			header.Set("Origin", tt.origin)

			conn, resp, err := gorillaws.DefaultDialer.Dial(url, header)
			if tt.wantOK {
				require.NoError(t, err)
				conn.Close()
				return
			}
			assert.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}
