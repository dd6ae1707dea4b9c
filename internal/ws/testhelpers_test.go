package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// connPair is a real websocket pair: the server side wrapped in a Conn
// with its writer running, and the raw client side.
type connPair struct {
	server *Conn
	client *websocket.Conn
	srv    *httptest.Server
}

func newConnPair(tb testing.TB) *connPair {
	tb.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	serverSide := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- newConn(ws)
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientSide, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		tb.Fatalf("dial test server: %v", err)
	}

	return &connPair{server: <-serverSide, client: clientSide, srv: srv}
}

func (p *connPair) teardown() {
	p.server.Close()
	p.client.Close()
	p.srv.Close()
}
