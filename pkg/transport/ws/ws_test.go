// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tool-mesh/mcpcore/pkg/transport"
)

func TestWSRoundTrip(t *testing.T) {
	tr := New()
	srv := httptest.NewServer(tr)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer clientConn.Close()

	connected := <-tr.Events()
	require.Equal(t, transport.EventConnected, connected.Kind)

	require.NoError(t, clientConn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))

	msg := <-tr.Events()
	require.Equal(t, transport.EventMessage, msg.Kind)
	assert.Contains(t, string(msg.Raw), "ping")

	require.NoError(t, tr.Send(connected.ConnID, []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)))
	_, data, err := clientConn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "result")

	require.NoError(t, tr.Close(connected.ConnID, "test done"))

	disc := <-tr.Events()
	assert.Equal(t, transport.EventDisconnected, disc.Kind)
}

func TestSendUnknownConnection(t *testing.T) {
	tr := New()
	err := tr.Send("missing", []byte("{}"))
	assert.Error(t, err)

	_, err = tr.Recv(nil, "x", time.Second)
	assert.Error(t, err)
}
