package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFiltersByEntity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?entity=0xAAA"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, model.Event{ID: "1", Type: model.EventDeposit, Entity: "0xbbb"}))
	require.NoError(t, hub.Publish(ctx, model.Event{ID: "2", Type: model.EventDeposit, Entity: "0xaaa"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got model.Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "2", got.ID)
}

func TestClientSubscriptionUpdates(t *testing.T) {
	c := &client{entities: map[string]bool{}, types: map[model.EventType]bool{}}
	e := model.Event{Type: model.EventClaim, Entity: "0xAbC"}
	assert.True(t, c.wants(e))

	c.apply(subscribeMsg{Action: "subscribe", Types: []model.EventType{model.EventDeposit}})
	assert.False(t, c.wants(e))

	c.apply(subscribeMsg{Action: "subscribe", Types: []model.EventType{model.EventClaim}, Entities: []string{"0xabc"}})
	assert.True(t, c.wants(e))

	c.apply(subscribeMsg{Action: "unsubscribe", Entities: []string{"0xABC"}})
	c.apply(subscribeMsg{Action: "subscribe", Entities: []string{"0xdef"}})
	assert.False(t, c.wants(e))
}
