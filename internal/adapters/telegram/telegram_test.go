package telegram_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/signalbot/internal/adapters/telegram"
)

func newClient(t *testing.T, srv *httptest.Server) *telegram.Client {
	t.Helper()
	c, err := telegram.NewClient(telegram.ClientConfig{
		Token:       "TOKEN",
		APIBase:     srv.URL,
		PollTimeout: time.Second,
		RatePerSec:  1000,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := telegram.NewClient(telegram.ClientConfig{})
	assert.Error(t, err)
}

func TestClient_GetUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/getUpdates", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("offset"))
		assert.Equal(t, "1", r.URL.Query().Get("timeout"))
		fmt.Fprint(w, `{"ok":true,"result":[
			{"update_id":42,"message":{"message_id":7,"date":1700000000,
			 "chat":{"id":-100,"type":"group","username":"signals"},
			 "from":{"id":1,"is_bot":true,"username":"ETHGPT60s_bot"},
			 "text":"Trade: 🔴 Red"}}]}`)
	}))
	defer srv.Close()

	updates, err := newClient(t, srv).GetUpdates(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(42), updates[0].UpdateID)
	require.NotNil(t, updates[0].Post())
	assert.Equal(t, "Trade: 🔴 Red", updates[0].Post().Body())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":[]}`)
	}))
	defer srv.Close()

	updates, err := newClient(t, srv).GetUpdates(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, updates)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newClient(t, srv).GetUpdates(context.Background(), 0)
	assert.ErrorIs(t, err, telegram.ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_APIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":409,"description":"Conflict: webhook is active"}`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv).GetUpdates(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook is active")
}

type mockUpdater struct {
	batches [][]telegram.Update
	offsets []int64
	err     error
}

func (m *mockUpdater) GetUpdates(_ context.Context, offset int64) ([]telegram.Update, error) {
	m.offsets = append(m.offsets, offset)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.batches) == 0 {
		return nil, nil
	}
	b := m.batches[0]
	m.batches = m.batches[1:]
	return b, nil
}

func post(updateID int64, chatUser, fromUser, text string) telegram.Update {
	m := &telegram.Message{
		MessageID: updateID * 10,
		Date:      1700000000 + updateID,
		Chat:      telegram.Chat{ID: -100, Username: chatUser},
		Text:      text,
	}
	if fromUser != "" {
		m.From = &telegram.User{IsBot: true, Username: fromUser}
	}
	return telegram.Update{UpdateID: updateID, Message: m}
}

func TestSource_FiltersByChatListAndAdvancesOffset(t *testing.T) {
	up := &mockUpdater{batches: [][]telegram.Update{
		{
			post(10, "signals", "ETHGPT60s_bot", "Trade: Red"),
			post(11, "random", "other_bot", "hola"),
			post(12, "signals", "", ""), // sin texto
		},
		nil,
	}}
	src := telegram.NewSource(up, []string{"ethgpt60s_bot"})
	assert.Equal(t, "telegram", src.Name())

	msgs, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "@ETHGPT60s_bot", msgs[0].Source)
	assert.Equal(t, "Trade: Red", msgs[0].Text)
	assert.Equal(t, "-100:100", msgs[0].ID)
	assert.Equal(t, time.Unix(1700000010, 0).UTC(), msgs[0].ReceivedAt)

	_, err = src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 13}, up.offsets)
}

func TestSource_EmptyListAcceptsAll(t *testing.T) {
	up := &mockUpdater{batches: [][]telegram.Update{{
		post(1, "signals", "", "a"),
		post(2, "", "", "b"),
	}}}
	msgs, err := telegram.NewSource(up, nil).Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "@signals", msgs[0].Source)
	assert.Equal(t, "-100", msgs[1].Source)
}

func TestSource_ChatIDFilter(t *testing.T) {
	up := &mockUpdater{batches: [][]telegram.Update{{post(1, "", "", "x")}}}
	msgs, err := telegram.NewSource(up, []string{"-100"}).Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "-100", msgs[0].Source)
}

func TestSource_PropagatesErrors(t *testing.T) {
	up := &mockUpdater{err: errors.New("network down")}
	_, err := telegram.NewSource(up, nil).Poll(context.Background())
	assert.Error(t, err)
}
