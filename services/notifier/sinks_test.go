package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reportText = "📊VIP signal report for 2024-06-03\n✅ITM: 7\n❌OTM: 3\n📊Win % rate: 70.00%"

// fakeTelegram serves the two Bot API methods the sink uses
type fakeTelegram struct {
	mu         sync.Mutex
	chatID     string
	text       string
	failSend   bool
	getMeDown  bool
	getMeCalls int
}

func (f *fakeTelegram) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		f.mu.Lock()
		f.getMeCalls++
		down := f.getMeDown
		f.mu.Unlock()
		if down {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":{"id":1001,"is_bot":true,"first_name":"Reports","username":"report_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		_ = r.ParseForm()
		f.mu.Lock()
		f.chatID = r.PostForm.Get("chat_id")
		f.text = r.PostForm.Get("text")
		fail := f.failSend
		f.mu.Unlock()
		if fail {
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":42,"date":1717400000,"chat":{"id":-100123,"type":"channel"}}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func newTelegramServer(t *testing.T) (*fakeTelegram, string) {
	t.Helper()
	fake := &fakeTelegram{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)
	return fake, srv.URL + "/bot%s/%s"
}

func TestTelegramSink_Send(t *testing.T) {
	tests := []struct {
		name       string
		channel    string
		wantChatID string
	}{
		{name: "channel username", channel: "@khulafx_vip", wantChatID: "@khulafx_vip"},
		{name: "numeric chat id", channel: "-100123", wantChatID: "-100123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, endpoint := newTelegramServer(t)
			sink, err := NewTelegramSink("123:abc", tt.channel, endpoint, http.DefaultClient)
			require.NoError(t, err)
			assert.Equal(t, "Telegram", sink.Name())

			ack, err := sink.Send(context.Background(), reportText)
			require.NoError(t, err)
			assert.Equal(t, "message 42", ack.String())

			fake.mu.Lock()
			defer fake.mu.Unlock()
			assert.Equal(t, tt.wantChatID, fake.chatID)
			assert.Equal(t, reportText, fake.text)
		})
	}
}

func TestTelegramSink_SendRejected(t *testing.T) {
	fake, endpoint := newTelegramServer(t)
	fake.failSend = true

	sink, err := NewTelegramSink("123:abc", "@khulafx_vip", endpoint, http.DefaultClient)
	require.NoError(t, err)

	_, err = sink.Send(context.Background(), reportText)
	require.Error(t, err)
	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Telegram", se.Channel)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramSink_RecoversWhenAPIComesBack(t *testing.T) {
	fake, endpoint := newTelegramServer(t)
	fake.getMeDown = true

	sink, err := NewTelegramSink("123:abc", "@khulafx_vip", endpoint, http.DefaultClient)
	require.NoError(t, err, "an unreachable API at start-up still yields a sink")

	_, err = sink.Send(context.Background(), reportText)
	require.Error(t, err)
	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Telegram", se.Channel)
	assert.NotErrorIs(t, err, ErrNotConfigured)

	fake.mu.Lock()
	fake.getMeDown = false
	fake.mu.Unlock()

	ack, err := sink.Send(context.Background(), reportText)
	require.NoError(t, err)
	assert.Equal(t, "message 42", ack.String())

	_, err = sink.Send(context.Background(), reportText)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 3, fake.getMeCalls, "the bot is authenticated once and then reused")
}

func TestNewTelegramSink_Validation(t *testing.T) {
	_, endpoint := newTelegramServer(t)

	_, err := NewTelegramSink("", "@x", endpoint, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewTelegramSink("123:abc", "not-a-chat", endpoint, http.DefaultClient)
	assert.Error(t, err)
}

func TestWhatsAppSink_Send(t *testing.T) {
	var got whatsAppRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.HBgM"}]}`)
	}))
	defer srv.Close()

	sink, err := NewWhatsAppSink(srv.URL, "secret-token", "27820000000", srv.Client())
	require.NoError(t, err)

	ack, err := sink.Send(context.Background(), reportText)
	require.NoError(t, err)
	assert.Equal(t, "wamid.HBgM", ack.Reference)
	assert.Equal(t, "Bearer secret-token", auth)
	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "27820000000", got.To)
	assert.Equal(t, "text", got.Type)
	assert.Equal(t, reportText, got.Text.Body)
}

func TestWhatsAppSink_SendFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "api error", status: http.StatusUnauthorized, body: `{"error":{"message":"Invalid OAuth access token","code":190}}`, wantErr: "Invalid OAuth access token"},
		{name: "bare status", status: http.StatusBadGateway, body: `upstream down`, wantErr: "status 502"},
		{name: "no message id", status: http.StatusOK, body: `{"messages":[]}`, wantErr: "no message id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			sink, err := NewWhatsAppSink(srv.URL, "token", "27820000000", srv.Client())
			require.NoError(t, err)

			_, err = sink.Send(context.Background(), reportText)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			var se *SendError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestWhatsAppSink_RespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	sink, err := NewWhatsAppSink(srv.URL, "token", "27820000000", srv.Client())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = sink.Send(ctx, reportText)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewWhatsAppSink_RequiresSettings(t *testing.T) {
	_, err := NewWhatsAppSink("", "token", "27820000000", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestRedisSink_Send(t *testing.T) {
	db, mock := redismock.NewClientMock()
	sink := NewRedisSink(db, "reports")

	mock.ExpectPublish("reports", reportText).SetVal(3)
	ack, err := sink.Send(context.Background(), reportText)
	require.NoError(t, err)
	assert.Equal(t, "3 subscribers", ack.Reference)
	assert.Equal(t, "Redis", sink.Name())

	mock.ExpectPublish("reports", reportText).SetErr(errors.New("READONLY You can't write against a read only replica"))
	_, err = sink.Send(context.Background(), reportText)
	require.Error(t, err)
	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Redis", se.Channel)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDialRedis_RequiresAddr(t *testing.T) {
	_, err := DialRedis(context.Background(), "", "reports")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDialRedis_UnreachableServerStillYieldsSink(t *testing.T) {
	sink, err := DialRedis(context.Background(), closedAddr(t), "reports")
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	_, err = sink.Send(context.Background(), reportText)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotConfigured)
}

// closedAddr returns a local address nothing listens on
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Add(&stubSink{name: "Telegram"})
	r.Add(&stubSink{name: "WhatsApp"})
	r.Add(&stubSink{name: "Telegram"})

	assert.Equal(t, []string{"Telegram", "WhatsApp"}, r.Names())
	_, ok := r.Get("Redis")
	assert.False(t, ok)
	s, ok := r.Get("WhatsApp")
	require.True(t, ok)
	assert.Equal(t, "WhatsApp", s.Name())
}

func TestSendError(t *testing.T) {
	cause := errors.New("boom")
	err := wrapSendError("Telegram", cause)
	assert.Equal(t, "Telegram: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	// Already scoped errors are not wrapped twice
	assert.Same(t, err, wrapSendError("Guard", err))
	assert.Nil(t, wrapSendError("Telegram", nil))
}
