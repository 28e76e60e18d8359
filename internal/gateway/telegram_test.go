package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/clone-bot/internal/models"
	"go.uber.org/zap"
)

func testBotAPI() *tgbotapi.BotAPI {
	return &tgbotapi.BotAPI{Self: tgbotapi.User{ID: 42, UserName: "CloneBot", IsBot: true}}
}

func TestClassifyTelegramError(t *testing.T) {
	unauthorized := fmt.Errorf("failed to create bot: %w", &tgbotapi.Error{Code: 401, Message: "Unauthorized"})
	assert.ErrorIs(t, classifyTelegramError(unauthorized), ErrLoggedOut)

	conflict := &tgbotapi.Error{Code: 409, Message: "Conflict"}
	assert.NotErrorIs(t, classifyTelegramError(conflict), ErrLoggedOut)
}

func TestTelegramToEvent(t *testing.T) {
	adapter, err := NewTelegramAdapter(TelegramConfig{Token: "x"}, zap.NewNop())
	require.NoError(t, err)
	api := testBotAPI()

	private := &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 1, FirstName: "Alice"},
		Chat:      &tgbotapi.Chat{ID: 100, Type: "private"},
		Text:      "hi there",
	}
	ev, ok := adapter.toEvent(api, private)
	require.True(t, ok)
	assert.Equal(t, "100", ev.ConversationID)
	assert.Equal(t, "7", ev.MessageID)
	assert.Equal(t, "Alice", ev.Sender.Name)
	assert.False(t, ev.Message.IsGroup)
	assert.NotEmpty(t, ev.ID)

	group := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 1, FirstName: "Alice"},
		Chat: &tgbotapi.Chat{ID: -5, Type: "supergroup"},
		Text: "anyone up?",
	}
	_, ok = adapter.toEvent(api, group)
	assert.False(t, ok)

	group.Text = "😀 @clonebot you up?"
	group.Entities = []tgbotapi.MessageEntity{{Type: "mention", Offset: 3, Length: 9}}
	ev, ok = adapter.toEvent(api, group)
	require.True(t, ok)
	assert.True(t, ev.Message.IsGroup)
	assert.True(t, ev.Message.MentionsMe)

	reply := &tgbotapi.Message{
		From:           &tgbotapi.User{ID: 1, FirstName: ""},
		Chat:           &tgbotapi.Chat{ID: -5, Type: "group"},
		Text:           "lol",
		ReplyToMessage: &tgbotapi.Message{From: &tgbotapi.User{ID: 42}},
	}
	ev, ok = adapter.toEvent(api, reply)
	require.True(t, ok)
	assert.Equal(t, models.UnknownContactName, ev.Sender.Name)

	photo := &tgbotapi.Message{
		From:  &tgbotapi.User{ID: 1, FirstName: "Alice"},
		Chat:  &tgbotapi.Chat{ID: 100, Type: "private"},
		Photo: []tgbotapi.PhotoSize{{FileID: "f"}},
	}
	ev, ok = adapter.toEvent(api, photo)
	require.True(t, ok)
	assert.True(t, ev.Message.IsMedia)
	assert.False(t, ev.Message.HasCaption)
	assert.Equal(t, "[photo]", ev.Message.Text)

	command := &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 1, FirstName: "Alice"},
		Chat:     &tgbotapi.Chat{ID: 100, Type: "private"},
		Text:     "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}
	_, ok = adapter.toEvent(api, command)
	assert.False(t, ok)

	bot := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 9, IsBot: true},
		Chat: &tgbotapi.Chat{ID: 100, Type: "private"},
		Text: "beep",
	}
	_, ok = adapter.toEvent(api, bot)
	assert.False(t, ok)
}

func TestEntityText(t *testing.T) {
	text := "😀 @clonebot"
	units := []uint16{0xD83D, 0xDE00, ' ', '@', 'c', 'l', 'o', 'n', 'e', 'b', 'o', 't'}
	got, ok := entityText(units, 3, 9)
	require.True(t, ok)
	assert.Equal(t, "@clonebot", got)
	assert.Contains(t, text, got)

	_, ok = entityText(units, 10, 9)
	assert.False(t, ok)
}

func TestContactDirectory(t *testing.T) {
	d := NewContactDirectory([]models.Contact{{Name: "Mom", Closeness: models.ClosenessFamily}, {}})
	assert.Len(t, d, 1)

	got := d.Resolve(models.Contact{Name: "mom", Channel: "Telegram"})
	assert.True(t, got.Known)
	assert.Equal(t, models.ClosenessFamily, got.Closeness)
	assert.Equal(t, "Telegram", got.Channel)

	stranger := d.Resolve(models.Contact{Name: "Bob"})
	assert.False(t, stranger.Known)
}

type recordingClient struct {
	reqs []*http.Request
}

func (c *recordingClient) Do(req *http.Request) (*http.Response, error) {
	c.reqs = append(c.reqs, req)
	return nil, fmt.Errorf("offline")
}

func TestPollClientBindsOnlyLongPoll(t *testing.T) {
	base := &recordingClient{}
	poll := &pollClient{base: base}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poll.bind(ctx)

	for _, method := range []string{"getUpdates", "sendMessage"} {
		req, err := http.NewRequest(http.MethodPost, "https://api.telegram.org/bot123:abc/"+method, nil)
		require.NoError(t, err)
		_, _ = poll.Do(req)
	}

	require.Len(t, base.reqs, 2)
	assert.NotNil(t, base.reqs[0].Context().Done())
	assert.Nil(t, base.reqs[1].Context().Done(), "replies must outlive the receive loop")
}

func TestTelegramReceiveStopsWithoutWaitingForPoll(t *testing.T) {
	polling := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Clone","username":"CloneBot"}}`)
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			select {
			case polling <- struct{}{}:
			default:
			}
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			fmt.Fprint(w, `{"ok":true,"result":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	adapter, err := NewTelegramAdapter(TelegramConfig{
		Token:       "123:abc",
		PollTimeout: 30,
		APIEndpoint: srv.URL + "/bot%s/%s",
	}, zap.NewNop())
	require.NoError(t, err)
	defer adapter.poll.base.(*http.Client).CloseIdleConnections()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- adapter.Receive(ctx, make(chan InboundEvent)) }()

	select {
	case <-polling:
	case <-time.After(2 * time.Second):
		t.Fatal("adapter never started polling")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Receive waited for the poll timeout")
	}
}
