package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/xaenox/clone-bot/internal/models"
	"go.uber.org/zap"
)

const ChannelTelegram = "Telegram"

type TelegramConfig struct {
	Token string
	// PollTimeout is the long-poll timeout in seconds
	PollTimeout int
	Debug       bool
	// APIEndpoint overrides tgbotapi.APIEndpoint, e.g. for a local Bot API server
	APIEndpoint string
}

// TelegramAdapter long-polls the Bot API. It connects lazily so a network
// failure at startup is retried like any other disconnect.
type TelegramAdapter struct {
	cfg    TelegramConfig
	logger *zap.Logger

	poll   *pollClient
	mu     sync.Mutex
	api    *tgbotapi.BotAPI
	offset int
}

// pollClient binds long-poll requests to the receive context so shutdown
// does not wait for the poll timeout. Other calls keep their own lifetime
// and in-flight replies still go out.
type pollClient struct {
	base tgbotapi.HTTPClient

	mu  sync.Mutex
	ctx context.Context
}

func (c *pollClient) bind(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
}

func (c *pollClient) Do(req *http.Request) (*http.Response, error) {
	if strings.HasSuffix(req.URL.Path, "/getUpdates") {
		c.mu.Lock()
		ctx := c.ctx
		c.mu.Unlock()
		if ctx != nil {
			req = req.WithContext(ctx)
		}
	}
	return c.base.Do(req)
}

func NewTelegramAdapter(cfg TelegramConfig, logger *zap.Logger) (*TelegramAdapter, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	return &TelegramAdapter{
		cfg:    cfg,
		logger: logger,
		poll:   &pollClient{base: &http.Client{}},
	}, nil
}

func (t *TelegramAdapter) Channel() string { return ChannelTelegram }

func (t *TelegramAdapter) connect() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.api != nil {
		return t.api, nil
	}
	api, err := tgbotapi.NewBotAPIWithClient(t.cfg.Token, t.cfg.APIEndpoint, t.poll)
	if err != nil {
		return nil, classifyTelegramError(fmt.Errorf("failed to create bot: %w", err))
	}
	api.Debug = t.cfg.Debug
	t.api = api
	t.logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))
	return api, nil
}

func (t *TelegramAdapter) client() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.api == nil {
		return nil, errors.New("telegram bot is not connected")
	}
	return t.api, nil
}

func (t *TelegramAdapter) Receive(ctx context.Context, sink chan<- InboundEvent) error {
	api, err := t.connect()
	if err != nil {
		return err
	}
	t.poll.bind(ctx)

	t.mu.Lock()
	u := tgbotapi.NewUpdate(t.offset)
	t.mu.Unlock()
	u.Timeout = t.cfg.PollTimeout

	for ctx.Err() == nil {
		updates, err := api.GetUpdates(u)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return classifyTelegramError(err)
		}

		for _, update := range updates {
			if update.UpdateID >= u.Offset {
				u.Offset = update.UpdateID + 1
				t.mu.Lock()
				t.offset = u.Offset
				t.mu.Unlock()
			}

			ev, ok := t.toEvent(api, update.Message)
			if !ok {
				continue
			}
			select {
			case sink <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return ctx.Err()
}

// toEvent applies channel-level filtering: bots, commands, empty messages and
// group chatter that does not address the bot are dropped here.
func (t *TelegramAdapter) toEvent(api *tgbotapi.BotAPI, message *tgbotapi.Message) (InboundEvent, bool) {
	if message == nil || message.From == nil || message.From.IsBot || message.IsCommand() {
		return InboundEvent{}, false
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	media := telegramMediaKind(message)
	if content == "" && media == "" {
		return InboundEvent{}, false
	}

	isGroup := !message.Chat.IsPrivate()
	mentioned := isGroup && t.addressesBot(api, message, content)
	if isGroup && !mentioned {
		return InboundEvent{}, false
	}

	text := content
	if text == "" {
		text = "[" + media + "]"
	}

	name := message.From.FirstName
	if name == "" {
		name = models.UnknownContactName
	}

	return InboundEvent{
		ID:             uuid.New().String(),
		Channel:        ChannelTelegram,
		ConversationID: strconv.FormatInt(message.Chat.ID, 10),
		MessageID:      strconv.Itoa(message.MessageID),
		Sender: models.Contact{
			Name:    name,
			Channel: ChannelTelegram,
			IsGroup: isGroup,
		},
		Message: models.IncomingMessage{
			Text:       text,
			IsGroup:    isGroup,
			MentionsMe: mentioned,
			IsMedia:    media != "",
			HasCaption: media != "" && message.Caption != "",
		},
		ReceivedAt: message.Time(),
	}, true
}

func (t *TelegramAdapter) addressesBot(api *tgbotapi.BotAPI, message *tgbotapi.Message, content string) bool {
	if message.ReplyToMessage != nil && message.ReplyToMessage.From != nil &&
		message.ReplyToMessage.From.ID == api.Self.ID {
		return true
	}
	if api.Self.UserName == "" {
		return false
	}
	handle := "@" + strings.ToLower(api.Self.UserName)
	entities := message.Entities
	if message.Caption != "" {
		entities = message.CaptionEntities
	}
	units := utf16.Encode([]rune(content))
	for _, e := range entities {
		if e.Type != "mention" {
			continue
		}
		if mention, ok := entityText(units, e.Offset, e.Length); ok && strings.ToLower(mention) == handle {
			return true
		}
	}
	return strings.Contains(strings.ToLower(content), handle)
}

func telegramMediaKind(m *tgbotapi.Message) string {
	switch {
	case len(m.Photo) > 0:
		return "photo"
	case m.Sticker != nil:
		return "sticker"
	case m.Video != nil:
		return "video"
	case m.Voice != nil:
		return "voice"
	case m.Animation != nil:
		return "gif"
	case m.Audio != nil:
		return "audio"
	case m.Document != nil:
		return "document"
	}
	return ""
}

func (t *TelegramAdapter) Send(ctx context.Context, conversationID, text string) error {
	api, chatID, err := t.target(conversationID)
	if err != nil {
		return err
	}
	if _, err := api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return classifyTelegramError(fmt.Errorf("failed to send message: %w", err))
	}
	return nil
}

func (t *TelegramAdapter) SendTyping(ctx context.Context, conversationID string) error {
	api, chatID, err := t.target(conversationID)
	if err != nil {
		return err
	}
	if _, err := api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("failed to send chat action: %w", err)
	}
	return nil
}

// MarkRead is a no-op: bots cannot send read receipts on Telegram
func (t *TelegramAdapter) MarkRead(ctx context.Context, conversationID, messageID string) error {
	return nil
}

func (t *TelegramAdapter) target(conversationID string) (*tgbotapi.BotAPI, int64, error) {
	api, err := t.client()
	if err != nil {
		return nil, 0, err
	}
	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid telegram chat id %q: %w", conversationID, err)
	}
	return api, chatID, nil
}

// classifyTelegramError marks a rejected token as terminal
func classifyTelegramError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrLoggedOut, err)
	}
	return err
}

// entityText cuts an entity out of text; Telegram offsets count UTF-16 code units
func entityText(units []uint16, offset, length int) (string, bool) {
	if offset < 0 || length <= 0 || offset+length > len(units) {
		return "", false
	}
	return string(utf16.Decode(units[offset : offset+length])), true
}
