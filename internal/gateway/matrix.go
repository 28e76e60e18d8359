package gateway

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/clone-bot/internal/models"
	"go.uber.org/zap"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

const (
	ChannelMatrix = "Matrix"

	matrixTypingTimeout = 5 * time.Second
)

type MatrixConfig struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// AutoJoin accepts room invites addressed to the account
	AutoJoin bool
}

// MatrixAdapter syncs one account. Only events newer than the start of the
// current sync are delivered, so a reconnect never replays room history.
type MatrixAdapter struct {
	client *mautrix.Client
	cfg    MatrixConfig
	logger *zap.Logger

	mu    sync.Mutex
	names map[id.UserID]string
	rooms map[id.RoomID]bool
}

func NewMatrixAdapter(cfg MatrixConfig, logger *zap.Logger) (*MatrixAdapter, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	return &MatrixAdapter{
		client: client,
		cfg:    cfg,
		logger: logger,
		names:  make(map[id.UserID]string),
		rooms:  make(map[id.RoomID]bool),
	}, nil
}

func (m *MatrixAdapter) Channel() string { return ChannelMatrix }

func (m *MatrixAdapter) Receive(ctx context.Context, sink chan<- InboundEvent) error {
	started := time.Now()
	syncer := mautrix.NewDefaultSyncer()
	m.client.Syncer = syncer

	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		ev, ok := m.toEvent(ctx, evt, started)
		if !ok {
			return
		}
		select {
		case sink <- ev:
		case <-ctx.Done():
		}
	})
	if m.cfg.AutoJoin {
		syncer.OnEventType(event.StateMember, func(_ context.Context, evt *event.Event) {
			m.acceptInvite(ctx, evt)
		})
	}

	err := m.client.SyncWithContext(ctx)
	if errors.Is(err, mautrix.MUnknownToken) {
		return fmt.Errorf("%w: %w", ErrLoggedOut, err)
	}
	if err == nil && ctx.Err() == nil {
		return errors.New("matrix sync stopped")
	}
	return err
}

func (m *MatrixAdapter) toEvent(ctx context.Context, evt *event.Event, started time.Time) (InboundEvent, bool) {
	if evt.Sender == m.client.UserID || evt.Timestamp < started.UnixMilli() {
		return InboundEvent{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil {
		return InboundEvent{}, false
	}

	var text string
	isMedia, hasCaption := false, false
	switch content.MsgType {
	case event.MsgText, event.MsgEmote:
		text = content.Body
	case event.MsgImage, event.MsgVideo, event.MsgAudio, event.MsgFile:
		isMedia = true
		hasCaption = content.FileName != "" && content.Body != content.FileName
		if hasCaption {
			text = content.Body
		} else {
			text = "[" + strings.TrimPrefix(string(content.MsgType), "m.") + "]"
		}
	default:
		return InboundEvent{}, false
	}
	if strings.TrimSpace(text) == "" {
		return InboundEvent{}, false
	}

	isGroup := m.isGroup(ctx, evt.RoomID)
	mentioned := isGroup && m.addressesMe(ctx, evt, content)
	if isGroup && !mentioned {
		return InboundEvent{}, false
	}

	return InboundEvent{
		ID:             uuid.New().String(),
		Channel:        ChannelMatrix,
		ConversationID: evt.RoomID.String(),
		MessageID:      evt.ID.String(),
		Sender: models.Contact{
			Name:    m.displayName(ctx, evt.Sender),
			Channel: ChannelMatrix,
			IsGroup: isGroup,
		},
		Message: models.IncomingMessage{
			Text:       text,
			IsGroup:    isGroup,
			MentionsMe: mentioned,
			IsMedia:    isMedia,
			HasCaption: hasCaption,
		},
		ReceivedAt: time.UnixMilli(evt.Timestamp),
	}, true
}

func (m *MatrixAdapter) addressesMe(ctx context.Context, evt *event.Event, content *event.MessageEventContent) bool {
	self := m.client.UserID
	if content.Mentions != nil && slices.Contains(content.Mentions.UserIDs, self) {
		return true
	}
	if strings.Contains(content.Body, self.String()) {
		return true
	}
	replyTo := content.RelatesTo.GetReplyTo()
	if replyTo == "" {
		return false
	}
	parent, err := m.client.GetEvent(ctx, evt.RoomID, replyTo)
	if err != nil {
		m.logger.Debug("Failed to fetch replied-to event", zap.Error(err))
		return false
	}
	return parent.Sender == self
}

// isGroup treats any room with more than two members as a group
func (m *MatrixAdapter) isGroup(ctx context.Context, roomID id.RoomID) bool {
	m.mu.Lock()
	group, ok := m.rooms[roomID]
	m.mu.Unlock()
	if ok {
		return group
	}

	members, err := m.client.JoinedMembers(ctx, roomID)
	if err != nil {
		m.logger.Debug("Failed to fetch room members", zap.Error(err), zap.String("room", roomID.String()))
		return false
	}
	group = len(members.Joined) > 2

	m.mu.Lock()
	m.rooms[roomID] = group
	m.mu.Unlock()
	return group
}

func (m *MatrixAdapter) displayName(ctx context.Context, userID id.UserID) string {
	m.mu.Lock()
	name, ok := m.names[userID]
	m.mu.Unlock()
	if ok {
		return name
	}

	profile, err := m.client.GetProfile(ctx, userID)
	if err == nil && profile.DisplayName != "" {
		name = profile.DisplayName
	} else if local, _, perr := userID.Parse(); perr == nil && local != "" {
		name = local
	} else {
		name = models.UnknownContactName
	}

	m.mu.Lock()
	m.names[userID] = name
	m.mu.Unlock()
	return name
}

func (m *MatrixAdapter) acceptInvite(ctx context.Context, evt *event.Event) {
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite || evt.GetStateKey() != m.client.UserID.String() {
		return
	}
	if _, err := m.client.JoinRoomByID(ctx, evt.RoomID); err != nil {
		m.logger.Warn("Failed to join room", zap.Error(err), zap.String("room", evt.RoomID.String()))
		return
	}
	m.logger.Info("Joined room", zap.String("room", evt.RoomID.String()))
}

func (m *MatrixAdapter) Send(ctx context.Context, conversationID, text string) error {
	if _, err := m.client.SendText(ctx, id.RoomID(conversationID), text); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (m *MatrixAdapter) SendTyping(ctx context.Context, conversationID string) error {
	if _, err := m.client.UserTyping(ctx, id.RoomID(conversationID), true, matrixTypingTimeout); err != nil {
		return fmt.Errorf("failed to set typing: %w", err)
	}
	return nil
}

func (m *MatrixAdapter) MarkRead(ctx context.Context, conversationID, messageID string) error {
	if messageID == "" {
		return nil
	}
	if err := m.client.MarkRead(ctx, id.RoomID(conversationID), id.EventID(messageID)); err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	return nil
}
