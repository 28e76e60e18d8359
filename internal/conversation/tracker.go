// Package conversation keeps per-contact sliding windows of recent exchanges
// and mirrors every exchange into an append-only long-term log.
package conversation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xaenox/clone-bot/internal/models"
	"go.uber.org/zap"
)

// MaxSessionExchanges caps each contact's sliding window
const MaxSessionExchanges = 20

// ExchangeLog is the long-term record of exchanges
type ExchangeLog interface {
	Append(contact string, ex models.Exchange) error
}

// ActiveContact summarizes one live session
type ActiveContact struct {
	Name         string    `json:"name"`
	MessageCount int       `json:"message_count"`
	LastMessage  time.Time `json:"last_message"`
}

type Tracker struct {
	mu       sync.RWMutex
	sessions map[string][]models.Exchange
	log      ExchangeLog
	logger   *zap.Logger
	now      func() time.Time
}

// NewTracker creates a tracker; log may be nil to keep sessions in memory only
func NewTracker(log ExchangeLog, logger *zap.Logger) *Tracker {
	return &Tracker{
		sessions: make(map[string][]models.Exchange),
		log:      log,
		logger:   logger,
		now:      time.Now,
	}
}

// Append records an exchange for contact. A failed log write is logged and
// otherwise ignored.
func (t *Tracker) Append(contact, theirMessage, reply string) {
	ex := models.Exchange{Timestamp: t.now(), Them: theirMessage, Clone: reply}

	t.mu.Lock()
	session := append(t.sessions[contact], ex)
	if len(session) > MaxSessionExchanges {
		session = append([]models.Exchange(nil), session[len(session)-MaxSessionExchanges:]...)
	}
	t.sessions[contact] = session
	t.mu.Unlock()

	if t.log == nil {
		return
	}
	if err := t.log.Append(contact, ex); err != nil {
		t.logger.Warn("Failed to append to conversation log",
			zap.Error(err),
			zap.String("contact", contact))
	}
}

// Recent returns up to n of the newest exchanges for contact, oldest first
func (t *Tracker) Recent(contact string, n int) []models.Exchange {
	t.mu.RLock()
	defer t.mu.RUnlock()

	session := t.sessions[contact]
	if n <= 0 || len(session) == 0 {
		return nil
	}
	if len(session) > n {
		session = session[len(session)-n:]
	}
	out := make([]models.Exchange, len(session))
	copy(out, session)
	return out
}

// FormatRecent renders exchanges the way the prompt expects them
func FormatRecent(contact string, exchanges []models.Exchange) string {
	parts := make([]string, len(exchanges))
	for i, ex := range exchanges {
		parts[i] = fmt.Sprintf("%s: %s\nYou: %s", contact, ex.Them, ex.Clone)
	}
	return strings.Join(parts, "\n\n")
}

// ActiveContacts lists sessions, most recently active first
func (t *Tracker) ActiveContacts() []ActiveContact {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ActiveContact, 0, len(t.sessions))
	for name, session := range t.sessions {
		if len(session) == 0 {
			continue
		}
		out = append(out, ActiveContact{
			Name:         name,
			MessageCount: len(session),
			LastMessage:  session[len(session)-1].Timestamp,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessage.After(out[j].LastMessage)
	})
	return out
}

// Clear drops the session for contact
func (t *Tracker) Clear(contact string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, contact)
}
