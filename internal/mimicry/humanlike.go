// Package mimicry makes replies look like a person wrote them: when to stay
// quiet, how long to wait, how to type and how to break up a long answer.
package mimicry

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/xaenox/clone-bot/internal/models"
	"github.com/xaenox/clone-bot/internal/persona"
)

const (
	DefaultBaseline = 60 * time.Second
	MinReplyDelay   = 5 * time.Second
	MaxReplyDelay   = 5 * time.Minute
	MaxTyping       = 10 * time.Second

	readPerChar   = 50 * time.Millisecond
	typingPerChar = 80 * time.Millisecond

	groupIgnoreChance = 0.7
	mediaIgnoreChance = 0.5
	typoChance        = 0.1
	minTypoRate       = 0.01

	// Delimiter the model uses to ask for separate messages
	Delimiter = "|||"

	splitThreshold = 150
	chunkSize      = 120
)

// Settings are the persona traits the engine cares about
type Settings struct {
	Baseline         time.Duration
	OnlineHoursStart int
	OnlineHoursEnd   int
	TypoRate         float64
	Capitalization   string
	AvgMessageLength int
}

// SettingsFromProfile pulls timing and style traits out of a persona
func SettingsFromProfile(p persona.Profile) Settings {
	return Settings{
		Baseline:         p.ResponseTimeAvg,
		OnlineHoursStart: p.OnlineHoursStart,
		OnlineHoursEnd:   p.OnlineHoursEnd,
		TypoRate:         p.TypoRate,
		Capitalization:   p.Capitalization,
		AvgMessageLength: p.AvgMessageLengthNum,
	}
}

type Engine struct {
	settings Settings
	rnd      Random
	now      func() time.Time
}

func NewEngine(settings Settings) *Engine {
	if settings.Baseline <= 0 {
		settings.Baseline = DefaultBaseline
	}
	return &Engine{
		settings: settings,
		rnd:      globalRand{},
		now:      time.Now,
	}
}

// WithRandom swaps the random source, mostly for tests
func (e *Engine) WithRandom(r Random) *Engine {
	e.rnd = r
	return e
}

// WithClock swaps the clock used for online hours
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ShouldIgnore decides whether a person would just leave msg unanswered
func (e *Engine) ShouldIgnore(msg models.IncomingMessage) bool {
	if msg.IsGroup && !msg.MentionsMe {
		return e.rnd.Float64() < groupIgnoreChance
	}
	if msg.IsMedia && !msg.HasCaption {
		return e.rnd.Float64() < mediaIgnoreChance
	}
	return !e.online(e.now().Hour())
}

// online reports whether hour falls in the online window. A window whose
// start is after its end runs overnight.
func (e *Engine) online(hour int) bool {
	start, end := e.settings.OnlineHoursStart, e.settings.OnlineHoursEnd
	if start == 0 && end == 0 {
		return true
	}
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}

// ReplyDelay is how long to wait before answering text from contact
func (e *Engine) ReplyDelay(text string, contact models.Contact) time.Duration {
	read := float64(utf8.RuneCountInString(text)) * float64(readPerChar)
	variation := float64(e.settings.Baseline) * between(e.rnd, 0.6, 1.4)

	delay := time.Duration((read + variation) * relationshipFactor(contact.Closeness))
	return min(max(delay, MinReplyDelay), MaxReplyDelay)
}

func relationshipFactor(closeness string) float64 {
	switch closeness {
	case models.ClosenessClose:
		return 0.5
	case models.ClosenessFamily:
		return 0.7
	}
	return 1
}

// TypingDuration is how long the typing indicator should show for text
func (e *Engine) TypingDuration(text string) time.Duration {
	d := float64(utf8.RuneCountInString(text)) * float64(typingPerChar) * between(e.rnd, 0.8, 1.2)
	return min(time.Duration(d), MaxTyping)
}

// AddTypos occasionally swaps two neighbouring characters
func (e *Engine) AddTypos(text string) string {
	if e.settings.TypoRate < minTypoRate {
		return text
	}
	if e.rnd.Float64() >= typoChance {
		return text
	}

	chars := []rune(text)
	pos := int(e.rnd.Float64()*float64(max(len(chars)-2, 1))) + 1
	if pos < len(chars)-1 {
		chars[pos], chars[pos+1] = chars[pos+1], chars[pos]
	}
	return string(chars)
}

// Split breaks a reply into the messages a person would send
func Split(text string) []string {
	if strings.Contains(text, Delimiter) {
		var out []string
		for _, part := range strings.Split(text, Delimiter) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) < splitThreshold {
		return []string{text}
	}

	sentences := sentences(text)
	if len(sentences) <= 1 {
		return []string{text}
	}

	var (
		out     []string
		current string
	)
	for _, s := range sentences {
		if current != "" && utf8.RuneCountInString(current)+utf8.RuneCountInString(s) > chunkSize {
			out = append(out, current)
			current = s
			continue
		}
		if current != "" {
			current += " "
		}
		current += s
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}

// sentences cuts text after . ! or ? when whitespace follows
func sentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		if !isSentenceEnd(runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		out = append(out, string(runes[start:i+1]))
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// ProcessReply trims, maybe adds a typo, then splits
func (e *Engine) ProcessReply(reply string) []string {
	return Split(e.AddTypos(strings.TrimSpace(reply)))
}
