// Package persona loads the SOUL.md profile of the person being mimicked.
package persona

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const SoulFile = "SOUL.md"

// ErrNoSoul is returned when the data directory has no SOUL.md yet
var ErrNoSoul = errors.New("SOUL.md not found")

const defaultNeverShare = "personal finances, health info, passwords"

// Profile is the structured view of a SOUL.md file. String fields are kept
// verbatim for the prompt; the typed fields drive mimicry and safety.
type Profile struct {
	RawContent string

	Name             string
	Language         string
	AvgMessageLength string
	EmojiFrequency   string
	Catchphrases     string
	Abbreviations    string
	AvoidTopics      string
	UnsureFallback   string
	NeverShare       string
	DeflectMessage   string

	ResponseTimeAvg     time.Duration
	OnlineHoursStart    int
	OnlineHoursEnd      int
	TypoRate            float64
	Capitalization      string
	AvgMessageLengthNum int
}

var (
	fieldPatterns = map[string]*regexp.Regexp{
		"name":         regexp.MustCompile(`(?m)^- Name:\s*(.+)$`),
		"language":     regexp.MustCompile(`(?m)^- Language:\s*(.+)$`),
		"avgLength":    regexp.MustCompile(`(?m)^- Average message length:\s*(.+)$`),
		"emoji":        regexp.MustCompile(`(?m)^- Emoji frequency:\s*(.+)$`),
		"catchphrases": regexp.MustCompile(`(?m)^- Catchphrases:\s*(.+)$`),
		"abbrev":       regexp.MustCompile(`(?m)^- Abbreviations:\s*(.+)$`),
		"avoid":        regexp.MustCompile(`(?m)^- Deflect topics:\s*(.+)$`),
		"neverShare":   regexp.MustCompile(`(?m)^- Never share:\s*(.+)$`),
		"deflect":      regexp.MustCompile(`(?m)^- Deflect message:\s*"?([^"\n]+)"?`),
		"responseTime": regexp.MustCompile(`(?m)^- Average response time:\s*(.+)$`),
		"onlineHours":  regexp.MustCompile(`(?m)^- Online hours:\s*(\d{1,2})\s*-\s*(\d{1,2})`),
		"typoRate":     regexp.MustCompile(`(?m)^- Typo rate:\s*([0-9.]+)`),
		"caps":         regexp.MustCompile(`(?m)^- Capitalization:\s*(\S+)`),
	}
	fallbackPattern = regexp.MustCompile(`(?m)^- (?:When unsure|fallback):\s*(?:Say\s+)?"?([^"\n]+)"?`)
	leadingNumber   = regexp.MustCompile(`\d+`)
)

// Parse extracts a Profile from SOUL.md content
func Parse(content string) Profile {
	p := Profile{
		RawContent:       content,
		OnlineHoursStart: 8,
		OnlineHoursEnd:   23,
		TypoRate:         0.02,
		Capitalization:   "Normal",
	}

	p.Name = match(content, "name")
	p.Language = match(content, "language")
	p.AvgMessageLength = match(content, "avgLength")
	p.EmojiFrequency = match(content, "emoji")
	p.Catchphrases = match(content, "catchphrases")
	p.Abbreviations = match(content, "abbrev")
	p.AvoidTopics = match(content, "avoid")
	p.NeverShare = match(content, "neverShare")
	p.DeflectMessage = match(content, "deflect")

	if m := fallbackPattern.FindStringSubmatch(content); m != nil {
		p.UnsureFallback = strings.TrimSpace(m[1])
	}

	if n := leadingNumber.FindString(p.AvgMessageLength); n != "" {
		p.AvgMessageLengthNum, _ = strconv.Atoi(n)
	}
	if v := match(content, "responseTime"); v != "" {
		if d, err := time.ParseDuration(strings.ReplaceAll(v, " ", "")); err == nil {
			p.ResponseTimeAvg = d
		}
	}
	if m := fieldPatterns["onlineHours"].FindStringSubmatch(content); m != nil {
		p.OnlineHoursStart, _ = strconv.Atoi(m[1])
		p.OnlineHoursEnd, _ = strconv.Atoi(m[2])
	}
	if v := match(content, "typoRate"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.TypoRate = f
		}
	}
	if v := match(content, "caps"); v != "" {
		p.Capitalization = v
	}

	return p
}

func match(content, field string) string {
	m := fieldPatterns[field].FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Load reads and parses dataDir/SOUL.md
func Load(dataDir string) (Profile, error) {
	path := filepath.Join(dataDir, SoulFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Profile{}, fmt.Errorf("%w at %s", ErrNoSoul, path)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

// NeverShareTopics returns the lower-cased never-share list, with defaults
func (p Profile) NeverShareTopics() []string {
	raw := p.NeverShare
	if raw == "" {
		raw = defaultNeverShare
	}
	return splitTopics(raw)
}

// AvoidTopicList returns the lower-cased avoid list
func (p Profile) AvoidTopicList() []string {
	return splitTopics(p.AvoidTopics)
}

func splitTopics(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
