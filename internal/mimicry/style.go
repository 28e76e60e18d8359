package mimicry

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultTargetLength = 50

	CapsNormal    = "Normal"
	CapsLowercase = "lowercase"
	CapsAllCaps   = "ALL_CAPS"
)

// Style brings reply length and casing in line with how the person writes
func (e *Engine) Style(reply string) string {
	return e.applyCapitalization(e.adjustLength(reply))
}

// adjustLength cuts a far-too-long reply at the first full stop past the target length
func (e *Engine) adjustLength(reply string) string {
	target := e.settings.AvgMessageLength
	if target <= 0 {
		target = defaultTargetLength
	}

	length := utf8.RuneCountInString(reply)
	if length <= target*3 || target >= 100 {
		return reply
	}

	runes := []rune(reply)
	for i := target; i < len(runes); i++ {
		if runes[i] != '.' {
			continue
		}
		if float64(i) < float64(length)*0.7 {
			return string(runes[:i+1])
		}
		break
	}
	return reply
}

func (e *Engine) applyCapitalization(reply string) string {
	switch e.settings.Capitalization {
	case CapsLowercase:
		return strings.ToLower(reply)
	case CapsAllCaps:
		return strings.ToUpper(reply)
	}
	return reply
}
