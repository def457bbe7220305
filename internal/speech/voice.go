package speech

import (
	"context"
	"strings"
)

// Voice is one synthesizer voice. Local voices run on this machine and are
// preferred over remote ones.
type Voice struct {
	ID     string
	Name   string
	Locale string
	Local  bool
	Engine string
}

// Engine synthesizes text into encoded audio (WAV or MP3 bytes).
type Engine interface {
	Name() string
	Voices(ctx context.Context) ([]Voice, error)
	Synthesize(ctx context.Context, text string, voice Voice, p Prosody) ([]byte, error)
}

// SelectVoice picks the best voice for the requested id: an exact match,
// then the same locale, then the same language, then any local voice, then
// anything. At each locale tier local voices win over remote ones.
func SelectVoice(voices []Voice, id string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}

	for _, v := range voices {
		if strings.EqualFold(v.ID, id) || (v.Name != "" && strings.EqualFold(v.Name, id)) {
			return v, true
		}
	}

	locale := LocaleOf(id)
	lang := languageOf(locale)

	tiers := []func(Voice) bool{
		func(v Voice) bool { return locale != "" && normalizeLocale(v.Locale) == locale },
		func(v Voice) bool { return lang != "" && languageOf(normalizeLocale(v.Locale)) == lang },
	}
	for _, match := range tiers {
		if v, ok := pickPreferLocal(voices, match); ok {
			return v, true
		}
	}

	for _, v := range voices {
		if v.Local {
			return v, true
		}
	}
	return voices[0], true
}

func pickPreferLocal(voices []Voice, match func(Voice) bool) (Voice, bool) {
	var remote *Voice
	for i, v := range voices {
		if !match(v) {
			continue
		}
		if v.Local {
			return v, true
		}
		if remote == nil {
			remote = &voices[i]
		}
	}
	if remote != nil {
		return *remote, true
	}
	return Voice{}, false
}

// LocaleOf extracts a normalized locale ("en-us") from a voice id such as
// "en-US-AvaNeural", "en_GB" or "fr". Returns "" if none is recognisable.
func LocaleOf(id string) string {
	parts := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) == 0 || !isLangCode(parts[0]) {
		return ""
	}
	if len(parts) > 1 && isRegionCode(parts[1]) {
		return strings.ToLower(parts[0] + "-" + parts[1])
	}
	return strings.ToLower(parts[0])
}

func normalizeLocale(l string) string {
	return strings.ToLower(strings.ReplaceAll(l, "_", "-"))
}

func languageOf(locale string) string {
	lang, _, _ := strings.Cut(locale, "-")
	return lang
}

func isLangCode(s string) bool {
	return (len(s) == 2 || len(s) == 3) && isLetters(s)
}

func isRegionCode(s string) bool {
	return len(s) == 2 && isLetters(s)
}

func isLetters(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
