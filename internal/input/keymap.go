package input

import "time"

// keyStroke is one physical key press, with or without shift held.
type keyStroke struct {
	code  uint16
	shift bool
}

// keyMap maps characters to key strokes. Accented characters fold to
// their base letters, since the tablet's on-screen keyboard layer only
// understands a US layout. Characters outside the map have to go
// through the pen renderer instead.
var keyMap = buildKeyMap()

func buildKeyMap() map[rune]keyStroke {
	m := map[rune]keyStroke{}

	lower := "abcdefghijklmnopqrstuvwxyz"
	codes := []uint16{
		KeyA, KeyB, KeyC, KeyD, KeyE, KeyF, KeyG, KeyH, KeyI, KeyJ,
		KeyK, KeyL, KeyM, KeyN, KeyO, KeyP, KeyQ, KeyR, KeyS, KeyT,
		KeyU, KeyV, KeyW, KeyX, KeyY, KeyZ,
	}
	for i, c := range lower {
		m[c] = keyStroke{code: codes[i]}
		m[c-'a'+'A'] = keyStroke{code: codes[i], shift: true}
	}

	digits := []uint16{Key0, Key1, Key2, Key3, Key4, Key5, Key6, Key7, Key8, Key9}
	for i, code := range digits {
		m[rune('0'+i)] = keyStroke{code: code}
	}

	shifted := map[rune]uint16{
		'!': Key1, '@': Key2, '#': Key3, '$': Key4, '%': Key5,
		'^': Key6, '&': Key7, '*': Key8, '(': Key9, ')': Key0,
		'_': KeyMinus, '+': KeyEqual, '{': KeyLeftBrace, '}': KeyRightBrace,
		'|': KeyBackslash, ':': KeySemicolon, '"': KeyApostrophe,
		'<': KeyComma, '>': KeyDot, '?': KeySlash, '~': KeyGrave,
	}
	for c, code := range shifted {
		m[c] = keyStroke{code: code, shift: true}
	}

	plain := map[rune]uint16{
		'-': KeyMinus, '=': KeyEqual, '[': KeyLeftBrace, ']': KeyRightBrace,
		'\\': KeyBackslash, ';': KeySemicolon, '\'': KeyApostrophe,
		',': KeyComma, '.': KeyDot, '/': KeySlash, '`': KeyGrave,
		' ': KeySpace, '\t': KeyTab, '\n': KeyEnter,
		'\b': KeyBackspace, '\x1b': KeyEsc,
	}
	for c, code := range plain {
		m[c] = keyStroke{code: code}
	}

	// Accent folding for common European scripts.
	folds := map[rune]rune{
		'à': 'a', 'â': 'a', 'ä': 'a', 'å': 'a', 'æ': 'a',
		'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e',
		'î': 'i', 'ï': 'i',
		'ô': 'o', 'ö': 'o', 'ø': 'o', 'œ': 'o',
		'ù': 'u', 'û': 'u', 'ü': 'u',
		'ÿ': 'y', 'ç': 'c', 'ñ': 'n', 'ß': 's',
		'À': 'A', 'Â': 'A', 'Ä': 'A', 'Å': 'A', 'Æ': 'A',
		'È': 'E', 'É': 'E', 'Ê': 'E', 'Ë': 'E',
		'Î': 'I', 'Ï': 'I',
		'Ô': 'O', 'Ö': 'O', 'Ø': 'O', 'Œ': 'O',
		'Ù': 'U', 'Û': 'U', 'Ü': 'U',
		'Ÿ': 'Y', 'Ç': 'C', 'Ñ': 'N',
		'¿': '?', '¡': '!',
	}
	for from, to := range folds {
		if ks, ok := m[to]; ok {
			m[from] = ks
		}
	}

	return m
}

// Typeable reports whether every character of s has a key mapping, i.e.
// whether the keyboard fast path can render it.
func Typeable(s string) bool {
	for _, c := range s {
		if _, ok := keyMap[c]; !ok {
			return false
		}
	}
	return true
}

// TypedLen returns how many keystrokes TypeString emits for s: mapped
// characters only, one per rune. Callers erasing typed output must
// backspace this many times, not len(s).
func TypedLen(s string) int {
	n := 0
	for _, c := range s {
		if _, ok := keyMap[c]; ok {
			n++
		}
	}
	return n
}

// typeDelay paces key injection; the compositor drops keystrokes that
// arrive faster than its input loop polls.
const typeDelay = 10 * time.Millisecond

// TypeString injects the string as keystrokes. Characters without a
// mapping are skipped.
func (in *Injector) TypeString(s string) error {
	for _, c := range s {
		ks, ok := keyMap[c]
		if !ok {
			continue
		}
		if ks.shift {
			if err := in.Key(KeyLeftShift, true); err != nil {
				return err
			}
		}
		if err := in.Key(ks.code, true); err != nil {
			return err
		}
		if err := in.Key(ks.code, false); err != nil {
			return err
		}
		if ks.shift {
			if err := in.Key(KeyLeftShift, false); err != nil {
				return err
			}
		}
		time.Sleep(typeDelay)
	}
	return nil
}

// Backspace injects n backspaces, erasing previously typed progress.
func (in *Injector) Backspace(n int) error {
	for i := 0; i < n; i++ {
		if err := in.TypeString("\b"); err != nil {
			return err
		}
	}
	return nil
}

// BodyStyle switches the compositor's text layer to body style
// (Ctrl+3), so typed output lands as regular text.
func (in *Injector) BodyStyle() error {
	if err := in.Key(KeyLeftCtrl, true); err != nil {
		return err
	}
	if err := in.TypeString("3"); err != nil {
		return err
	}
	return in.Key(KeyLeftCtrl, false)
}
