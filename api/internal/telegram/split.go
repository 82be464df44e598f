package telegram

import "unicode/utf16"

// Telegram caps messages at 4096 UTF-16 code units.
const maxMessageUnits = 4000

// splitMessage cuts text into chunks of at most limit UTF-16 code units,
// preferring line breaks. Joining the chunks gives back text unchanged.
func splitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = maxMessageUnits
	}
	var out []string
	rs := []rune(text)
	for utf16Len(rs) > limit {
		cut, units, nl := 0, 0, -1
		for cut < len(rs) {
			n := runeUnits(rs[cut])
			if units+n > limit {
				break
			}
			if rs[cut] == '\n' && units >= limit/2 {
				nl = cut
			}
			units += n
			cut++
		}
		if nl >= 0 {
			cut = nl + 1
		}
		if cut == 0 {
			cut = 1
		}
		out = append(out, string(rs[:cut]))
		rs = rs[cut:]
	}
	if len(rs) > 0 || len(out) == 0 {
		out = append(out, string(rs))
	}
	return out
}

func utf16Len(rs []rune) int {
	n := 0
	for _, r := range rs {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}
