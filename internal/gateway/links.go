package gateway

import "strings"

// cleanupLinks fixes a common model artifact: a stray ')' or ']' left
// dangling right after a markdown-style link, e.g. "[site](https://x))".
// A trailing closer is only dropped when nothing earlier in the text opened
// it, so balanced spans like "(see [site](https://x))" stay intact.
func cleanupLinks(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	parenDepth := 0
	bracketDepth := 0

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '[' {
			if end, ok := markdownLinkEnd(text, i); ok {
				b.WriteString(text[i:end])
				i = end - 1
				// Drop unmatched closers left over from the link.
				for i+1 < len(text) {
					next := text[i+1]
					if next == ')' && parenDepth == 0 {
						i++
						continue
					}
					if next == ']' && bracketDepth == 0 {
						i++
						continue
					}
					break
				}
				continue
			}
			bracketDepth++
		}
		switch c {
		case '(':
			parenDepth++
		case ')':
			if parenDepth > 0 {
				parenDepth--
			}
		case ']':
			if bracketDepth > 0 {
				bracketDepth--
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// markdownLinkEnd returns the index just past a "[label](target)" link
// starting at start, if one is present. A label containing '[' is not a
// link here; the inner bracket gets its own chance to start one.
func markdownLinkEnd(text string, start int) (int, bool) {
	close := strings.IndexByte(text[start:], ']')
	if close < 0 {
		return 0, false
	}
	close += start
	if strings.ContainsRune(text[start+1:close], '[') {
		return 0, false
	}
	if close+1 >= len(text) || text[close+1] != '(' {
		return 0, false
	}
	end := strings.IndexByte(text[close+2:], ')')
	if end < 0 {
		return 0, false
	}
	return close + 2 + end + 1, true
}
