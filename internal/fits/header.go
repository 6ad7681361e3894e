// Package fits reads the headers of FITS files: every HDU of plain, gzip or
// bzip2 compressed files, and the text ".header" files some archives publish
// next to the data.
package fits

import (
	"strconv"
	"strings"
)

const (
	cardSize  = 80
	blockSize = 2880
)

type Card struct {
	Keyword string
	Value   string
	Comment string
}

// Header is the ordered card list of one HDU, END excluded.
type Header struct {
	Cards []Card
}

// Get returns the value of the first card with keyword key.
func (h Header) Get(key string) (string, bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	for _, c := range h.Cards {
		if c.Keyword == key {
			return c.Value, true
		}
	}
	return "", false
}

func (h Header) Int(key string) (int64, bool) {
	v, ok := h.Get(key)
	if !ok {
		return 0, false
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Map flattens the header into keyword -> value, first occurrence winning.
// Commentary cards are left out.
func (h Header) Map() map[string]string {
	out := make(map[string]string, len(h.Cards))
	for _, c := range h.Cards {
		if commentary(c.Keyword) {
			continue
		}
		if _, ok := out[c.Keyword]; !ok {
			out[c.Keyword] = c.Value
		}
	}
	return out
}

func commentary(keyword string) bool {
	return keyword == "" || keyword == "COMMENT" || keyword == "HISTORY"
}

// parseCard decodes one header record. Records shorter than 80 bytes, as
// found in text headers, are accepted.
func parseCard(raw string) Card {
	raw = strings.TrimRight(raw, "\r\n")
	if len(raw) > cardSize {
		raw = raw[:cardSize]
	}
	keyEnd := min(8, len(raw))
	card := Card{Keyword: strings.ToUpper(strings.TrimSpace(raw[:keyEnd]))}
	rest := raw[keyEnd:]
	if commentary(card.Keyword) || !strings.HasPrefix(rest, "= ") {
		card.Comment = strings.TrimSpace(rest)
		return card
	}
	rest = rest[2:]
	trimmed := strings.TrimLeft(rest, " ")
	if strings.HasPrefix(trimmed, "'") {
		value, remainder := quoted(trimmed[1:])
		card.Value = strings.TrimRight(value, " ")
		if i := strings.Index(remainder, "/"); i >= 0 {
			card.Comment = strings.TrimSpace(remainder[i+1:])
		}
		return card
	}
	if i := strings.Index(rest, "/"); i >= 0 {
		card.Value = strings.TrimSpace(rest[:i])
		card.Comment = strings.TrimSpace(rest[i+1:])
		return card
	}
	card.Value = strings.TrimSpace(rest)
	return card
}

// quoted consumes a FITS string body ('' is an escaped quote) and returns the
// value and whatever follows the closing quote.
func quoted(s string) (string, string) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		return b.String(), s[i+1:]
	}
	return b.String(), ""
}
