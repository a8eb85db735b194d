package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"e.g": true, "i.e": true, "inc": true, "ltd": true, "approx": true,
}

const closers = "\"')]}’”"

// SplitSentences segments text into trimmed sentences.
func SplitSentences(text string) []string {
	spans := sentenceSpans(text)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = text[s.start:s.end]
	}
	return out
}

// sentenceSpans finds sentence byte ranges. A sentence ends at a terminator
// (with any closing quotes) followed by whitespace, or at a line break.
func sentenceSpans(text string) []span {
	var out []span
	emit := func(s, e int) {
		s, e = trimSpan(text, s, e)
		if s < e {
			out = append(out, span{s, e})
		}
	}

	start := -1
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if start < 0 {
			if unicode.IsSpace(r) {
				i += size
				continue
			}
			start = i
		}

		switch r {
		case '\n':
			emit(start, i)
			start = -1
			i += size
			continue
		case '.', '!', '?':
			end := i + size
			for end < len(text) {
				next, n := utf8.DecodeRuneInString(text[end:])
				if next != '.' && next != '!' && next != '?' && !strings.ContainsRune(closers, next) {
					break
				}
				end += n
			}
			if end == len(text) || followedBySpace(text, end) {
				if r != '.' || !isAbbreviation(text[start:i]) {
					emit(start, end)
					start = -1
				}
			}
			i = end
			continue
		}
		i += size
	}
	if start >= 0 {
		emit(start, len(text))
	}
	return out
}

func followedBySpace(text string, at int) bool {
	r, _ := utf8.DecodeRuneInString(text[at:])
	return unicode.IsSpace(r)
}

// isAbbreviation checks the word right before a period.
func isAbbreviation(before string) bool {
	word := before
	if i := strings.LastIndexFunc(before, unicode.IsSpace); i >= 0 {
		word = before[i+1:]
	}
	word = strings.TrimLeft(word, "(\"'“‘[")
	if word == "" {
		return false
	}
	if runeLen(word) == 1 {
		r, _ := utf8.DecodeRuneInString(word)
		return unicode.IsUpper(r)
	}
	return abbreviations[strings.ToLower(word)]
}

// locateSentences maps sentences back to byte ranges of content, searching
// forward from the previous match.
func locateSentences(content string, sentences []string) []span {
	out := make([]span, len(sentences))
	cursor := 0
	for i, s := range sentences {
		at := strings.Index(content[cursor:], s)
		if at < 0 {
			out[i] = span{cursor, cursor}
			continue
		}
		out[i] = span{cursor + at, cursor + at + len(s)}
		cursor = out[i].end
	}
	return out
}

// splitLong cuts sentences longer than limit runes into windows of size runes.
func splitLong(text string, sentences []span, limit, size int) []span {
	out := make([]span, 0, len(sentences))
	for _, s := range sentences {
		if runeLen(text[s.start:s.end]) <= limit {
			out = append(out, s)
			continue
		}
		out = append(out, hardCut(text, s.start, s.end, size)...)
	}
	return out
}

// hardCut splits [s, e) into consecutive windows of size runes.
func hardCut(text string, s, e, size int) []span {
	var out []span
	count := 0
	from := s
	for i := range text[s:e] {
		if count == size {
			out = append(out, span{from, s + i})
			from = s + i
			count = 0
		}
		count++
	}
	if from < e {
		out = append(out, span{from, e})
	}
	return out
}
