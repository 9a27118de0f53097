package ai

import "strings"

// StorySegments holds the three ordered scene excerpts of a narrative.
type StorySegments struct {
	Beginning string
	Middle    string
	End       string
}

// SegmentStory splits a story into beginning/middle/end excerpts for
// illustration. Pure and deterministic.
//
// Sentences end at '.', '!' or '?' followed by whitespace or end of text. A
// trailing fragment without terminal punctuation is absorbed into the last
// sentence. Stories with fewer than three sentences come back as the full
// text in all three segments; otherwise the sentence list is divided into
// chunks of n/3 with the remainder going to the end segment.
func SegmentStory(story string) StorySegments {
	sentences := splitSentences(story)

	if len(sentences) < 3 {
		return StorySegments{Beginning: story, Middle: story, End: story}
	}

	k := len(sentences) / 3
	return StorySegments{
		Beginning: joinSentences(sentences[:k]),
		Middle:    joinSentences(sentences[k : 2*k]),
		End:       joinSentences(sentences[2*k:]),
	}
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			atEnd := i == len(runes)-1
			followedBySpace := !atEnd && isSpace(runes[i+1])
			if atEnd || followedBySpace {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}

	// A trailing fragment is not a sentence of its own; it rides with the
	// last complete one.
	if rest := strings.TrimSpace(current.String()); rest != "" && len(sentences) > 0 {
		sentences[len(sentences)-1] += " " + rest
	}

	return sentences
}

func joinSentences(sentences []string) string {
	return strings.TrimSpace(strings.Join(sentences, " "))
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
