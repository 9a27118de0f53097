package ai

import "strings"

// Defaults applied when a caller supplies an unknown selector. Selection
// never fails; it falls back.
const (
	DefaultTone   = "whimsical"
	DefaultLength = "medium"
	DefaultVoice  = "alloy"

	// NoTextClause is appended to every image prompt so the provider does
	// not render lettering into the scenes.
	NoTextClause = "no text, no words, no letters, no writing"

	TitleSystemInstruction = "You are a creative assistant that writes short, evocative titles for dream journal entries. " +
		"The title should be 3 to 6 words. Return only the title itself, nothing else."

	AnalysisSystemInstruction = "You are a thoughtful dream interpreter. Offer a reflective, non-clinical reading of the dream " +
		"in 200-300 words. Explore possible symbols and emotional undertones with curiosity, never certainty or diagnosis. " +
		"Speak directly to the dreamer in a warm, grounded voice."
)

// LengthSpec maps a length selector to its word band and token budget.
type LengthSpec struct {
	Words     string
	MaxTokens int
}

var toneStyles = map[string]string{
	"whimsical":   "Retell this dream as a playful, lighthearted tale full of wonder and gentle humor.",
	"mystical":    "Retell this dream as a mystical, otherworldly tale laced with symbolism and quiet awe.",
	"adventurous": "Retell this dream as a bold adventure with momentum, peril, and discovery.",
	"gentle":      "Retell this dream as a soft, soothing bedtime story with calm, comforting imagery.",
	"mysterious":  "Retell this dream as an enigmatic tale of shadows and unanswered questions.",
	"comedy":      "Retell this dream as an absurd comedy, leaning into its strangest details for laughs.",
}

var toneVisualStyles = map[string]string{
	"whimsical":   "whimsical storybook illustration, soft pastel palette, playful",
	"mystical":    "ethereal dreamscape, luminous mist, deep purples and golds, mystical",
	"adventurous": "dramatic cinematic lighting, sweeping vistas, vivid color",
	"gentle":      "soft watercolor, muted warm tones, tranquil",
	"mysterious":  "moody chiaroscuro, fog, desaturated palette, enigmatic",
	"comedy":      "exaggerated cartoon style, bright saturated colors, lively",
}

var lengthSpecs = map[string]LengthSpec{
	"short":  {Words: "around 250-350 words", MaxTokens: 400},
	"medium": {Words: "around 500-700 words", MaxTokens: 800},
	"long":   {Words: "around 800-1100 words", MaxTokens: 1200},
}

// sceneInstructions give each of the three illustrations a fixed
// compositional role, in order.
var sceneInstructions = [3]string{
	"Opening scene establishing the dream's setting and atmosphere.",
	"Central scene capturing the dream's turning point.",
	"Closing scene showing how the dream resolves.",
}

// SceneLabels are the fixed ordered labels attached to scene results.
var SceneLabels = [3]string{"Scene 1", "Scene 2", "Scene 3"}

var voices = map[string]bool{
	"alloy":   true,
	"echo":    true,
	"fable":   true,
	"onyx":    true,
	"nova":    true,
	"shimmer": true,
}

// emotionKeywords and themeKeywords are the fixed vocabularies the analysis
// extraction matches against. Matching is case-insensitive substring over the
// analysis narrative; it is a local heuristic, not provider-driven.
var emotionKeywords = []string{
	"fear", "joy", "anxiety", "wonder", "peace", "confusion",
	"excitement", "sadness", "love", "anger", "freedom", "curiosity",
}

var themeKeywords = []string{
	"flying", "falling", "water", "chase", "death", "transformation",
	"journey", "family", "childhood", "school", "animals", "teeth", "house",
}

// symbolMeanings maps each theme to its conventional dream-symbol reading,
// attached to an analysis for every theme found in the narrative.
var symbolMeanings = map[string]string{
	"flying":         "a desire for freedom or release from constraint",
	"falling":        "loss of control or fear of failure",
	"water":          "the emotional undercurrent of waking life",
	"chase":          "avoidance of something demanding attention",
	"death":          "an ending making room for change",
	"transformation": "identity in flux",
	"journey":        "progress through a life transition",
	"family":         "belonging and inherited patterns",
	"childhood":      "unresolved origins or nostalgia",
	"school":         "being tested or judged",
	"animals":        "instinct and unguarded feeling",
	"teeth":          "anxiety about appearance or powerlessness",
	"house":          "the self and its private rooms",
}

// ToneStyle returns the stylistic instruction for a tone selector, falling
// back to the whimsical style for unknown values.
func ToneStyle(tone string) string {
	if s, ok := toneStyles[tone]; ok {
		return s
	}
	return toneStyles[DefaultTone]
}

// ToneVisualStyle returns the image style string for a tone selector.
func ToneVisualStyle(tone string) string {
	if s, ok := toneVisualStyles[tone]; ok {
		return s
	}
	return toneVisualStyles[DefaultTone]
}

// LengthFor returns the word band and token budget for a length selector,
// defaulting to medium.
func LengthFor(length string) LengthSpec {
	if s, ok := lengthSpecs[length]; ok {
		return s
	}
	return lengthSpecs[DefaultLength]
}

// StoryPrompt builds the user message for story generation.
func StoryPrompt(dreamText, length string) string {
	spec := LengthFor(length)
	return "Dream description:\n" + dreamText + "\n\nWrite the story in " + spec.Words + "."
}

// ScenePrompt builds the image prompt for scene index i (0-2) from a story
// segment and tone.
func ScenePrompt(i int, segment, tone string) string {
	var b strings.Builder
	b.WriteString(sceneInstructions[i])
	b.WriteString(" ")
	b.WriteString(segment)
	b.WriteString(" Style: ")
	b.WriteString(ToneVisualStyle(tone))
	b.WriteString(". Strictly ")
	b.WriteString(NoTextClause)
	b.WriteString(" in the image.")
	return b.String()
}

// SceneDescription is the human-readable description stored with scene i.
func SceneDescription(i int) string {
	return sceneInstructions[i]
}

// ValidVoice reports whether the voice selector is recognized.
func ValidVoice(voice string) bool {
	return voices[voice]
}

// ExtractEmotions returns the emotion vocabulary entries present in the text.
func ExtractEmotions(text string) []string {
	return matchKeywords(text, emotionKeywords)
}

// ExtractThemes returns the theme vocabulary entries present in the text.
func ExtractThemes(text string) []string {
	return matchKeywords(text, themeKeywords)
}

// ExtractSymbols returns the symbol readings for every theme present in the
// text, keyed by theme.
func ExtractSymbols(text string) map[string]string {
	symbols := make(map[string]string)
	for _, theme := range matchKeywords(text, themeKeywords) {
		symbols[theme] = symbolMeanings[theme]
	}
	return symbols
}

func matchKeywords(text string, vocabulary []string) []string {
	lower := strings.ToLower(text)
	matched := make([]string, 0, 4)
	for _, word := range vocabulary {
		if strings.Contains(lower, word) {
			matched = append(matched, word)
		}
	}
	return matched
}
