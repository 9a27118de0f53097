// Package service implements the application's business logic between the
// HTTP handlers and the repositories.
package service

import (
	"context"
	"strings"
	"sync"

	"reverie/internal/ai"
	"reverie/internal/models"
	"reverie/internal/observability"
	"reverie/internal/repository"

	"github.com/google/uuid"
)

// Provider is the outbound surface the orchestrator needs from the gateway.
type Provider interface {
	PostJSON(ctx context.Context, path string, body any, out any, maxAttempts int) error
	PostMultipart(ctx context.Context, path string, fields map[string]string, fileField, fileName string, data []byte, out any, maxAttempts int) error
	PostBinary(ctx context.Context, path string, body any) ([]byte, string, error)
}

// GenerationSettings carries the knobs the orchestrator reads at request time.
type GenerationSettings struct {
	APIKey             string
	ChatModel          string
	ImageModel         string
	SpeechModel        string
	TranscriptionModel string
	MaxAudioBytes      int64
}

// GenerationService composes provider calls into the user-facing generation
// operations. All operations are one-shot; no intermediate state is persisted.
type GenerationService struct {
	provider     Provider
	settings     GenerationSettings
	dreamRepo    repository.DreamRepository
	analysisRepo repository.AnalysisRepository
}

// NewGenerationService wires the orchestrator.
func NewGenerationService(provider Provider, settings GenerationSettings, dreamRepo repository.DreamRepository, analysisRepo repository.AnalysisRepository) *GenerationService {
	if settings.MaxAudioBytes <= 0 {
		settings.MaxAudioBytes = 25 * 1024 * 1024
	}
	return &GenerationService{
		provider:     provider,
		settings:     settings,
		dreamRepo:    dreamRepo,
		analysisRepo: analysisRepo,
	}
}

// SceneResult is the outcome of one illustration scene. A failed scene keeps
// its label, description and the exact prompt used, with a nil image
// reference and Error set. Partial failure is a result shape, not an error.
type SceneResult struct {
	Scene       string  `json:"scene"`
	Description string  `json:"description"`
	Prompt      string  `json:"prompt"`
	ImageURL    *string `json:"image_url"`
	Error       bool    `json:"error"`
}

// AnalyzeInput carries the analysis request. DreamID and UserID are both
// required for persistence; with either missing the analysis is returned
// unsaved.
type AnalyzeInput struct {
	Text    string
	DreamID uint
	UserID  uint
}

// AnalysisResult is a completed analysis, persisted or not.
type AnalysisResult struct {
	ID       uint              `json:"id,omitempty"`
	Analysis string            `json:"analysis"`
	Themes   []string          `json:"themes"`
	Emotions []string          `json:"emotions"`
	Symbols  map[string]string `json:"symbols"`
	Saved    bool              `json:"saved"`
}

// Provider wire shapes.

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

type speechRequest struct {
	Model string  `json:"model"`
	Input string  `json:"input"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// allowedAudioMIMEs is the transcription upload allow-list.
var allowedAudioMIMEs = map[string]bool{
	"audio/wav":  true,
	"audio/webm": true,
	"audio/mpeg": true,
	"audio/mp3":  true,
	"audio/mp4":  true,
	"audio/ogg":  true,
}

var audioExtensions = map[string]string{
	"audio/wav":  "wav",
	"audio/webm": "webm",
	"audio/mpeg": "mp3",
	"audio/mp3":  "mp3",
	"audio/mp4":  "mp4",
	"audio/ogg":  "ogg",
}

// ensureCredential fails every operation closed before any network work when
// the provider credential is absent.
func (s *GenerationService) ensureCredential() error {
	if s.settings.APIKey == "" {
		return models.NewConfigurationError("generation provider credential is not configured")
	}
	return nil
}

func correlated(ctx context.Context) context.Context {
	return observability.WithCorrelationID(ctx, uuid.NewString())
}

// Transcribe converts uploaded audio to text. MIME and size are validated
// before the gateway is reached.
func (s *GenerationService) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := s.ensureCredential(); err != nil {
		return "", err
	}

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if !allowedAudioMIMEs[mimeType] {
		return "", models.NewValidationError("Unsupported audio format: " + mimeType)
	}
	if int64(len(data)) > s.settings.MaxAudioBytes {
		return "", models.NewValidationError("Audio file too large")
	}
	if len(data) == 0 {
		return "", models.NewValidationError("Audio payload is empty")
	}

	ctx = correlated(ctx)
	opLog := observability.NewOpLogger("transcribe")
	opLog.Start(ctx, map[string]any{"bytes": len(data), "mime": mimeType})
	defer observability.TrackGeneration("transcribe")()

	var out transcriptionResponse
	err := s.provider.PostMultipart(ctx, "/audio/transcriptions",
		map[string]string{"model": s.settings.TranscriptionModel},
		"file", "audio."+audioExtensions[mimeType], data, &out, ai.DefaultMaxAttempts)
	if err != nil {
		opLog.Fail(ctx, err, nil)
		return "", err
	}

	opLog.Done(ctx, map[string]any{"chars": len(out.Text)})
	return out.Text, nil
}

// GenerateTitle produces a short title for a dream description.
func (s *GenerationService) GenerateTitle(ctx context.Context, dreamText string) (string, error) {
	if err := s.ensureCredential(); err != nil {
		return "", err
	}
	dreamText = strings.TrimSpace(dreamText)
	if dreamText == "" {
		return "", models.NewValidationError("Dream text is required")
	}

	ctx = correlated(ctx)
	opLog := observability.NewOpLogger("title")
	opLog.Start(ctx, nil)
	defer observability.TrackGeneration("title")()

	var out chatResponse
	err := s.provider.PostJSON(ctx, "/chat/completions", chatRequest{
		Model: s.settings.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: ai.TitleSystemInstruction},
			{Role: "user", Content: "Write a title for this dream:\n" + dreamText},
		},
		MaxTokens:   20,
		Temperature: 0.8,
	}, &out, ai.DefaultMaxAttempts)
	if err != nil {
		opLog.Fail(ctx, err, nil)
		return "", err
	}

	title := stripQuoteArtifacts(firstChoice(out))
	opLog.Done(ctx, map[string]any{"title": title})
	return title, nil
}

// GenerateStory retells the dream in the selected tone and length. Unknown
// tones fall back to whimsical, unknown lengths to medium.
func (s *GenerationService) GenerateStory(ctx context.Context, dreamText, tone, length string) (string, error) {
	if err := s.ensureCredential(); err != nil {
		return "", err
	}
	dreamText = strings.TrimSpace(dreamText)
	if dreamText == "" {
		return "", models.NewValidationError("Dream text is required")
	}

	ctx = correlated(ctx)
	opLog := observability.NewOpLogger("story")
	opLog.Start(ctx, map[string]any{"tone": tone, "length": length})
	defer observability.TrackGeneration("story")()

	var out chatResponse
	err := s.provider.PostJSON(ctx, "/chat/completions", chatRequest{
		Model: s.settings.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: ai.ToneStyle(tone)},
			{Role: "user", Content: ai.StoryPrompt(dreamText, length)},
		},
		MaxTokens:   ai.LengthFor(length).MaxTokens,
		Temperature: 0.9,
	}, &out, ai.DefaultMaxAttempts)
	if err != nil {
		opLog.Fail(ctx, err, nil)
		return "", err
	}

	story := strings.TrimSpace(firstChoice(out))
	opLog.Done(ctx, map[string]any{"chars": len(story)})
	return story, nil
}

// GenerateImages illustrates the story's beginning, middle and end. The three
// provider calls run concurrently and are joined by a barrier that waits for
// every scene to settle; a failed scene is captured in its slot and never
// fails the others. Callers always receive exactly three ordered results.
func (s *GenerationService) GenerateImages(ctx context.Context, story, tone string) ([]SceneResult, error) {
	if err := s.ensureCredential(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(story) == "" {
		return nil, models.NewValidationError("Story text is required")
	}

	ctx = correlated(ctx)
	opLog := observability.NewOpLogger("images")
	opLog.Start(ctx, map[string]any{"tone": tone})
	defer observability.TrackGeneration("images")()

	segments := ai.SegmentStory(story)
	excerpts := [3]string{segments.Beginning, segments.Middle, segments.End}

	results := make([]SceneResult, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		results[i] = SceneResult{
			Scene:       ai.SceneLabels[i],
			Description: ai.SceneDescription(i),
			Prompt:      ai.ScenePrompt(i, excerpts[i], tone),
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out imageResponse
			err := s.provider.PostJSON(ctx, "/images/generations", imageRequest{
				Model:  s.settings.ImageModel,
				Prompt: results[i].Prompt,
				N:      1,
				Size:   "1024x1024",
			}, &out, ai.DefaultMaxAttempts)
			if err != nil || len(out.Data) == 0 {
				results[i].Error = true
				observability.SceneFailures.WithLabelValues(results[i].Scene).Inc()
				return
			}
			url := out.Data[0].URL
			results[i].ImageURL = &url
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Error {
			failed++
		}
	}
	opLog.Done(ctx, map[string]any{"failed_scenes": failed})
	return results, nil
}

// AnalyzeDream requests a reflective reading of the dream, extracts emotion
// and theme keywords locally, and persists the run when a target dream and
// owner are both present.
func (s *GenerationService) AnalyzeDream(ctx context.Context, in AnalyzeInput) (*AnalysisResult, error) {
	if err := s.ensureCredential(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, models.NewValidationError("Dream text is required")
	}

	ctx = correlated(ctx)
	opLog := observability.NewOpLogger("analysis")
	opLog.Start(ctx, map[string]any{"dream_id": in.DreamID})
	defer observability.TrackGeneration("analysis")()

	var out chatResponse
	err := s.provider.PostJSON(ctx, "/chat/completions", chatRequest{
		Model: s.settings.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: ai.AnalysisSystemInstruction},
			{Role: "user", Content: "Interpret this dream:\n" + text},
		},
		MaxTokens:   500,
		Temperature: 0.7,
	}, &out, ai.DefaultMaxAttempts)
	if err != nil {
		opLog.Fail(ctx, err, nil)
		return nil, err
	}

	narrative := strings.TrimSpace(firstChoice(out))
	result := &AnalysisResult{
		Analysis: narrative,
		Themes:   ai.ExtractThemes(narrative),
		Emotions: ai.ExtractEmotions(narrative),
		Symbols:  ai.ExtractSymbols(narrative),
	}

	if in.DreamID != 0 && in.UserID != 0 {
		// Owner-scoped lookup: saving against someone else's dream is a miss.
		if _, err := s.dreamRepo.GetByID(ctx, in.UserID, in.DreamID); err != nil {
			opLog.Fail(ctx, err, nil)
			return nil, err
		}
		record := &models.DreamAnalysis{
			DreamID:  in.DreamID,
			UserID:   in.UserID,
			Analysis: narrative,
			Themes:   result.Themes,
			Emotions: result.Emotions,
			Symbols:  result.Symbols,
		}
		if err := s.analysisRepo.Create(ctx, record); err != nil {
			opLog.Fail(ctx, err, nil)
			return nil, err
		}
		result.ID = record.ID
		result.Saved = true
	}

	opLog.Done(ctx, map[string]any{"saved": result.Saved})
	return result, nil
}

// Synthesize renders text to speech. Single attempt: an audio payload is not
// cheap to regenerate server-side, so failures surface terminally instead of
// retrying. Invalid voices fall back to alloy; speed is clamped to
// [0.25, 4.0].
func (s *GenerationService) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, string, error) {
	if err := s.ensureCredential(); err != nil {
		return nil, "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", models.NewValidationError("Text is required")
	}
	if len(text) > 4096 {
		return nil, "", models.NewValidationError("Text too long for speech synthesis (max 4096 characters)")
	}

	if !ai.ValidVoice(voice) {
		voice = ai.DefaultVoice
	}
	if speed < 0.25 {
		speed = 0.25
	}
	if speed > 4.0 {
		speed = 4.0
	}

	ctx = correlated(ctx)
	opLog := observability.NewOpLogger("speech")
	opLog.Start(ctx, map[string]any{"voice": voice, "speed": speed})
	defer observability.TrackGeneration("speech")()

	audio, contentType, err := s.provider.PostBinary(ctx, "/audio/speech", speechRequest{
		Model: s.settings.SpeechModel,
		Input: text,
		Voice: voice,
		Speed: speed,
	})
	if err != nil {
		opLog.Fail(ctx, err, nil)
		return nil, "", err
	}
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	opLog.Done(ctx, map[string]any{"bytes": len(audio)})
	return audio, contentType, nil
}

func firstChoice(resp chatResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

// stripQuoteArtifacts removes quotation marks models like to wrap short
// answers in.
func stripQuoteArtifacts(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "\"'“”‘’"))
}
