package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"reverie/internal/models"
	"reverie/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// providerStub is a stub for the Provider interface.
type providerStub struct {
	mu            sync.Mutex
	postJSONFn    func(ctx context.Context, path string, body any, out any) error
	multipartFn   func(ctx context.Context, path string, fields map[string]string, fileName string, data []byte, out any) error
	binaryFn      func(ctx context.Context, path string, body any) ([]byte, string, error)
	postJSONCalls []string
}

func (p *providerStub) PostJSON(ctx context.Context, path string, body any, out any, _ int) error {
	p.mu.Lock()
	p.postJSONCalls = append(p.postJSONCalls, path)
	p.mu.Unlock()
	return p.postJSONFn(ctx, path, body, out)
}

func (p *providerStub) PostMultipart(ctx context.Context, path string, fields map[string]string, _, fileName string, data []byte, out any, _ int) error {
	return p.multipartFn(ctx, path, fields, fileName, data, out)
}

func (p *providerStub) PostBinary(ctx context.Context, path string, body any) ([]byte, string, error) {
	return p.binaryFn(ctx, path, body)
}

// dreamRepoStub is a stub for repository.DreamRepository.
type dreamRepoStub struct {
	createFn         func(context.Context, *models.Dream) error
	getByIDFn        func(context.Context, uint, uint) (*models.Dream, error)
	listFn           func(context.Context, uint, repository.DreamFilter, repository.Sort, repository.Page) (*repository.DreamPage, error)
	updateFn         func(context.Context, uint, uint, map[string]any) error
	replaceImagesFn  func(context.Context, uint, []models.DreamImage) error
	deleteFn         func(context.Context, uint, uint) error
	toggleFavoriteFn func(context.Context, uint, uint) (bool, error)
	statsFn          func(context.Context, uint) (*models.DreamStats, error)
}

func (s *dreamRepoStub) Create(ctx context.Context, d *models.Dream) error {
	return s.createFn(ctx, d)
}
func (s *dreamRepoStub) GetByID(ctx context.Context, ownerID, id uint) (*models.Dream, error) {
	return s.getByIDFn(ctx, ownerID, id)
}
func (s *dreamRepoStub) List(ctx context.Context, ownerID uint, f repository.DreamFilter, srt repository.Sort, p repository.Page) (*repository.DreamPage, error) {
	return s.listFn(ctx, ownerID, f, srt, p)
}
func (s *dreamRepoStub) Update(ctx context.Context, ownerID, id uint, fields map[string]any) error {
	return s.updateFn(ctx, ownerID, id, fields)
}
func (s *dreamRepoStub) ReplaceImages(ctx context.Context, dreamID uint, images []models.DreamImage) error {
	return s.replaceImagesFn(ctx, dreamID, images)
}
func (s *dreamRepoStub) Delete(ctx context.Context, ownerID, id uint) error {
	return s.deleteFn(ctx, ownerID, id)
}
func (s *dreamRepoStub) ToggleFavorite(ctx context.Context, ownerID, id uint) (bool, error) {
	return s.toggleFavoriteFn(ctx, ownerID, id)
}
func (s *dreamRepoStub) Stats(ctx context.Context, ownerID uint) (*models.DreamStats, error) {
	return s.statsFn(ctx, ownerID)
}

func noopDreamRepo() *dreamRepoStub {
	return &dreamRepoStub{
		createFn: func(_ context.Context, d *models.Dream) error {
			d.ID = 1
			return nil
		},
		getByIDFn: func(_ context.Context, _, id uint) (*models.Dream, error) {
			return &models.Dream{ID: id}, nil
		},
		listFn: func(context.Context, uint, repository.DreamFilter, repository.Sort, repository.Page) (*repository.DreamPage, error) {
			return &repository.DreamPage{Items: []*models.Dream{}}, nil
		},
		updateFn:        func(context.Context, uint, uint, map[string]any) error { return nil },
		replaceImagesFn: func(context.Context, uint, []models.DreamImage) error { return nil },
		deleteFn:        func(context.Context, uint, uint) error { return nil },
		toggleFavoriteFn: func(context.Context, uint, uint) (bool, error) {
			return true, nil
		},
		statsFn: func(context.Context, uint) (*models.DreamStats, error) {
			return &models.DreamStats{}, nil
		},
	}
}

// analysisRepoStub is a stub for repository.AnalysisRepository.
type analysisRepoStub struct {
	created []*models.DreamAnalysis
}

func (s *analysisRepoStub) Create(_ context.Context, a *models.DreamAnalysis) error {
	a.ID = uint(len(s.created) + 1)
	s.created = append(s.created, a)
	return nil
}
func (s *analysisRepoStub) ListByDream(context.Context, uint, uint) ([]models.DreamAnalysis, error) {
	return nil, nil
}

func chatReply(out any, content string) {
	payload := []byte(`{"choices":[{"message":{"role":"assistant","content":` + mustJSON(content) + `}}]}`)
	_ = json.Unmarshal(payload, out)
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func testSettings() GenerationSettings {
	return GenerationSettings{
		APIKey:             "test-key",
		ChatModel:          "gpt-4o-mini",
		ImageModel:         "dall-e-3",
		SpeechModel:        "tts-1",
		TranscriptionModel: "whisper-1",
		MaxAudioBytes:      1024,
	}
}

func newTestService(provider *providerStub) (*GenerationService, *dreamRepoStub, *analysisRepoStub) {
	dreams := noopDreamRepo()
	analyses := &analysisRepoStub{}
	return NewGenerationService(provider, testSettings(), dreams, analyses), dreams, analyses
}

func TestOperationsFailClosedWithoutCredential(t *testing.T) {
	provider := &providerStub{}
	settings := testSettings()
	settings.APIKey = ""
	svc := NewGenerationService(provider, settings, &dreamRepoStub{}, &analysisRepoStub{})
	ctx := context.Background()

	_, err := svc.GenerateTitle(ctx, "a dream")
	assertConfigError(t, err)
	_, err = svc.GenerateStory(ctx, "a dream", "", "")
	assertConfigError(t, err)
	_, err = svc.GenerateImages(ctx, "a story", "")
	assertConfigError(t, err)
	_, err = svc.AnalyzeDream(ctx, AnalyzeInput{Text: "a dream"})
	assertConfigError(t, err)
	_, err = svc.Transcribe(ctx, []byte("x"), "audio/mpeg")
	assertConfigError(t, err)
	_, _, err = svc.Synthesize(ctx, "read this", "alloy", 1.0)
	assertConfigError(t, err)

	assert.Empty(t, provider.postJSONCalls, "no provider call may be issued without a credential")
}

func assertConfigError(t *testing.T, err error) {
	t.Helper()
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeConfiguration, appErr.Code)
}

func TestGenerateTitleStripsQuotes(t *testing.T) {
	provider := &providerStub{
		postJSONFn: func(_ context.Context, _ string, _ any, out any) error {
			chatReply(out, "\n\"The Silver Staircase\" ")
			return nil
		},
	}
	svc, _, _ := newTestService(provider)

	title, err := svc.GenerateTitle(context.Background(), "I climbed silver stairs")
	require.NoError(t, err)
	assert.Equal(t, "The Silver Staircase", title)
}

func TestGenerateTitleRequiresText(t *testing.T) {
	svc, _, _ := newTestService(&providerStub{})
	_, err := svc.GenerateTitle(context.Background(), "   \n ")
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeValidation, appErr.Code)
}

func TestGenerateStoryUsesToneAndLength(t *testing.T) {
	var captured chatRequest
	provider := &providerStub{
		postJSONFn: func(_ context.Context, _ string, body any, out any) error {
			captured = body.(chatRequest)
			chatReply(out, "Once upon a dream...")
			return nil
		},
	}
	svc, _, _ := newTestService(provider)

	story, err := svc.GenerateStory(context.Background(), "I was underwater", "mystical", "short")
	require.NoError(t, err)
	assert.Equal(t, "Once upon a dream...", story)
	assert.Equal(t, 400, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Contains(t, captured.Messages[0].Content, "mystical")
	assert.Contains(t, captured.Messages[1].Content, "I was underwater")
}

func TestGenerateImagesAllSucceed(t *testing.T) {
	provider := &providerStub{
		postJSONFn: func(_ context.Context, _ string, body any, out any) error {
			req := body.(imageRequest)
			assert.Equal(t, "dall-e-3", req.Model)
			return json.Unmarshal([]byte(`{"data":[{"url":"https://img.example/scene"}]}`), out)
		},
	}
	svc, _, _ := newTestService(provider)

	story := "The door opened. A hallway stretched on. Light spilled in. " +
		"I walked forward. The walls sang. Everything glowed. " +
		"Then silence. The floor dissolved. I woke gently."
	results, err := svc.GenerateImages(context.Background(), story, "gentle")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "Scene 1", results[0].Scene)
	assert.Equal(t, "Scene 2", results[1].Scene)
	assert.Equal(t, "Scene 3", results[2].Scene)
	for _, r := range results {
		assert.False(t, r.Error)
		require.NotNil(t, r.ImageURL)
		assert.NotEmpty(t, r.Prompt)
		assert.NotEmpty(t, r.Description)
	}
	assert.Len(t, provider.postJSONCalls, 3)
}

func TestGenerateImagesPartialFailure(t *testing.T) {
	var calls int
	var mu sync.Mutex
	provider := &providerStub{
		postJSONFn: func(_ context.Context, _ string, body any, out any) error {
			req := body.(imageRequest)
			mu.Lock()
			calls++
			mu.Unlock()
			// The middle scene fails; the others succeed.
			if strings.Contains(req.Prompt, "turning point") {
				return models.NewExhaustedRetriesError(503, "overloaded", 3)
			}
			return json.Unmarshal([]byte(`{"data":[{"url":"https://img.example/ok"}]}`), out)
		},
	}
	svc, _, _ := newTestService(provider)

	story := "One. Two. Three. Four. Five. Six. Seven. Eight. Nine."
	results, err := svc.GenerateImages(context.Background(), story, "")
	require.NoError(t, err, "partial failure is a result shape, not an error")
	require.Len(t, results, 3)

	assert.False(t, results[0].Error)
	assert.True(t, results[1].Error)
	assert.Nil(t, results[1].ImageURL)
	assert.NotEmpty(t, results[1].Prompt, "failed scene keeps its prompt")
	assert.False(t, results[2].Error)
	mu.Lock()
	assert.Equal(t, 3, calls, "one failing scene never cancels the others")
	mu.Unlock()
}

func TestAnalyzeDreamUnsavedWithoutDream(t *testing.T) {
	provider := &providerStub{
		postJSONFn: func(_ context.Context, _ string, _ any, out any) error {
			chatReply(out, "This dream carries joy and wonder about flying above water.")
			return nil
		},
	}
	svc, _, analyses := newTestService(provider)

	result, err := svc.AnalyzeDream(context.Background(), AnalyzeInput{Text: "I flew over a lake"})
	require.NoError(t, err)

	assert.False(t, result.Saved)
	assert.Zero(t, result.ID)
	assert.Contains(t, result.Emotions, "joy")
	assert.Contains(t, result.Emotions, "wonder")
	assert.Contains(t, result.Themes, "flying")
	assert.Contains(t, result.Themes, "water")
	assert.NotEmpty(t, result.Symbols["flying"])
	assert.NotEmpty(t, result.Symbols["water"])
	assert.Empty(t, analyses.created)
}

func TestAnalyzeDreamPersistsForOwnedDream(t *testing.T) {
	provider := &providerStub{
		postJSONFn: func(_ context.Context, _ string, _ any, out any) error {
			chatReply(out, "A reading full of peace beside still water.")
			return nil
		},
	}
	svc, _, analyses := newTestService(provider)

	result, err := svc.AnalyzeDream(context.Background(), AnalyzeInput{
		Text:    "calm waters",
		DreamID: 11,
		UserID:  3,
	})
	require.NoError(t, err)

	assert.True(t, result.Saved)
	assert.NotZero(t, result.ID)
	require.Len(t, analyses.created, 1)
	assert.Equal(t, uint(11), analyses.created[0].DreamID)
	assert.Equal(t, uint(3), analyses.created[0].UserID)
	assert.NotEmpty(t, analyses.created[0].Symbols["water"])
}

func TestAnalyzeDreamRejectsForeignDream(t *testing.T) {
	provider := &providerStub{
		postJSONFn: func(_ context.Context, _ string, _ any, out any) error {
			chatReply(out, "A reading.")
			return nil
		},
	}
	svc, dreams, analyses := newTestService(provider)
	dreams.getByIDFn = func(context.Context, uint, uint) (*models.Dream, error) {
		return nil, models.NewNotFoundError("Dream", 11)
	}

	_, err := svc.AnalyzeDream(context.Background(), AnalyzeInput{
		Text:    "calm waters",
		DreamID: 11,
		UserID:  99,
	})
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeNotFound, appErr.Code)
	assert.Empty(t, analyses.created)
}

func TestTranscribeValidatesUpload(t *testing.T) {
	svc, _, _ := newTestService(&providerStub{})
	ctx := context.Background()

	_, err := svc.Transcribe(ctx, []byte("x"), "video/mp4")
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeValidation, appErr.Code)

	_, err = svc.Transcribe(ctx, make([]byte, 2048), "audio/mpeg")
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeValidation, appErr.Code)

	_, err = svc.Transcribe(ctx, nil, "audio/mpeg")
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeValidation, appErr.Code)
}

func TestTranscribeSendsModelAndFile(t *testing.T) {
	provider := &providerStub{
		multipartFn: func(_ context.Context, path string, fields map[string]string, fileName string, data []byte, out any) error {
			assert.Equal(t, "/audio/transcriptions", path)
			assert.Equal(t, "whisper-1", fields["model"])
			assert.Equal(t, "audio.webm", fileName)
			assert.Equal(t, []byte("fake"), data)
			return json.Unmarshal([]byte(`{"text":"I dreamed of rivers"}`), out)
		},
	}
	svc, _, _ := newTestService(provider)

	text, err := svc.Transcribe(context.Background(), []byte("fake"), "audio/webm; codecs=opus")
	require.NoError(t, err)
	assert.Equal(t, "I dreamed of rivers", text)
}

func TestSynthesizeVoiceFallbackAndSpeedClamp(t *testing.T) {
	var captured speechRequest
	provider := &providerStub{
		binaryFn: func(_ context.Context, _ string, body any) ([]byte, string, error) {
			captured = body.(speechRequest)
			return []byte("mp3-bytes"), "audio/mpeg", nil
		},
	}
	svc, _, _ := newTestService(provider)

	audio, contentType, err := svc.Synthesize(context.Background(), "good night", "darth-vader", 9.5)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)
	assert.Equal(t, "audio/mpeg", contentType)
	assert.Equal(t, "alloy", captured.Voice)
	assert.Equal(t, 4.0, captured.Speed)

	_, _, err = svc.Synthesize(context.Background(), "good night", "nova", 0.01)
	require.NoError(t, err)
	assert.Equal(t, "nova", captured.Voice)
	assert.Equal(t, 0.25, captured.Speed)
}

func TestSynthesizeRejectsOverlongText(t *testing.T) {
	svc, _, _ := newTestService(&providerStub{})
	_, _, err := svc.Synthesize(context.Background(), strings.Repeat("a", 5000), "alloy", 1.0)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeValidation, appErr.Code)
}

func TestSynthesizeDefaultsContentType(t *testing.T) {
	provider := &providerStub{
		binaryFn: func(context.Context, string, any) ([]byte, string, error) {
			return []byte("raw"), "", nil
		},
	}
	svc, _, _ := newTestService(provider)

	_, contentType, err := svc.Synthesize(context.Background(), "hello", "alloy", 1.0)
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", contentType)
}
