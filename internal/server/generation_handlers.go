package server

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"reverie/internal/middleware"
	"reverie/internal/models"
	"reverie/internal/service"
)

// TranscribeAudio handles POST /api/generate/transcribe. Expects a multipart
// form with an "audio" file field.
func (s *Server) TranscribeAudio(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Audio file is required"))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Could not read audio file"))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Could not read audio file"))
	}

	text, err := s.generationService.Transcribe(c.UserContext(), data,
		fileHeader.Header.Get("Content-Type"))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"text": text})
}

type titleRequest struct {
	Text string `json:"text"`
}

// GenerateTitle handles POST /api/generate/title
func (s *Server) GenerateTitle(c *fiber.Ctx) error {
	var req titleRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	title, err := s.generationService.GenerateTitle(c.UserContext(), req.Text)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"title": title})
}

type storyRequest struct {
	Text   string `json:"text"`
	Tone   string `json:"tone"`
	Length string `json:"length"`
}

// GenerateStory handles POST /api/generate/story
func (s *Server) GenerateStory(c *fiber.Ctx) error {
	var req storyRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	story, err := s.generationService.GenerateStory(c.UserContext(), req.Text, req.Tone, req.Length)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"story": story, "tone": req.Tone, "length": req.Length})
}

type imagesRequest struct {
	Story string `json:"story"`
	Tone  string `json:"tone"`
}

// GenerateImages handles POST /api/generate/images. The response always
// carries three scene results in order; individual scenes may have failed.
func (s *Server) GenerateImages(c *fiber.Ctx) error {
	var req imagesRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	results, err := s.generationService.GenerateImages(c.UserContext(), req.Story, req.Tone)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"images": results})
}

type analysisRequest struct {
	Text    string `json:"text"`
	DreamID uint   `json:"dream_id"`
}

// AnalyzeDream handles POST /api/generate/analysis. When dream_id is given
// the analysis is persisted against the caller's dream.
func (s *Server) AnalyzeDream(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)

	var req analysisRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	result, err := s.generationService.AnalyzeDream(c.UserContext(), service.AnalyzeInput{
		Text:    req.Text,
		DreamID: req.DreamID,
		UserID:  userID,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(result)
}

type speechRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// SynthesizeSpeech handles POST /api/generate/speech. Responds with the raw
// audio payload.
func (s *Server) SynthesizeSpeech(c *fiber.Ctx) error {
	var req speechRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.Speed == 0 {
		req.Speed = 1.0
	}

	audio, contentType, err := s.generationService.Synthesize(c.UserContext(), req.Text, req.Voice, req.Speed)
	if err != nil {
		return models.Respond(c, err)
	}

	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(audio)
}
