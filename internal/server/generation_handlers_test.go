package server

import (
	"testing"

	"reverie/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationFailsWithoutProviderCredential(t *testing.T) {
	app, token := newTestApp(t)

	resp := doJSON(t, app, "POST", "/api/generate/title", token, fiber.Map{
		"text": "a dream about a lighthouse",
	})
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var body models.ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, models.CodeConfiguration, body.Code)
}

func TestImageGenerationRateLimited(t *testing.T) {
	app, token := newTestApp(t)

	// Image class admits three requests per window; admission runs before
	// the handler, so the configuration failures still consume slots.
	for i := 0; i < 3; i++ {
		resp := doJSON(t, app, "POST", "/api/generate/images", token, fiber.Map{"text": "x"})
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	}

	resp := doJSON(t, app, "POST", "/api/generate/images", token, fiber.Map{"text": "x"})
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	var body models.ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, models.CodeRateLimited, body.Code)
	assert.Positive(t, body.RetryAfter)

	// Other classes keep their own windows.
	resp = doJSON(t, app, "POST", "/api/generate/story", token, fiber.Map{"text": "x"})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestGenerationAdmitsGuests(t *testing.T) {
	app, _ := newTestApp(t)

	// No Authorization header; the request reaches the service, which then
	// rejects on the missing provider credential rather than on auth.
	resp := doJSON(t, app, "POST", "/api/generate/title", "", fiber.Map{"text": "x"})
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var body models.ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, models.CodeConfiguration, body.Code)
}

func TestGenerationRejectsInvalidCredential(t *testing.T) {
	app, _ := newTestApp(t)

	// Expired token on a persisting analysis request gets a 401 telling the
	// client to re-authenticate, not an unsaved guest analysis.
	resp := doJSON(t, app, "POST", "/api/generate/analysis", "expired.or.garbage",
		fiber.Map{"text": "x", "dream_id": 1})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var body models.ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, models.CodeUnauthorized, body.Code)
}

func TestTranscribeRequiresAudioFile(t *testing.T) {
	app, token := newTestApp(t)

	resp := doJSON(t, app, "POST", "/api/generate/transcribe", token, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
