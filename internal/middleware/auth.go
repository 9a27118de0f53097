// Package middleware provides authentication, logging, tracing, and rate
// admission middleware for the application.
package middleware

import (
	"context"
	"strings"

	"reverie/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified identity returned by the external provider.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// IdentityVerifier validates a bearer credential with the identity provider.
// The application never issues or introspects credentials itself.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// UserResolver upserts a verified identity into local storage and returns
// the local user id.
type UserResolver func(ctx context.Context, identity Identity) (uint, error)

// JWTVerifier verifies HMAC-signed bearer tokens issued by the identity
// provider.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier returns a verifier for tokens signed with secret and issued
// by issuer.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates the credential, returning the carried identity.
func (v *JWTVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	token, err := jwt.Parse(credential, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, models.NewUnauthorizedError("Invalid signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, models.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, models.NewUnauthorizedError("Invalid token claims")
	}

	if v.issuer != "" {
		if issuer, issuerOk := claims["iss"].(string); !issuerOk || issuer != v.issuer {
			return Identity{}, models.NewUnauthorizedError("Invalid token issuer")
		}
	}

	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return Identity{}, models.NewUnauthorizedError("Invalid subject claim")
	}

	identity := Identity{Subject: subject}
	if email, emailOk := claims["email"].(string); emailOk {
		identity.Email = email
	}
	if name, nameOk := claims["name"].(string); nameOk {
		identity.Name = name
	}
	return identity, nil
}

// bearerCredential extracts the credential from "Bearer <token>".
func bearerCredential(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// AuthRequired enforces a verified identity. The identity is upserted on
// every authenticated request, which doubles as first-request user creation.
func AuthRequired(verifier IdentityVerifier, resolve UserResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		credential := bearerCredential(c)
		if credential == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		identity, err := verifier.Verify(c.Context(), credential)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		userID, err := resolve(c.Context(), identity)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		}

		c.Locals("userID", userID)
		c.Locals("subject", identity.Subject)
		return c.Next()
	}
}

// OptionalAuth admits guests when no credential is present. A credential
// that is present but fails verification is still a 401; only absence
// means anonymous.
func OptionalAuth(verifier IdentityVerifier, resolve UserResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		credential := bearerCredential(c)
		if credential == "" {
			return c.Next()
		}

		identity, err := verifier.Verify(c.Context(), credential)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		if userID, err := resolve(c.Context(), identity); err == nil {
			c.Locals("userID", userID)
			c.Locals("subject", identity.Subject)
		}
		return c.Next()
	}
}

// CurrentUserID returns the resolved local user id, or 0 for guests.
func CurrentUserID(c *fiber.Ctx) uint {
	if uid, ok := c.Locals("userID").(uint); ok {
		return uid
	}
	return 0
}
