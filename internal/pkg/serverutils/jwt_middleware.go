package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleOperator is the role claim carried by support staff tokens.
const RoleOperator = "operator"

var ErrInvalidToken = errors.New("invalid token")

// Claims is what the backend reads from a bearer token.
type Claims struct {
	UserID uuid.UUID
	Role   string
}

// ParseToken validates an HMAC signed token and extracts its claims.
func ParseToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	raw, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: user_id claim", ErrInvalidToken)
	}
	role, _ := claims["role"].(string)
	return &Claims{UserID: userID, Role: role}, nil
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// JwtMiddleware rejects requests without a valid bearer token and stores the
// caller in ctx.Locals("user_id") and ctx.Locals("role").
func JwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := BearerToken(ctx.Get(fiber.HeaderAuthorization))
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}

		claims, err := ParseToken(secret, tokenStr)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		ctx.Locals("user_id", claims.UserID.String())
		ctx.Locals("role", claims.Role)
		return ctx.Next()
	}
}

// RequireRole must run after JwtMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if got, _ := ctx.Locals("role").(string); got != role {
			return ctx.Status(fiber.StatusForbidden).JSON(ErrorResponse(fiber.StatusForbidden, "Access denied"))
		}
		return ctx.Next()
	}
}

// UserID returns the authenticated caller set by JwtMiddleware.
func UserID(ctx *fiber.Ctx) (uuid.UUID, error) {
	raw, ok := ctx.Locals("user_id").(string)
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return id, nil
}
