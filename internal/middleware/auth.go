// Package middleware содержит HTTP middleware витрины.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// Роли, которые выдаёт внешний сервис идентификации.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity описывает проверенного автора запроса.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin сообщает, что запрос выполняет администратор.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// AuthMiddleware проверяет токен вида "<uid>.<role>.<hex hmac-sha256>" из заголовка Authorization.
// Токены выпускает внешний сервис идентификации с общим секретом.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт AuthMiddleware. При пустом секрете используется
// случайный ключ, и ни один внешний токен не пройдёт проверку.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет токен и добавляет Identity в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		id, ok := a.Verify(token)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireAdmin пропускает только запросы с ролью admin. Должен стоять после Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if !id.IsAdmin() {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Sign выпускает токен для пользователя и роли.
func (a *AuthMiddleware) Sign(userID, role string) string {
	payload := userID + "." + role
	return payload + "." + a.signature(payload)
}

// Verify проверяет подпись токена. Идентификатор пользователя может содержать точки,
// роль и подпись не могут.
func (a *AuthMiddleware) Verify(token string) (Identity, bool) {
	i := strings.LastIndexByte(token, '.')
	if i <= 0 {
		return Identity{}, false
	}
	payload, sig := token[:i], token[i+1:]

	if !hmac.Equal([]byte(sig), []byte(a.signature(payload))) {
		return Identity{}, false
	}

	j := strings.LastIndexByte(payload, '.')
	if j <= 0 || j == len(payload)-1 {
		return Identity{}, false
	}

	return Identity{UserID: payload[:j], Role: payload[j+1:]}, true
}

func (a *AuthMiddleware) signature(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithIdentity кладёт Identity в контекст.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext извлекает Identity из контекста запроса.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}
