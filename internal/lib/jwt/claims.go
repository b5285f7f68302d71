// Package jwt реализует генерацию и проверку access-токенов с
// пользовательскими claim полями, а также выпуск непрозрачных
// refresh-токенов.
//
// Access-токен короткоживущий и самопроверяемый: валидность определяется
// подписью и сроком действия, без обращения к хранилищу. Refresh-токен —
// случайная строка, валидность которой определяется записью в базе.
package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims описывает пользовательские данные, хранящиеся в access-токене.
type CustomClaims struct {
	UserID               int64  `json:"user_id"` // Идентификатор пользователя
	Email                string `json:"email"`   // Электронная почта
	Role                 string `json:"role"`    // Роль пользователя
	jwt.RegisteredClaims        // Стандартные claims JWT (ExpiresAt, IssuedAt и пр.)
}

// Maker описывает интерфейс для генерации и проверки access-токенов.
type Maker interface {
	// GenerateToken создает подписанный access-токен для пользователя.
	GenerateToken(userID int64, email, role string) (string, error)
	// ParseToken проверяет подпись и срок действия, возвращает claims.
	ParseToken(tokenStr string) (*CustomClaims, error)
	// TTL возвращает срок жизни выпускаемых токенов.
	TTL() time.Duration
}

// MakerImpl реализует интерфейс Maker на основе секретного ключа
// и времени жизни токена.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
}

// NewMaker создает новый экземпляр MakerImpl.
func NewMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}

// TTL возвращает срок жизни выпускаемых токенов.
func (j *MakerImpl) TTL() time.Duration {
	return j.tokenTTL
}
