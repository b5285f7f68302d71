package models

import "time"

// RefreshToken представляет строку refresh-токена в хранилище.
//
// Валидность токена определяется записью в базе, а не подписью:
// токен действителен, пока он не отозван и не истек. При ротации старый
// токен отзывается и получает ссылку ReplacedByToken на преемника.
type RefreshToken struct {
	ID              int64
	UserID          int64      // Владелец токена
	Token           string     // Непрозрачная строка токена (уникальная)
	ExpiresAt       time.Time  // Время естественного истечения
	IsRevoked       bool       // Признак отзыва
	RevokedAt       *time.Time // Время отзыва
	ReplacedByToken *string    // Токен-преемник при ротации
	CreatedAt       time.Time
}

// TokenTypeAccess и TokenTypeRefresh — типы токенов в черном списке.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// BlacklistEntry представляет токен, отозванный до естественного истечения.
//
// ExpiresAt совпадает со сроком жизни самого токена, поэтому запись
// самоустраняется: после истечения токена проверка больше не нужна
// и строка удаляется фоновой очисткой.
type BlacklistEntry struct {
	ID        int64
	Token     string
	UserID    int64
	TokenType string // access или refresh
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LoginAttempt — неизменяемая запись аудита попытки входа.
// Создается при каждой попытке (успешной и неуспешной), никогда не
// изменяется и удаляется по истечении 30-дневного срока хранения.
type LoginAttempt struct {
	ID          int64
	Email       string
	IPAddress   string
	Success     bool
	UserAgent   *string
	AttemptedAt time.Time
}
