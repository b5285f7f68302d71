// Package errs определяет типизированные ошибки ядра безопасности
// аккаунтов и жизненного цикла подписок. HTTP-слой сопоставляет их
// со статус-кодами; внутри ядра ошибки не понижаются до generic 500.
package errs

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials возвращается при неверной паре email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked возвращается, когда аккаунт заблокирован после
	// серии неудачных попыток входа.
	ErrAccountLocked = errors.New("account is locked")

	// ErrAccountSuspended возвращается для приостановленных администратором аккаунтов.
	ErrAccountSuspended = errors.New("account is suspended")

	// ErrInvalidToken возвращается для недействительного, истекшего или
	// неизвестного токена. Ответ намеренно не различает причины, чтобы
	// не давать атакующему оракул валидности токенов.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrTokenRevoked возвращается при попытке использовать отозванный токен.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrPlanNotFound возвращается, когда тарифный план не найден.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrSubscriptionNotFound возвращается, когда подписка не найдена.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSubscriptionExists возвращается при попытке выдать подписку
	// пользователю с уже действующей подпиской.
	ErrSubscriptionExists = errors.New("active subscription already exists")

	// ErrStorageUnavailable сигнализирует о недоступности хранилища.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// AccountLockedError несет остаток срока блокировки. Клиенту отдается
// длительность, а не момент снятия блокировки, чтобы расхождение часов
// не вводило в заблуждение. Ответ не раскрывает, какая именно попытка
// вызвала блокировку.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return ErrAccountLocked.Error()
}

// Is сопоставляет ошибку с сентинелом ErrAccountLocked.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
