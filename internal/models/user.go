// Package models содержит доменные структуры ядра безопасности аккаунтов
// и жизненного цикла подписок: пользователи, токены, попытки входа,
// тарифные планы, подписки и уведомления.
package models

import "time"

// User представляет зарегистрированного пользователя системы.
//
// Поля блокировки (IsLocked, LockedUntil, FailedLoginAttempts) изменяются
// только сервисом защиты от перебора паролей. Поля приостановки аккаунта
// изменяются только действиями администратора.
type User struct {
	ID                  int64      // Уникальный идентификатор пользователя
	Email               string     // Электронная почта (уникальная, без учета регистра)
	Name                string     // Отображаемое имя
	PasswordHash        *string    // Хэш пароля; nil для аккаунтов, созданных через OAuth
	Role                string     // Роль пользователя, admin или user
	IsSuspended         bool       // Признак приостановки аккаунта администратором
	SuspensionReason    *string    // Причина приостановки
	IsLocked            bool       // Признак блокировки после неудачных попыток входа
	LockedUntil         *time.Time // Время окончания блокировки
	FailedLoginAttempts int        // Число неудачных попыток входа
	LastFailedLoginAt   *time.Time // Время последней неудачной попытки
	CreatedAt           time.Time
}
