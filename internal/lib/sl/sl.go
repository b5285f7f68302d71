// Package sl содержит вспомогательные функции для работы с логгером slog.
// Цель — единообразное формирование структурированных полей лога.
package sl

import (
	"io"
	"log/slog"
)

// Err возвращает slog.Attr с ключом "error" и текстом ошибки.
//
// Пример:
//
//	log.Error("failed to rotate token", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// DiscardLogger возвращает логгер, отбрасывающий все записи.
// Используется в тестах.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// UserID возвращает slog.Attr с ключом "user_id" для единообразной
// привязки записей лога к пользователю.
func UserID(id int64) slog.Attr {
	return slog.Attr{
		Key:   "user_id",
		Value: slog.Int64Value(id),
	}
}
