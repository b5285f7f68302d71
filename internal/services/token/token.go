// Package services содержит бизнес-логику жизненного цикла токенов:
// выпуск пары access/refresh, ротацию refresh-токенов с обнаружением
// повторного использования, отзыв и черный список access-токенов.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qeematech/menu-backend/internal/lib/errs"
	"github.com/qeematech/menu-backend/internal/lib/jwt"
	"github.com/qeematech/menu-backend/internal/lib/metrics"
	"github.com/qeematech/menu-backend/internal/lib/sl"
	"github.com/qeematech/menu-backend/internal/models"
)

// RefreshTokenRepository описывает контракт хранилища refresh-токенов.
type RefreshTokenRepository interface {
	// InsertRefreshToken сохраняет новый refresh-токен.
	InsertRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	// GetRefreshToken возвращает запись токена или errs.ErrInvalidToken.
	GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	// RotateRefreshToken атомарно отзывает старый токен и вставляет новый.
	RotateRefreshToken(ctx context.Context, userID int64, oldToken, newToken string, expiresAt time.Time) error
	// RevokeRefreshToken отзывает токен; идемпотентна.
	RevokeRefreshToken(ctx context.Context, token string) error
	// RevokeAllRefreshTokensForUser отзывает все активные токены пользователя.
	RevokeAllRefreshTokensForUser(ctx context.Context, userID int64) (int64, error)
	// CountActiveRefreshTokens возвращает число активных токенов пользователя.
	CountActiveRefreshTokens(ctx context.Context, userID int64) (int, error)
	// DeleteExpiredRefreshTokensBefore удаляет токены, истекшие до cutoff.
	DeleteExpiredRefreshTokensBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BlacklistRepository описывает контракт черного списка access-токенов.
type BlacklistRepository interface {
	// InsertBlacklistEntry помещает токен в черный список.
	InsertBlacklistEntry(ctx context.Context, entry models.BlacklistEntry) error
	// IsTokenBlacklisted проверяет присутствие токена в черном списке.
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
	// DeleteExpiredBlacklistEntries удаляет записи с истекшим сроком.
	DeleteExpiredBlacklistEntries(ctx context.Context, now time.Time) (int64, error)
}

// UserRepository возвращает данные пользователя для выпуска access-токена
// при ротации.
type UserRepository interface {
	// GetUserByID возвращает пользователя по идентификатору.
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// TokenPair — выпущенная пара токенов.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService реализует выпуск, проверку, ротацию и отзыв токенов.
type TokenService struct {
	tokens            RefreshTokenRepository
	blacklist         BlacklistRepository
	users             UserRepository
	accessMaker       jwt.Maker
	refreshTTL        time.Duration
	failOpenBlacklist bool
	log               *slog.Logger
}

// NewTokenService создает новый экземпляр TokenService.
func NewTokenService(
	tokens RefreshTokenRepository,
	blacklist BlacklistRepository,
	users UserRepository,
	accessMaker jwt.Maker,
	refreshTTL time.Duration,
	failOpenBlacklist bool,
	log *slog.Logger,
) *TokenService {
	return &TokenService{
		tokens:            tokens,
		blacklist:         blacklist,
		users:             users,
		accessMaker:       accessMaker,
		refreshTTL:        refreshTTL,
		failOpenBlacklist: failOpenBlacklist,
		log:               log,
	}
}

// Issue выпускает пару access/refresh токенов для пользователя.
// Отказ хранилища при сохранении refresh-токена — жесткая ошибка:
// пара без сохраненного refresh-токена не выдается.
func (s *TokenService) Issue(ctx context.Context, user *models.User) (*TokenPair, error) {
	const op = "token.Issue"

	access, err := s.accessMaker.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	refresh, err := jwt.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	expiresAt := time.Now().UTC().Add(s.refreshTTL)
	if err := s.tokens.InsertRefreshToken(ctx, user.ID, refresh, expiresAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess проверяет подпись и срок действия access-токена.
// Любая причина невалидности сворачивается в errs.ErrInvalidToken:
// ответ не различает истекший, отозванный и поврежденный токен.
func (s *TokenService) VerifyAccess(tokenStr string) (*jwt.CustomClaims, error) {
	const op = "token.VerifyAccess"
	claims, err := s.accessMaker.ParseToken(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidToken)
	}
	return claims, nil
}

// VerifyRefresh проверяет refresh-токен по записи в хранилище.
// Повторное использование отозванного токена трактуется как кража:
// все активные refresh-токены пользователя отзываются.
func (s *TokenService) VerifyRefresh(ctx context.Context, tokenStr string) (*models.RefreshToken, error) {
	const op = "token.VerifyRefresh"

	token, err := s.tokens.GetRefreshToken(ctx, tokenStr)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidToken) {
			return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if token.IsRevoked {
		metrics.TokenReplays.Inc()
		s.log.Warn("revoked refresh token replayed, revoking all user tokens", sl.UserID(token.UserID))
		if _, err := s.tokens.RevokeAllRefreshTokensForUser(ctx, token.UserID); err != nil {
			s.log.Error("failed to revoke user tokens after replay", sl.UserID(token.UserID), sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidToken)
	}
	if time.Now().UTC().After(token.ExpiresAt) {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrInvalidToken)
	}
	return token, nil
}

// Rotate проверяет refresh-токен и в одной транзакции отзывает его,
// связывает с преемником и вставляет новый. Возвращает свежую пару.
func (s *TokenService) Rotate(ctx context.Context, oldToken string) (*TokenPair, error) {
	const op = "token.Rotate"

	current, err := s.VerifyRefresh(ctx, oldToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.GetUserByID(ctx, current.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user.IsSuspended {
		return nil, fmt.Errorf("%s: %w", op, errs.ErrAccountSuspended)
	}

	newToken, err := jwt.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	expiresAt := time.Now().UTC().Add(s.refreshTTL)
	if err := s.tokens.RotateRefreshToken(ctx, current.UserID, oldToken, newToken, expiresAt); err != nil {
		// Токен успели отозвать между проверкой и ротацией: гонка двух
		// конкурирующих запросов с одним и тем же refresh-токеном.
		if errors.Is(err, errs.ErrInvalidToken) {
			metrics.TokenReplays.Inc()
			if _, revokeErr := s.tokens.RevokeAllRefreshTokensForUser(ctx, current.UserID); revokeErr != nil {
				s.log.Error("failed to revoke user tokens after replay", sl.UserID(current.UserID), sl.Err(revokeErr))
			}
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	access, err := s.accessMaker.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.TokenRotations.Inc()
	return &TokenPair{AccessToken: access, RefreshToken: newToken}, nil
}

// Revoke отзывает refresh-токен. Идемпотентна: повторный отзыв и отзыв
// неизвестного токена завершаются успешно.
func (s *TokenService) Revoke(ctx context.Context, tokenStr string) error {
	const op = "token.Revoke"
	if err := s.tokens.RevokeRefreshToken(ctx, tokenStr); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RevokeAllForUser отзывает все активные refresh-токены пользователя.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	const op = "token.RevokeAllForUser"
	revoked, err := s.tokens.RevokeAllRefreshTokensForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return revoked, nil
}

// BlacklistAccessToken помещает access-токен в черный список до момента
// его естественного истечения. Срок записи равен сроку токена, поэтому
// черный список самоочищается фоновой уборкой.
func (s *TokenService) BlacklistAccessToken(ctx context.Context, tokenStr string, userID int64, reason string) error {
	const op = "token.BlacklistAccessToken"

	expiresAt := time.Now().UTC().Add(s.accessMaker.TTL())
	if claims, err := s.accessMaker.ParseToken(tokenStr); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	err := s.blacklist.InsertBlacklistEntry(ctx, models.BlacklistEntry{
		Token:     tokenStr,
		UserID:    userID,
		TokenType: models.TokenTypeAccess,
		Reason:    reason,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IsBlacklisted проверяет присутствие access-токена в черном списке.
// Отказ хранилища при failOpenBlacklist трактуется как "не в списке",
// иначе возвращается ошибка и запрос должен быть отклонен.
func (s *TokenService) IsBlacklisted(ctx context.Context, tokenStr string) (bool, error) {
	const op = "token.IsBlacklisted"

	blacklisted, err := s.blacklist.IsTokenBlacklisted(ctx, tokenStr)
	if err != nil {
		if s.failOpenBlacklist {
			s.log.Warn("blacklist check degraded to open", sl.Err(err))
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return blacklisted, nil
}

// ActiveTokenCount возвращает число активных refresh-токенов пользователя.
func (s *TokenService) ActiveTokenCount(ctx context.Context, userID int64) (int, error) {
	const op = "token.ActiveTokenCount"
	count, err := s.tokens.CountActiveRefreshTokens(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// CleanupExpired удаляет записи черного списка с истекшим сроком и
// refresh-токены, истекшие более 30 дней назад. Возвращает число
// удаленных строк по каждой категории.
func (s *TokenService) CleanupExpired(ctx context.Context) (tokens, blacklisted int64, err error) {
	const op = "token.CleanupExpired"

	now := time.Now().UTC()
	blacklisted, err = s.blacklist.DeleteExpiredBlacklistEntries(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	tokens, err = s.tokens.DeleteExpiredRefreshTokensBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		return 0, blacklisted, fmt.Errorf("%s: %w", op, err)
	}
	return tokens, blacklisted, nil
}
