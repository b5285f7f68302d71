// Package metrics содержит счётчики Prometheus для событий
// безопасности аккаунтов и жизненного цикла подписок.
// Счётчики регистрируются в реестре по умолчанию и отдаются
// через /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts считает попытки входа по результату: success или failure.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "menu_backend_login_attempts_total",
		Help: "Total login attempts by outcome",
	}, []string{"outcome"})

	// AccountLockouts считает блокировки аккаунтов после превышения лимита.
	AccountLockouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "menu_backend_account_lockouts_total",
		Help: "Total accounts locked after exceeding the failed attempt limit",
	})

	// TokenRotations считает успешные ротации refresh-токенов.
	TokenRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "menu_backend_token_rotations_total",
		Help: "Total successful refresh token rotations",
	})

	// TokenReplays считает попытки повторного использования
	// уже отозванного refresh-токена.
	TokenReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "menu_backend_token_replays_total",
		Help: "Total refresh token replay attempts detected",
	})

	// SubscriptionTransitions считает переходы подписок по фазе:
	// expiring_soon, grace_started, downgraded.
	SubscriptionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "menu_backend_subscription_transitions_total",
		Help: "Total subscription lifecycle transitions by phase",
	}, []string{"phase"})

	// DowngradeEnforcements считает применённые принудительные
	// ограничения ресурсов при переходе на бесплатный план.
	DowngradeEnforcements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "menu_backend_downgrade_enforcements_total",
		Help: "Total free plan limit enforcement runs applied to user content",
	})
)
