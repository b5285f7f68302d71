package models

import "time"

// Статусы подписки.
const (
	SubscriptionStatusActive  = "active"
	SubscriptionStatusExpired = "expired"
)

// Циклы оплаты подписки.
const (
	BillingCycleFree    = "free"
	BillingCycleMonthly = "monthly"
	BillingCycleYearly  = "yearly"
)

// Plan представляет тарифный план. С точки зрения ядра планы доступны
// только для чтения, ими управляет администратор.
type Plan struct {
	ID                 int64
	Name               string
	PriceMonthly       float64
	PriceYearly        float64
	MaxMenus           int  // Максимум меню в плане
	MaxProductsPerMenu int  // Максимум позиций в меню, -1 = без ограничений
	HasAds             bool // Разрешена ли реклама
	AllowCustomDomain  bool
	AllowBranches      bool // Разрешены ли филиалы
	IsActive           bool
}

// IsFree сообщает, является ли план бесплатным.
func (p *Plan) IsFree() bool {
	return p.PriceMonthly == 0
}

// Subscription представляет подписку пользователя на тарифный план.
//
// Инвариант: у пользователя одновременно не более одной подписки со
// статусом active и endDate в будущем (или без endDate). Подписка на
// бесплатный план не имеет даты окончания. Поля grace-периода заполняются
// только планировщиком жизненного цикла: gracePeriodStartDate IS NULL
// означает, что подписка еще не входила в grace-период.
type Subscription struct {
	ID                     int64
	UserID                 int64
	PlanID                 int64
	BillingCycle           string
	Status                 string // active или expired
	StartDate              time.Time
	EndDate                *time.Time // nil для бесплатного плана
	GracePeriodStartDate   *time.Time
	GracePeriodEndDate     *time.Time
	ExpiryNotificationSent bool
	CreatedAt              time.Time
}

// ExpiringSubscription — строка выборки планировщика: подписка вместе
// с данными пользователя и именем плана.
type ExpiringSubscription struct {
	SubscriptionID     int64
	UserID             int64
	Email              string
	UserName           string
	PlanName           string
	EndDate            *time.Time
	GracePeriodEndDate *time.Time
}
