package models

import "time"

// Menu представляет меню ресторана. Ядро оперирует меню только при
// принудительном приведении ресурсов к лимитам плана: меню сверх лимита
// деактивируются, но не удаляются.
type Menu struct {
	ID        int64
	UserID    int64
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// MenuItem представляет позицию меню. В отличие от меню, позиции сверх
// лимита плана удаляются безвозвратно.
type MenuItem struct {
	ID        int64
	MenuID    int64
	Name      string
	CreatedAt time.Time
}

// Ad представляет рекламный блок меню.
type Ad struct {
	ID        int64
	MenuID    int64
	CreatedAt time.Time
}

// Branch представляет филиал ресторана, привязанный к меню.
type Branch struct {
	ID        int64
	MenuID    int64
	Name      string
	CreatedAt time.Time
}
