package entity

import "time"

// EventKind тип перехода членства.
type EventKind string

const (
	EventEnter EventKind = "ENTER"
	EventExit  EventKind = "EXIT"
)

// Valid сообщает, является ли значение известным типом события.
func (k EventKind) Valid() bool {
	return k == EventEnter || k == EventExit
}

// LocationUpdate координаты, присланные устройством.
type LocationUpdate struct {
	DeviceID  string    `json:"device_id"`
	CompanyID string    `json:"company_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Point возвращает координаты обновления.
func (u LocationUpdate) Point() Point {
	return Point{Lat: u.Latitude, Lon: u.Longitude}
}

// Membership открытое членство устройства в зоне.
type Membership struct {
	DeviceID  string    `json:"device_id"`
	ZoneID    string    `json:"zone_id"`
	EnteredAt time.Time `json:"entered_at"`
}

// Transition переход OUTSIDE -> INSIDE (ENTER) или INSIDE -> OUTSIDE (EXIT).
type Transition struct {
	ZoneID    string    `json:"zone_id"`
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Event неизменяемая запись о переходе.
type Event struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	ZoneID     string    `json:"zone_id"`
	Kind       EventKind `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Rule связывает зону с промоакцией. Seq отражает порядок создания.
type Rule struct {
	ID          string    `json:"id"`
	Seq         int64     `json:"seq"`
	ZoneID      string    `json:"zone_id"`
	PromotionID string    `json:"promotion_id"`
	Priority    int       `json:"priority"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ZonePromotions упорядоченный список промоакций для входа в зону.
type ZonePromotions struct {
	ZoneID       string   `json:"zone_id"`
	EventID      string   `json:"event_id"`
	PromotionIDs []string `json:"promotion_ids"`
}

// ZoneKindCount количество событий по зоне и типу.
type ZoneKindCount struct {
	ZoneID string    `json:"zone_id"`
	Kind   EventKind `json:"kind"`
	Count  int       `json:"count"`
}

// PromotionNotification структура для отправки в очередь Redis и последующей доставки воркером.
type PromotionNotification struct {
	Event        string   `json:"event"`
	DeviceID     string   `json:"device_id"`
	CompanyID    string   `json:"company_id"`
	ZoneID       string   `json:"zone_id"`
	EventID      string   `json:"event_id"`
	PromotionIDs []string `json:"promotion_ids"`
	EnteredAt    string   `json:"entered_at"`
}
