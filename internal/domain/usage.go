package domain

import "strings"

// Category — укрупненная категория приложения, с которой работает модель.
type Category string

const (
	CategorySNS   Category = "SNS"
	CategoryGame  Category = "GAME"
	CategoryOther Category = "OTHER"

	// CategoryNone используется в деградированных ответах, когда атрибуции нет.
	CategoryNone Category = "NONE"
)

// Categories — фиксированный порядок колонок прогноза. Он же задает порядок при равенстве сумм.
var Categories = [3]Category{CategorySNS, CategoryGame, CategoryOther}

// ParseCategory приводит произвольный текст к SNS/GAME/OTHER по ключевым словам.
func ParseCategory(raw string) Category {
	c := strings.ToLower(raw)
	switch {
	case strings.Contains(c, "sns"):
		return CategorySNS
	case strings.Contains(c, "game"):
		return CategoryGame
	default:
		return CategoryOther
	}
}

// Index возвращает номер колонки категории в прогнозе (OTHER для всего неизвестного).
func (c Category) Index() int {
	switch c {
	case CategorySNS:
		return 0
	case CategoryGame:
		return 1
	default:
		return 2
	}
}

type Emotion string

const (
	EmotionGood   Emotion = "GOOD"
	EmotionNormal Emotion = "NORMAL"
	EmotionBad    Emotion = "BAD"
)

// Code — числовое кодирование настроения для признаков: GOOD=+1, NORMAL=0, BAD=-1.
func (e Emotion) Code() float64 {
	switch e {
	case EmotionGood:
		return 1
	case EmotionBad:
		return -1
	default:
		return 0
	}
}

type Status string

const (
	StatusFree Status = "FREE"
	StatusBusy Status = "BUSY"
)

// Code — FREE=0, BUSY=1, все неизвестное трактуем как FREE.
func (s Status) Code() float64 {
	if s == StatusBusy {
		return 1
	}
	return 0
}

// UsageEvent — сырая запись об использовании приложения. Приходит извне и не меняется.
// Время задается либо start_time, либо usage_date (тогда берется полночь этого дня).
type UsageEvent struct {
	UsageDate   string  `json:"usage_date,omitempty"`
	StartTime   string  `json:"start_time,omitempty"`
	Category    string  `json:"category"`
	PackageName string  `json:"package_name"`
	DurationMs  float64 `json:"duration_ms"` // клиенты шлют и 600000, и 600000.0
}

// MoodLog — последняя запись о настроении и занятости пользователя.
type MoodLog struct {
	UserID  int64
	Emotion Emotion
	Status  Status
}
