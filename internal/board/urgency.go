package board

import "time"

// Urgency — производный уровень срочности заказа, не хранится.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

const (
	DefaultUrgentAfter   = 5 * time.Minute
	DefaultCriticalAfter = 10 * time.Minute
)

// Thresholds задаёт нижние границы уровней (включительно).
type Thresholds struct {
	UrgentAfter   time.Duration
	CriticalAfter time.Duration
}

// DefaultThresholds возвращает пороги 5 и 10 минут.
func DefaultThresholds() Thresholds {
	return Thresholds{UrgentAfter: DefaultUrgentAfter, CriticalAfter: DefaultCriticalAfter}
}

// AgeMinutes возвращает целые минуты с момента создания. Будущее время даёт 0.
func AgeMinutes(createdAt, now time.Time) int64 {
	age := now.Sub(createdAt)
	if age < 0 {
		return 0
	}
	return int64(age / time.Minute)
}

// Classify сравнивает возраст в целых минутах с порогами.
func (t Thresholds) Classify(ageMinutes int64) Urgency {
	age := time.Duration(ageMinutes) * time.Minute
	switch {
	case age >= t.CriticalAfter:
		return UrgencyCritical
	case age >= t.UrgentAfter:
		return UrgencyUrgent
	default:
		return UrgencyNormal
	}
}
