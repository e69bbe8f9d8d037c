package models

const (
	StatusPlanned   = "planned"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	TypeCardio       = "cardio"
	TypePowerlifting = "powerlifting"
	TypeCrossfit     = "crossfit"
	TypeYoga         = "yoga"
	TypeStretching   = "stretching"
)

const (
	OwnerTrainer = "trainer"
	OwnerGym     = "gym"
	OwnerClient  = "client"
)

const (
	// CancellationNoticeMinutes минимальное время до начала тренировки для отмены
	CancellationNoticeMinutes = 60

	// RecommendationCacheTTL время жизни кэша рекомендаций в секундах
	RecommendationCacheTTL = 5 * 60

	// MaxRecommendations максимальное количество рекомендаций в выдаче
	MaxRecommendations = 10

	// GeocoderMinInterval минимальный интервал между запросами к геокодеру в секундах
	GeocoderMinInterval = 1

	// WorkerQueueSize размер очереди воркера пересчёта
	WorkerQueueSize = 1000
)

// TrainingTypes lists every known training type.
var TrainingTypes = []string{
	TypeCardio,
	TypePowerlifting,
	TypeCrossfit,
	TypeYoga,
	TypeStretching,
}

// IsTrainingType reports whether t is a known training type.
func IsTrainingType(t string) bool {
	for _, known := range TrainingTypes {
		if t == known {
			return true
		}
	}
	return false
}
