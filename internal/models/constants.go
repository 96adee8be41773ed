package models

// Queue item statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusRetry      = "retry"
)

// Sync operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Version change types.
const (
	ChangeCreate  = "create"
	ChangeUpdate  = "update"
	ChangeDelete  = "delete"
	ChangePublish = "publish"
)

const (
	// DefaultPriority применяется, если при постановке в очередь приоритет не задан
	DefaultPriority = 5

	// HighPriority используется для ручных операций и обновления кэша
	HighPriority = 8

	// DefaultCacheTTLHours время жизни записи кэша по умолчанию
	DefaultCacheTTLHours = 24

	// DefaultBatchSize максимальное число элементов за один проход процессора
	DefaultBatchSize = 50

	// DefaultMaxRetries потолок повторов до перевода в терминальный failed
	DefaultMaxRetries = 3

	// DefaultPurgeRetentionHours срок хранения завершённых строк очереди
	DefaultPurgeRetentionHours = 24

	// DefaultStaleProcessingMinutes срок, после которого processing считается зависшим
	DefaultStaleProcessingMinutes = 10

	// DefaultRecentActivityLimit размер выборки последней активности
	DefaultRecentActivityLimit = 20

	// DefaultStatusPollSeconds период опроса состояния для UI
	DefaultStatusPollSeconds = 30
)

// ValidOperation reports whether op is a recognized sync operation.
func ValidOperation(op string) bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// ValidStatus reports whether s is a recognized queue status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusRetry:
		return true
	}
	return false
}
