package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"dinesync/pkg/logger"
	"dinesync/pkg/models"
)

// Alert is a transient user-visible message, the snackbar of the
// original UI.
type Alert struct {
	Message  string
	Severity string
	At       time.Time
}

const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityError   = "error"
)

// Log is the notification surface: an insertion-ordered, session-scoped
// notification log plus a stream of transient alerts. Entries are never
// deleted, only flipped to read; Clear happens on session end.
type Log struct {
	logger *logger.Logger

	mu      sync.Mutex
	entries []models.Notification
	alerts  chan Alert
}

func NewLog(log *logger.Logger) *Log {
	return &Log{
		logger: log,
		alerts: make(chan Alert, 32),
	}
}

func (l *Log) Append(n models.Notification) models.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	l.mu.Lock()
	l.entries = append(l.entries, n)
	l.mu.Unlock()
	return n
}

// Alert emits a transient alert without blocking the caller; when the
// consumer lags the alert is dropped.
func (l *Log) Alert(message, severity string) {
	select {
	case l.alerts <- Alert{Message: message, Severity: severity, At: time.Now()}:
	default:
		l.logger.Debug("", "alert_dropped", message)
	}
}

func (l *Log) Alerts() <-chan Alert {
	return l.alerts
}

func (l *Log) MarkRead(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id && !l.entries[i].IsRead {
			now := time.Now()
			l.entries[i].IsRead = true
			l.entries[i].ReadAt = &now
			return true
		}
	}
	return false
}

func (l *Log) MarkAllRead() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	marked := 0
	for i := range l.entries {
		if !l.entries[i].IsRead {
			l.entries[i].IsRead = true
			l.entries[i].ReadAt = &now
			marked++
		}
	}
	return marked
}

func (l *Log) UnreadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for i := range l.entries {
		if !l.entries[i].IsRead {
			count++
		}
	}
	return count
}

// Snapshot returns the log in insertion order.
func (l *Log) Snapshot() []models.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Notification(nil), l.entries...)
}

// Clear empties the log; called on session end only.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
