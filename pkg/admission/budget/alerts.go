package budget

import "sync"

// maxAlerts bounds the in-memory alert log.
const maxAlerts = 1000

// AlertLog is a bounded in-memory log of guard alerts, newest last.
// When full, the oldest alerts are dropped.
type AlertLog struct {
	mu     sync.Mutex
	alerts []Alert
}

// NewAlertLog creates an empty alert log.
func NewAlertLog() *AlertLog {
	return &AlertLog{}
}

// Add appends an alert, evicting the oldest when the log is full.
func (a *AlertLog) Add(alert Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.alerts = append(a.alerts, alert)
	if len(a.alerts) > maxAlerts {
		a.alerts = a.alerts[len(a.alerts)-maxAlerts:]
	}
}

// List returns up to limit alerts, newest first. A non-positive limit
// returns all alerts.
func (a *AlertLog) List(limit int) []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.alerts)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Alert, limit)
	for i := 0; i < limit; i++ {
		out[i] = a.alerts[n-1-i]
	}
	return out
}

// Len returns the number of alerts currently held.
func (a *AlertLog) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}
