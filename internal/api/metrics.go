package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// intentMetrics records the timing of one board intent request and logs it
// once the handler returns.
type intentMetrics struct {
	logger     *log.Logger
	route      string
	start      time.Time
	decode     time.Duration
	apply      time.Duration
	taskID     string
	errorStage string
}

func newIntentMetrics(logger *log.Logger, route string) *intentMetrics {
	return &intentMetrics{logger: logger, route: route, start: time.Now()}
}

func (m *intentMetrics) ObserveDecode(d time.Duration) {
	if d > 0 {
		m.decode = d
	}
}

func (m *intentMetrics) ObserveApply(d time.Duration) {
	if d > 0 {
		m.apply = d
	}
}

func (m *intentMetrics) SetTask(id string) {
	m.taskID = id
}

func (m *intentMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *intentMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":    m.route,
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.decode > 0 {
		fields["decode_ms"] = durationToMillis(m.decode)
	}
	if m.apply > 0 {
		fields["apply_ms"] = durationToMillis(m.apply)
	}
	if m.taskID != "" {
		fields["task"] = m.taskID
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("board.intent.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
