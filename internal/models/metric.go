package models

import "time"

// Metric names understood by the metric provider.
const (
	MetricAverageScore           = "average_score"
	MetricHomeworkCompletionRate = "homework_completion_rate"
	MetricHomeworkSubmissionRate = "homework_submission_rate"
	MetricAttendanceRate         = "attendance_rate"
	MetricGradeTrend             = "grade_trend"
)

var metricAliases = map[string]string{
	MetricAverageScore:           MetricAverageScore,
	"avg_score":                  MetricAverageScore,
	MetricHomeworkCompletionRate: MetricHomeworkCompletionRate,
	"homework_rate":              MetricHomeworkCompletionRate,
	MetricHomeworkSubmissionRate: MetricHomeworkSubmissionRate,
	MetricAttendanceRate:         MetricAttendanceRate,
	MetricGradeTrend:             MetricGradeTrend,
	"score_trend":                MetricGradeTrend,
}

// CanonicalMetric resolves an alias to its canonical metric name.
func CanonicalMetric(name string) (string, bool) {
	canonical, ok := metricAliases[name]
	return canonical, ok
}

// IsKnownMetric reports whether the name (or alias) resolves to a metric.
func IsKnownMetric(name string) bool {
	_, ok := metricAliases[name]
	return ok
}

// ScoreRecord is one graded score of a student.
type ScoreRecord struct {
	Score      float64   `db:"score" json:"score"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// HomeworkStatus is the outcome of a homework submission.
type HomeworkStatus string

const (
	HomeworkOnTime  HomeworkStatus = "on_time"
	HomeworkLate    HomeworkStatus = "late"
	HomeworkMissing HomeworkStatus = "missing"
)

// HomeworkSubmission is one homework row of a student.
type HomeworkSubmission struct {
	Status  HomeworkStatus `db:"status" json:"status"`
	DueDate time.Time      `db:"due_date" json:"due_date"`
}

// Attendance status codes as recorded in daily attendance.
const (
	AttendancePresent = "H"
	AttendanceSick    = "S"
	AttendancePermit  = "I"
	AttendanceAbsent  = "A"
)

// AttendanceEntry is one daily attendance row of a student.
type AttendanceEntry struct {
	Status string    `db:"status" json:"status"`
	Date   time.Time `db:"date" json:"date"`
}
