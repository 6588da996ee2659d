package dto

import "time"

// BatchStatusCounts counts batches per lifecycle status.
type BatchStatusCounts struct {
	Grading   int64 `json:"grading"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// DashboardResponse summarises a professor's workload.
type DashboardResponse struct {
	TotalClasses     int64             `json:"total_classes"`
	TotalAssignments int64             `json:"total_assignments"`
	Batches          BatchStatusCounts `json:"batches"`
	GradedFiles      int64             `json:"graded_files"`
	GeneratedAt      time.Time         `json:"generated_at"`
	CacheHit         bool              `json:"cache_hit"`
}
