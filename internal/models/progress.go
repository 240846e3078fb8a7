package models

// ProgressUpdate is broadcast to admin clients while scheduled jobs run.
type ProgressUpdate struct {
	JobID    string  `json:"jobId"`
	Message  string  `json:"message"`
	Progress float64 `json:"progress"`
	Status   string  `json:"status"`
	Done     bool    `json:"done"`
}
