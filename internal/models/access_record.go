package models

import "time"

// AccessRecord represents one served HTTP exchange
type AccessRecord struct {
	ID         string        `json:"id"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	Status     int           `json:"status"`
	Bytes      int64         `json:"bytes"`
	Duration   time.Duration `json:"duration"`
	RemoteAddr string        `json:"remote_addr,omitempty"`
	UserAgent  string        `json:"user_agent,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// StatusCount is the number of records that ended with a given status
type StatusCount struct {
	Status int   `json:"status"`
	Count  int64 `json:"count"`
}
