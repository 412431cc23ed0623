package collector

import (
	"sync"
	"time"
)

// Kind names the raw data kind a sync collected.
type Kind string

const (
	KindShortTerm  Kind = "SHORT_TERM"
	KindMediumTerm Kind = "MEDIUM_TERM"
)

// RegionResult is the outcome of one region within a sync.
type RegionResult struct {
	RegionID          int64  `json:"regionId"`
	RegionName        string `json:"regionName"`
	Success           bool   `json:"success"`
	TotalDataPoints   int    `json:"totalDataPoints"`
	NewDataPoints     int    `json:"newDataPoints"`
	UpdatedDataPoints int    `json:"updatedDataPoints"`
	SkippedDataPoints int    `json:"skippedDataPoints"`
	DroppedDataPoints int    `json:"droppedDataPoints"`
	Error             string `json:"error,omitempty"`
}

// SyncResult aggregates a collection run across regions.
type SyncResult struct {
	Kind     Kind   `json:"kind"`
	BaseDate string `json:"baseDate,omitempty"`
	BaseTime string `json:"baseTime,omitempty"`
	Tmfc     string `json:"tmfc,omitempty"`

	TotalRegions      int `json:"totalRegions"`
	SuccessfulRegions int `json:"successfulRegions"`
	FailedRegions     int `json:"failedRegions"`
	TotalDataPoints   int `json:"totalDataPoints"`
	NewDataPoints     int `json:"newDataPoints"`
	UpdatedDataPoints int `json:"updatedDataPoints"`

	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	DurationMs int64     `json:"durationMs"`

	RegionResults []RegionResult `json:"regionResults"`
	ErrorMessages []string       `json:"errorMessages"`
	Message       string         `json:"message"`

	mu sync.Mutex
}

func (r *SyncResult) add(rr RegionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.RegionResults = append(r.RegionResults, rr)
	if rr.Success {
		r.SuccessfulRegions++
	} else {
		r.FailedRegions++
		r.ErrorMessages = append(r.ErrorMessages, rr.RegionName+": "+rr.Error)
	}
	r.TotalDataPoints += rr.TotalDataPoints
	r.NewDataPoints += rr.NewDataPoints
	r.UpdatedDataPoints += rr.UpdatedDataPoints
}

func (r *SyncResult) finish(end time.Time) {
	r.EndTime = end
	r.DurationMs = end.Sub(r.StartTime).Milliseconds()
}
