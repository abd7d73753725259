package tablequery

import (
	"fmt"
	"math"
	"runtime"
)

const (
	defaultMemoryLimit       = 512       // MB
	maxReasonableMemoryLimit = 64 * 1024 // MB
	defaultWarningThreshold  = 0.8
	bytesPerMB               = 1024 * 1024

	// runtime.ReadMemStats stops the world, so buffering looks at the heap
	// once per this many rows.
	memoryCheckInterval = 1000
)

// MemoryLimit bounds what a MaterializedTable may buffer: the heap size,
// sampled every memoryCheckInterval rows, and optionally the row count.
// A nil *MemoryLimit imposes no bound.
type MemoryLimit struct {
	maxMemoryMB      int64
	maxRows          int64
	warningThreshold float64
	heapMB           func() int64
}

// NewMemoryLimit creates a limit of maxMemoryMB megabytes. Zero or less
// selects 512MB; values above 64GB are capped.
func NewMemoryLimit(maxMemoryMB int64) *MemoryLimit {
	switch {
	case maxMemoryMB <= 0:
		maxMemoryMB = defaultMemoryLimit
	case maxMemoryMB > maxReasonableMemoryLimit:
		maxMemoryMB = maxReasonableMemoryLimit
	}
	return &MemoryLimit{
		maxMemoryMB:      maxMemoryMB,
		warningThreshold: defaultWarningThreshold,
		heapMB:           heapAllocMB,
	}
}

// WithMaxRows caps the number of buffered rows. Zero or less removes the
// cap.
func (ml *MemoryLimit) WithMaxRows(rows int64) *MemoryLimit {
	ml.maxRows = max(rows, 0)
	return ml
}

// SetWarningThreshold sets the share of the limit, in (0, 1], from which
// buffering logs a warning. Other values are ignored.
func (ml *MemoryLimit) SetWarningThreshold(threshold float64) *MemoryLimit {
	if threshold > 0 && threshold <= 1 {
		ml.warningThreshold = threshold
	}
	return ml
}

// CheckMemoryUsage samples the heap and rates it against the limit.
func (ml *MemoryLimit) CheckMemoryUsage() MemoryStatus {
	return ml.status(ml.heapMB())
}

func (ml *MemoryLimit) status(currentMB int64) MemoryStatus {
	switch usage := float64(currentMB) / float64(ml.maxMemoryMB); {
	case usage >= 1:
		return MemoryStatusExceeded
	case usage >= ml.warningThreshold:
		return MemoryStatusWarning
	default:
		return MemoryStatusOK
	}
}

// checkBuffered runs after each buffered row; rows is the count so far.
// Between heap samples the status is MemoryStatusOK.
func (ml *MemoryLimit) checkBuffered(rows int64, operation string) (MemoryStatus, error) {
	if ml == nil {
		return MemoryStatusOK, nil
	}
	if ml.maxRows > 0 && rows > ml.maxRows {
		return MemoryStatusExceeded, fmt.Errorf("%w: %s buffered more than %d rows", ErrMemoryLimit, operation, ml.maxRows)
	}
	if rows%memoryCheckInterval != 0 {
		return MemoryStatusOK, nil
	}
	status := ml.CheckMemoryUsage()
	if status == MemoryStatusExceeded {
		return status, ml.CreateMemoryError(operation)
	}
	return status, nil
}

// GetMemoryInfo reports the current heap against the limit.
func (ml *MemoryLimit) GetMemoryInfo() MemoryInfo {
	info := MemoryInfo{
		CurrentMB: ml.heapMB(),
		LimitMB:   ml.maxMemoryMB,
	}
	info.Usage = float64(info.CurrentMB) / float64(info.LimitMB)
	info.Status = ml.status(info.CurrentMB)
	return info
}

// CreateMemoryError returns an ErrMemoryLimit error describing the heap
// during operation.
func (ml *MemoryLimit) CreateMemoryError(operation string) error {
	info := ml.GetMemoryInfo()
	return fmt.Errorf("%w during %s: heap at %d MB of %d MB (%.1f%%), use a streaming format such as CSV or raise the limit",
		ErrMemoryLimit, operation, info.CurrentMB, info.LimitMB, info.Usage*100)
}

func heapAllocMB() int64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return int64(min(stats.HeapAlloc/bytesPerMB, uint64(math.MaxInt64)))
}

// MemoryStatus rates heap usage against a MemoryLimit.
type MemoryStatus int

const (
	// MemoryStatusOK is below the warning threshold
	MemoryStatusOK MemoryStatus = iota
	// MemoryStatusWarning is between the warning threshold and the limit
	MemoryStatusWarning
	// MemoryStatusExceeded is at or above the limit
	MemoryStatusExceeded
)

func (ms MemoryStatus) String() string {
	switch ms {
	case MemoryStatusOK:
		return "OK"
	case MemoryStatusWarning:
		return "WARNING"
	case MemoryStatusExceeded:
		return "EXCEEDED"
	default:
		return "UNKNOWN"
	}
}

// MemoryInfo is a snapshot of heap usage.
type MemoryInfo struct {
	CurrentMB int64
	LimitMB   int64
	Usage     float64 // CurrentMB / LimitMB
	Status    MemoryStatus
}
