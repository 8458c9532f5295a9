package helper

import (
	"fmt"
	"time"
)

// GetTimestamp returns the current Unix timestamp in seconds, as the
// OpenAI-style `created` fields expect.
func GetTimestamp() int64 {
	return time.Now().Unix()
}

// GetTimestampMilli returns the current Unix timestamp in milliseconds.
// Token bookkeeping columns store millis, same as their gorm create/update
// stamps.
func GetTimestampMilli() int64 {
	return time.Now().UnixMilli()
}

// GetTimeString returns a sortable wall-clock string with nanosecond tail,
// used as the prefix of generated request ids.
func GetTimeString() string {
	now := time.Now()
	return fmt.Sprintf("%s%d", now.Format("20060102150405"), now.UnixNano()%1e9)
}
