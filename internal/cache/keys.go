package cache

import "fmt"

const (
	KeyTickLatest  = "tick:latest"
	KeyRisksLatest = "risks:latest"
	KeyClock       = "sim:clock"
)

// KeySpeedLimit addresses the enriched speed limit of an unordered segment.
func KeySpeedLimit(segmentKey string) string {
	return fmt.Sprintf("speed:%s", segmentKey)
}
