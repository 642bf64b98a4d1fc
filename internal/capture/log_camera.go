package capture

import "github.com/banshee-data/camerasync/internal/monitoring"

// LogCamera is a placeholder Camera that only logs requests. Driving
// actual hardware is left to a host-supplied Camera implementation; this
// exists so cmd/client has something to wire by default.
type LogCamera struct{}

// RequestCapture implements Camera.
func (LogCamera) RequestCapture(tag CaptureRequestTag, exposureNs int64, sensitivity int32) error {
	monitoring.Logf("capture: request_capture targets=%v inject=%v exposure_ns=%d sensitivity=%d",
		tag.Targets, tag.IsInjectFrame(), exposureNs, sensitivity)
	return nil
}
