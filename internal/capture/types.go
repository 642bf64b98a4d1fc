// Package capture defines the data model shared between the camera
// collaborator, the image-metadata synchronizer (internal/framesync), and
// the persistence layer (spec §3, §6.2/6.3).
package capture

import "github.com/google/uuid"

// InjectFrameTag is the sentinel user_tag stamped on phase-alignment
// injection frames (spec §4.4 step 4) so the trigger scheduler (C8)
// recognizes and discards them regardless of what real capture the caller
// requested. The nil UUID can never collide with a generated request tag.
var InjectFrameTag = uuid.Nil

// CaptureRequestTag identifies which image streams a capture request is
// expected to fill, and an opaque caller-supplied tag used to correlate
// the eventual MatchedBundle (spec §3, Entity: CaptureRequestTag).
type CaptureRequestTag struct {
	Targets map[int]struct{}
	UserTag uuid.UUID
}

// NewCaptureRequestTag builds a tag targeting the given stream indices.
func NewCaptureRequestTag(userTag uuid.UUID, targets ...int) CaptureRequestTag {
	t := CaptureRequestTag{Targets: make(map[int]struct{}, len(targets)), UserTag: userTag}
	for _, i := range targets {
		t.Targets[i] = struct{}{}
	}
	return t
}

// IsInjectFrame reports whether this tag marks a phase-alignment
// injection frame.
func (t CaptureRequestTag) IsInjectFrame() bool {
	return t.UserTag == InjectFrameTag
}

// HasTarget reports whether stream i is among this tag's targets.
func (t CaptureRequestTag) HasTarget(i int) bool {
	_, ok := t.Targets[i]
	return ok
}

// MetadataRecord is produced by the camera collaborator for every sensor
// frame (spec §3, Entity: MetadataRecord).
type MetadataRecord struct {
	RequestTag        CaptureRequestTag
	SensorTimestampNs int64
	SequenceID        uint64
	FrameDurationNs   int64
	Misc              map[string]string
}

// ImageBuffer is an opaque, reference-counted image handle tagged with the
// sensor timestamp it was captured at (spec §3, Entity: ImageBuffer).
type ImageBuffer struct {
	StreamIndex       int
	SensorTimestampNs int64
	Data              []byte
}

// MatchedBundle is C7's output: one metadata record paired with a
// per-stream slice of images, nullable per invariant I1 (spec §3, Entity:
// MatchedBundle).
type MatchedBundle struct {
	Metadata       MetadataRecord
	Images         []*ImageBuffer
	DroppedIndices []int
}

// Camera is the producer-side collaborator contract (spec §6.2):
// request_capture is called by C6 for phase-alignment injection and by C9
// when relaying SET_2A.
type Camera interface {
	RequestCapture(tag CaptureRequestTag, exposureNs int64, sensitivity int32) error
}

// Persistence is the consumer-side collaborator contract (spec §6.3): it
// takes ownership of bundle's images and is responsible for eventually
// releasing each one back to its source stream.
type Persistence interface {
	Persist(bundle MatchedBundle, leaderTS int64) error
}
