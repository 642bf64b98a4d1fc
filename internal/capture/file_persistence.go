package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReleaseFunc returns one acquired image buffer on stream i back to its
// source queue (spec §4.5 release(i)).
type ReleaseFunc func(streamIndex int)

// FilePersistence is the default Persistence implementation (spec §6.5):
// each bundle is written under its own directory as an image file per
// stream plus a `sidecar.txt` of `key: value` lines. It is a convenience
// default, not a requirement — a host may supply its own Persistence.
type FilePersistence struct {
	BaseDir string
	Release ReleaseFunc
}

// NewFilePersistence constructs a FilePersistence rooted at baseDir,
// calling release after every bundle to return images to their streams.
func NewFilePersistence(baseDir string, release ReleaseFunc) *FilePersistence {
	return &FilePersistence{BaseDir: baseDir, Release: release}
}

// Persist writes bundle's images and a sidecar describing it, then
// releases every non-null image back to its stream.
func (f *FilePersistence) Persist(bundle MatchedBundle, leaderTS int64) error {
	dir := filepath.Join(f.BaseDir, fmt.Sprintf("capture-%d-%s", bundle.Metadata.SensorTimestampNs, bundle.Metadata.RequestTag.UserTag))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("capture: create bundle dir: %w", err)
	}

	for i, img := range bundle.Images {
		if img == nil {
			continue
		}
		imgPath := filepath.Join(dir, fmt.Sprintf("stream-%d.bin", i))
		if err := os.WriteFile(imgPath, img.Data, 0o644); err != nil {
			return fmt.Errorf("capture: write stream %d image: %w", i, err)
		}
	}

	if err := f.writeSidecar(dir, bundle, leaderTS); err != nil {
		return err
	}

	if f.Release != nil {
		for i, img := range bundle.Images {
			if img != nil {
				f.Release(i)
			}
		}
	}
	return nil
}

func (f *FilePersistence) writeSidecar(dir string, bundle MatchedBundle, leaderTS int64) error {
	var b strings.Builder
	fmt.Fprintf(&b, "local_sensor_timestamp_ns: %d\n", bundle.Metadata.SensorTimestampNs)
	fmt.Fprintf(&b, "leader_timestamp_ns: %d\n", leaderTS)
	fmt.Fprintf(&b, "user_tag: %s\n", bundle.Metadata.RequestTag.UserTag)

	dropped := make([]string, 0, len(bundle.DroppedIndices))
	for _, i := range bundle.DroppedIndices {
		dropped = append(dropped, strconv.Itoa(i))
	}
	fmt.Fprintf(&b, "dropped_indices: %s\n", strings.Join(dropped, ","))

	return os.WriteFile(filepath.Join(dir, "sidecar.txt"), []byte(b.String()), 0o644)
}
