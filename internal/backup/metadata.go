package backup

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Metadata describes one backup artifact. It is written next to the artifact
// as a <token>.meta file of key=value lines and is immutable once recorded.
type Metadata struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Version   int       `json:"version"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
}

// Encode renders the metadata in its on-disk key=value form. Timestamps are
// epoch milliseconds; the checksum is 64 lowercase hex characters of SHA-256.
func (m Metadata) Encode() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "id=%s\n", m.ID)
	fmt.Fprintf(&b, "timestamp=%d\n", m.Timestamp.UnixMilli())
	fmt.Fprintf(&b, "version=%d\n", m.Version)
	fmt.Fprintf(&b, "size=%d\n", m.Size)
	fmt.Fprintf(&b, "checksum=%s\n", m.Checksum)
	return []byte(b.String())
}

// ParseMetadata reads the key=value form back. Unknown keys are ignored so
// the format can grow; missing required keys are an error.
func ParseMetadata(data []byte) (Metadata, error) {
	meta := Metadata{}
	seen := map[string]bool{}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Metadata{}, fmt.Errorf("backup: malformed metadata line %q", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		seen[key] = true

		switch key {
		case "id":
			meta.ID = value
		case "timestamp":
			millis, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Metadata{}, fmt.Errorf("backup: invalid timestamp %q", value)
			}
			meta.Timestamp = time.UnixMilli(millis).UTC()
		case "version":
			version, err := strconv.Atoi(value)
			if err != nil {
				return Metadata{}, fmt.Errorf("backup: invalid version %q", value)
			}
			meta.Version = version
		case "size":
			size, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Metadata{}, fmt.Errorf("backup: invalid size %q", value)
			}
			meta.Size = size
		case "checksum":
			meta.Checksum = strings.ToLower(value)
		}
	}

	for _, required := range []string{"id", "timestamp", "version", "size", "checksum"} {
		if !seen[required] {
			return Metadata{}, fmt.Errorf("backup: metadata missing %s", required)
		}
	}
	if len(meta.Checksum) != 64 {
		return Metadata{}, fmt.Errorf("backup: checksum must be 64 hex characters, got %d", len(meta.Checksum))
	}

	return meta, nil
}

// sortNewestFirst orders metadata by timestamp descending, breaking ties by
// id for deterministic listings.
func sortNewestFirst(metas []Metadata) {
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Timestamp.Equal(metas[j].Timestamp) {
			return metas[i].ID > metas[j].ID
		}
		return metas[i].Timestamp.After(metas[j].Timestamp)
	})
}
