// Package media defines shared types for the bilirelay application.
package media

import "fmt"

// BVID is a Bilibili video identifier, e.g. "BV1GJ411x7h7".
type BVID string

func (b BVID) String() string {
	return string(b)
}

// Quality is an upstream quality tier code (qn).
type Quality int

const (
	Q240P    Quality = 6
	Q360P    Quality = 16
	Q480P    Quality = 32
	Q720P    Quality = 64
	Q720P60  Quality = 74
	Q1080P   Quality = 80
	Q1080PP  Quality = 112
	Q1080P60 Quality = 116
	Q4K      Quality = 120
)

// QDefault is used when no tier is requested.
const QDefault = Q1080P

// String returns a display label such as "1080p".
func (q Quality) String() string {
	switch q {
	case Q240P:
		return "240p"
	case Q360P:
		return "360p"
	case Q480P:
		return "480p"
	case Q720P:
		return "720p"
	case Q720P60:
		return "720p60"
	case Q1080P:
		return "1080p"
	case Q1080PP:
		return "1080p+"
	case Q1080P60:
		return "1080p60"
	case Q4K:
		return "4K"
	default:
		return fmt.Sprintf("qn%d", int(q))
	}
}

// Part is one segment of a multi-part video.
type Part struct {
	Page     int    // 1-based sub-part index
	CID      int64  // Internal stream id
	Title    string // Part title
	Duration int    // Seconds
}

// Metadata describes a video as reported by the view endpoint.
type Metadata struct {
	BVID     BVID
	AID      int64
	CID      int64 // Stream id of the first part
	Title    string
	Cover    string
	Author   string
	Duration int
	Parts    []Part
}

// Part returns the sub-part with the given page index. When there is no
// exact match the first part is returned; ok is false if there are no parts.
func (m *Metadata) Part(page int) (Part, bool) {
	if len(m.Parts) == 0 {
		return Part{}, false
	}
	for _, p := range m.Parts {
		if p.Page == page {
			return p, true
		}
	}
	return m.Parts[0], true
}

// Playback is the direct media location returned by the playback endpoint.
type Playback struct {
	URL     string
	Backups []string
	Quality Quality
	Size    int64
}

// Resolution is the outcome of a full link resolution.
type Resolution struct {
	BVID        BVID    `json:"identifier"`
	Page        int     `json:"subPartIndex"`
	CID         int64   `json:"cid"`
	Title       string  `json:"title"`
	Cover       string  `json:"coverImageUrl"`
	Author      string  `json:"authorName"`
	MediaURL    string  `json:"mediaUrl"`
	PlayableURL string  `json:"playableUrl,omitempty"`
	Quality     Quality `json:"achievedQualityTier"`
	QualityName string  `json:"qualityLabel"`
}
