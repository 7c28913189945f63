package domain

import (
	"errors"
	"time"
)

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// ErrReportNotFound is returned by report repositories when a report ID does
// not exist.
var ErrReportNotFound = errors.New("report not found")

// Report is the read-only snapshot of a citizen incident report as the
// verification pipeline sees it. Coordinates are pointers because a report
// may legitimately lack them; the pipeline scores around missing data
// instead of rejecting it.
type Report struct {
	ID          string
	Category    string
	Title       string
	Description string

	// Incident location.
	Latitude  *float64
	Longitude *float64

	// Device location captured at submission time, distinct from the
	// incident location above.
	SubmitterLatitude  *float64
	SubmitterLongitude *float64
	SubmitterAccuracyM *float64
	SubmittedAt        *time.Time

	CreatedAt time.Time

	Media    []Media
	Ratings  []Rating
	Comments []Comment

	// User is the reporter. Nil when the submitting account has been
	// deleted; the pipeline short-circuits to a pending verdict.
	User *User

	// Verification holds the current persisted verification fields.
	// The pipeline overwrites these and never reads them as scoring
	// input, so re-runs cannot feed back into themselves.
	Verification Verification
}

// Media is a single attachment on a report.
type Media struct {
	ID        string
	Type      string
	CreatedAt time.Time
}

// Rating is a community rating left on a report.
type Rating struct {
	ID        string
	Value     int
	CreatedAt time.Time
}

// Comment is a community comment left on a report.
type Comment struct {
	ID        string
	Body      string
	CreatedAt time.Time
}

// User is the reporter snapshot used for scoring and policy resolution.
type User struct {
	ID              string
	CreatedAt       time.Time
	VerifiedReports int
	RejectedReports int
	ReputationScore int

	// AutoVerifyEnabled is the user's opt-in to automatic verification.
	AutoVerifyEnabled bool

	// TierOverride selects a verification tier explicitly, replacing the
	// system default when it names an enabled tier.
	TierOverride string

	// LevelOverride replaces the tier's level list when non-empty.
	LevelOverride []string
}

// Verification holds the verification fields persisted on a report.
type Verification struct {
	Status      Status
	Tier        string
	Score       int
	MaxScore    int
	Breakdown   string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// HasVideo reports whether any attachment is a video.
func (r Report) HasVideo() bool {
	for _, m := range r.Media {
		if m.Type == MediaTypeVideo {
			return true
		}
	}
	return false
}
