// backend/models/snapshot.go
package models

import "time"

// SchemaVersion is the current snapshot document schema revision.
const SchemaVersion = "1.0"

// Snapshot statuses.
const (
	SnapshotStatusSuccess = "success"
	SnapshotStatusFailed  = "failed"
)

// DistrictStatistics holds the scraped performance figures for one district as
// of the snapshot date. The engine persists these verbatim; it computes nothing.
type DistrictStatistics struct {
	DistrictID          string  `json:"district_id"`
	DistrictName        string  `json:"district_name,omitempty"`
	Region              string  `json:"region,omitempty"`
	PaidClubs           int     `json:"paid_clubs"`
	ActiveClubs         int     `json:"active_clubs"`
	TotalMembership     int     `json:"total_membership"`
	PaidClubBase        int     `json:"paid_club_base"`
	MembershipBase      int     `json:"membership_base"`
	ClubGrowthPct       float64 `json:"club_growth_pct"`
	MembershipGrowthPct float64 `json:"membership_growth_pct"`
	DistinguishedClubs  int     `json:"distinguished_clubs"`
}

// FetchMetadata describes where and when the payload's raw data came from.
type FetchMetadata struct {
	Source               string    `json:"source"`
	FetchedAt            time.Time `json:"fetched_at"`
	DataAsOfDate         string    `json:"data_as_of_date"` // YYYY-MM-DD
	DistrictCount        int       `json:"district_count"`
	ProcessingDurationMs int64     `json:"processing_duration_ms"`
}

// SnapshotPayload is the computed result-set a snapshot preserves.
type SnapshotPayload struct {
	Districts []DistrictStatistics `json:"districts"`
	Metadata  FetchMetadata        `json:"metadata"`
}

// Snapshot is a complete, versioned, point-in-time result set for one calendar
// date. SnapshotID is always derived from Payload.Metadata.DataAsOfDate, never
// from wall-clock write time.
type Snapshot struct {
	SnapshotID         string          `json:"snapshot_id"`
	CreatedAt          time.Time       `json:"created_at"`
	SchemaVersion      string          `json:"schema_version"`
	CalculationVersion string          `json:"calculation_version"`
	Status             string          `json:"status"` // "success" | "failed"
	Errors             []string        `json:"errors,omitempty"`
	Payload            SnapshotPayload `json:"payload"`
}

// SnapshotMetadata is the lightweight projection stored as metadata.json and
// returned by listing/batch queries. SnapshotID always equals the directory name.
type SnapshotMetadata struct {
	SnapshotID          string    `json:"snapshot_id"`
	CreatedAt           time.Time `json:"created_at"`
	Status              string    `json:"status"`
	SchemaVersion       string    `json:"schema_version"`
	CalculationVersion  string    `json:"calculation_version"`
	ErrorCount          int       `json:"error_count"`
	SuccessfulDistricts []string  `json:"successful_districts,omitempty"`
	DataAsOfDate        string    `json:"data_as_of_date"`
	RankingVersion      string    `json:"ranking_version,omitempty"`
}

// RankingsMetadata describes the provenance of a stored rankings document.
// SchemaVersion and CalculationVersion should match the owning snapshot's; the
// engine stores both verbatim and leaves mismatch detection to callers.
type RankingsMetadata struct {
	SnapshotID         string    `json:"snapshot_id"`
	CalculatedAt       time.Time `json:"calculated_at"`
	SchemaVersion      string    `json:"schema_version"`
	CalculationVersion string    `json:"calculation_version"`
	RankingVersion     string    `json:"ranking_version"`
	SourceCSVDate      string    `json:"source_csv_date"`
	CSVFetchedAt       time.Time `json:"csv_fetched_at"`
	TotalDistricts     int       `json:"total_districts"`
	FromCache          bool      `json:"from_cache"`
}

// DistrictRanking is one externally-computed per-district ranking record.
type DistrictRanking struct {
	DistrictID        string  `json:"district_id"`
	DistrictName      string  `json:"district_name,omitempty"`
	Rank              int     `json:"rank"`
	BordaScore        float64 `json:"borda_score"`
	ClubGrowthRank    int     `json:"club_growth_rank"`
	MembershipRank    int     `json:"membership_rank"`
	DistinguishedRank int     `json:"distinguished_rank"`
}

// AllDistrictsRankingsData is the rankings document stored alongside a snapshot.
type AllDistrictsRankingsData struct {
	Metadata RankingsMetadata  `json:"metadata"`
	Rankings []DistrictRanking `json:"rankings"`
}
