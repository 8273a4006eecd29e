// backend/csvdoc/rows.go
package csvdoc

// AllDistrictsRow represents one district's line in the all-districts
// performance CSV as the dashboards export it. CSV tags match the export
// headers exactly.
type AllDistrictsRow struct {
	District        string `csv:"District"`
	Region          string `csv:"Region"`
	PaidClubs       int    `csv:"Paid Clubs"`
	ActiveClubs     int    `csv:"Active Clubs"`
	TotalMembership int    `csv:"Total Membership"`
	PaidClubBase    int    `csv:"Paid Club Base"`
	MembershipBase  int    `csv:"Membership Base"`
	DistClubs       int    `csv:"Dist. Clubs"` // Note: period in header
}

// DistrictPerformanceRow represents one club's line in a per-district
// performance CSV.
type DistrictPerformanceRow struct {
	District       string `csv:"District"`
	Division       string `csv:"Division"`
	Area           string `csv:"Area"`
	ClubNumber     string `csv:"Club Number"`
	ClubName       string `csv:"Club Name"`
	ClubStatus     string `csv:"Club Status"`
	ActiveMembers  int    `csv:"Active Members"`
	GoalsMet       int    `csv:"Goals Met"`
	ClubDistStatus string `csv:"Club Distinguished Status"`
}
