// backend/snapshot/store_test.go
package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gewnthar/distdash/backend/cache"
	"github.com/gewnthar/distdash/backend/models"
)

// testOptions keeps retention far away so background pruning never touches
// the fixed dates the tests write.
var testOptions = Options{MaxSnapshots: 1000, MaxAgeDays: 36500}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(cache.DirProvider{Root: t.TempDir()}, nil, testOptions)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

// sampleSnapshot builds a successful snapshot whose payload is as of date.
func sampleSnapshot(date string, districts ...string) *models.Snapshot {
	stats := make([]models.DistrictStatistics, 0, len(districts))
	for _, id := range districts {
		stats = append(stats, models.DistrictStatistics{
			DistrictID:      id,
			PaidClubs:       180,
			TotalMembership: 4200,
		})
	}
	return &models.Snapshot{
		CalculationVersion: "calc-3",
		Status:             models.SnapshotStatusSuccess,
		Payload: models.SnapshotPayload{
			Districts: stats,
			Metadata: models.FetchMetadata{
				Source:               "ti-dashboards",
				FetchedAt:            time.Now().UTC(),
				DataAsOfDate:         date,
				DistrictCount:        len(districts),
				ProcessingDurationMs: 1200,
			},
		},
	}
}

func sampleRankings(date string) *models.AllDistrictsRankingsData {
	return &models.AllDistrictsRankingsData{
		Metadata: models.RankingsMetadata{
			SnapshotID:         date,
			CalculatedAt:       time.Now().UTC(),
			SchemaVersion:      models.SchemaVersion,
			CalculationVersion: "calc-3",
			RankingVersion:     "borda-2",
			SourceCSVDate:      date,
			TotalDistricts:     1,
		},
		Rankings: []models.DistrictRanking{
			{DistrictID: "42", Rank: 1, BordaScore: 97.5},
		},
	}
}

func TestWriteSnapshotCanonicalNaming(t *testing.T) {
	st := newTestStore(t)
	snap := sampleSnapshot("2026-01-07", "42")
	snap.SnapshotID = "totally-wrong" // must be overridden by dataAsOfDate

	if err := st.WriteSnapshot(snap, nil); err != nil {
		t.Fatal(err)
	}

	dir := st.snapshotDir("2026-01-07")
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("directory literally named 2026-01-07 missing: %v", err)
	}

	meta, err := st.GetSnapshotMetadata("2026-01-07")
	if err != nil || meta == nil {
		t.Fatalf("metadata absent: %v", err)
	}
	if meta.SnapshotID != "2026-01-07" {
		t.Fatalf("metadata.snapshotId = %q, want the directory name", meta.SnapshotID)
	}
}

func TestWriteSnapshotOverwritesSameDate(t *testing.T) {
	st := newTestStore(t)

	first := sampleSnapshot("2026-01-14", "42")
	if err := st.WriteSnapshot(first, sampleRankings("2026-01-14")); err != nil {
		t.Fatal(err)
	}
	second := sampleSnapshot("2026-01-14", "42", "F")
	second.CalculationVersion = "calc-4"
	if err := st.WriteSnapshot(second, nil); err != nil {
		t.Fatal(err)
	}

	ids, err := st.ListSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "2026-01-14" {
		t.Fatalf("ListSnapshots = %v, want exactly one directory for the date", ids)
	}

	snap, err := st.GetSnapshot("2026-01-14")
	if err != nil || snap == nil {
		t.Fatalf("snapshot unreadable: %v", err)
	}
	if snap.CalculationVersion != "calc-4" || len(snap.Payload.Districts) != 2 {
		t.Fatalf("read back first snapshot's data: %+v", snap)
	}

	// Full replacement: the first write's rankings must not linger.
	if has, _ := st.HasAllDistrictsRankings("2026-01-14"); has {
		t.Fatal("stale rankings survived the overwrite")
	}
}

func TestGetSnapshotAbsentAndMalformed(t *testing.T) {
	st := newTestStore(t)

	snap, err := st.GetSnapshot("2026-01-14")
	if err != nil || snap != nil {
		t.Fatalf("absent snapshot = (%v, %v), want (nil, nil)", snap, err)
	}
	snap, err = st.GetSnapshot("../invalid")
	if err != nil || snap != nil {
		t.Fatalf("malformed ID = (%v, %v), want (nil, nil)", snap, err)
	}
}

func TestGetLatestSuccessful(t *testing.T) {
	st := newTestStore(t)

	if snap, err := st.GetLatestSuccessful(); err != nil || snap != nil {
		t.Fatalf("empty store latest = (%v, %v), want (nil, nil)", snap, err)
	}

	if err := st.WriteSnapshot(sampleSnapshot("2026-01-13", "42"), nil); err != nil {
		t.Fatal(err)
	}
	failed := sampleSnapshot("2026-01-14", "42")
	failed.Status = models.SnapshotStatusFailed
	failed.Errors = []string{"scrape timed out"}
	if err := st.WriteSnapshot(failed, nil); err != nil {
		t.Fatal(err)
	}

	latest, err := st.GetLatestSuccessful()
	if err != nil || latest == nil {
		t.Fatalf("latest = (%v, %v)", latest, err)
	}
	if latest.SnapshotID != "2026-01-13" {
		t.Fatalf("latest successful = %s, want 2026-01-13 (the newer one failed)", latest.SnapshotID)
	}
}

func TestGetSnapshotMetadataBatch(t *testing.T) {
	st := newTestStore(t)
	if err := st.WriteSnapshot(sampleSnapshot("2026-01-14", "42"), nil); err != nil {
		t.Fatal(err)
	}

	ids := []string{"2026-01-14", "2026-01-15", "2026-01-14", "../invalid", ""}
	result := st.GetSnapshotMetadataBatch(ids)

	if len(result) != 4 {
		t.Fatalf("result has %d keys, want 4 (duplicates collapse): %v", len(result), result)
	}
	for _, id := range ids {
		if _, present := result[id]; !present {
			t.Errorf("result missing key %q", id)
		}
	}
	if result["2026-01-14"] == nil || result["2026-01-14"].SnapshotID != "2026-01-14" {
		t.Errorf("existing snapshot resolved to %v", result["2026-01-14"])
	}
	for _, id := range []string{"2026-01-15", "../invalid", ""} {
		if result[id] != nil {
			t.Errorf("%q resolved to %v, want absent", id, result[id])
		}
	}

	if got := st.GetSnapshotMetadataBatch(nil); len(got) != 0 {
		t.Fatalf("empty input yielded %v", got)
	}
}

func TestBatchUsesWarmListingCache(t *testing.T) {
	st := newTestStore(t)
	if err := st.WriteSnapshot(sampleSnapshot("2026-01-14", "42"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := st.ListSnapshots(); err != nil {
		t.Fatal(err)
	}

	// Plant a metadata file the listing has never seen. With the cache warm
	// the batch must answer from the listing and never probe the directory.
	rogue := st.snapshotDir("2026-02-01")
	if err := os.MkdirAll(rogue, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rogue, metadataFileName), []byte(`{"snapshot_id":"2026-02-01","schema_version":"1.0"}`), 0644); err != nil {
		t.Fatal(err)
	}

	result := st.GetSnapshotMetadataBatch([]string{"2026-01-14", "2026-02-01"})
	if result["2026-01-14"] == nil {
		t.Error("listed snapshot did not resolve")
	}
	if result["2026-02-01"] != nil {
		t.Error("warm cache was bypassed: unlisted ID resolved from disk")
	}

	// A fresh listing picks the new directory up and the batch follows.
	if _, err := st.ListSnapshots(); err != nil {
		t.Fatal(err)
	}
	result = st.GetSnapshotMetadataBatch([]string{"2026-02-01"})
	if result["2026-02-01"] == nil {
		t.Error("relisting did not refresh the cache")
	}
}

func TestBatchSafeAgainstConcurrentWrites(t *testing.T) {
	st := newTestStore(t)
	if err := st.WriteSnapshot(sampleSnapshot("2026-01-14", "42"), nil); err != nil {
		t.Fatal(err)
	}
	// Warm the listing cache so the batch takes the membership path that
	// writes and deletes also touch.
	if _, err := st.ListSnapshots(); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if err := st.WriteSnapshot(sampleSnapshot("2026-01-15", "F"), nil); err != nil {
				t.Error(err)
				return
			}
			if err := st.DeleteSnapshot("2026-01-15"); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	for i := 0; i < 100; i++ {
		result := st.GetSnapshotMetadataBatch([]string{"2026-01-14", "2026-01-15", "2026-01-16"})
		if result["2026-01-14"] == nil {
			t.Fatal("stable snapshot vanished from the batch")
		}
		if result["2026-01-16"] != nil {
			t.Fatal("never-written ID resolved")
		}
	}
	<-done
}

func TestMetadataUnrecognizedSchemaVersionAbsent(t *testing.T) {
	st := newTestStore(t)
	if err := st.WriteSnapshot(sampleSnapshot("2026-01-14", "42"), nil); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(st.snapshotDir("2026-01-14"), metadataFileName)
	future := []byte(`{"snapshot_id":"2026-01-14","schema_version":"9.0","status":"success"}`)
	if err := os.WriteFile(path, future, 0644); err != nil {
		t.Fatal(err)
	}

	if meta, err := st.GetSnapshotMetadata("2026-01-14"); err != nil || meta != nil {
		t.Fatalf("future-versioned metadata = (%v, %v), want (nil, nil)", meta, err)
	}
	batch := st.GetSnapshotMetadataBatch([]string{"2026-01-14"})
	if batch["2026-01-14"] != nil {
		t.Fatalf("batch trusted future-versioned metadata: %+v", batch["2026-01-14"])
	}
}

func TestRankingsRoundTrip(t *testing.T) {
	st := newTestStore(t)
	date := "2026-01-14"
	if err := st.WriteSnapshot(sampleSnapshot(date, "42"), sampleRankings(date)); err != nil {
		t.Fatal(err)
	}

	has, err := st.HasAllDistrictsRankings(date)
	if err != nil || !has {
		t.Fatalf("HasAllDistrictsRankings = (%v, %v), want true", has, err)
	}
	rankings, err := st.ReadAllDistrictsRankings(date)
	if err != nil || rankings == nil {
		t.Fatalf("rankings unreadable: %v", err)
	}
	if rankings.Metadata.RankingVersion != "borda-2" || len(rankings.Rankings) != 1 {
		t.Fatalf("rankings not stored verbatim: %+v", rankings)
	}
	if rankings.Rankings[0].BordaScore != 97.5 {
		t.Errorf("bordaScore = %v, want 97.5", rankings.Rankings[0].BordaScore)
	}

	meta, _ := st.GetSnapshotMetadata(date)
	if meta == nil || meta.RankingVersion != "borda-2" {
		t.Fatalf("projection missing ranking version: %+v", meta)
	}
}

func TestPruneRetention(t *testing.T) {
	st, err := NewStore(cache.DirProvider{Root: t.TempDir()}, nil, Options{MaxSnapshots: 2, MaxAgeDays: 3650})
	if err != nil {
		t.Fatal(err)
	}
	for _, date := range []string{"2026-01-12", "2026-01-13", "2026-01-14"} {
		if err := st.WriteSnapshot(sampleSnapshot(date, "42"), nil); err != nil {
			t.Fatal(err)
		}
	}

	if err := st.Prune(); err != nil {
		t.Fatal(err)
	}
	ids, err := st.ListSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "2026-01-13" || ids[1] != "2026-01-14" {
		t.Fatalf("after prune ids = %v, want the two newest", ids)
	}

	// Age-based pruning removes everything older than the window.
	aged, err := NewStore(cache.DirProvider{Root: t.TempDir()}, nil, Options{MaxSnapshots: 100, MaxAgeDays: 30})
	if err != nil {
		t.Fatal(err)
	}
	if err := aged.WriteSnapshot(sampleSnapshot("2020-06-30", "42"), nil); err != nil {
		t.Fatal(err)
	}
	if err := aged.Prune(); err != nil {
		t.Fatal(err)
	}
	if ids, _ := aged.ListSnapshots(); len(ids) != 0 {
		t.Fatalf("ancient snapshot survived age pruning: %v", ids)
	}
}

func TestEndToEndScenario(t *testing.T) {
	root := t.TempDir()
	provider := cache.DirProvider{Root: root}

	raw, err := cache.NewRawCacheStore(provider)
	if err != nil {
		t.Fatal(err)
	}
	st, err := NewStore(provider, nil, testOptions)
	if err != nil {
		t.Fatal(err)
	}

	date := "2026-01-14"
	csv := "District,Region,Paid Clubs,Total Membership\n42,V,180,4200\n"
	if err := raw.SetCachedCSV(date, cache.DocTypeAllDistricts, csv, ""); err != nil {
		t.Fatal(err)
	}
	if err := st.WriteSnapshot(sampleSnapshot(date, "42"), nil); err != nil {
		t.Fatal(err)
	}

	latest, err := st.GetLatestSuccessful()
	if err != nil || latest == nil {
		t.Fatalf("latest = (%v, %v)", latest, err)
	}
	if latest.SnapshotID != date {
		t.Fatalf("latest = %s, want %s", latest.SnapshotID, date)
	}

	batch := st.GetSnapshotMetadataBatch([]string{"2026-01-14", "2026-01-15"})
	if batch["2026-01-14"] == nil {
		t.Error("written snapshot absent from batch")
	}
	if meta, present := batch["2026-01-15"]; !present || meta != nil {
		t.Errorf("2026-01-15 = (%v, %v), want present key with nil value", meta, present)
	}
}

func TestDistrictStoreShardsAndValidates(t *testing.T) {
	st, err := NewDistrictStore(cache.DirProvider{Root: t.TempDir()}, nil, testOptions)
	if err != nil {
		t.Fatal(err)
	}

	date := "2026-01-14"
	content := "District,Club Number,Club Name\n42,1234,Orators\n"
	if err := st.SetDistrictCSV(date, "42", content); err != nil {
		t.Fatal(err)
	}

	got, ok, err := st.GetDistrictCSV(date, "42")
	if err != nil || !ok || got != content {
		t.Fatalf("district round trip = (%q, %v, %v)", got, ok, err)
	}
	if has, _ := st.HasDistrictCSV(date, "F"); has {
		t.Error("unwritten district reported cached")
	}

	districts, err := st.ListCachedDistricts(date)
	if err != nil || len(districts) != 1 || districts[0] != "42" {
		t.Fatalf("ListCachedDistricts = (%v, %v)", districts, err)
	}

	// The document shards under the snapshot date's districts/ subtree.
	path := filepath.Join(st.snapshotDir(date), "districts", "42", "district-performance.csv")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("sharded path missing: %v", err)
	}

	// Same validation, same error wording as the raw cache.
	for _, hostile := range []string{"../../../etc/passwd", "test:path", ""} {
		err := st.SetDistrictCSV(date, hostile, "x")
		if _, ok := err.(*cache.ValidationError); !ok {
			t.Errorf("SetDistrictCSV(%q) = %v, want *cache.ValidationError", hostile, err)
		}
	}
	if _, _, err := st.GetDistrictCSV("../..", "42"); err == nil {
		t.Error("hostile date accepted")
	}

	// The flat snapshot operations still work through the variant.
	if err := st.WriteSnapshot(sampleSnapshot(date, "42"), nil); err != nil {
		t.Fatal(err)
	}
	if snap, err := st.GetSnapshot(date); err != nil || snap == nil {
		t.Fatalf("flat operation through district store failed: %v", err)
	}
}
