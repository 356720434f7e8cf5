package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/repository"
)

func testActivity(id, owner int64, start time.Time, meters float64) model.Activity {
	return model.Activity{
		ID:                id,
		OwnerID:           owner,
		Name:              "Run",
		Type:              "Run",
		SportType:         "Run",
		DistanceMeters:    meters,
		MovingTimeSeconds: int64(meters / 3),
		StartDate:         start,
		StartDateLocal:    start,
	}
}

func TestUpsertActivities_InsertAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestOwner(t, db, 1)

	base := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	hr := 151.5
	acts := []model.Activity{
		testActivity(10, 1, base, 5000),
		testActivity(11, 1, base.Add(24*time.Hour), 8000),
		testActivity(12, 1, base.Add(48*time.Hour), 3000),
	}
	acts[1].AverageHeartrate = &hr

	if err := db.UpsertActivities(ctx, acts); err != nil {
		t.Fatalf("UpsertActivities() error = %v", err)
	}

	got, err := db.ListActivities(ctx, 1, repository.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListActivities() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// newest first
	if got[0].ID != 12 || got[2].ID != 10 {
		t.Errorf("order = %d,%d,%d; want 12,11,10", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[1].AverageHeartrate == nil || *got[1].AverageHeartrate != hr {
		t.Errorf("AverageHeartrate = %v, want %v", got[1].AverageHeartrate, hr)
	}
	if got[0].AverageHeartrate != nil {
		t.Errorf("AverageHeartrate = %v, want nil", *got[0].AverageHeartrate)
	}
	if !got[2].StartDate.Equal(base) {
		t.Errorf("StartDate = %v, want %v", got[2].StartDate, base)
	}

	n, err := db.CountActivities(ctx, 1)
	if err != nil || n != 3 {
		t.Errorf("CountActivities() = %d, %v; want 3", n, err)
	}
}

func TestUpsertActivities_UpdatesInPlace(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestOwner(t, db, 1)

	a := testActivity(77, 1, time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC), 5000)
	if err := db.UpsertActivities(ctx, []model.Activity{a}); err != nil {
		t.Fatal(err)
	}

	a.Name = "Renamed run"
	a.DistanceMeters = 5100
	if err := db.UpsertActivities(ctx, []model.Activity{a}); err != nil {
		t.Fatal(err)
	}

	got, _ := db.ListActivities(ctx, 1, repository.ListOptions{Limit: 10})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (no duplicates)", len(got))
	}
	if got[0].Name != "Renamed run" || got[0].DistanceMeters != 5100 {
		t.Errorf("activity not updated: %+v", got[0])
	}
}

func TestListActivities_Paging(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestOwner(t, db, 1)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var acts []model.Activity
	for i := int64(0); i < 5; i++ {
		acts = append(acts, testActivity(100+i, 1, base.Add(time.Duration(i)*time.Hour), 1000))
	}
	_ = db.UpsertActivities(ctx, acts)

	page2, err := db.ListActivities(ctx, 1, repository.ListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page2) != 2 || page2[0].ID != 102 || page2[1].ID != 101 {
		t.Errorf("page 2 = %+v", page2)
	}
}

func TestActivitiesSince(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestOwner(t, db, 1)
	createTestOwner(t, db, 2)

	cutoff := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_ = db.UpsertActivities(ctx, []model.Activity{
		testActivity(1, 1, cutoff.Add(-time.Hour), 1000),
		testActivity(2, 1, cutoff, 1000),
		testActivity(3, 1, cutoff.Add(72*time.Hour), 1000),
		testActivity(4, 2, cutoff.Add(time.Hour), 1000),
	})

	got, err := db.ActivitiesSince(ctx, 1, cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Errorf("ActivitiesSince() = %+v, want ids 2,3 oldest first", got)
	}
}

func TestUpsertActivities_Empty(t *testing.T) {
	db := newTestDB(t)
	if err := db.UpsertActivities(context.Background(), nil); err != nil {
		t.Errorf("UpsertActivities(nil) error = %v", err)
	}
}
