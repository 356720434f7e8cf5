package service

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/runquest/internal/model"
)

func TestInsightsWeekly_OnlyRecentActivities(t *testing.T) {
	store := newFakeStore()
	_ = store.UpsertActivities(context.Background(), []model.Activity{
		{ID: 1, OwnerID: 7, DistanceMeters: 5000, StartDate: testNow.AddDate(0, 0, -3), StartDateLocal: testNow.AddDate(0, 0, -3)},
		{ID: 2, OwnerID: 7, DistanceMeters: 8000, StartDate: testNow.AddDate(0, 0, -20), StartDateLocal: testNow.AddDate(0, 0, -20)},
		{ID: 3, OwnerID: 7, DistanceMeters: 9000, StartDate: testNow.AddDate(-1, 0, 0), StartDateLocal: testNow.AddDate(-1, 0, 0)},
	})
	svc := NewInsightsService(store)
	svc.now = fixedClock(testNow)

	weeks, err := svc.Weekly(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("Weekly() error = %v", err)
	}
	if len(weeks) != 2 {
		t.Fatalf("got %d weeks, want 2 (the year-old run is outside the window)", len(weeks))
	}
	if weeks[0].DistanceKm != 8 || weeks[1].DistanceKm != 5 {
		t.Errorf("weeks = %+v, want 8 km then 5 km", weeks)
	}
}

func TestInsightsPace_UsesWholeMirror(t *testing.T) {
	store := newFakeStore()
	old := time.Date(2019, time.June, 1, 7, 0, 0, 0, time.UTC)
	_ = store.UpsertActivities(context.Background(), []model.Activity{
		{ID: 1, OwnerID: 7, DistanceMeters: 5000, MovingTimeSeconds: 1500, StartDate: old},
		{ID: 2, OwnerID: 7, DistanceMeters: 5000, MovingTimeSeconds: 1500, StartDate: testNow},
	})
	svc := NewInsightsService(store)

	buckets, err := svc.Pace(context.Background(), 7)
	if err != nil {
		t.Fatalf("Pace() error = %v", err)
	}
	if len(buckets) != 1 || buckets[0].Count != 2 {
		t.Errorf("buckets = %+v, want one 5.0 bucket with 2 runs", buckets)
	}
}
