package user

import (
	"testing"
	"time"
)

func TestAgeBracket(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		dob    time.Time
		minAge int
		want   string
	}{
		{name: "mid twenties", dob: time.Date(2001, 3, 15, 0, 0, 0, 0, time.UTC), want: "20s"},
		{name: "birthday not yet reached this year", dob: time.Date(1996, 10, 2, 0, 0, 0, 0, time.UTC), want: "20s"},
		{name: "birthday today", dob: time.Date(1996, 9, 1, 0, 0, 0, 0, time.UTC), want: "30s"},
		{name: "teenager shown for customers", dob: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), want: "10s"},
		{name: "teenager hidden for drivers", dob: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), minAge: 18, want: ""},
		{name: "adult shown for drivers", dob: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), minAge: 18, want: "30s"},
		{name: "unset dob", dob: time.Time{}, want: ""},
		{name: "future dob", dob: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AgeBracket(tt.dob, now, tt.minAge); got != tt.want {
				t.Errorf("AgeBracket(%v, minAge=%d) = %q, want %q", tt.dob, tt.minAge, got, tt.want)
			}
		})
	}
}

func TestCustomerProfileAverageRating(t *testing.T) {
	p := CustomerProfile{SumOfRatingsReceived: 27, TotalRatingsReceivedCount: 6}
	if got := p.AverageRating(); got != 4.5 {
		t.Errorf("AverageRating() = %v, want 4.5", got)
	}
	if got := (CustomerProfile{}).AverageRating(); got != 0 {
		t.Errorf("AverageRating() of unrated customer = %v, want 0", got)
	}
}

func TestAvailableForDispatch(t *testing.T) {
	online := &User{DriverProfile: &DriverProfile{IsOnline: true, Status: DriverWaitingForRide}}
	if !online.AvailableForDispatch() {
		t.Error("online waiting driver should be available")
	}

	offline := &User{DriverProfile: &DriverProfile{IsOnline: false, Status: DriverWaitingForRide}}
	if offline.AvailableForDispatch() {
		t.Error("offline driver must not be available")
	}

	busy := &User{DriverProfile: &DriverProfile{IsOnline: true, Status: DriverOnRide}}
	if busy.AvailableForDispatch() {
		t.Error("driver mid-ride must not be available")
	}

	customer := &User{Role: RoleCustomer}
	if customer.AvailableForDispatch() {
		t.Error("user without a driver profile must not be available")
	}

	var nilUser *User
	if nilUser.AvailableForDispatch() {
		t.Error("nil user must not be available")
	}
}
