package serialmux

import (
	"testing"

	"github.com/saildata/polar.report/internal/nmea"
)

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{"$WIMWV,045.0,T,12.5,N,A*12", EventTypeWind},
		{"$WIMWD,214.0,T,210.0,M,14.5,N,7.5,M*6C", EventTypeWind},
		{"$IIVHW,185.0,T,183.0,M,6.45,N,11.9,K*5D", EventTypeBoatSpeed},
		{"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A", EventTypeSentence},
		{"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47", EventTypeSentence},
		{"random serial noise", EventTypeUnknown},
		{"", EventTypeUnknown},
		{"$X,1", EventTypeUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyPayload(tt.payload); got != tt.want {
			t.Errorf("ClassifyPayload(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}

func TestHandleEventUpdatesTracker(t *testing.T) {
	tracker := nmea.NewTracker()

	if !HandleEvent(tracker, "$WIMWV,045.0,T,12.5,N,A*12") {
		t.Fatal("true wind sentence should change the tracker")
	}
	if !HandleEvent(tracker, "$IIVHW,185.0,T,183.0,M,6.45,N,11.9,K*5D") {
		t.Fatal("water speed sentence should change the tracker")
	}

	twa, tws, bsp := tracker.Readings()
	if twa == nil || *twa != 45.0 {
		t.Errorf("twa = %v, want 45.0", twa)
	}
	if tws == nil || *tws != 12.5 {
		t.Errorf("tws = %v, want 12.5", tws)
	}
	if bsp == nil || *bsp != 6.45 {
		t.Errorf("bsp = %v, want 6.45", bsp)
	}
}

func TestHandleEventIgnoresOtherTraffic(t *testing.T) {
	tracker := nmea.NewTracker()

	for _, payload := range []string{
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A",
		"random serial noise",
		"",
	} {
		if HandleEvent(tracker, payload) {
			t.Errorf("HandleEvent(%q) reported a change", payload)
		}
	}

	twa, tws, bsp := tracker.Readings()
	if twa != nil || tws != nil || bsp != nil {
		t.Error("tracker must stay empty after non-wind traffic")
	}
}
