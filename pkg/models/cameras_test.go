package models

import "testing"

func TestAngleRangeValidate(t *testing.T) {
	cases := []struct {
		name    string
		r       AngleRange
		wantErr bool
	}{
		{"valid", AngleRange{MinAngle: 0, MaxAngle: 90}, false},
		{"full circle", AngleRange{MinAngle: 0, MaxAngle: 360}, false},
		{"negative min", AngleRange{MinAngle: -10, MaxAngle: 90}, true},
		{"max above 360", AngleRange{MinAngle: 0, MaxAngle: 370}, true},
		{"wrap-around", AngleRange{MinAngle: 350, MaxAngle: 10}, true},
		{"empty interval", AngleRange{MinAngle: 90, MaxAngle: 90}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestAngleRangeContains(t *testing.T) {
	r := AngleRange{MinAngle: 270, MaxAngle: 360}
	if !r.Contains(350) {
		t.Fatal("expected 350 inside [270, 360)")
	}
	if r.Contains(360) {
		t.Fatal("interval is half-open; 360 must be outside")
	}
	if r.Contains(0) {
		t.Fatal("expected 0 outside [270, 360)")
	}
}

func TestCameraCoversDirection(t *testing.T) {
	cam := Camera{Status: CameraOnline, Directions: []string{DirectionForward, DirectionLeft}}
	if !cam.CoversDirection(DirectionForward) {
		t.Fatal("expected forward coverage")
	}
	if cam.CoversDirection(DirectionBackward) {
		t.Fatal("unexpected backward coverage")
	}
	if !cam.IsOnline() {
		t.Fatal("expected online")
	}
}
