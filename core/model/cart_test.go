package model

import "testing"

func TestNormalizeBarcode(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"8\r00", "0008"},
		{"0001", "0001"},
		{"12\x00\x00", "0012"},
		{"  7 \n", "0007"},
		{"\x00\x00", ""},
		{"", ""},
		{"10012", "10012"},
	}
	for _, c := range cases {
		if got := NormalizeBarcode(c.raw); got != c.want {
			t.Errorf("NormalizeBarcode(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestValidBarcode(t *testing.T) {
	valid := []string{"0001", "9999", "0000"}
	for _, b := range valid {
		if !ValidBarcode(b) {
			t.Errorf("expected %q valid", b)
		}
	}
	invalid := []string{"", "001", "00012", "00a1", "8\r00"}
	for _, b := range invalid {
		if ValidBarcode(b) {
			t.Errorf("expected %q invalid", b)
		}
	}
}

func TestPositions(t *testing.T) {
	if got := SorterPosition(1); got != "Segment_A" {
		t.Errorf("sorter 1 position = %s", got)
	}
	if got := SorterPosition(2); got != "Segment_B" {
		t.Errorf("sorter 2 position = %s", got)
	}
	if got := SorterPosition(7); got != "Sorter_7" {
		t.Errorf("sorter 7 position = %s", got)
	}
	if got := DestinationPosition(3); got != "Station_3" {
		t.Errorf("destination 3 position = %s", got)
	}
	if got := DestinationPosition(0); got != "Destination_0" {
		t.Errorf("destination 0 position = %s", got)
	}
	if got := AreaPosition(5); got != "Area_5" {
		t.Errorf("area 5 position = %s", got)
	}
}
