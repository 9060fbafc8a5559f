package model

import (
	"fmt"
	"strings"
	"time"
)

// BarcodeWidth is the fixed width of a cart barcode.
const BarcodeWidth = 4

// Destination identifies a physical station (1-4), a removal area (5-9) or
// the straight-through path (0).
type Destination int

// DestStraightThrough is the answer given to a sorter when no routing
// decision applies: the cart passes the diversion point untouched.
const DestStraightThrough Destination = 0

// NormalizeBarcode cleans a raw scanner read. Scanners append a carriage
// return and the fixed-width field retains stale bytes after it, so only the
// part before the first \r is real data. NUL padding and whitespace are
// stripped and the result is left-padded with zeros to the barcode width.
func NormalizeBarcode(raw string) string {
	b := raw
	if i := strings.IndexByte(b, '\r'); i >= 0 {
		b = b[:i]
	}
	b = strings.ReplaceAll(b, "\x00", "")
	b = strings.ReplaceAll(b, "\n", "")
	b = strings.TrimSpace(b)
	if b == "" {
		return ""
	}
	for len(b) < BarcodeWidth {
		b = "0" + b
	}
	return b
}

// ValidBarcode reports whether barcode is exactly BarcodeWidth ASCII digits.
func ValidBarcode(barcode string) bool {
	if len(barcode) != BarcodeWidth {
		return false
	}
	for i := 0; i < len(barcode); i++ {
		if barcode[i] < '0' || barcode[i] > '9' {
			return false
		}
	}
	return true
}

// Cart is a registry entry: a barcode with its assigned physical destination.
type Cart struct {
	Barcode     string      `json:"barcode"`
	Destination Destination `json:"destination"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SorterPosition returns the activity-log position label for a sorter.
// Sorter 1 sits on segment A, sorter 2 on segment B.
func SorterPosition(sorterID int) string {
	switch sorterID {
	case 1:
		return "Segment_A"
	case 2:
		return "Segment_B"
	default:
		return fmt.Sprintf("Sorter_%d", sorterID)
	}
}

// DestinationPosition returns the activity-log position label for a
// physical destination.
func DestinationPosition(dest Destination) string {
	if dest >= 1 && dest <= 4 {
		return fmt.Sprintf("Station_%d", dest)
	}
	return fmt.Sprintf("Destination_%d", dest)
}

// AreaPosition returns the activity-log position label for a removal area.
func AreaPosition(area int) string {
	return fmt.Sprintf("Area_%d", area)
}
