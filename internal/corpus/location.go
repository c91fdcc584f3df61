package corpus

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Location addresses one verse. Locations are totally ordered by
// (Book, Chapter, Verse); that order is the canonical result order.
type Location struct {
	Book    int
	Chapter int
	Verse   int
}

// Key renders the "book:chapter:verse" form used as the verse cache key.
func (l Location) Key() string {
	return strconv.Itoa(l.Book) + ":" + strconv.Itoa(l.Chapter) + ":" + strconv.Itoa(l.Verse)
}

func (l Location) String() string {
	return l.Key()
}

// Compare returns -1, 0 or +1 following canonical order.
func (l Location) Compare(o Location) int {
	switch {
	case l.Book != o.Book:
		return cmpInt(l.Book, o.Book)
	case l.Chapter != o.Chapter:
		return cmpInt(l.Chapter, o.Chapter)
	default:
		return cmpInt(l.Verse, o.Verse)
	}
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// ParseKey parses a "book:chapter:verse" key.
func ParseKey(key string) (Location, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return Location{}, fmt.Errorf("location key %q: want book:chapter:verse", key)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return Location{}, fmt.Errorf("location key %q: component %q is not a positive integer", key, p)
		}
		nums[i] = n
	}
	return Location{Book: nums[0], Chapter: nums[1], Verse: nums[2]}, nil
}

// MarshalJSON encodes a Location as [book, chapter, verse].
func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{l.Book, l.Chapter, l.Verse})
}

func (l *Location) UnmarshalJSON(data []byte) error {
	var triple []int
	if err := json.Unmarshal(data, &triple); err != nil {
		return fmt.Errorf("decoding location: %w", err)
	}
	if len(triple) != 3 {
		return fmt.Errorf("decoding location: want 3 components, got %d", len(triple))
	}
	*l = Location{Book: triple[0], Chapter: triple[1], Verse: triple[2]}
	return nil
}

// SortLocations sorts locs in canonical order in place.
func SortLocations(locs []Location) {
	slices.SortFunc(locs, Location.Compare)
}

// Dedupe returns locs sorted canonically with duplicates removed. The input
// slice is reused.
func Dedupe(locs []Location) []Location {
	SortLocations(locs)
	return slices.Compact(locs)
}
