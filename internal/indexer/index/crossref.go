package index

import (
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
)

// CrossRefGroup is a set of related locations sharing a topic label.
type CrossRefGroup struct {
	Topic     string            `json:"topic"`
	Locations []corpus.Location `json:"refs"`
}

// CrossRefStats summarises a cross-reference index.
type CrossRefStats struct {
	Sources    int `json:"sources"`
	Groups     int `json:"groups"`
	References int `json:"references"`
}

// CrossRefIndex maps a location to its topic-grouped related locations.
type CrossRefIndex struct {
	refs map[corpus.Location][]CrossRefGroup
}

func NewCrossRefIndex() *CrossRefIndex {
	return &CrossRefIndex{refs: make(map[corpus.Location][]CrossRefGroup)}
}

// Add records targets under topic for from. Repeated topics for the same
// source are merged.
func (x *CrossRefIndex) Add(from corpus.Location, topic string, targets ...corpus.Location) {
	topic = strings.TrimSpace(topic)
	groups := x.refs[from]
	for i := range groups {
		if groups[i].Topic == topic {
			groups[i].Locations = append(groups[i].Locations, targets...)
			return
		}
	}
	x.refs[from] = append(groups, CrossRefGroup{Topic: topic, Locations: slices.Clone(targets)})
}

// Finalize orders groups by topic and their locations canonically.
func (x *CrossRefIndex) Finalize() {
	for from, groups := range x.refs {
		for i := range groups {
			groups[i].Locations = corpus.Dedupe(groups[i].Locations)
		}
		slices.SortStableFunc(groups, func(a, b CrossRefGroup) int { return strings.Compare(a.Topic, b.Topic) })
		x.refs[from] = groups
	}
}

// Lookup returns the groups recorded for from.
func (x *CrossRefIndex) Lookup(from corpus.Location) []CrossRefGroup {
	return x.refs[from]
}

func (x *CrossRefIndex) Refs() map[corpus.Location][]CrossRefGroup { return x.refs }

func (x *CrossRefIndex) Stats() CrossRefStats {
	stats := CrossRefStats{Sources: len(x.refs)}
	for _, groups := range x.refs {
		stats.Groups += len(groups)
		for _, g := range groups {
			stats.References += len(g.Locations)
		}
	}
	return stats
}
