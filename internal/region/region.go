// Package region maps free-text country names onto coarse world regions.
package region

import "strings"

// Label is a coarse geographic region.
type Label string

const (
	Europe       Label = "Europe"
	NorthAmerica Label = "North America"
	Asia         Label = "Asia"
	Oceania      Label = "Oceania"
	Other        Label = "Other"
	Unknown      Label = "Unknown"
)

type group struct {
	label   Label
	members []string
}

// groups are checked in order; the first group with a member contained in the
// lowercased country name wins.
var groups = []group{
	{Europe, []string{
		"united kingdom", "germany", "france", "italy", "spain", "netherlands",
		"belgium", "switzerland", "austria", "sweden", "norway", "denmark", "finland",
	}},
	{NorthAmerica, []string{"united states", "canada", "mexico"}},
	{Asia, []string{"japan", "china", "india", "singapore", "south korea", "thailand", "malaysia"}},
	{Oceania, []string{"australia", "new zealand"}},
}

// Classify returns the region for a country name. Matching is a
// case-insensitive substring test, so "Indiana" classifies as Asia.
// An empty name stands for a missing country and is Unknown; any other name
// matching no group, whitespace included, is Other.
func Classify(country string) Label {
	if country == "" {
		return Unknown
	}
	name := strings.ToLower(country)
	for _, g := range groups {
		for _, m := range g.members {
			if strings.Contains(name, m) {
				return g.label
			}
		}
	}
	return Other
}

// Labels returns every label Classify can produce.
func Labels() []Label {
	return []Label{Europe, NorthAmerica, Asia, Oceania, Other, Unknown}
}
