package ops

// Preset is a built-in sequence.
type Preset struct {
	Name            string
	Summary         string
	ContinueOnError bool
	Steps           []SequenceStep
}

func (p Preset) spec() SequenceSpec {
	return SequenceSpec{
		Name:            p.Name,
		ContinueOnError: p.ContinueOnError,
		Steps:           p.Steps,
	}
}

// presetTable builds the built-in sequences. country-hub-sweep is the
// quick pass; full-discovery runs every discovery stage and keeps going
// past individual failures.
func presetTable() map[string]Preset {
	return map[string]Preset{
		"country-hub-sweep": {
			Name:    "country-hub-sweep",
			Summary: "Persist country hubs, then explore regions without writing",
			Steps: []SequenceStep{
				{ID: "ensure-countries", Operation: "ensureCountryHubs"},
				{ID: "explore-regions", Operation: "exploreCountryHubs"},
			},
		},
		"full-discovery": {
			Name:            "full-discovery",
			Summary:         "Every discovery stage: places, topics and combinations",
			ContinueOnError: true,
			Steps: []SequenceStep{
				{ID: "ensure-countries", Operation: "ensureCountryHubs"},
				{ID: "discover-places", Operation: "discoverPlaceHubs"},
				{ID: "discover-topics", Operation: "discoverTopicHubs"},
				{ID: "explore-combinations", Operation: "exploreCombinationHubs"},
			},
		},
	}
}
