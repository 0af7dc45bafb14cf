package topic

// Separator divides topic levels.
const Separator = "/"

// Standard MQTT wildcard definitions.
const (
	// Wildcard is the single-level wildcard "+".
	// It matches exactly one topic level.
	Wildcard = "+"

	// MultiWildcard is the multi-level wildcard "#".
	// It must be the last character in the topic filter.
	MultiWildcard = "#"
)
