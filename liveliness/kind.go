// Package liveliness implements the liveliness QoS subsystem: kind and lease
// policies, the writer-side assertion engine, the reader-side lease monitor,
// and the status notification bus.
package liveliness

import "fmt"

// Kind selects what counts as a liveliness assertion for a writer.
// The values are strictly ordered: Automatic < ManualByParticipant <
// ManualByTopic. A writer offering a stronger kind satisfies a reader
// requesting a weaker one.
type Kind int

const (
	// Automatic liveliness is asserted by the participant on a timer with
	// no application involvement.
	Automatic Kind = iota
	// ManualByParticipant liveliness is asserted by any write or explicit
	// assert on any writer of this kind at the participant.
	ManualByParticipant
	// ManualByTopic liveliness is asserted only by writes or explicit
	// asserts on the individual writer.
	ManualByTopic
)

func (k Kind) String() string {
	switch k {
	case Automatic:
		return "AUTOMATIC"
	case ManualByParticipant:
		return "MANUAL_BY_PARTICIPANT"
	case ManualByTopic:
		return "MANUAL_BY_TOPIC"
	default:
		return fmt.Sprintf("KIND(%d)", int(k))
	}
}

// ParseKind maps the CLI and profile spellings to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "AUTOMATIC":
		return Automatic, nil
	case "MANUAL_BY_PARTICIPANT":
		return ManualByParticipant, nil
	case "MANUAL_BY_TOPIC":
		return ManualByTopic, nil
	}
	return 0, fmt.Errorf("unknown liveliness kind %q", s)
}
