package cluster

import "github.com/archwatch/sentinel/internal/storage/models"

// confirmThreshold is the unique_source_count spec.md §4.3 requires
// for emerging -> confirmed.
const confirmThreshold = 3

// NextOnMention applies the "new mention" transition of the lifecycle
// state machine (spec.md §4.3): fading revives to confirmed, emerging
// and confirmed are unaffected here (emerging's promotion to confirmed
// is threshold-gated by the caller once unique_source_count is known),
// and archived never transitions again.
func NextOnMention(current models.LifecycleStatus) models.LifecycleStatus {
	switch current {
	case models.LifecycleFading:
		return models.LifecycleConfirmed
	case models.LifecycleArchived:
		return models.LifecycleArchived
	default:
		return current
	}
}
