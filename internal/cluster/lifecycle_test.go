package cluster

import (
	"testing"

	"github.com/archwatch/sentinel/internal/storage/models"
)

func TestNextOnMentionRevivesFading(t *testing.T) {
	if got := NextOnMention(models.LifecycleFading); got != models.LifecycleConfirmed {
		t.Errorf("expected fading to revive to confirmed on new mention, got %v", got)
	}
}

func TestNextOnMentionArchivedIsTerminal(t *testing.T) {
	if got := NextOnMention(models.LifecycleArchived); got != models.LifecycleArchived {
		t.Errorf("expected archived to stay archived, got %v", got)
	}
}

func TestNextOnMentionLeavesEmergingAndConfirmedUnchanged(t *testing.T) {
	if got := NextOnMention(models.LifecycleEmerging); got != models.LifecycleEmerging {
		t.Errorf("expected emerging to pass through unchanged, got %v", got)
	}
	if got := NextOnMention(models.LifecycleConfirmed); got != models.LifecycleConfirmed {
		t.Errorf("expected confirmed to pass through unchanged, got %v", got)
	}
}
