package cluster

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/archwatch/sentinel/internal/storage"
)

func TestBestMatchRequiresThreshold(t *testing.T) {
	candidates := []storage.ClusterCandidate{
		{EventID: uuid.New(), Embedding: []float32{1, 0}},
	}
	_, found := bestMatch(candidates, []float32{0, 1}, 0.88)
	if found {
		t.Errorf("expected no match below similarity threshold")
	}
}

func TestBestMatchPicksHighestSimilarity(t *testing.T) {
	low := storage.ClusterCandidate{EventID: uuid.New(), Embedding: []float32{1, 0.2}, FirstSeenAt: time.Unix(100, 0)}
	high := storage.ClusterCandidate{EventID: uuid.New(), Embedding: []float32{1, 0}, FirstSeenAt: time.Unix(200, 0)}

	best, found := bestMatch([]storage.ClusterCandidate{low, high}, []float32{1, 0}, 0.5)
	if !found {
		t.Fatalf("expected a match")
	}
	if best.EventID != high.EventID {
		t.Errorf("expected exact-match candidate to win, got %v", best.EventID)
	}
}

func TestBestMatchTieBreaksToOldestFirstSeen(t *testing.T) {
	older := storage.ClusterCandidate{EventID: uuid.New(), Embedding: []float32{1, 0}, FirstSeenAt: time.Unix(100, 0)}
	newer := storage.ClusterCandidate{EventID: uuid.New(), Embedding: []float32{1, 0}, FirstSeenAt: time.Unix(200, 0)}

	best, found := bestMatch([]storage.ClusterCandidate{newer, older}, []float32{1, 0}, 0.5)
	if !found {
		t.Fatalf("expected a match")
	}
	if best.EventID != older.EventID {
		t.Errorf("expected tie-break to favor the older event, got %v", best.EventID)
	}
}

func TestUniqueSourcesDeduplicates(t *testing.T) {
	sourceA, sourceB := uuid.New(), uuid.New()
	items := []storage.LinkedItem{
		{ItemID: uuid.New(), SourceID: sourceA},
		{ItemID: uuid.New(), SourceID: sourceA},
		{ItemID: uuid.New(), SourceID: sourceB},
	}
	if got := uniqueSources(items); got != 2 {
		t.Errorf("expected 2 unique sources, got %d", got)
	}
}

func TestSelectPrimaryPicksHighestCredibility(t *testing.T) {
	low := storage.LinkedItem{ItemID: uuid.New(), Credibility: 0.4, PublishedAt: time.Unix(100, 0)}
	high := storage.LinkedItem{ItemID: uuid.New(), Credibility: 0.9, PublishedAt: time.Unix(200, 0)}

	got := selectPrimary([]storage.LinkedItem{low, high})
	if got.ItemID != high.ItemID {
		t.Errorf("expected highest-credibility item to win, got %v", got.ItemID)
	}
}

func TestSelectPrimaryTieBreaksToEarliestWhenPreSorted(t *testing.T) {
	earlier := storage.LinkedItem{ItemID: uuid.New(), Credibility: 0.7, PublishedAt: time.Unix(100, 0)}
	later := storage.LinkedItem{ItemID: uuid.New(), Credibility: 0.7, PublishedAt: time.Unix(200, 0)}

	// ListForEvent orders oldest-first, so a strict greater-than
	// comparison in selectPrimary preserves the first equal-credibility
	// item it sees.
	got := selectPrimary([]storage.LinkedItem{earlier, later})
	if got.ItemID != earlier.ItemID {
		t.Errorf("expected earliest item to win an equal-credibility tie, got %v", got.ItemID)
	}
}
