package pipeline

import "testing"

func TestClaimGraphFromAssignsStableIDs(t *testing.T) {
	g := claimGraphFrom([]string{"claim one", "claim two"})
	if len(g.Claims) != 2 {
		t.Fatalf("got %d claims, want 2", len(g.Claims))
	}
	if g.Claims[0].Text != "claim one" || g.Claims[1].Text != "claim two" {
		t.Fatalf("claim text mismatch: %+v", g.Claims)
	}
	if g.Claims[0].ID == "" || g.Claims[1].ID == "" {
		t.Fatal("expected non-empty claim IDs")
	}
	if g.Claims[0].ID == g.Claims[1].ID {
		t.Fatal("expected distinct claim IDs")
	}
}

func TestClaimGraphFromEmpty(t *testing.T) {
	g := claimGraphFrom(nil)
	if len(g.Claims) != 0 {
		t.Fatalf("got %d claims, want 0", len(g.Claims))
	}
}
