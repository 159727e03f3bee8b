package pubsub

import "testing"

func TestRouteOrder(t *testing.T) {
	r := New()
	r.Subscribe(1, "news")
	r.Subscribe(2, "news")
	r.PSubscribe(3, "news*")
	r.PSubscribe(4, "n?ws")

	got := r.Route("news")
	if len(got) != 4 {
		t.Fatalf("deliveries = %d, want 4", len(got))
	}
	// Exact subscribers come first, in registration order.
	if got[0].ID != 1 || got[0].Pattern != "" {
		t.Errorf("first delivery = %+v", got[0])
	}
	if got[1].ID != 2 {
		t.Errorf("second delivery = %+v", got[1])
	}
	// Pattern deliveries carry the pattern that matched.
	for _, d := range got[2:] {
		if d.Pattern == "" {
			t.Errorf("pattern delivery missing pattern: %+v", d)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	r := New()
	r.Subscribe(1, "ch")
	r.Subscribe(2, "ch")
	r.Unsubscribe(1, "ch")

	got := r.Route("ch")
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("deliveries after unsubscribe = %v", got)
	}
	if r.NumSub("ch") != 1 {
		t.Errorf("NumSub = %d", r.NumSub("ch"))
	}
}

func TestDuplicateSubscribeIsIdempotent(t *testing.T) {
	r := New()
	r.Subscribe(1, "ch")
	r.Subscribe(1, "ch")
	if r.NumSub("ch") != 1 {
		t.Fatalf("NumSub = %d, want 1", r.NumSub("ch"))
	}
}

func TestDrop(t *testing.T) {
	r := New()
	r.Subscribe(1, "a")
	r.PSubscribe(1, "b*")
	r.SSubscribe(1, "s")
	r.Subscribe(2, "a")

	r.Drop(1)
	if got := r.Route("a"); len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("route a = %v", got)
	}
	if r.NumPat() != 0 {
		t.Errorf("NumPat = %d, want 0", r.NumPat())
	}
	if len(r.RouteShard("s")) != 0 {
		t.Error("shard subscription survived Drop")
	}
}

func TestShardNamespaceIsIndependent(t *testing.T) {
	r := New()
	r.SSubscribe(1, "ch")
	if len(r.Route("ch")) != 0 {
		t.Error("shard subscriber heard a regular publish")
	}
	if len(r.RouteShard("ch")) != 1 {
		t.Error("shard publish missed its subscriber")
	}
	// Patterns never match shard channels.
	r.PSubscribe(2, "*")
	if len(r.RouteShard("ch")) != 1 {
		t.Error("pattern subscriber heard a shard publish")
	}
}

func TestChannelsListing(t *testing.T) {
	r := New()
	r.Subscribe(1, "news.tech")
	r.Subscribe(1, "news.sport")
	r.Subscribe(1, "weather")

	if got := r.Channels(""); len(got) != 3 {
		t.Fatalf("Channels() = %v", got)
	}
	got := r.Channels("news.*")
	if len(got) != 2 || got[0] != "news.sport" || got[1] != "news.tech" {
		t.Fatalf("Channels(news.*) = %v", got)
	}
}
