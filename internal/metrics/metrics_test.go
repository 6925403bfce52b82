package metrics

import "testing"

func TestRecordUpdatesGlobalAndDimensions(t *testing.T) {
	c := NewCollector()
	c.Record(Sample{UserID: "u1", AppHostname: "demo", ContainerID: "c1", StatusCode: 200, LatencyMs: 10})
	c.Record(Sample{UserID: "u1", AppHostname: "demo", ContainerID: "c1", StatusCode: 500, LatencyMs: 20})

	g := c.Global()
	if g.RequestCount != 2 || g.ErrorCount != 1 {
		t.Fatalf("got %+v", g)
	}
	if g.LatencySum != 30 || g.NonZeroLatencyCount != 2 {
		t.Fatalf("got %+v", g)
	}
	if g.StatusHistogram[200] != 1 || g.StatusHistogram[500] != 1 {
		t.Fatalf("got %+v", g.StatusHistogram)
	}

	app := c.ByAppHostname("demo")
	if app.RequestCount != 2 {
		t.Fatalf("got %+v", app)
	}

	container := c.ByContainer("c1")
	if container.RequestCount != 2 {
		t.Fatalf("got %+v", container)
	}
}

func TestByUserReturnsFirstObservedAttribution(t *testing.T) {
	c := NewCollector()
	c.Record(Sample{UserID: "u1", AppHostname: "demo", ContainerID: "c1", StatusCode: 200})
	// Different user on the same dimensions doesn't steal first-observed attribution.
	c.Record(Sample{UserID: "u2", AppHostname: "demo", ContainerID: "c1", StatusCode: 200})

	view := c.ByUser("u1")
	if _, ok := view.AppHostnames["demo"]; !ok {
		t.Fatal("expected demo attributed to u1")
	}
	if _, ok := view.Containers["c1"]; !ok {
		t.Fatal("expected c1 attributed to u1")
	}

	otherView := c.ByUser("u2")
	if len(otherView.AppHostnames) != 0 || len(otherView.Containers) != 0 {
		t.Fatalf("expected u2 to own no sub-maps, got %+v", otherView)
	}
	if otherView.Stats.RequestCount != 1 {
		t.Fatalf("expected u2's own rollup unaffected, got %+v", otherView.Stats)
	}
}

func TestRecordWithoutUserIDStillUpdatesOtherDimensions(t *testing.T) {
	c := NewCollector()
	c.Record(Sample{AppHostname: "demo", ContainerID: "c1", StatusCode: 200})

	if c.Global().RequestCount != 1 {
		t.Fatal("expected global to count anonymous samples")
	}
	if c.ByAppHostname("demo").RequestCount != 1 {
		t.Fatal("expected app_hostname dimension to count anonymous samples")
	}
}

func TestResetClearsAllCounters(t *testing.T) {
	c := NewCollector()
	c.Record(Sample{UserID: "u1", AppHostname: "demo", ContainerID: "c1", StatusCode: 200})
	c.Reset()

	if c.Global().RequestCount != 0 {
		t.Fatal("expected global reset")
	}
	if c.ByUser("u1").Stats.RequestCount != 0 {
		t.Fatal("expected per-user reset")
	}
}

func TestZeroLatencySamplesExcludedFromLatencyAverage(t *testing.T) {
	c := NewCollector()
	c.Record(Sample{AppHostname: "demo", StatusCode: 200, LatencyMs: 0})
	c.Record(Sample{AppHostname: "demo", StatusCode: 200, LatencyMs: 15})

	stats := c.ByAppHostname("demo")
	if stats.NonZeroLatencyCount != 1 || stats.LatencySum != 15 {
		t.Fatalf("got %+v", stats)
	}
}
