package groupby

import (
	"context"
	"testing"
)

func TestEngineStats(t *testing.T) {
	eng, _ := newTestEngine(t, blogTree(t))
	tagsWatcher(t, eng)
	if _, err := eng.AddWatcher("category", Config{Root: "/blog"}); err != nil {
		t.Fatalf("AddWatcher failed: %v", err)
	}
	ctx := context.Background()

	st := eng.Stats()
	if st.Watchers != 2 || st.Builds != 0 || st.Groups != 0 {
		t.Errorf("fresh stats = %+v, want two idle watchers", st)
	}

	if _, err := eng.Groups(ctx, "tags"); err != nil {
		t.Fatalf("Groups failed: %v", err)
	}
	if _, err := eng.Groups(ctx, "tags"); err != nil {
		t.Fatalf("Groups failed: %v", err)
	}
	if _, err := eng.Groups(ctx, "category"); err != nil {
		t.Fatalf("Groups failed: %v", err)
	}

	st = eng.Stats()
	if st.Builds != 2 {
		t.Errorf("builds = %d, want 2", st.Builds)
	}
	if st.CacheHits == 0 {
		t.Error("repeated access should count cache hits")
	}
	if st.Groups != 5 {
		t.Errorf("groups = %d, want 3 tags + 2 categories", st.Groups)
	}
	if st.Dependencies == 0 {
		t.Error("valid builds should report tracked dependencies")
	}
	if st.OldestBuild != 0 || st.NewestBuild != 0 {
		t.Errorf("build ages = %v/%v, want 0 under a fixed clock", st.OldestBuild, st.NewestBuild)
	}
}
