package checkpoint

import "testing"

func TestSeries_EmptyReads(t *testing.T) {
	var s Series

	if got := s.Latest(); got != 0 {
		t.Errorf("Latest on empty series: got %d, want 0", got)
	}
	if got := s.ValueAt(100); got != 0 {
		t.Errorf("ValueAt on empty series: got %d, want 0", got)
	}
	if _, ok := s.LatestSnapshot(); ok {
		t.Error("LatestSnapshot on empty series reported ok")
	}
}

func TestSeries_AppendAndOverwrite(t *testing.T) {
	var s Series

	// First write appends.
	s.SetCurrent(10, 5)
	if s.Len() != 1 {
		t.Fatalf("expected 1 snapshot, got %d", s.Len())
	}

	// Same-timestamp write overwrites in place.
	s.SetCurrent(10, 6)
	if s.Len() != 1 {
		t.Fatalf("same-timestamp write appended: len %d", s.Len())
	}
	if got := s.Latest(); got != 6 {
		t.Errorf("Latest after overwrite: got %d, want 6", got)
	}

	// Later timestamp appends.
	s.SetCurrent(20, 7)
	if s.Len() != 2 {
		t.Fatalf("expected 2 snapshots, got %d", s.Len())
	}
	if got := s.Latest(); got != 7 {
		t.Errorf("Latest after append: got %d, want 7", got)
	}

	// History before the overwritten tail is preserved.
	if got := s.ValueAt(15); got != 6 {
		t.Errorf("ValueAt(15): got %d, want 6", got)
	}
}

func TestSeries_ValueAt(t *testing.T) {
	var s Series
	s.SetCurrent(10, 5)
	s.SetCurrent(20, 7)
	s.SetCurrent(30, 9)

	cases := []struct {
		t    int64
		want uint64
	}{
		{5, 0},   // before first snapshot
		{10, 5},  // exact first
		{15, 5},  // between first and second
		{20, 7},  // exact middle
		{29, 7},  // just before last
		{30, 9},  // exact last
		{100, 9}, // after last (fast path)
	}
	for _, c := range cases {
		if got := s.ValueAt(c.t); got != c.want {
			t.Errorf("ValueAt(%d): got %d, want %d", c.t, got, c.want)
		}
	}
}

func TestSeries_ValueAtIdempotent(t *testing.T) {
	var s Series
	s.SetCurrent(10, 5)
	s.SetCurrent(20, 7)

	first := s.ValueAt(15)
	second := s.ValueAt(15)
	if first != second {
		t.Errorf("ValueAt not idempotent: %d then %d", first, second)
	}
}

func TestSeries_TimestampsMonotonic(t *testing.T) {
	var s Series
	for i := int64(1); i <= 100; i++ {
		s.SetCurrent(i*10, uint64(i))
	}

	if s.Len() != 100 {
		t.Fatalf("expected 100 snapshots, got %d", s.Len())
	}
	for i := int64(1); i <= 100; i++ {
		if got := s.ValueAt(i * 10); got != uint64(i) {
			t.Fatalf("ValueAt(%d): got %d, want %d", i*10, got, i)
		}
		// Values between snapshots resolve to the preceding one.
		if got := s.ValueAt(i*10 + 5); got != uint64(i) {
			t.Fatalf("ValueAt(%d): got %d, want %d", i*10+5, got, i)
		}
	}
}

func TestSeries_ZeroValueWrites(t *testing.T) {
	var s Series
	s.SetCurrent(10, 100)
	s.SetCurrent(20, 0)

	if got := s.Latest(); got != 0 {
		t.Errorf("Latest after zero write: got %d, want 0", got)
	}
	// The zero write is a real snapshot, not an absence.
	if got := s.ValueAt(25); got != 0 {
		t.Errorf("ValueAt(25): got %d, want 0", got)
	}
	if got := s.ValueAt(15); got != 100 {
		t.Errorf("ValueAt(15): got %d, want 100", got)
	}
}
