package dirs

import (
	"testing"

	"voxelplan.ai/internal/plan/geom"
)

func TestRoundTripUnitVectors(t *testing.T) {
	units := []geom.Pos{geom.East, geom.West, geom.Up, geom.Down, geom.South, geom.North}
	for _, v := range units {
		d := FromVector(v)
		if Count(d) != 1 {
			t.Fatalf("FromVector(%v)=%v not single", v, d)
		}
		got := Vectors(d)
		if len(got) != 1 || got[0] != v {
			t.Fatalf("Vectors(FromVector(%v))=%v", v, got)
		}
	}
}

func TestMirrorPairs(t *testing.T) {
	pairs := map[Mask]Mask{East: West, West: East, Up: Down, Down: Up, South: North, North: South}
	for d, want := range pairs {
		if got := Mirror(d); got != want {
			t.Fatalf("Mirror(%v)=%v want %v", d, got, want)
		}
		if got := Mirror(Mirror(d)); got != d {
			t.Fatalf("Mirror(Mirror(%v))=%v", d, got)
		}
		if Vector(Mirror(d)) != Vector(d).Neg() {
			t.Fatalf("mirror of %v is not the opposite vector", d)
		}
	}
	if Mirror(All) != All || Mirror(East|Up) != West|Down {
		t.Fatalf("multi-bit mirror mismatch")
	}
}

func TestCount(t *testing.T) {
	for m := Mask(0); m <= All; m++ {
		n := 0
		for _, o := range Order {
			if m&o != 0 {
				n++
			}
		}
		if Count(m) != n {
			t.Fatalf("Count(%v)=%d want %d", m, Count(m), n)
		}
	}
}

func TestVectorsOrder(t *testing.T) {
	got := Vectors(All)
	want := []geom.Pos{geom.East, geom.West, geom.Up, geom.Down, geom.South, geom.North}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Vectors(All)[%d]=%v want %v", i, got[i], want[i])
		}
	}
	if FromVector(geom.Pos{X: 1, Y: 1}) != East {
		t.Fatalf("x must take priority")
	}
	if All.String() != "EWUDSN" || None.String() != "-" {
		t.Fatalf("String mismatch: %q %q", All.String(), None.String())
	}
}
