package part

import (
	"testing"
)

func testShard(t *testing.T, n int) *Shard {
	x := make([][3]float64, n)
	h := make([]float32, n)
	sh, err := New(x, h)
	if err != nil {
		t.Fatalf("Could not create a %d-particle shard: %s", n, err.Error())
	}
	return sh
}

func TestNew(t *testing.T) {
	sh := testShard(t, 10)
	if sh.Len() != 10 {
		t.Errorf("A 10-particle shard has Len() = %d.", sh.Len())
	}
	for i := 0; i < sh.Len(); i++ {
		if !sh.Valid[i] {
			t.Errorf("Particle %d of a fresh shard is already inhibited.", i)
		}
	}

	if _, ok := sh.Fields[CoordinatesField]; !ok {
		t.Errorf("A fresh shard doesn't register %s.", CoordinatesField)
	}
	if _, ok := sh.Fields[SmoothingLengthsField]; !ok {
		t.Errorf("A fresh shard doesn't register %s.", SmoothingLengthsField)
	}

	_, err := New(make([][3]float64, 3), make([]float32, 4))
	if err == nil {
		t.Errorf("Creating a shard from arrays of different lengths " +
			"succeeded.")
	}
}

func TestAddField(t *testing.T) {
	sh := testShard(t, 4)

	if err := sh.AddField("Masses", make([]float32, 4)); err != nil {
		t.Fatalf("Could not add a valid field: %s", err.Error())
	}
	if err := sh.AddField("Masses", make([]float32, 4)); err == nil {
		t.Errorf("Adding the same field name twice succeeded.")
	}
	if err := sh.AddField("Short", make([]float32, 3)); err == nil {
		t.Errorf("Adding a field with the wrong length succeeded.")
	}
	if err := sh.AddField("Bad", make([]int8, 4)); err == nil {
		t.Errorf("Adding a field with an unsupported type succeeded.")
	}
}

func TestInhibit(t *testing.T) {
	sh := testShard(t, 4)
	sh.Inhibit(2)
	exp := []bool{true, true, false, true}
	for i := range exp {
		if sh.Valid[i] != exp[i] {
			t.Errorf("After Inhibit(2), Valid[%d] = %v.", i, sh.Valid[i])
		}
	}
}
