package db

import (
	"strconv"
	"testing"

	"github.com/yndnr/redsim-go/internal/value"
)

func TestLazyExpiry(t *testing.T) {
	d := New(0)
	var expired []string
	d.OnExpired = func(key string) { expired = append(expired, key) }

	d.Set("k", value.NewString([]byte("v")))
	d.Expire("k", 1000, 0)

	if _, ok := d.Get("k", 999); !ok {
		t.Fatal("key gone before deadline")
	}
	if _, ok := d.Get("k", 1000); ok {
		t.Fatal("key alive at deadline")
	}
	if len(expired) != 1 || expired[0] != "k" {
		t.Fatalf("expiry hook calls = %v, want [k]", expired)
	}
	// The removal is observed exactly once.
	d.Get("k", 2000)
	if len(expired) != 1 {
		t.Fatalf("expiry hook fired again: %v", expired)
	}
}

func TestExpiryBumpsVersion(t *testing.T) {
	d := New(0)
	d.Set("k", value.NewString([]byte("v")))
	d.Bump("k")
	v0 := d.Version("k")
	d.Expire("k", 10, 0)
	d.Get("k", 10)
	if d.Version("k") == v0 {
		t.Fatal("expiry did not bump the version")
	}
}

func TestSweepExpired(t *testing.T) {
	d := New(0)
	for i := 0; i < 5; i++ {
		k := "k" + strconv.Itoa(i)
		d.Set(k, value.NewString(nil))
		if i < 3 {
			d.Expire(k, 100, 0)
		}
	}
	if n := d.SweepExpired(100); n != 3 {
		t.Fatalf("SweepExpired = %d, want 3", n)
	}
	if d.Len(100) != 2 {
		t.Fatalf("Len = %d, want 2", d.Len(100))
	}
}

func TestRenameCarriesTTL(t *testing.T) {
	d := New(0)
	d.Set("a", value.NewString([]byte("v")))
	d.Expire("a", 5000, 0)
	d.Rename("a", "b")

	if d.Exists("a", 0) {
		t.Fatal("source survived rename")
	}
	dl, ok := d.Deadline("b")
	if !ok || dl != 5000 {
		t.Fatalf("deadline = %d, %v; want 5000", dl, ok)
	}
}

func TestSetClearsTTLKeepTTLDoesNot(t *testing.T) {
	d := New(0)
	d.Set("k", value.NewString(nil))
	d.Expire("k", 5000, 0)

	d.SetKeepTTL("k", value.NewString([]byte("x")))
	if _, ok := d.Deadline("k"); !ok {
		t.Fatal("SetKeepTTL dropped the deadline")
	}
	d.Set("k", value.NewString([]byte("y")))
	if _, ok := d.Deadline("k"); ok {
		t.Fatal("Set preserved the deadline")
	}
}

func TestFlushBumpsVersions(t *testing.T) {
	d := New(0)
	d.Set("k", value.NewString(nil))
	d.Bump("k")
	v0 := d.Version("k")
	d.Flush()
	if d.Exists("k", 0) {
		t.Fatal("key survived flush")
	}
	if d.Version("k") == v0 {
		t.Fatal("flush did not bump versions")
	}
}

func TestScanAfter(t *testing.T) {
	sorted := []string{"a", "b", "c", "d", "e"}

	batch, last, done := ScanAfter(sorted, "", 2)
	if done || len(batch) != 2 || batch[0] != "a" || last != "b" {
		t.Fatalf("first page = %v, %q, %v", batch, last, done)
	}
	batch, last, done = ScanAfter(sorted, last, 2)
	if done || len(batch) != 2 || batch[0] != "c" {
		t.Fatalf("second page = %v, %q, %v", batch, last, done)
	}
	batch, _, done = ScanAfter(sorted, last, 2)
	if !done || len(batch) != 1 || batch[0] != "e" {
		t.Fatalf("final page = %v, %v", batch, done)
	}

	// A deleted predecessor does not skip survivors.
	batch, _, done = ScanAfter([]string{"a", "c", "e"}, "b", 10)
	if !done || len(batch) != 2 || batch[0] != "c" {
		t.Fatalf("resume after deletion = %v, %v", batch, done)
	}
}

func TestCursorRegistry(t *testing.T) {
	d := New(0)
	id := d.SaveCursor(&Cursor{Last: "m"})
	if id == 0 {
		t.Fatal("cursor id 0 is reserved for fresh scans")
	}
	c := d.LoadCursor(id)
	if c == nil || c.Last != "m" {
		t.Fatalf("LoadCursor = %+v", c)
	}
	if d.LoadCursor(id) != nil {
		t.Fatal("cursor survived load")
	}
	if d.LoadCursor(9999) != nil {
		t.Fatal("unknown cursor resolved")
	}
}
