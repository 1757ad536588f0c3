package ingest

import (
	"fmt"
	"testing"
)

func TestSeenSet_ContainsAndAdd(t *testing.T) {
	s := newSeenSet(100)

	if s.Contains("0xa") {
		t.Error("fresh hash reported as seen")
	}
	s.Add("0xa")
	if !s.Contains("0xa") {
		t.Error("recorded hash not reported as seen")
	}
}

func TestSeenSet_WraparoundClears(t *testing.T) {
	s := newSeenSet(10)

	for i := 0; i < 10; i++ {
		s.Add(fmt.Sprintf("0x%d", i))
	}
	// The 11th insert clears the set first.
	s.Add("0xnew")
	if s.Contains("0x0") {
		t.Error("cleared hash still reported as seen")
	}
	if !s.Contains("0xnew") {
		t.Error("hash added after clear not retained")
	}
}
