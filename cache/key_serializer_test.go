package cache

import "testing"

func TestSerializeKey_NoParams(t *testing.T) {
	s := NewDefaultKeySerializer()

	key := s.SerializeKey("/api/v1/members", nil)
	if key != "/api/v1/members" {
		t.Errorf("expected bare endpoint, got %q", key)
	}

	key = s.SerializeKey("/api/v1/members", map[string]string{})
	if key != "/api/v1/members" {
		t.Errorf("expected bare endpoint for empty params, got %q", key)
	}
}

func TestSerializeKey_SortedParams(t *testing.T) {
	s := NewDefaultKeySerializer()

	key := s.SerializeKey("/api/v1/members", map[string]string{
		"page":            "1",
		"limit":           "20",
		"organization_id": "org-1",
	})

	want := "/api/v1/members::limit=20::organization_id=org-1::page=1"
	if key != want {
		t.Errorf("expected %q but got %q", want, key)
	}
}

func TestSerializeKey_DeterministicAcrossOrdering(t *testing.T) {
	s := NewDefaultKeySerializer()

	// Go map iteration order is random; repeated serialization of the same
	// logical params must always agree.
	params := map[string]string{"b": "2", "a": "1", "c": "3", "d": "4", "e": "5"}
	first := s.SerializeKey("/api/v1/feedback", params)
	for i := 0; i < 50; i++ {
		if got := s.SerializeKey("/api/v1/feedback", params); got != first {
			t.Fatalf("non-deterministic key on iteration %d: %q vs %q", i, got, first)
		}
	}
}
