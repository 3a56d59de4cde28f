package util

import (
	"testing"
)

func TestEmptySet(t *testing.T) {
	s := Set[string]{}
	if !s.IsEmpty() {
		t.Errorf("expected empty set, got length %d", s.Len())
	}
	if s.Len() != 0 {
		t.Errorf("expected length 0, got %d", s.Len())
	}
}

func TestSetOf(t *testing.T) {
	s := SetOf("a", "b", "c")
	if s.Len() != 3 {
		t.Errorf("expected length 3, got %d", s.Len())
	}
	if !s.Contains("a") || !s.Contains("b") || !s.Contains("c") {
		t.Error("set should contain all initial elements")
	}
}

func TestSetOfDuplicates(t *testing.T) {
	s := SetOf("a", "b", "a", "c", "b")
	if s.Len() != 3 {
		t.Errorf("expected length 3 (duplicates removed), got %d", s.Len())
	}
}

func TestAddRemove(t *testing.T) {
	s := Set[int]{}
	s.Add(1)
	s.Add(2)
	s.Add(1)

	if s.Len() != 2 {
		t.Errorf("expected length 2, got %d", s.Len())
	}

	s.Remove(2)
	if s.Contains(2) {
		t.Error("set should not contain removed element")
	}
	if !s.Contains(1) {
		t.Error("set should still contain other elements")
	}
}
