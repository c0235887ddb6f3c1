package cmp_test

import (
	"testing"

	"github.com/opst/mlgate/pkg/cmp"
)

func TestSliceContentEq(t *testing.T) {
	type When struct {
		a, b []string
	}
	theory := func(when When, then bool) func(*testing.T) {
		return func(t *testing.T) {
			if got := cmp.SliceContentEq(when.a, when.b); got != then {
				t.Errorf("SliceContentEq(%v, %v) = %v, want %v", when.a, when.b, got, then)
			}
		}
	}

	t.Run("same order", theory(When{a: []string{"a", "b"}, b: []string{"a", "b"}}, true))
	t.Run("different order", theory(When{a: []string{"a", "b"}, b: []string{"b", "a"}}, true))
	t.Run("duplicates are counted", theory(When{a: []string{"a", "a", "b"}, b: []string{"a", "b", "b"}}, false))
	t.Run("different length", theory(When{a: []string{"a"}, b: []string{"a", "a"}}, false))
	t.Run("both empty", theory(When{a: nil, b: []string{}}, true))
}
