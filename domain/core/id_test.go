package core

import (
	"errors"
	"fmt"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestRunID_IsEmpty(t *testing.T) {
	if NewRunID().IsEmpty() {
		t.Error("generated run ID should not be empty")
	}
	if !RunID("").IsEmpty() {
		t.Error("zero run ID should be empty")
	}
}

// TestParseRunID tests run ID parsing
func TestParseRunID(t *testing.T) {
	valid := NewRunID().String()

	tests := []struct {
		input    string
		hasError bool
	}{
		{valid, false},
		{"  " + valid + "  ", false},
		{"", true},
		{"   ", true},
		{"not-a-uuid", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRunID(tt.input)
			if tt.hasError {
				if err == nil {
					t.Errorf("Expected error for input %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.String() != valid {
				t.Errorf("Expected %s, got %s", valid, got)
			}
		})
	}
}

func TestComputeFoldHash_Deterministic(t *testing.T) {
	blocks := [][]int{{3, 0}, {1, 4}, {2}}

	h1 := ComputeFoldHash(5, 42, blocks)
	h2 := ComputeFoldHash(5, 42, blocks)
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %s vs %s", h1, h2)
	}
	if len(h1.Short()) != 12 {
		t.Errorf("expected 12-char short hash, got %q", h1.Short())
	}

	if ComputeFoldHash(5, 43, blocks) == h1 {
		t.Error("seed change should change the hash")
	}
	if ComputeFoldHash(5, 42, [][]int{{0, 3}, {1, 4}, {2}}) == h1 {
		t.Error("block order change should change the hash")
	}
}

func TestStageError_UnwrapsSentinel(t *testing.T) {
	err := NewStageError(2, StageFitL1, fmt.Errorf("%w: 100 iterations", ErrNonConvergence))

	if !errors.Is(err, ErrNonConvergence) {
		t.Fatalf("expected ErrNonConvergence in chain, got %v", err)
	}
	se, ok := AsStageError(err)
	if !ok {
		t.Fatal("expected StageError")
	}
	if se.Fold != 2 || se.Stage != StageFitL1 {
		t.Errorf("unexpected attribution: fold=%d stage=%s", se.Fold, se.Stage)
	}
	if got := err.Error(); got != "fold 3 stage fit_l1: optimization did not converge: 100 iterations" {
		t.Errorf("unexpected message: %s", got)
	}
	if !IsModelError(err) {
		t.Error("expected model error classification")
	}
	if NewStageError(0, StageScore, nil) != nil {
		t.Error("nil error should stay nil")
	}
}
