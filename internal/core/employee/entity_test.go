package employee

import "testing"

func TestEmployee_Clone(t *testing.T) {
	t.Parallel()

	var missing *Employee
	if missing.Clone() != nil {
		t.Fatal("expected nil clone of nil employee")
	}

	original := &Employee{ID: "42", Name: "Alice", Position: "Clerk", JoinDate: "01.01.2024", Active: true}
	clone := original.Clone()
	if *clone != *original {
		t.Fatalf("expected equal clone, got %+v", clone)
	}

	clone.Position = "Manager"
	if original.Position != "Clerk" {
		t.Fatalf("clone must not share state with the original, got %q", original.Position)
	}
}
