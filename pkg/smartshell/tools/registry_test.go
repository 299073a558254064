package tools

import (
	"errors"
	"testing"
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry()

	specs := []Spec{
		{Name: "list_directory", Description: "List a directory"},
		{Name: "read_file", Description: "Read a file", Params: []Param{{Name: "path", Type: TypeString, Required: true}}},
		{Name: "delete_file", Description: "Delete a file", Dangerous: true},
	}
	for _, s := range specs {
		if err := reg.Register(s); err != nil {
			t.Fatalf("Register(%s): %v", s.Name, err)
		}
	}

	t.Run("resolve known", func(t *testing.T) {
		got, err := reg.Resolve("read_file")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got.Description != "Read a file" {
			t.Errorf("description = %q", got.Description)
		}
		if req := got.RequiredParams(); len(req) != 1 || req[0] != "path" {
			t.Errorf("required params = %v", req)
		}
	})

	t.Run("resolve unknown", func(t *testing.T) {
		_, err := reg.Resolve("format_disk")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		err := reg.Register(Spec{Name: "read_file"})
		if !errors.Is(err, ErrDuplicateName) {
			t.Errorf("expected ErrDuplicateName, got %v", err)
		}
	})

	t.Run("order preserved", func(t *testing.T) {
		got := reg.Specs()
		if len(got) != len(specs) {
			t.Fatalf("len = %d, want %d", len(got), len(specs))
		}
		for i := range specs {
			if got[i].Name != specs[i].Name {
				t.Errorf("specs[%d] = %s, want %s", i, got[i].Name, specs[i].Name)
			}
		}
	})

	t.Run("frozen", func(t *testing.T) {
		reg.Freeze()
		err := reg.Register(Spec{Name: "late"})
		if !errors.Is(err, ErrFrozen) {
			t.Errorf("expected ErrFrozen, got %v", err)
		}
	})
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	if err := NewRegistry().Register(Spec{}); err == nil {
		t.Error("expected error for empty name")
	}
}
