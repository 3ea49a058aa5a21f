package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStatic_Fields(t *testing.T) {
	p := NewStatic(map[string]string{"Email": "ana@example.com", " first_name ": "Ana", "": "dropped"})

	got, err := p.Fields(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"email": "ana@example.com", "first_name": "Ana"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fields mismatch (-want +got):\n%s", diff)
	}

	got["email"] = "changed"
	again, _ := p.Fields(context.Background())
	if again["email"] != "ana@example.com" {
		t.Error("caller mutation leaked into the profile")
	}
}

func TestStatic_Empty(t *testing.T) {
	if _, err := NewStatic(nil).Fields(context.Background()); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}
