package dispatch_test

import (
	"context"
	"encoding/json"
	"testing"

	"labmq/internal/dispatch"
)

func noopHandler(context.Context, json.RawMessage) (any, error) { return nil, nil }

func TestRegistryLookup(t *testing.T) {
	reg, err := dispatch.NewRegistry([]dispatch.Binding{
		{Name: "move-to", Handler: noopHandler},
		{Name: "send-home", Handler: noopHandler},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("len = %d", reg.Len())
	}
	if _, ok := reg.Lookup("move-to"); !ok {
		t.Fatal("move-to not found")
	}
	if _, ok := reg.Lookup("self-destruct"); ok {
		t.Fatal("lookup invented a handler")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	reg, err := dispatch.NewRegistry([]dispatch.Binding{
		{Name: "set-rate", Handler: noopHandler},
		{Name: "force-stop", Handler: noopHandler},
		{Name: "get-waveform", Handler: noopHandler},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	names := reg.Names()
	want := []string{"force-stop", "get-waveform", "set-rate"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestRegistryRejectsBadBindings(t *testing.T) {
	cases := []struct {
		name     string
		bindings []dispatch.Binding
	}{
		{"empty name", []dispatch.Binding{{Name: "", Handler: noopHandler}}},
		{"nil handler", []dispatch.Binding{{Name: "pulse", Handler: nil}}},
		{"duplicate name", []dispatch.Binding{
			{Name: "pulse", Handler: noopHandler},
			{Name: "pulse", Handler: noopHandler},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := dispatch.NewRegistry(tc.bindings); err == nil {
				t.Fatal("expected construction error")
			}
		})
	}
}

func TestNilRegistryIsEmpty(t *testing.T) {
	var reg *dispatch.Registry
	if reg.Len() != 0 {
		t.Fatalf("len = %d", reg.Len())
	}
	if _, ok := reg.Lookup("anything"); ok {
		t.Fatal("nil registry resolved a handler")
	}
	if names := reg.Names(); len(names) != 0 {
		t.Fatalf("names = %v", names)
	}
}
