package consumer

import (
	"errors"
	"slices"
	"testing"
)

func TestRegistry_IDs(t *testing.T) {
	r := NewRegistry(Env{})
	want := []string{
		IDCreateMissingChecksums, IDValidateChecksums, IDAutoRename, IDAutoRemove,
		IDMetadataUpdater, IDIndexArtifact, IDIndexContent, IDReportInvalidContent,
	}
	if got := r.IDs(); !slices.Equal(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}

	for _, id := range want {
		c, err := r.Create(id)
		if err != nil {
			t.Fatalf("Create(%q) error = %v", id, err)
		}
		if c.ID() != id {
			t.Errorf("Create(%q).ID() = %q", id, c.ID())
		}
		if c.Description() == "" {
			t.Errorf("Create(%q).Description() is empty", id)
		}
		if len(c.Includes()) == 0 {
			t.Errorf("Create(%q).Includes() is empty", id)
		}
	}
}

func TestRegistry_Create_Unknown(t *testing.T) {
	r := NewRegistry(Env{})
	if _, err := r.Create("no-such-consumer"); !errors.Is(err, ErrUnknownConsumer) {
		t.Errorf("Create() error = %v, want ErrUnknownConsumer", err)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry(Env{})

	known, invalid := r.Resolve(
		[]string{IDAutoRename, "bogus", IDIndexContent, IDAutoRename},
		[]string{IDReportInvalidContent, "also-bogus"},
	)

	if got := IDs(known); !slices.Equal(got, []string{IDAutoRename, IDIndexContent}) {
		t.Errorf("known = %v", got)
	}
	if got := IDs(invalid); !slices.Equal(got, []string{IDReportInvalidContent}) {
		t.Errorf("invalid = %v", got)
	}
}

func TestRegistry_Resolve_FreshInstances(t *testing.T) {
	r := NewRegistry(Env{})
	first, _ := r.Resolve([]string{IDAutoRename}, nil)
	second, _ := r.Resolve([]string{IDAutoRename}, nil)

	if first[0] == second[0] {
		t.Error("Resolve() should create a new instance per call")
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(Env{})
	r.Register("custom", func(env Env) Consumer { return NewReportInvalidContent(env) })

	known, _ := r.Resolve([]string{"custom"}, nil)
	if len(known) != 1 {
		t.Fatalf("Resolve() = %v, want the custom consumer", IDs(known))
	}
	if !slices.Contains(r.IDs(), "custom") {
		t.Error("IDs() should contain the custom id")
	}
}

func TestDefaultConsumers_AreRegistered(t *testing.T) {
	r := NewRegistry(Env{})
	for _, id := range slices.Concat(DefaultKnownConsumers, DefaultInvalidConsumers) {
		if _, err := r.Create(id); err != nil {
			t.Errorf("Create(%q) error = %v", id, err)
		}
	}
}
