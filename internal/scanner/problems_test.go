package scanner

import (
	"errors"
	"testing"
)

func TestProblems(t *testing.T) {
	var p Problems
	if p.Err() != nil {
		t.Errorf("Err() on empty = %v, want nil", p.Err())
	}

	cause := errors.New("disk full")
	p.Add("a.jar", "create-missing-checksums", cause)
	p.Add("b.jar", "", errors.New("unreadable"))
	p.Add("c.jar", "ignored", nil)

	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	if got := p.ByConsumer("create-missing-checksums"); len(got) != 1 || got[0].Path != "a.jar" {
		t.Errorf("ByConsumer() = %v", got)
	}
	if !errors.Is(p.Err(), cause) {
		t.Errorf("Err() = %v, want to wrap %v", p.Err(), cause)
	}

	all := p.All()
	if all[0].Error() != "a.jar [create-missing-checksums]: disk full" {
		t.Errorf("Error() = %q", all[0].Error())
	}
	if all[1].Error() != "b.jar: unreadable" {
		t.Errorf("Error() = %q", all[1].Error())
	}
}
