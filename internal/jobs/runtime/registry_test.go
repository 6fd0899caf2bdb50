package runtime

import "testing"

type stubHandler struct {
	jobType string
}

func (h *stubHandler) Type() string       { return h.jobType }
func (h *stubHandler) Run(*Context) error { return nil }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubHandler{jobType: "embed_content"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	h, ok := r.Get("embed_content")
	if !ok || h.Type() != "embed_content" {
		t.Fatal("registered handler not retrievable")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("unregistered type must not resolve")
	}
}

func TestRegistry_RejectsDuplicatesAndInvalid(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Fatal("nil handler must be rejected")
	}
	if err := r.Register(&stubHandler{}); err == nil {
		t.Fatal("empty job type must be rejected")
	}
	if err := r.Register(&stubHandler{jobType: "x"}); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := r.Register(&stubHandler{jobType: "x"}); err == nil {
		t.Fatal("duplicate registration must be rejected")
	}
}

func TestRegistry_Types(t *testing.T) {
	r := NewRegistry()
	for _, jt := range []string{"a", "b", "c"} {
		if err := r.Register(&stubHandler{jobType: jt}); err != nil {
			t.Fatalf("register %s: %v", jt, err)
		}
	}
	types := r.Types()
	if len(types) != 3 {
		t.Fatalf("expected 3 types, got %v", types)
	}
}
