package snapshot

import "testing"

type order struct {
	ID    int
	Lines []string
}

func TestStore_CaptureIsDefensive(t *testing.T) {
	s := New()
	o := &order{ID: 1}
	lines := []string{"a", "b"}
	data := Data{"ID": 1, "Lines": lines}

	s.Capture(o, data)

	data["ID"] = 2
	lines[0] = "changed"

	got, ok := s.Get(o)
	if !ok {
		t.Fatal("expected snapshot")
	}
	if got["ID"] != 1 {
		t.Errorf("expected captured ID 1, got %v", got["ID"])
	}
	if got["Lines"].([]string)[0] != "a" {
		t.Errorf("expected captured slice to be copied, got %v", got["Lines"])
	}

	got["ID"] = 99
	if v, _ := s.Field(o, "ID"); v != 1 {
		t.Errorf("expected Get to return a copy, store now holds %v", v)
	}
}

func TestStore_CaptureOverwrites(t *testing.T) {
	s := New()
	o := &order{}

	s.Capture(o, Data{"ID": 1, "Lines": nil})
	s.Capture(o, Data{"ID": 2})

	got, _ := s.Get(o)
	if len(got) != 1 || got["ID"] != 2 {
		t.Errorf("expected second capture to replace the first, got %v", got)
	}
}

func TestStore_SetFieldAndRemove(t *testing.T) {
	s := New()
	a, b := &order{}, &order{}

	s.Capture(a, Data{"ID": nil})
	s.SetField(a, "ID", 10)
	s.SetField(b, "ID", 20)

	if v, _ := s.Field(a, "ID"); v != 10 {
		t.Errorf("expected backfilled ID 10, got %v", v)
	}
	if !s.Has(b) {
		t.Error("expected SetField to create a snapshot")
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 snapshots, got %d", s.Len())
	}

	s.Remove(a)
	if s.Has(a) {
		t.Error("expected snapshot to be removed")
	}
	if _, ok := s.Get(a); ok {
		t.Error("expected Get miss after remove")
	}

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
}

func TestStore_CopiesPointedValues(t *testing.T) {
	related := &order{ID: 7}
	s := New(WithReferences(func(v any) bool {
		_, ok := v.(*order)
		return ok
	}))
	o := &order{ID: 1}
	email := "a@x"

	s.Capture(o, Data{"Email": &email, "Related": related})
	email = "b@x"

	v, _ := s.Field(o, "Email")
	if got := *v.(*string); got != "a@x" {
		t.Errorf("expected captured pointer value a@x, got %q", got)
	}
	if v, _ := s.Field(o, "Related"); v != related {
		t.Errorf("expected referenced value to be kept by instance, got %v", v)
	}

	var none *string
	s.SetField(o, "Email", none)
	if v, _ := s.Field(o, "Email"); v.(*string) != nil {
		t.Errorf("expected nil pointer to stay nil, got %v", v)
	}

	got, _ := s.Get(o)
	got["Related"].(*order).ID = 8
	if related.ID != 8 {
		t.Error("expected Get to keep referenced values shared")
	}
}
