package pricing

import "testing"

func TestCheckDeliverability(t *testing.T) {
	regions := map[string][]string{
		"p1": {"Kerala", "Tamil Nadu"},
		"p2": nil,
		"p3": {"Goa"},
	}
	got := CheckDeliverability("tamil nadu", []string{"p1", "p2", "p3"}, regions)
	want := []bool{true, true, false}
	for i, item := range got {
		if item.Deliverable != want[i] {
			t.Fatalf("%s deliverable = %v, want %v", item.ProductID, item.Deliverable, want[i])
		}
	}
	blocked := Undeliverable(got)
	if len(blocked) != 1 || blocked[0] != "p3" {
		t.Fatalf("unexpected blocked list %v", blocked)
	}
}

func TestCheckDeliverabilityBlankStateSkipsValidation(t *testing.T) {
	regions := map[string][]string{"p1": {"Goa"}, "p2": {"Kerala"}}
	for _, state := range []string{"", "   "} {
		got := CheckDeliverability(state, []string{"p1", "p2"}, regions)
		for _, item := range got {
			if !item.Deliverable {
				t.Fatalf("expected %s deliverable for blank state", item.ProductID)
			}
		}
	}
}
