package model

import "testing"

func TestEntityTypeFromCode(t *testing.T) {
	cases := map[int]CRMEntityType{
		1: EntityLead,
		2: EntityDeal,
		3: EntityContact,
		4: EntityCompany,
		7: "",
	}
	for code, want := range cases {
		if got := EntityTypeFromCode(code); got != want {
			t.Errorf("EntityTypeFromCode(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestSetCriterionUpdatesInPlace(t *testing.T) {
	d := EntityData{}
	d.SetCriterion(CriterionResult{ID: 10, Name: "Needs", Text: "demo"})
	d.SetCriterion(CriterionResult{ID: 11, Name: "Budget", Text: "unknown"})
	d.SetCriterion(CriterionResult{ID: 10, Name: "Needs", Text: "demo and pricing"})

	if len(d.Criteria) != 2 {
		t.Fatalf("len(Criteria) = %d, want 2 (one entry per criterion)", len(d.Criteria))
	}
	got := d.Criterion(10)
	if got == nil || got.Text != "demo and pricing" {
		t.Errorf("Criterion(10) = %+v, want updated text", got)
	}
}

func TestCriterionMissing(t *testing.T) {
	d := EntityData{}
	if d.Criterion(99) != nil {
		t.Error("Criterion(99) != nil for empty data")
	}
}

func TestEntityKey(t *testing.T) {
	e := Entity{ID: 5, Type: EntityDeal, ExternalID: 55}
	if e.Key() != (EntityKey{Type: EntityDeal, ExternalID: 55}) {
		t.Errorf("Key() = %+v", e.Key())
	}
}
