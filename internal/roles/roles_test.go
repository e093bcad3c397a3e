package roles

import "testing"

func TestParseNormalizesAliases(t *testing.T) {
	cases := map[string]Role{
		"farmer":          Farmer,
		"Producer":        Farmer,
		"processing_unit": ProcessingUnit,
		"Processing Unit": ProcessingUnit,
		"processing-unit": ProcessingUnit,
		"abattoir":        ProcessingUnit,
		"abbatoir":        ProcessingUnit,
		"SHOP":            Shop,
		"retailer":        Shop,
		"administrator":   Admin,
		" admin ":         Admin,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "butcher", "farm er"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q) accepted", in)
		}
	}
}

func TestParseMember(t *testing.T) {
	cases := map[string]MemberRole{
		"owner":           Owner,
		"Quality Control": QualityControl,
		"qc":              QualityControl,
		"quality-control": QualityControl,
		"WORKER":          Worker,
	}
	for in, want := range cases {
		got, err := ParseMember(in)
		if err != nil {
			t.Fatalf("ParseMember(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseMember(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseMember("janitor"); err == nil {
		t.Fatalf("ParseMember accepted unknown role")
	}
}

func TestCanManageMembers(t *testing.T) {
	for role, want := range map[MemberRole]bool{
		Owner: true, Manager: true, Worker: false, Supervisor: false, QualityControl: false,
	} {
		if got := role.CanManageMembers(); got != want {
			t.Fatalf("%s.CanManageMembers() = %v, want %v", role, got, want)
		}
	}
}
