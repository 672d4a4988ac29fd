package conversation

import "testing"

func TestContainsCompletionPhrase(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"MISSION COMPLETE", true},
		{"Mission Complete!", true},
		{"mission   complete", true},
		{"mission\ncomplete", true},
		{"The mission is complete and we can ship.", false},
		{"mission incomplete", false},
		{"", false},
	}
	for _, c := range cases {
		if got := containsCompletionPhrase(c.in); got != c.want {
			t.Errorf("containsCompletionPhrase(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestExtractChecklist(t *testing.T) {
	in := "Looks good so far.\n<checklist>\n- [x] create file\n- [ ] add tests\n</checklist>\nNow add the tests."
	artifact, rest := extractChecklist(in)
	if artifact != "- [x] create file\n- [ ] add tests" {
		t.Errorf("artifact = %q", artifact)
	}
	if rest != "Looks good so far.\n\nNow add the tests." {
		t.Errorf("rest = %q", rest)
	}
}

func TestExtractChecklistAbsent(t *testing.T) {
	artifact, rest := extractChecklist("no checklist here")
	if artifact != "" || rest != "no checklist here" {
		t.Errorf("got (%q, %q)", artifact, rest)
	}
}

func TestExtractChecklistUnclosed(t *testing.T) {
	in := "<checklist>\n- [ ] dangling"
	artifact, rest := extractChecklist(in)
	if artifact != "" || rest != in {
		t.Errorf("unclosed block should be left intact, got (%q, %q)", artifact, rest)
	}
}

func TestCleanInstruction(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Add the tests.", "Add the tests"},
		{"  Run the linter!  ", "Run the linter"},
		{"MISSION COMPLETE", ""},
		{"Mission Complete! Great work.", "Great work"},
	}
	for _, c := range cases {
		if got := cleanInstruction(c.in); got != c.want {
			t.Errorf("cleanInstruction(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
