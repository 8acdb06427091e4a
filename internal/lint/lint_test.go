package lint

import (
	"errors"
	"strings"
	"testing"

	"gitclaw/core/internal/proposal"
)

func testGate() *Gate {
	return NewGate(Options{
		AllowedDirs:  []string{"agents", "templates/prompts", "config", "memory"},
		DeniedPaths:  []string{"scripts", ".github/workflows"},
		MaxFiles:     3,
		MaxTitleLen:  60,
		ScoreAxes:    []string{"performance", "security"},
		BranchPrefix: "feat/",
	})
}

func validProposal() proposal.Proposal {
	return proposal.Proposal{
		ID:          "prop_1",
		Title:       "Harden scraper error handling",
		Description: "## Summary\nWrap network calls.",
		BranchName:  "feat/architect-20260831-harden-scraper-errors",
		Files: []proposal.FileChange{
			{Path: "agents/hn_scraper.py", Content: "print('ok')\n", Reason: "wrap fetch"},
		},
		AlignmentScores: map[string]float64{"performance": 0.2, "security": 0.8},
		Goals:           []string{"reliability"},
	}
}

func TestValidProposalPasses(t *testing.T) {
	if err := testGate().Check(validProposal()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
}

func TestTitleRules(t *testing.T) {
	p := validProposal()
	p.Title = ""
	if err := testGate().Check(p); err == nil {
		t.Fatal("expected empty title to fail")
	}

	p = validProposal()
	p.Title = strings.Repeat("x", 61)
	if err := testGate().Check(p); err == nil {
		t.Fatal("expected long title to fail")
	}
}

func TestBranchNamePattern(t *testing.T) {
	ok := []string{
		"feat/architect-20260831-harden-scraper-errors",
		"feat/jester-20251201-add-fortune-cache",
	}
	bad := []string{
		"fix/architect-20260831-harden-scraper-errors",
		"feat/architect-harden-scraper-errors",
		"feat/architect-20260831-two-words",
		"feat/architect-20260831-Harden-Scraper-Errors",
	}
	gate := testGate()
	for _, name := range ok {
		p := validProposal()
		p.BranchName = name
		if err := gate.Check(p); err != nil {
			t.Errorf("Check(%q) error = %v", name, err)
		}
	}
	for _, name := range bad {
		p := validProposal()
		p.BranchName = name
		if err := gate.Check(p); err == nil {
			t.Errorf("Check(%q) expected failure", name)
		}
	}
}

func TestFileCountCap(t *testing.T) {
	p := validProposal()
	p.Files = nil
	if err := testGate().Check(p); err == nil {
		t.Fatal("expected empty change-set to fail")
	}

	p = validProposal()
	file := p.Files[0]
	p.Files = []proposal.FileChange{file, file, file, file}
	if err := testGate().Check(p); err == nil {
		t.Fatal("expected four files to fail the cap")
	}
}

func TestPathRules(t *testing.T) {
	cases := []struct {
		path string
		ok   bool
	}{
		{"agents/foo.py", true},
		{"templates/prompts/council-karen.md", true},
		{"memory/lore/origins.md", true},
		{"scripts/deploy.sh", false},
		{".github/workflows/council.yml", false},
		{"docs/index.html", false},
		{"agents/../scripts/deploy.sh", false},
		{"/etc/passwd", false},
		{"agents", false},
	}
	gate := testGate()
	for _, tc := range cases {
		p := validProposal()
		p.Files[0].Path = tc.path
		err := gate.Check(p)
		if tc.ok && err != nil {
			t.Errorf("Check path %q error = %v", tc.path, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("Check path %q expected failure", tc.path)
		}
	}
}

func TestAlignmentScores(t *testing.T) {
	p := validProposal()
	delete(p.AlignmentScores, "security")
	if err := testGate().Check(p); err == nil {
		t.Fatal("expected missing axis to fail")
	}

	p = validProposal()
	p.AlignmentScores["security"] = 1.5
	if err := testGate().Check(p); err == nil {
		t.Fatal("expected out-of-range score to fail")
	}
}

func TestSyntaxChecks(t *testing.T) {
	p := validProposal()
	p.Files[0] = proposal.FileChange{Path: "config/agents.yml", Content: "enabled: [true\n"}
	if err := testGate().Check(p); err == nil {
		t.Fatal("expected broken YAML to fail")
	}

	p = validProposal()
	p.Files[0] = proposal.FileChange{Path: "memory/state.json", Content: "{not json"}
	if err := testGate().Check(p); err == nil {
		t.Fatal("expected broken JSON to fail")
	}

	p = validProposal()
	p.Files[0] = proposal.FileChange{Path: "config/agents.yml", Content: "enabled: true\n"}
	if err := testGate().Check(p); err != nil {
		t.Fatalf("valid YAML rejected: %v", err)
	}
}

func TestLintErrorNamesField(t *testing.T) {
	p := validProposal()
	p.Files[0].Path = "scripts/deploy.sh"
	err := testGate().Check(p)
	if err == nil {
		t.Fatal("expected failure")
	}
	var lintErr *Error
	if !errors.As(err, &lintErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if lintErr.Field != "files[0]" {
		t.Fatalf("unexpected field: %q", lintErr.Field)
	}
}
