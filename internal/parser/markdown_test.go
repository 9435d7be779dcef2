package parser

import (
	"strings"
	"testing"

	"github.com/dgallion1/papergest/internal/doctree"
)

func parseMarkdown(t *testing.T, name, input string) *doctree.DocTree {
	t.Helper()
	tree, err := (&MarkdownParser{}).Parse(strings.NewReader(input), name)
	if err != nil {
		t.Fatalf("Parse(%s): %v", name, err)
	}
	return tree
}

func TestMarkdownParser_PaperSections(t *testing.T) {
	input := `# Algebra Paper 1

Time allowed: 2 hours.

## Section A

1. Solve 2x + 3 = 7.

### Part (i)

Define a vector space.

## Section B

Prove that every matrix has a transpose.
`
	tree := parseMarkdown(t, "algebra.md", input)
	if tree.Title != "algebra" {
		t.Errorf("title = %q", tree.Title)
	}
	if len(tree.Children) != 1 {
		t.Fatalf("top-level sections = %d, want 1", len(tree.Children))
	}

	paper := tree.Children[0]
	if paper.Title != "Algebra Paper 1" || paper.Text != "Time allowed: 2 hours." {
		t.Errorf("paper node = %q / %q", paper.Title, paper.Text)
	}
	if len(paper.Children) != 2 {
		t.Fatalf("sections = %d, want 2", len(paper.Children))
	}

	a, b := paper.Children[0], paper.Children[1]
	if a.Title != "Section A" || a.Text != "1. Solve 2x + 3 = 7." {
		t.Errorf("section A = %q / %q", a.Title, a.Text)
	}
	if len(a.Children) != 1 || a.Children[0].Title != "Part (i)" || a.Children[0].Text != "Define a vector space." {
		t.Errorf("section A parts = %+v", a.Children)
	}
	if b.Title != "Section B" || !strings.HasPrefix(b.Text, "Prove that") {
		t.Errorf("section B = %q / %q", b.Title, b.Text)
	}
}

func TestMarkdownParser_Lists(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"ordered", "# Exercises\n\n1. What is 2+2?\n2. Define a matrix.\n", []string{"1. What is 2+2?\n2. Define a matrix."}},
		{"ordered start", "4. State the theorem.\n5. Prove it.\n", []string{"4. State the theorem.\n5. Prove it."}},
		{"bullets", "- Sketch the graph.\n- Find the roots.\n", []string{"Sketch the graph.\nFind the roots."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := parseMarkdown(t, "ex.md", tt.input)
			var got []string
			tree.Walk(func(n *doctree.DocNode) {
				if n.Text != "" {
					got = append(got, n.Text)
				}
			})
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("texts = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarkdownParser_CodeAndQuotes(t *testing.T) {
	input := "## Programming\n\nWhat does this print?\n\n```\nfmt.Println(1 + 1)\n```\n\n> Explain your answer.\n"
	tree := parseMarkdown(t, "prog.md", input)
	text := tree.Text()
	for _, want := range []string{"What does this print?", "fmt.Println(1 + 1)", "Explain your answer."} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in %q", want, text)
		}
	}
	if strings.Contains(text, ">") {
		t.Errorf("quote marker kept: %q", text)
	}
}

func TestMarkdownParser_LeadingInstructionsKept(t *testing.T) {
	tree := parseMarkdown(t, "lead.md", "Answer all questions.\n\n# Part A\n\nQ1 Prove it.\n")
	if len(tree.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(tree.Children))
	}
	if tree.Children[0].Text != "Answer all questions." {
		t.Errorf("leading text = %q", tree.Children[0].Text)
	}
	if tree.Children[1].Title != "Part A" {
		t.Errorf("section = %q", tree.Children[1].Title)
	}
}

func TestMarkdownParser_EmptyAndTitles(t *testing.T) {
	if tree := parseMarkdown(t, "empty.md", ""); len(tree.Children) != 0 {
		t.Errorf("empty input gave %d children", len(tree.Children))
	}
	for name, want := range map[string]string{"paper.md": "paper", "notes.markdown": "notes", "PAPER.MD": "PAPER"} {
		if got := parseMarkdown(t, name, "text").Title; got != want {
			t.Errorf("title(%s) = %q, want %q", name, got, want)
		}
	}
}
