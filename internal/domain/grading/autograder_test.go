package grading

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gamifyx/gradehub/internal/domain/submission"
)

func intp(v int) *int { return &v }

func wellFormedCommits(n int) []Commit {
	commits := make([]Commit, n)
	for i := range commits {
		commits[i] = Commit{
			ID:           fmt.Sprintf("c%d", i),
			Message:      fmt.Sprintf("Implement step %d of the parser", i),
			LinesAdded:   intp(40),
			LinesRemoved: intp(30),
		}
	}
	return commits
}

func TestGrade_PerfectPush(t *testing.T) {
	commits := wellFormedCommits(5)
	commits[0].Added = []string{"src/main.go", "src/parser.go", "tests/parser_test.go"}
	commits[4].Modified = []string{"README.md"}
	commits[4].Message = "Document usage in README"

	res := Grade(Input{
		Commits:         commits,
		RequiredFiles:   []string{"main.go", "parser.go"},
		ExpectedFolders: []string{"src/", "tests/"},
	})

	assert.Equal(t, Breakdown{10, 10, 15, 20, 25, 20}, res.Breakdown)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, submission.StatusPass, res.Status)
}

func TestGrade_NoCommits(t *testing.T) {
	res := Grade(Input{RequiredFiles: []string{"main.go"}, ExpectedFolders: []string{"src/"}})

	assert.Equal(t, 0, res.Breakdown.CommitMessages)
	assert.Equal(t, 0, res.Breakdown.CommitCount)
	assert.Equal(t, 0, res.Breakdown.LinesBalance)
	assert.Equal(t, 0, res.Breakdown.RequiredFiles)
	assert.Equal(t, 0, res.Breakdown.FolderStructure)
	assert.Equal(t, 0, res.Breakdown.Readme)
	assert.Equal(t, submission.StatusFail, res.Status)
}

func TestGrade_EmptyRubricScoresFull(t *testing.T) {
	res := Grade(Input{})
	assert.Equal(t, MaxRequiredFiles, res.Breakdown.RequiredFiles)
	assert.Equal(t, MaxFolderStruct, res.Breakdown.FolderStructure)
	assert.Equal(t, 45, res.Score)
}

func TestScoreMessages(t *testing.T) {
	mk := func(msgs ...string) []Commit {
		out := make([]Commit, len(msgs))
		for i, m := range msgs {
			out[i] = Commit{Message: m}
		}
		return out
	}
	good := "Add tokenizer for expressions"

	tests := []struct {
		name    string
		commits []Commit
		want    int
	}{
		{"all good", mk(good, good, good, good, good), 10},
		{"80 percent", mk(good, good, good, good, "fix"), 10},
		{"60 percent", mk(good, good, good, "wip", "fix"), 7},
		{"40 percent", mk(good, good, "a", "b", "c"), 4},
		{"20 percent", mk(good, "a", "b", "c", "d"), 2},
		{"none", mk("update", "fix", ""), 0},
		{"generic verb padded", mk("   Update   "), 0},
		{"exactly ten chars", mk("0123456789"), 0},
		{"eleven chars", mk("01234567890"), 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoreMessages(tt.commits))
		})
	}
}

func TestScoreCommitCount(t *testing.T) {
	for n, want := range map[int]int{0: 0, 1: 4, 2: 4, 3: 7, 4: 7, 5: 10, 50: 10} {
		assert.Equal(t, want, scoreCommitCount(n), "n=%d", n)
	}
}

func TestScoreLinesBalance(t *testing.T) {
	tests := []struct {
		added, removed, want int
	}{
		{0, 0, 0},
		{10, 0, 2},
		{100, 5, 2},
		{100, 10, 5},
		{100, 30, 10},
		{100, 50, 15},
		{50, 100, 15},
		{7, 7, 15},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scoreLinesBalance(tt.added, tt.removed), "%d/%d", tt.added, tt.removed)
	}
}

func TestLineTotals_FallsBackToPathCounts(t *testing.T) {
	in := Input{Commits: []Commit{
		{Added: []string{"a", "b"}, Removed: []string{"c"}},
		{LinesAdded: intp(10), LinesRemoved: intp(4)},
	}}
	added, removed := in.LineTotals()
	assert.Equal(t, 12, added)
	assert.Equal(t, 5, removed)
}

func TestScoreRequiredFiles(t *testing.T) {
	paths := []string{"src/Main.go", "lib/util.go", "docs"}

	assert.Equal(t, 20, scoreRequiredFiles([]string{"main.go", "util.go"}, paths))
	// "docs/guide.md" contains the path "docs": reverse-direction match.
	assert.Equal(t, 20, scoreRequiredFiles([]string{"docs/guide.md"}, paths))
	assert.Equal(t, 10, scoreRequiredFiles([]string{"main.go", "util.go", "x.go"}, paths))
	assert.Equal(t, 5, scoreRequiredFiles([]string{"main.go", "util.go", "x.go", "y.go", "z.go"}, paths))
	assert.Equal(t, 2, scoreRequiredFiles([]string{"main.go", "q", "x.go", "y.go", "z.go", "w.go"}, paths))
	assert.Equal(t, 0, scoreRequiredFiles([]string{"nothing.rs"}, paths))
	assert.Equal(t, 20, scoreRequiredFiles(nil, paths))
	assert.Equal(t, 20, scoreRequiredFiles([]string{"  "}, paths))
}

func TestScoreRequiredFiles_EightyPercent(t *testing.T) {
	paths := []string{"a.go", "b.go", "c.go", "d.go"}
	assert.Equal(t, 15, scoreRequiredFiles([]string{"a.go", "b.go", "c.go", "d.go", "e.go"}, paths))
}

func TestScoreFolders(t *testing.T) {
	paths := []string{"src/main.go", "tests/main_test.go", "Docs/intro.md"}

	assert.Equal(t, 25, scoreFolders([]string{"src/", "tests/", "docs/"}, paths))
	assert.Equal(t, 13, scoreFolders([]string{"src/", "tests/", "cmd/"}, paths))
	assert.Equal(t, 2, scoreFolders([]string{"src/", "a/", "b/", "c/", "d/", "e/"}, paths))
	assert.Equal(t, 0, scoreFolders([]string{"cmd/"}, paths))
	assert.Equal(t, 25, scoreFolders(nil, paths))
}

func TestScoreFolders_Bands(t *testing.T) {
	paths := []string{"a/x", "b/x", "c/x", "d/x"}
	assert.Equal(t, 19, scoreFolders([]string{"a/", "b/", "c/", "d/", "e/"}, paths))
	assert.Equal(t, 6, scoreFolders([]string{"a/", "b/", "z/", "y/", "w/"}, paths))
}

func TestScoreReadme(t *testing.T) {
	touched := Input{Commits: []Commit{{Message: "Add docs", Modified: []string{"docs/README.md"}}}}
	mentioned := Input{Commits: []Commit{{Message: "Update readme", Modified: []string{"README"}}}}
	untouched := Input{Commits: []Commit{{Message: "readme later", Added: []string{"main.go"}}}}

	assert.Equal(t, 10, Grade(touched).Breakdown.Readme)
	assert.Equal(t, 20, Grade(mentioned).Breakdown.Readme)
	assert.Equal(t, 0, Grade(untouched).Breakdown.Readme)
}

func TestClassify_TotalAndExclusive(t *testing.T) {
	for s := 0; s <= 100; s++ {
		st := Classify(s)
		switch {
		case s >= 80:
			assert.Equal(t, submission.StatusPass, st)
		case s >= 50:
			assert.Equal(t, submission.StatusReview, st)
		default:
			assert.Equal(t, submission.StatusFail, st)
		}
	}
}

func TestGrade_ComponentBounds(t *testing.T) {
	inputs := []Input{
		{},
		{Commits: wellFormedCommits(12), RequiredFiles: []string{"x"}, ExpectedFolders: []string{"y/"}},
		{Commits: []Commit{{Message: "", Added: nil}}, RequiredFiles: []string{""}},
	}
	for _, in := range inputs {
		b := Grade(in).Breakdown
		assert.True(t, b.CommitMessages >= 0 && b.CommitMessages <= MaxCommitMessages)
		assert.True(t, b.CommitCount >= 0 && b.CommitCount <= MaxCommitCount)
		assert.True(t, b.LinesBalance >= 0 && b.LinesBalance <= MaxLinesBalance)
		assert.True(t, b.RequiredFiles >= 0 && b.RequiredFiles <= MaxRequiredFiles)
		assert.True(t, b.FolderStructure >= 0 && b.FolderStructure <= MaxFolderStruct)
		assert.True(t, b.Readme >= 0 && b.Readme <= MaxReadme)
		assert.True(t, b.Total() >= 0 && b.Total() <= MaxScore)
	}
}
