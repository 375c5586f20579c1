package grading

import (
	"strings"

	"github.com/gamifyx/gradehub/internal/domain/submission"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPONENT CAPS
// ══════════════════════════════════════════════════════════════════════════════

const (
	MaxCommitMessages = 10
	MaxCommitCount    = 10
	MaxLinesBalance   = 15
	MaxRequiredFiles  = 20
	MaxFolderStruct   = 25
	MaxReadme         = 20

	MaxScore = 100

	PassThreshold   = 80
	ReviewThreshold = 50
)

// minMessageLength is exclusive: a message must be longer than this.
const minMessageLength = 10

var genericVerbs = map[string]struct{}{
	"update": {},
	"fix":    {},
	"change": {},
	"modify": {},
}

// Breakdown holds the six component scores.
type Breakdown struct {
	CommitMessages  int `json:"commit_messages"`
	CommitCount     int `json:"commit_count"`
	LinesBalance    int `json:"lines_balance"`
	RequiredFiles   int `json:"required_files"`
	FolderStructure int `json:"folder_structure"`
	Readme          int `json:"readme"`
}

// Total sums the components and clamps to [0, 100].
func (b Breakdown) Total() int {
	t := b.CommitMessages + b.CommitCount + b.LinesBalance + b.RequiredFiles + b.FolderStructure + b.Readme
	return min(max(t, 0), MaxScore)
}

// Result is the outcome of grading one push.
type Result struct {
	Breakdown Breakdown
	Score     int
	Status    submission.Status
}

// Classify maps a total onto exactly one terminal status.
func Classify(score int) submission.Status {
	switch {
	case score >= PassThreshold:
		return submission.StatusPass
	case score >= ReviewThreshold:
		return submission.StatusReview
	default:
		return submission.StatusFail
	}
}

// Grade scores a push. It never fails: missing or malformed commit data
// simply earns the worst value for the affected component.
func Grade(in Input) Result {
	b := Breakdown{
		CommitMessages:  scoreMessages(in.Commits),
		CommitCount:     scoreCommitCount(len(in.Commits)),
		LinesBalance:    scoreLinesBalance(in.LineTotals()),
		RequiredFiles:   scoreRequiredFiles(in.RequiredFiles, in.ChangedPaths()),
		FolderStructure: scoreFolders(in.ExpectedFolders, in.ChangedPaths()),
		Readme:          scoreReadme(in.ReadmeTouched(), in.ReadmeMentioned()),
	}
	total := b.Total()
	return Result{Breakdown: b, Score: total, Status: Classify(total)}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPONENTS
// ══════════════════════════════════════════════════════════════════════════════

// IsDescriptiveMessage reports whether a commit message counts as well-formed.
func IsDescriptiveMessage(msg string) bool {
	m := strings.TrimSpace(msg)
	if len(m) <= minMessageLength {
		return false
	}
	_, generic := genericVerbs[strings.ToLower(m)]
	return !generic
}

func scoreMessages(commits []Commit) int {
	if len(commits) == 0 {
		return 0
	}
	good := 0
	for _, c := range commits {
		if IsDescriptiveMessage(c.Message) {
			good++
		}
	}
	pct := good * 100 / len(commits)
	switch {
	case pct >= 80:
		return 10
	case pct >= 60:
		return 7
	case pct >= 40:
		return 4
	case good > 0:
		return 2
	default:
		return 0
	}
}

func scoreCommitCount(n int) int {
	switch {
	case n >= 5:
		return 10
	case n >= 3:
		return 7
	case n >= 1:
		return 4
	default:
		return 0
	}
}

func scoreLinesBalance(added, removed int) int {
	total := added + removed
	if total <= 0 {
		return 0
	}
	hi, lo := max(added, removed), min(added, removed)
	// Compare lo/hi against thresholds without floats.
	switch {
	case lo*10 >= hi*5:
		return 15
	case lo*10 >= hi*3:
		return 10
	case lo*10 >= hi*1:
		return 5
	default:
		return 2
	}
}

// proportionalBand maps a matched/expected fraction onto a five step scale.
// bands holds the scores for 100%, >=80%, >=60%, >=40% and >0%.
func proportionalBand(matched, expected int, bands [5]int) int {
	pct := matched * 100 / expected
	switch {
	case matched >= expected:
		return bands[0]
	case pct >= 80:
		return bands[1]
	case pct >= 60:
		return bands[2]
	case pct >= 40:
		return bands[3]
	case matched > 0:
		return bands[4]
	default:
		return 0
	}
}

var (
	requiredFileBands = [5]int{20, 15, 10, 5, 2}
	folderBands       = [5]int{25, 19, 13, 6, 2}
)

// fuzzyMatch is a case-insensitive substring test in either direction.
func fuzzyMatch(want, path string) bool {
	w, p := strings.ToLower(strings.TrimSpace(want)), strings.ToLower(path)
	if w == "" || p == "" {
		return false
	}
	return strings.Contains(p, w) || strings.Contains(w, p)
}

func scoreRequiredFiles(required, paths []string) int {
	required = nonEmpty(required)
	if len(required) == 0 {
		return MaxRequiredFiles
	}
	matched := 0
	for _, want := range required {
		for _, p := range paths {
			if fuzzyMatch(want, p) {
				matched++
				break
			}
		}
	}
	return proportionalBand(matched, len(required), requiredFileBands)
}

func scoreFolders(expected, paths []string) int {
	expected = nonEmpty(expected)
	if len(expected) == 0 {
		return MaxFolderStruct
	}
	matched := 0
	for _, prefix := range expected {
		pre := strings.ToLower(strings.TrimSpace(prefix))
		for _, p := range paths {
			if strings.HasPrefix(strings.ToLower(p), pre) {
				matched++
				break
			}
		}
	}
	return proportionalBand(matched, len(expected), folderBands)
}

func scoreReadme(touched, mentioned bool) int {
	switch {
	case touched && mentioned:
		return MaxReadme
	case touched:
		return 10
	default:
		return 0
	}
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
