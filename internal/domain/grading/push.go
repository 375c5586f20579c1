// Package grading turns repository push metadata into a weighted quality score.
// Everything here is pure: no I/O, no clock, no randomness.
package grading

import (
	"strings"
	"time"
)

// Commit is the grading view of one pushed commit.
type Commit struct {
	ID      string
	Message string
	Author  string
	// Timestamp is zero when the payload value could not be parsed.
	Timestamp time.Time
	Added     []string
	Removed   []string
	Modified  []string
	// LinesAdded and LinesRemoved are optional diff statistics. When either is
	// nil the number of added and removed paths is used instead.
	LinesAdded   *int
	LinesRemoved *int
}

// Input is everything the grader needs for one push.
type Input struct {
	Commits         []Commit
	RequiredFiles   []string
	ExpectedFolders []string
}

// ChangedPaths returns every added or modified path across all commits.
func (in Input) ChangedPaths() []string {
	var paths []string
	for _, c := range in.Commits {
		paths = append(paths, c.Added...)
		paths = append(paths, c.Modified...)
	}
	return paths
}

// touchedPaths also includes removed paths. README detection uses it.
func (in Input) touchedPaths() []string {
	paths := in.ChangedPaths()
	for _, c := range in.Commits {
		paths = append(paths, c.Removed...)
	}
	return paths
}

// ReadmeTouched reports whether any changed path mentions a README.
func (in Input) ReadmeTouched() bool {
	for _, p := range in.touchedPaths() {
		if strings.Contains(strings.ToLower(p), "readme") {
			return true
		}
	}
	return false
}

// ReadmeMentioned reports whether any commit message mentions a README.
func (in Input) ReadmeMentioned() bool {
	for _, c := range in.Commits {
		if strings.Contains(strings.ToLower(c.Message), "readme") {
			return true
		}
	}
	return false
}

// LineTotals sums added and removed counts across all commits.
func (in Input) LineTotals() (added, removed int) {
	for _, c := range in.Commits {
		if c.LinesAdded != nil && c.LinesRemoved != nil {
			added += max(*c.LinesAdded, 0)
			removed += max(*c.LinesRemoved, 0)
			continue
		}
		added += len(c.Added)
		removed += len(c.Removed)
	}
	return added, removed
}
