package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gamifyx/gradehub/internal/domain/grading"
	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUSH PAYLOAD
// Wire shape of a repository push delivery.
// ══════════════════════════════════════════════════════════════════════════════

// PushPayload is the decoded webhook body.
type PushPayload struct {
	Repository PushRepository `json:"repository" validate:"required"`
	Ref        string         `json:"ref"`
	After      string         `json:"after" validate:"omitempty,hexadecimal,max=64"`
	Commits    PushCommits    `json:"commits"`
	HeadCommit *PushCommit    `json:"head_commit,omitempty"`
}

// PushRepository identifies the pushed repository.
type PushRepository struct {
	ID       int64  `json:"id" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
}

// PushCommits decodes leniently: anything but an array is an empty list.
type PushCommits []PushCommit

func (cs *PushCommits) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*cs = nil
		return nil
	}
	out := make(PushCommits, len(raw))
	for i := range raw {
		if err := out[i].UnmarshalJSON(raw[i]); err != nil {
			return err
		}
	}
	*cs = out
	return nil
}

// PushCommit is one commit in the push. A missing or wrongly typed field
// decodes to its zero value and grades as its worst case.
type PushCommit struct {
	ID        string     `json:"id"`
	Message   string     `json:"message"`
	Timestamp string     `json:"timestamp"`
	Author    PushAuthor `json:"author"`
	Added     []string   `json:"added"`
	Removed   []string   `json:"removed"`
	Modified  []string   `json:"modified"`
}

// PushAuthor is the commit author.
type PushAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (c *PushCommit) UnmarshalJSON(data []byte) error {
	*c = PushCommit{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	c.ID = looseString(fields["id"])
	c.Message = looseString(fields["message"])
	c.Timestamp = looseString(fields["timestamp"])
	c.Added = looseStrings(fields["added"])
	c.Removed = looseStrings(fields["removed"])
	c.Modified = looseStrings(fields["modified"])

	var author map[string]json.RawMessage
	if json.Unmarshal(fields["author"], &author) == nil {
		c.Author = PushAuthor{Name: looseString(author["name"]), Email: looseString(author["email"])}
	}
	return nil
}

// looseString is "" unless raw is a JSON string.
func looseString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// looseStrings keeps the string elements of a JSON array.
func looseStrings(raw json.RawMessage) []string {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

// zeroSHA marks a deleted ref in the "after" field.
const zeroSHA = "0000000000000000000000000000000000000000"

var payloadValidator = validator.New(validator.WithRequiredStructEnabled())

// DecodePushPayload parses and validates body.
func DecodePushPayload(body []byte) (*PushPayload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, shared.ErrMalformedPayload
	}

	var p PushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, shared.WrapError("webhook", "Decode", shared.ErrMalformedInput, "push payload is not valid JSON", err)
	}
	if err := payloadValidator.Struct(p); err != nil {
		return nil, shared.WrapError("webhook", "Decode", shared.ErrMalformedInput, describeValidation(err), err)
	}
	return &p, nil
}

// HeadCommitID returns the pushed head, or "" when the push has none.
func (p *PushPayload) HeadCommitID() string {
	if p.HeadCommit != nil && p.HeadCommit.ID != "" {
		return p.HeadCommit.ID
	}
	if p.After != "" && p.After != zeroSHA {
		return p.After
	}
	return ""
}

// GradingCommits maps the payload onto the grader's commit view.
func (p *PushPayload) GradingCommits() []grading.Commit {
	out := make([]grading.Commit, 0, len(p.Commits))
	for _, c := range p.Commits {
		ts, _ := timeutil.ParseTimestamp(c.Timestamp)
		out = append(out, grading.Commit{
			ID:        c.ID,
			Message:   c.Message,
			Author:    c.Author.Name,
			Timestamp: ts,
			Added:     c.Added,
			Removed:   c.Removed,
			Modified:  c.Modified,
		})
	}
	return out
}

func describeValidation(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return "push payload failed validation"
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Namespace()+" "+f.Tag())
	}
	return "push payload failed validation: " + strings.Join(parts, ", ")
}
