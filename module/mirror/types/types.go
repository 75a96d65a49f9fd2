package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ID is an opaque identifier handed out by a catalog or by the backend.
// Upstream services are inconsistent about sending ids as numbers or strings,
// so both forms are accepted when decoding.
type ID string

func (i *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*i = ID(n.String())
	return nil
}

func (i ID) String() string {
	return string(i)
}

// ArtifactDescriptor describes one artifact offered by a source.
type ArtifactDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Author      string `json:"author"`
	AuthorID    string `json:"authorId"`
	Description string `json:"description"`
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ProjectSpec is the payload used to create a project for an artifact.
type ProjectSpec struct {
	Name        string
	Title       string
	Description string
	Type        string
	Visibility  Visibility
}

// ProjectRef is the answer to a project lookup by name. A missing project is
// reported with Exists=false and no error.
type ProjectRef struct {
	Exists bool
	ID     string
}

// Version is the most recent commit of a project.
type Version struct {
	ID         string
	ContentRef string
}

// Upload is returned by the first phase of version creation.
type Upload struct {
	ContentRef string
	Token      string
}

type Commit struct {
	Message     string
	Description string
	Branch      string
}

type Account struct {
	Username    string
	DisplayName string
}

type Decision string

const (
	DecisionCreateProject        Decision = "CreateProject"
	DecisionCreateInitialVersion Decision = "CreateInitialVersion"
	DecisionCreateNewVersion     Decision = "CreateNewVersion"
	DecisionSkip                 Decision = "Skip"
)

type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result records what happened to one artifact during a run.
type Result struct {
	Artifact  ArtifactDescriptor
	Project   string
	ProjectID string
	Decision  Decision
	Outcome   Outcome
	Detail    string
	Digest    string
	Size      int64
	Err       error
	Duration  time.Duration
}

// Summary aggregates the results of a batch. Success counts every
// non-failed outcome.
type Summary struct {
	RunID   string
	Success int
	Fail    int
	Created int
	Updated int
	Skipped int
	Results []Result
}

func (s *Summary) Add(r Result) {
	switch r.Outcome {
	case OutcomeCreated:
		s.Created++
		s.Success++
	case OutcomeUpdated:
		s.Updated++
		s.Success++
	case OutcomeSkipped:
		s.Skipped++
		s.Success++
	default:
		s.Fail++
	}
	s.Results = append(s.Results, r)
}

func (s *Summary) Failed() bool {
	return s.Fail > 0
}

func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d succeeded (%d created, %d updated, %d skipped), %d failed",
		s.Success, s.Created, s.Updated, s.Skipped, s.Fail)
	return b.String()
}
