package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerocat/extension-mirror/module/mirror/types"
)

type fakeSource struct {
	calls    *[]string
	content  map[string][]byte
	thumbs   map[string][]byte
	panicOn  string
	fetchErr error
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) List(context.Context) ([]types.ArtifactDescriptor, error) { return nil, nil }

func (s *fakeSource) FetchContent(_ context.Context, id string) ([]byte, error) {
	*s.calls = append(*s.calls, "fetchContent")
	if id == s.panicOn {
		panic("boom")
	}
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.content[id], nil
}

func (s *fakeSource) Project(d types.ArtifactDescriptor) types.ProjectSpec {
	return types.ProjectSpec{Name: "fake-" + d.ID, Title: d.Name}
}

type thumbSource struct {
	*fakeSource
}

func (s thumbSource) Thumbnail(_ context.Context, id string) ([]byte, error) {
	return s.thumbs[id], nil
}

type project struct {
	id       string
	versions [][]byte
}

type fakeStore struct {
	calls    *[]string
	projects map[string]*project
	byID     map[string]*project
	uploads  map[string][]byte
	thumbs   map[string]int
	nextID   int

	rejectCreate bool
	failToken    bool
	failResolve  bool
	failCommit   bool
	failLatest   bool
}

func newFakes() (*fakeSource, *fakeStore) {
	calls := &[]string{}
	return &fakeSource{calls: calls, content: map[string][]byte{}, thumbs: map[string][]byte{}},
		&fakeStore{
			calls:    calls,
			projects: map[string]*project{},
			byID:     map[string]*project{},
			uploads:  map[string][]byte{},
			thumbs:   map[string]int{},
		}
}

func (s *fakeStore) record(name string) { *s.calls = append(*s.calls, name) }

func (s *fakeStore) seed(name string, versions ...string) *project {
	s.nextID++
	p := &project{id: fmt.Sprintf("p%d", s.nextID)}
	for _, v := range versions {
		p.versions = append(p.versions, []byte(v))
	}
	s.projects[name] = p
	s.byID[p.id] = p
	return p
}

func (s *fakeStore) ProjectExists(_ context.Context, name string) (types.ProjectRef, error) {
	s.record("projectExists")
	if p, ok := s.projects[name]; ok {
		return types.ProjectRef{Exists: true, ID: p.id}, nil
	}
	return types.ProjectRef{}, nil
}

func (s *fakeStore) CreateProject(_ context.Context, spec types.ProjectSpec) (string, error) {
	s.record("createProject")
	if s.rejectCreate {
		return "", types.ErrCreateRejected
	}
	return s.seed(spec.Name).id, nil
}

func (s *fakeStore) InitializeProject(context.Context, string) error {
	s.record("initializeProject")
	return nil
}

func (s *fakeStore) LatestVersion(_ context.Context, projectID string) (*types.Version, error) {
	s.record("latestVersion")
	if s.failLatest {
		return nil, errors.New("latest unavailable")
	}
	p := s.byID[projectID]
	if len(p.versions) == 0 {
		return nil, nil
	}
	n := len(p.versions)
	return &types.Version{ID: fmt.Sprintf("v%d", n), ContentRef: fmt.Sprintf("%s/%d", projectID, n-1)}, nil
}

func (s *fakeStore) VersionAccessToken(context.Context, string, string) (string, error) {
	s.record("versionAccessToken")
	if s.failToken {
		return "", types.ErrTokenUnavailable
	}
	return "read", nil
}

func (s *fakeStore) ResolveContent(_ context.Context, contentRef, _ string) ([]byte, error) {
	s.record("resolveContent")
	if s.failResolve {
		return nil, errors.New("resolve failed")
	}
	projectID, n, _ := strings.Cut(contentRef, "/")
	idx, err := strconv.Atoi(n)
	p, ok := s.byID[projectID]
	if err != nil || !ok || idx >= len(p.versions) {
		return nil, errors.New("unknown ref")
	}
	return p.versions[idx], nil
}

func (s *fakeStore) UploadContent(_ context.Context, content []byte) (*types.Upload, error) {
	s.record("uploadContent")
	token := fmt.Sprintf("w%d", len(s.uploads))
	s.uploads[token] = content
	return &types.Upload{ContentRef: token, Token: token}, nil
}

func (s *fakeStore) CommitVersion(_ context.Context, projectID, token string, _ types.Commit) (string, error) {
	s.record("commitVersion")
	if s.failCommit {
		return "", errors.New("backend refused")
	}
	p := s.byID[projectID]
	p.versions = append(p.versions, s.uploads[token])
	return fmt.Sprintf("v%d", len(p.versions)), nil
}

func (s *fakeStore) UploadThumbnail(_ context.Context, projectID string, _ []byte) error {
	s.record("uploadThumbnail")
	s.thumbs[projectID]++
	return nil
}

func (s *fakeStore) writes() int {
	n := 0
	for _, c := range *s.calls {
		switch c {
		case "createProject", "initializeProject", "uploadContent", "commitVersion":
			n++
		}
	}
	return n
}

func (s *fakeStore) reset() { *s.calls = (*s.calls)[:0] }

func artifact(id string) types.ArtifactDescriptor {
	return types.ArtifactDescriptor{ID: id, Name: "Ext " + id, Author: "a", AuthorID: "1"}
}

func TestSyncOne_NewProject(t *testing.T) {
	src, st := newFakes()
	src.content["x1"] = []byte("A")
	e := NewEngine(src, st, WithDelay(0))

	res := e.SyncOne(context.Background(), artifact("x1"), false)

	require.NoError(t, res.Err)
	assert.Equal(t, types.OutcomeCreated, res.Outcome)
	assert.Equal(t, types.DecisionCreateProject, res.Decision)
	assert.Equal(t, "fake-x1", res.Project)
	assert.Equal(t, []string{
		"projectExists", "createProject", "initializeProject", "fetchContent", "uploadContent", "commitVersion",
	}, *st.calls)
	assert.Equal(t, [][]byte{[]byte("A")}, st.projects["fake-x1"].versions)
	assert.Len(t, res.Digest, 64)
	assert.Equal(t, int64(1), res.Size)
}

func TestSyncOne_NewProjectWithoutContent(t *testing.T) {
	src, st := newFakes()
	e := NewEngine(src, st, WithDelay(0))

	res := e.SyncOne(context.Background(), artifact("x1"), false)

	assert.Equal(t, types.OutcomeCreated, res.Outcome)
	assert.NotNil(t, st.projects["fake-x1"])
	assert.Empty(t, st.projects["fake-x1"].versions)
	assert.NotContains(t, *st.calls, "commitVersion")
}

func TestSyncOne_ExistingProject(t *testing.T) {
	tests := []struct {
		name        string
		stored      []string
		content     string
		force       bool
		failToken   bool
		failResolve bool
		failLatest  bool
		outcome     types.Outcome
		decision    types.Decision
		versions    int
	}{
		{
			name: "unchanged content is skipped", stored: []string{"A"}, content: "A",
			outcome: types.OutcomeSkipped, decision: types.DecisionSkip, versions: 1,
		},
		{
			name: "one byte difference creates one version", stored: []string{"A"}, content: "B",
			outcome: types.OutcomeUpdated, decision: types.DecisionCreateNewVersion, versions: 2,
		},
		{
			name: "force writes unchanged content", stored: []string{"A"}, content: "A", force: true,
			outcome: types.OutcomeUpdated, decision: types.DecisionCreateNewVersion, versions: 2,
		},
		{
			name: "empty project gets initial version", content: "A",
			outcome: types.OutcomeCreated, decision: types.DecisionCreateInitialVersion, versions: 1,
		},
		{
			name: "missing token assumes change", stored: []string{"A"}, content: "A", failToken: true,
			outcome: types.OutcomeUpdated, decision: types.DecisionCreateNewVersion, versions: 2,
		},
		{
			name: "unreadable content assumes change", stored: []string{"A"}, content: "A", failResolve: true,
			outcome: types.OutcomeUpdated, decision: types.DecisionCreateNewVersion, versions: 2,
		},
		{
			name: "latest version error treated as empty", stored: []string{"A"}, content: "A", failLatest: true,
			outcome: types.OutcomeCreated, decision: types.DecisionCreateInitialVersion, versions: 2,
		},
		{
			name: "missing content is skipped", stored: []string{"A"},
			outcome: types.OutcomeSkipped, decision: types.DecisionSkip, versions: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, st := newFakes()
			if tt.content != "" {
				src.content["x1"] = []byte(tt.content)
			}
			p := st.seed("fake-x1", tt.stored...)
			st.failToken = tt.failToken
			st.failResolve = tt.failResolve
			st.failLatest = tt.failLatest
			e := NewEngine(src, st, WithDelay(0))

			res := e.SyncOne(context.Background(), artifact("x1"), tt.force)

			require.NoError(t, res.Err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.decision, res.Decision)
			assert.Equal(t, p.id, res.ProjectID)
			assert.Len(t, p.versions, tt.versions)
			assert.NotContains(t, *st.calls, "createProject")
			if tt.outcome == types.OutcomeSkipped {
				assert.Zero(t, st.writes())
			}
		})
	}
}

func TestSyncOne_Idempotent(t *testing.T) {
	src, st := newFakes()
	src.content["x1"] = []byte("A")
	e := NewEngine(src, st, WithDelay(0))

	first := e.SyncOne(context.Background(), artifact("x1"), false)
	require.Equal(t, types.OutcomeCreated, first.Outcome)
	st.reset()

	second := e.SyncOne(context.Background(), artifact("x1"), false)
	assert.Equal(t, types.OutcomeSkipped, second.Outcome)
	assert.Zero(t, st.writes())
	assert.Len(t, st.projects["fake-x1"].versions, 1)
}

func TestSyncOne_Failures(t *testing.T) {
	t.Run("create rejected", func(t *testing.T) {
		src, st := newFakes()
		src.content["x1"] = []byte("A")
		st.rejectCreate = true

		res := NewEngine(src, st, WithDelay(0)).SyncOne(context.Background(), artifact("x1"), false)

		assert.Equal(t, types.OutcomeFailed, res.Outcome)
		assert.ErrorIs(t, res.Err, types.ErrCreateRejected)
		assert.NotContains(t, *st.calls, "initializeProject")
	})

	t.Run("commit failed", func(t *testing.T) {
		src, st := newFakes()
		src.content["x1"] = []byte("B")
		p := st.seed("fake-x1", "A")
		st.failCommit = true

		res := NewEngine(src, st, WithDelay(0)).SyncOne(context.Background(), artifact("x1"), false)

		assert.Equal(t, types.OutcomeFailed, res.Outcome)
		assert.ErrorIs(t, res.Err, types.ErrCommitFailed)
		assert.Len(t, p.versions, 1)
	})

	t.Run("panic is contained", func(t *testing.T) {
		src, st := newFakes()
		src.panicOn = "x1"

		res := NewEngine(src, st, WithDelay(0)).SyncOne(context.Background(), artifact("x1"), false)

		assert.Equal(t, types.OutcomeFailed, res.Outcome)
		require.Error(t, res.Err)
		assert.Contains(t, res.Err.Error(), "boom")
	})
}

func TestSyncOne_Thumbnail(t *testing.T) {
	src, st := newFakes()
	src.content["x1"] = []byte("A")
	src.thumbs["x1"] = []byte("png")
	e := NewEngine(thumbSource{src}, st, WithDelay(0))

	res := e.SyncOne(context.Background(), artifact("x1"), false)
	require.Equal(t, types.OutcomeCreated, res.Outcome)
	assert.Equal(t, 1, st.thumbs[res.ProjectID])

	// no thumbnail for failed artifacts
	st.failCommit = true
	src.content["x1"] = []byte("B")
	res = e.SyncOne(context.Background(), artifact("x1"), false)
	require.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Equal(t, 1, st.thumbs[res.ProjectID])
}

type recorder struct {
	events []string
}

func (r *recorder) Start(string)   { r.events = append(r.events, "start") }
func (r *recorder) Step(string)    { r.events = append(r.events, "step") }
func (r *recorder) Error(string)   { r.events = append(r.events, "error") }
func (r *recorder) Success(string) { r.events = append(r.events, "success") }
func (r *recorder) End()           { r.events = append(r.events, "end") }

func TestSyncAll(t *testing.T) {
	src, st := newFakes()
	src.content["x1"] = []byte("A")
	src.content["x2"] = []byte("B")
	src.content["x3"] = []byte("C")
	st.seed("fake-x2", "B")
	src.panicOn = "x3"
	rec := &recorder{}
	e := NewEngine(src, st, WithDelay(0), WithReporter(rec))

	summary := e.SyncAll(context.Background(),
		[]types.ArtifactDescriptor{artifact("x1"), artifact("x2"), artifact("x3")}, false)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 1, summary.Fail)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Skipped)
	assert.True(t, summary.Failed())
	require.Len(t, summary.Results, 3)
	assert.Equal(t, "x1", summary.Results[0].Artifact.ID)
	assert.Equal(t, "x3", summary.Results[2].Artifact.ID)
	assert.Equal(t, []string{"start", "step", "success", "step", "success", "step", "error", "end"}, rec.events)
}

func TestSyncAll_Empty(t *testing.T) {
	src, st := newFakes()
	rec := &recorder{}

	summary := NewEngine(src, st, WithReporter(rec)).SyncAll(context.Background(), nil, false)

	assert.Zero(t, summary.Success+summary.Fail)
	assert.Empty(t, *st.calls)
	assert.Empty(t, rec.events)
}

func TestSyncAll_Delay(t *testing.T) {
	src, st := newFakes()
	src.content["x1"] = []byte("A")
	src.content["x2"] = []byte("B")
	e := NewEngine(src, st, WithDelay(20*time.Millisecond))

	start := time.Now()
	summary := e.SyncAll(context.Background(), []types.ArtifactDescriptor{artifact("x1"), artifact("x2")}, false)

	assert.Equal(t, 2, summary.Created)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSyncAll_Cancelled(t *testing.T) {
	src, st := newFakes()
	src.content["x1"] = []byte("A")
	src.content["x2"] = []byte("B")
	ctx, cancel := context.WithCancel(context.Background())
	e := NewEngine(src, st, WithDelay(time.Hour))

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	summary := e.SyncAll(ctx, []types.ArtifactDescriptor{artifact("x1"), artifact("x2")}, false)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, "x1", summary.Results[0].Artifact.ID)
}
