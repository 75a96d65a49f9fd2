package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerocat/extension-mirror/module/mirror/source"
	"github.com/zerocat/extension-mirror/module/mirror/source/directory"
	"github.com/zerocat/extension-mirror/module/mirror/store/zerocat/zerocattest"
	"github.com/zerocat/extension-mirror/module/mirror/types"
	"github.com/zerocat/extension-mirror/util/common/printer"
)

func writeExtension(t *testing.T, root, file, id, body string) {
	t.Helper()
	path := filepath.Join(root, directory.CodeDir, file)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := "// Name: " + id + " blocks\n// ID: " + id + "\n// Description: test\n// By: Tester\n\n" + body
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestConfig(t *testing.T, endpoint string) (*types.Config, string) {
	t.Helper()
	root := t.TempDir()
	writeExtension(t, root, "Alpha.js", "alpha", "a()")
	writeExtension(t, root, "Beta.js", "beta", "b()")
	thumb := filepath.Join(root, directory.ThumbsDir, "Alpha.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(thumb), 0o755))
	require.NoError(t, os.WriteFile(thumb, []byte("\x89PNG"), 0o644))

	return &types.Config{
		Store: types.StoreConfig{
			Endpoint:   endpoint,
			Visibility: types.VisibilityPublic,
		},
		Sources: map[string]types.SourceConfig{
			"sharkpools": {
				Type:    types.DIRECTORY,
				Label:   "SharkPool",
				Token:   "secret",
				Path:    root,
				Include: []string{"*.js"},
				Select:  types.SelectConfig{All: true},
			},
		},
	}, root
}

func newService(t *testing.T, cfg *types.Config, out *bytes.Buffer) *MirrorService {
	t.Helper()
	svc, err := NewMirrorService(context.Background(), cfg, "sharkpools", WithOutput(printer.FormatJSON, out))
	require.NoError(t, err)
	return svc
}

func TestMirrorService_Sync(t *testing.T) {
	srv := zerocattest.NewServer("mirror", "secret")
	defer srv.Close()
	cfg, root := newTestConfig(t, srv.URL)
	ctx := context.Background()

	var out bytes.Buffer
	summary, err := newService(t, cfg, &out).Sync(ctx, Selection{}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)
	assert.False(t, summary.Failed())

	var rep report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, "sharkpools", rep.Source)
	require.Len(t, rep.Results, 2)
	assert.Equal(t, "alpha", rep.Results[0].Project)
	assert.Equal(t, "created", rep.Results[0].Outcome)

	alpha := srv.Project("alpha")
	require.NotNil(t, alpha)
	assert.Equal(t, "alpha blocks", alpha.Title)
	assert.Contains(t, alpha.Description, "Original author: Tester")
	assert.Equal(t, 1, alpha.Thumbnails)
	assert.Contains(t, string(srv.Content("beta")), "b()")

	// a second run with unchanged files writes nothing
	srv.ResetCalls()
	out.Reset()
	summary, err = newService(t, cfg, &out).Sync(ctx, Selection{}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.NotContains(t, srv.Calls(), "create")
	assert.NotContains(t, srv.Calls(), "savefile")
	assert.NotContains(t, srv.Calls(), "commit")

	// only the edited file gets a new version
	writeExtension(t, root, "Beta.js", "beta", "b2()")
	out.Reset()
	summary, err = newService(t, cfg, &out).Sync(ctx, Selection{}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, srv.Project("beta").Commits, 2)
	assert.Contains(t, string(srv.Content("beta")), "b2()")
}

func TestMirrorService_SyncSelection(t *testing.T) {
	srv := zerocattest.NewServer("mirror", "secret")
	defer srv.Close()
	cfg, _ := newTestConfig(t, srv.URL)

	var out bytes.Buffer
	summary, err := newService(t, cfg, &out).Sync(context.Background(), Selection{IDs: []string{"beta"}}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Nil(t, srv.Project("alpha"))
	assert.NotNil(t, srv.Project("beta"))
}

func TestMirrorService_SyncBadToken(t *testing.T) {
	srv := zerocattest.NewServer("mirror", "other")
	defer srv.Close()
	cfg, _ := newTestConfig(t, srv.URL)

	var out bytes.Buffer
	summary, err := newService(t, cfg, &out).Sync(context.Background(), Selection{}, false)
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Equal(t, []string(nil), srv.Calls())
}

func TestMirrorService_SyncMissingEndpoint(t *testing.T) {
	cfg, _ := newTestConfig(t, "")

	var out bytes.Buffer
	_, err := newService(t, cfg, &out).Sync(context.Background(), Selection{}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.endpoint")
}

func TestMirrorService_Preview(t *testing.T) {
	cfg, _ := newTestConfig(t, "")

	var out bytes.Buffer
	selected, err := newService(t, cfg, &out).Preview(context.Background(), Selection{Authors: []string{"Tester"}})
	require.NoError(t, err)
	require.Len(t, selected, 2)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	assert.Equal(t, "alpha", rows[0]["project"])
	assert.Equal(t, "Tester", rows[1]["author"])
}

func TestMirrorService_UnknownSource(t *testing.T) {
	cfg, _ := newTestConfig(t, "")

	_, err := NewMirrorService(context.Background(), cfg, "nope")
	assert.ErrorIs(t, err, types.ErrUnknownSource)
}

func TestMirrorService_Resolve(t *testing.T) {
	s := &MirrorService{srcConfig: types.SourceConfig{
		Select: types.SelectConfig{IDs: []string{"a"}, Authors: []string{"b"}},
	}}

	tests := []struct {
		name string
		in   Selection
		want Selection
	}{
		{name: "configured", in: Selection{}, want: Selection{IDs: []string{"a"}, Authors: []string{"b"}}},
		{name: "flags win", in: Selection{IDs: []string{"x"}}, want: Selection{IDs: []string{"x"}}},
		{name: "all", in: Selection{All: true}, want: Selection{All: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.resolve(tt.in))
		})
	}
}

// replayWatcher reports a fixed set of changes in one go.
type replayWatcher struct {
	source.Source
	changed []types.ArtifactDescriptor
}

func (w replayWatcher) Watch(ctx context.Context, _ time.Duration, handle source.HandleFunc) error {
	for _, d := range w.changed {
		handle(ctx, d)
	}
	return nil
}

func TestMirrorService_WatchPacesChanges(t *testing.T) {
	srv := zerocattest.NewServer("mirror", "secret")
	defer srv.Close()
	cfg, _ := newTestConfig(t, srv.URL)
	cfg.Delay = 200 * time.Millisecond

	dir, err := directory.New("sharkpools", cfg.Sources["sharkpools"])
	require.NoError(t, err)
	changed, err := dir.List(context.Background())
	require.NoError(t, err)
	require.Len(t, changed, 2)

	var out bytes.Buffer
	svc, err := NewMirrorService(context.Background(), cfg, "sharkpools",
		WithSource(replayWatcher{Source: dir, changed: changed}),
		WithOutput(printer.FormatJSON, &out))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, svc.Watch(context.Background(), Selection{}, false, time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), cfg.Delay)
	assert.NotNil(t, srv.Project("alpha"))
	assert.NotNil(t, srv.Project("beta"))
}

func TestMirrorService_WatchStopsWhilePacing(t *testing.T) {
	srv := zerocattest.NewServer("mirror", "secret")
	defer srv.Close()
	cfg, _ := newTestConfig(t, srv.URL)
	cfg.Delay = time.Hour

	dir, err := directory.New("sharkpools", cfg.Sources["sharkpools"])
	require.NoError(t, err)
	changed, err := dir.List(context.Background())
	require.NoError(t, err)

	svc, err := NewMirrorService(context.Background(), cfg, "sharkpools",
		WithSource(replayWatcher{Source: dir, changed: changed}),
		WithOutput(printer.FormatJSON, &bytes.Buffer{}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, svc.Watch(ctx, Selection{}, false, time.Millisecond))
	assert.NotNil(t, srv.Project("alpha"))
	assert.Nil(t, srv.Project("beta"))
}
