package engine

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	"github.com/zerocat/extension-mirror/module/mirror/source"
	"github.com/zerocat/extension-mirror/module/mirror/store"
	"github.com/zerocat/extension-mirror/module/mirror/types"
	"github.com/zerocat/extension-mirror/util/common"
	"github.com/zerocat/extension-mirror/util/common/progress"
)

const DefaultBranch = "main"

// Engine mirrors artifacts from one source into one store, one artifact at
// a time.
type Engine struct {
	source   source.Source
	store    store.Store
	delay    time.Duration
	reporter progress.Reporter
	logger   zerolog.Logger
}

type Option func(*Engine)

// WithDelay sets the pause inserted after every artifact.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.delay = d
	}
}

func WithReporter(r progress.Reporter) Option {
	return func(e *Engine) {
		if r != nil {
			e.reporter = r
		}
	}
}

func NewEngine(src source.Source, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		source:   src,
		store:    st,
		delay:    types.DefaultDelay,
		reporter: progress.NewNopReporter(),
		logger:   log.With().Str("source", src.Name()).Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncAll runs SyncOne for every descriptor in order and never fails: each
// failure is counted and the batch moves on. A cancelled ctx stops the batch
// before the next artifact.
func (e *Engine) SyncAll(ctx context.Context, descriptors []types.ArtifactDescriptor, force bool) types.Summary {
	runID := uuid.New().String()
	summary := types.Summary{RunID: runID}

	mainLogger := e.logger.With().
		Str("run_id", runID).
		Int("total", len(descriptors)).
		Bool("force", force).
		Logger()

	if len(descriptors) == 0 {
		mainLogger.Info().Msg("No artifacts to sync")
		return summary
	}

	mainLogger.Info().Dur("delay", e.delay).Msg("Starting sync")
	e.reporter.Start(fmt.Sprintf("Syncing %d extensions from %s", len(descriptors), e.source.Name()))
	defer e.reporter.End()
	startTime := time.Now()

	for i, d := range descriptors {
		if ctx.Err() != nil {
			mainLogger.Warn().Int("remaining", len(descriptors)-i).Msg("Sync interrupted")
			break
		}
		e.reporter.Step(fmt.Sprintf("[%d/%d] %s (%s)", i+1, len(descriptors), d.Name, d.ID))

		res := e.syncOne(ctx, mainLogger.With().Int("index", i).Logger(), d, force)
		summary.Add(res)
		if res.Outcome == types.OutcomeFailed {
			e.reporter.Error(fmt.Sprintf("%s: %v", res.Project, res.Err))
		} else {
			e.reporter.Success(fmt.Sprintf("%s: %s (%s)", res.Project, res.Outcome, res.Detail))
		}

		e.wait(ctx)
	}

	mainLogger.Info().
		Int("success", summary.Success).
		Int("fail", summary.Fail).
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Dur("duration", time.Since(startTime)).
		Msg("Sync completed")
	return summary
}

// SyncOne brings the project of one artifact up to date. Errors and panics
// are contained and reported as a failed result.
func (e *Engine) SyncOne(ctx context.Context, d types.ArtifactDescriptor, force bool) types.Result {
	return e.syncOne(ctx, e.logger, d, force)
}

func (e *Engine) syncOne(ctx context.Context, logger zerolog.Logger, d types.ArtifactDescriptor, force bool) (res types.Result) {
	startTime := time.Now()
	spec := e.source.Project(d)
	res = types.Result{Artifact: d, Project: spec.Name}

	jobLogger := logger.With().
		Str("artifact_id", d.ID).
		Str("artifact", d.Name).
		Str("project", spec.Name).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = types.OutcomeFailed
			res.Err = fmt.Errorf("panic while syncing %s: %v", d.ID, r)
		}
		res.Duration = time.Since(startTime)
		if res.Outcome == types.OutcomeFailed {
			jobLogger.Error().Err(res.Err).Dur("duration", res.Duration).Msg("Artifact sync failed")
			return
		}
		jobLogger.Info().
			Str("outcome", string(res.Outcome)).
			Str("decision", string(res.Decision)).
			Str("detail", res.Detail).
			Dur("duration", res.Duration).
			Msg("Artifact sync completed")
	}()

	jobLogger.Debug().Bool("force", force).Msg("Starting artifact sync")
	if err := e.sync(ctx, jobLogger, spec, &res, force); err != nil {
		res.Outcome = types.OutcomeFailed
		res.Err = err
		return res
	}
	e.uploadThumbnail(ctx, jobLogger, &res)
	return res
}

func (e *Engine) sync(ctx context.Context, logger zerolog.Logger, spec types.ProjectSpec, res *types.Result, force bool) error {
	ref, err := e.store.ProjectExists(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("check project %s: %w", spec.Name, err)
	}
	if !ref.Exists {
		return e.createProject(ctx, logger, spec, res)
	}

	res.ProjectID = ref.ID
	logger = logger.With().Str("project_id", ref.ID).Logger()
	logger.Debug().Msg("Project exists")

	latest, err := e.store.LatestVersion(ctx, ref.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to get latest version, treating project as empty")
		latest = nil
	}

	content := e.fetch(ctx, logger, res)
	if content == nil {
		res.Decision = types.DecisionSkip
		res.Outcome = types.OutcomeSkipped
		res.Detail = "content unavailable"
		return nil
	}

	if latest == nil {
		res.Decision = types.DecisionCreateInitialVersion
		if err := e.createVersion(ctx, logger, ref.ID, res.Artifact, content); err != nil {
			return err
		}
		res.Outcome = types.OutcomeCreated
		res.Detail = "initial version created"
		return nil
	}

	detail := "forced update"
	if !force {
		changed, reason := e.changed(ctx, logger.With().Str("version_id", latest.ID).Logger(), ref.ID, latest, content)
		if !changed {
			res.Decision = types.DecisionSkip
			res.Outcome = types.OutcomeSkipped
			res.Detail = "content unchanged"
			return nil
		}
		detail = reason
	}

	res.Decision = types.DecisionCreateNewVersion
	if err := e.createVersion(ctx, logger, ref.ID, res.Artifact, content); err != nil {
		return err
	}
	res.Outcome = types.OutcomeUpdated
	res.Detail = detail
	return nil
}

func (e *Engine) createProject(ctx context.Context, logger zerolog.Logger, spec types.ProjectSpec, res *types.Result) error {
	res.Decision = types.DecisionCreateProject

	projectID, err := e.store.CreateProject(ctx, spec)
	if err != nil {
		return fmt.Errorf("create project %s: %w", spec.Name, err)
	}
	res.ProjectID = projectID
	logger = logger.With().Str("project_id", projectID).Logger()

	if err := e.store.InitializeProject(ctx, projectID); err != nil {
		return fmt.Errorf("initialize project %s: %w", projectID, err)
	}

	content := e.fetch(ctx, logger, res)
	if content == nil {
		res.Outcome = types.OutcomeCreated
		res.Detail = "project created without content"
		return nil
	}
	if err := e.createVersion(ctx, logger, projectID, res.Artifact, content); err != nil {
		return err
	}
	res.Outcome = types.OutcomeCreated
	res.Detail = "project created with initial version"
	return nil
}

// fetch returns nil when the source has no content for the artifact.
func (e *Engine) fetch(ctx context.Context, logger zerolog.Logger, res *types.Result) []byte {
	content, err := e.source.FetchContent(ctx, res.Artifact.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("Artifact content unavailable")
		return nil
	}
	if len(content) == 0 {
		logger.Warn().Msg("Artifact content is empty")
		return nil
	}
	sum := blake2b.Sum256(content)
	res.Digest = hex.EncodeToString(sum[:])
	res.Size = int64(len(content))
	logger.Debug().Str("digest", res.Digest).Str("size", common.GetSize(res.Size)).Msg("Fetched artifact content")
	return content
}

// changed compares content with the latest version byte for byte. When the
// stored content cannot be read the artifact is treated as changed.
func (e *Engine) changed(ctx context.Context, logger zerolog.Logger, projectID string, latest *types.Version, content []byte) (bool, string) {
	token, err := e.store.VersionAccessToken(ctx, projectID, latest.ID)
	if err != nil || token == "" {
		logger.Warn().Err(err).Msg("Cannot get content access token, skipping comparison")
		return true, "access token unavailable, assumed changed"
	}
	existing, err := e.store.ResolveContent(ctx, latest.ContentRef, token)
	if err != nil || len(existing) == 0 {
		logger.Warn().Err(err).Str("content_ref", latest.ContentRef).
			Msg("Cannot read latest version content, skipping comparison")
		return true, "previous content unavailable, assumed changed"
	}
	if bytes.Equal(existing, content) {
		return false, ""
	}
	return true, "content changed"
}

// createVersion uploads content and commits it. A failed commit leaves the
// upload orphaned on the backend.
func (e *Engine) createVersion(ctx context.Context, logger zerolog.Logger, projectID string, d types.ArtifactDescriptor, content []byte) error {
	upload, err := e.store.UploadContent(ctx, content)
	if err != nil {
		return fmt.Errorf("upload content for %s: %w", d.ID, err)
	}

	versionID, err := e.store.CommitVersion(ctx, projectID, upload.Token, types.Commit{
		Message:     fmt.Sprintf("Update %s extension", d.Name),
		Description: fmt.Sprintf("Sync %s extension", d.ID),
		Branch:      DefaultBranch,
	})
	if err != nil {
		logger.Warn().Str("content_ref", upload.ContentRef).Msg("Uploaded content left without a commit")
		if !errors.Is(err, types.ErrCommitFailed) {
			err = fmt.Errorf("%w: %v", types.ErrCommitFailed, err)
		}
		return err
	}
	logger.Info().Str("version_id", versionID).Str("content_ref", upload.ContentRef).Msg("Created version")
	return nil
}

// uploadThumbnail pushes the cover image offered by the source. Failures
// are logged and do not change the result.
func (e *Engine) uploadThumbnail(ctx context.Context, logger zerolog.Logger, res *types.Result) {
	ts, ok := e.source.(source.ThumbnailSource)
	if !ok || res.ProjectID == "" {
		return
	}
	image, err := ts.Thumbnail(ctx, res.Artifact.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read thumbnail")
		return
	}
	if len(image) == 0 {
		return
	}
	if err := e.store.UploadThumbnail(ctx, res.ProjectID, image); err != nil {
		logger.Warn().Err(err).Msg("Failed to upload thumbnail")
		return
	}
	logger.Debug().Str("size", common.GetSize(int64(len(image)))).Msg("Uploaded thumbnail")
}

func (e *Engine) wait(ctx context.Context) {
	if e.delay <= 0 {
		return
	}
	timer := time.NewTimer(e.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
