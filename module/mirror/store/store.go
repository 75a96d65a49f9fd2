// Package store defines the target backend the mirror writes projects and
// versions into.
package store

import (
	"context"

	"github.com/zerocat/extension-mirror/module/mirror/types"
)

// Store is the project/version backend. Version creation is two-phase:
// UploadContent followed by CommitVersion.
type Store interface {
	// ProjectExists reports a missing project as Exists=false, not as an error.
	ProjectExists(ctx context.Context, name string) (types.ProjectRef, error)
	// CreateProject fails with types.ErrCreateRejected when the backend
	// refuses the project or does not return an id.
	CreateProject(ctx context.Context, spec types.ProjectSpec) (string, error)
	InitializeProject(ctx context.Context, projectID string) error
	// LatestVersion returns nil when the project has no version yet.
	LatestVersion(ctx context.Context, projectID string) (*types.Version, error)
	// VersionAccessToken fails with types.ErrTokenUnavailable when no token
	// is granted for the version.
	VersionAccessToken(ctx context.Context, projectID, versionID string) (string, error)
	ResolveContent(ctx context.Context, contentRef, token string) ([]byte, error)
	UploadContent(ctx context.Context, content []byte) (*types.Upload, error)
	// CommitVersion fails with types.ErrCommitFailed.
	CommitVersion(ctx context.Context, projectID, token string, commit types.Commit) (string, error)
	UploadThumbnail(ctx context.Context, projectID string, image []byte) error
}

// Initializer is implemented by stores that need an explicit start-up
// phase, completed once before any batch begins.
type Initializer interface {
	Init(ctx context.Context) (*types.Account, error)
}
