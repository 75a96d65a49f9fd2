package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zerocat/extension-mirror/module/mirror/types"
)

// Source lists artifacts and serves their current content.
type Source interface {
	Name() string
	// List fails with types.ErrSourceUnavailable when the listing cannot be
	// obtained.
	List(ctx context.Context) ([]types.ArtifactDescriptor, error)
	// FetchContent returns nil content when the artifact has none to offer.
	FetchContent(ctx context.Context, id string) ([]byte, error)
	// Project renders the fixed naming rule and project template of the
	// source for one artifact.
	Project(d types.ArtifactDescriptor) types.ProjectSpec
}

// ThumbnailSource is implemented by sources that can provide a cover image.
type ThumbnailSource interface {
	Thumbnail(ctx context.Context, id string) ([]byte, error)
}

// HandleFunc receives artifacts reported by a Watcher.
type HandleFunc func(ctx context.Context, d types.ArtifactDescriptor)

// Watcher is implemented by sources that can report changed artifacts as
// they happen.
type Watcher interface {
	Watch(ctx context.Context, settle time.Duration, handle HandleFunc) error
}

// Factory creates a source from its configuration
type Factory interface {
	Create(ctx context.Context, name string, config types.SourceConfig) (Source, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, name string, config types.SourceConfig) (Source, error)

func (f FactoryFunc) Create(ctx context.Context, name string, config types.SourceConfig) (Source, error) {
	return f(ctx, name, config)
}

var (
	registryMu sync.RWMutex
	registry   = map[types.SourceType]Factory{}
)

// RegisterFactory registers one source factory to the registry.
func RegisterFactory(t types.SourceType, factory Factory) error {
	if len(t) == 0 {
		return errors.New("invalid type")
	}
	if factory == nil {
		return errors.New("empty source factory")
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exist := registry[t]; exist {
		return fmt.Errorf("source factory for %s already exists", t)
	}
	registry[t] = factory
	return nil
}

// GetFactory gets the source factory by the specified type.
func GetFactory(t types.SourceType) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, exist := registry[t]
	if !exist {
		return nil, fmt.Errorf("source factory for %s not found", t)
	}
	return factory, nil
}

// New builds the source described by config.
func New(ctx context.Context, name string, config types.SourceConfig) (Source, error) {
	factory, err := GetFactory(config.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to get source factory: %w", err)
	}
	src, err := factory.Create(ctx, name, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	return src, nil
}
