// Package directory reads extensions from a local SharkPools-style checkout.
//
// Extension code lives in <root>/extension-code and every file starts with a
// comment header:
//
//	// Name: Pen Plus
//	// ID: SPpenPlus
//	// Description: Better pen blocks.
//	// By: SharkPool
//
// Cover images are looked up as <root>/extension-thumbs/<base>.png.
package directory

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zerocat/extension-mirror/module/mirror/source"
	"github.com/zerocat/extension-mirror/module/mirror/types"
	"github.com/zerocat/extension-mirror/util/common/errors"
	"github.com/zerocat/extension-mirror/util/common/fileutil"
	"github.com/zerocat/extension-mirror/util/common/vcs"
)

const (
	CodeDir   = "extension-code"
	ThumbsDir = "extension-thumbs"

	defaultAuthor   = "SharkPool"
	defaultAuthorID = "sharkpool"
)

func init() {
	if err := source.RegisterFactory(types.DIRECTORY, source.FactoryFunc(create)); err != nil {
		log.Fatal().Err(err).Msg("failed to register directory source")
	}
}

func create(_ context.Context, name string, config types.SourceConfig) (source.Source, error) {
	return New(name, config)
}

// Header is the metadata block at the top of an extension file.
type Header struct {
	Name        string
	ID          string
	Description string
	By          []string
}

func (h Header) complete() bool {
	return h.Name != "" && h.ID != "" && h.Description != ""
}

// ParseHeader reads the metadata header from the first lines of content.
func ParseHeader(content []byte) Header {
	var h Header
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for i := 0; i < types.DefaultHeaderScan && scanner.Scan(); i++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "// Name:"):
			h.Name = strings.TrimSpace(strings.TrimPrefix(line, "// Name:"))
		case strings.HasPrefix(line, "// ID:"):
			h.ID = strings.TrimSpace(strings.TrimPrefix(line, "// ID:"))
		case strings.HasPrefix(line, "// Description:"):
			h.Description = strings.TrimSpace(strings.TrimPrefix(line, "// Description:"))
		case strings.HasPrefix(line, "// By:"):
			if author := strings.TrimSpace(strings.TrimPrefix(line, "// By:")); author != "" {
				h.By = append(h.By, author)
			}
		}
	}
	return h
}

// Directory is a source backed by files on disk.
type Directory struct {
	name      string
	config    types.SourceConfig
	codeDir   string
	thumbsDir string
	patterns  []glob.Glob
	logger    zerolog.Logger

	mu    sync.RWMutex
	files map[string]string // artifact id -> file path
}

func New(name string, config types.SourceConfig) (*Directory, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("directory source %s needs a path", name)
	}
	include := config.Include
	if len(include) == 0 {
		include = []string{"*.js"}
	}
	patterns := make([]glob.Glob, 0, len(include))
	for _, p := range include {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", p, err)
		}
		patterns = append(patterns, g)
	}
	return &Directory{
		name:      name,
		config:    config,
		codeDir:   filepath.Join(config.Path, CodeDir),
		thumbsDir: filepath.Join(config.Path, ThumbsDir),
		patterns:  patterns,
		logger:    log.With().Str("source", name).Str("source_type", string(types.DIRECTORY)).Logger(),
		files:     map[string]string{},
	}, nil
}

func (d *Directory) Name() string {
	return d.name
}

// CodeDir returns the directory holding extension files.
func (d *Directory) CodeDir() string {
	return d.codeDir
}

func (d *Directory) matches(fileName string) bool {
	for _, g := range d.patterns {
		if g.Match(fileName) {
			return true
		}
	}
	return false
}

func (d *Directory) List(ctx context.Context) ([]types.ArtifactDescriptor, error) {
	entries, err := os.ReadDir(d.codeDir)
	if err != nil {
		d.logger.Error().Err(err).Str("path", d.codeDir).Msg("Failed to read extension directory")
		return nil, fmt.Errorf("%w: %v", types.ErrSourceUnavailable, errors.NewFileError(d.codeDir, "read", err))
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && d.matches(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	files := make(map[string]string, len(names))
	descriptors := make([]types.ArtifactDescriptor, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(d.codeDir, name)
		desc, err := d.Describe(path)
		if err != nil {
			d.logger.Warn().Err(err).Str("file", name).Msg("Skipping extension file")
			continue
		}
		if prev, dup := files[desc.ID]; dup {
			d.logger.Warn().Str("file", name).Str("id", desc.ID).Str("first", filepath.Base(prev)).
				Msg("Skipping extension file with duplicate id")
			continue
		}
		files[desc.ID] = path
		descriptors = append(descriptors, desc)
	}

	d.mu.Lock()
	d.files = files
	d.mu.Unlock()

	event := d.logger.Info().Int("count", len(descriptors)).Int("files", len(names))
	if checkout, err := d.Checkout(); err == nil {
		event = event.Str("checkout", checkout.URL).Str("branch", checkout.Branch).Str("revision", checkout.Short())
	}
	event.Msg("Scanned extension files")
	return descriptors, nil
}

// Checkout reports the git revision of the source root, when it is a git
// checkout.
func (d *Directory) Checkout() (*vcs.GitInfo, error) {
	return vcs.ReadCheckout(d.config.Path)
}

// Describe parses one extension file and remembers it for FetchContent.
func (d *Directory) Describe(path string) (types.ArtifactDescriptor, error) {
	content, err := fileutil.ReadFile(path)
	if err != nil {
		return types.ArtifactDescriptor{}, err
	}
	h := ParseHeader(content)
	if !h.complete() {
		return types.ArtifactDescriptor{}, errors.NewFileError(path, "parse header", types.ErrInvalidHeader)
	}

	author := defaultAuthor
	if len(h.By) > 0 {
		author = strings.Join(h.By, ", ")
	}

	d.mu.Lock()
	d.files[h.ID] = path
	d.mu.Unlock()

	return types.ArtifactDescriptor{
		ID:          h.ID,
		Name:        h.Name,
		Author:      author,
		AuthorID:    defaultAuthorID,
		Description: h.Description,
	}, nil
}

func (d *Directory) path(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.files[id]
	return p, ok
}

func (d *Directory) FetchContent(_ context.Context, id string) ([]byte, error) {
	p, ok := d.path(id)
	if !ok {
		return nil, fmt.Errorf("%w: no extension file for id %s", types.ErrSourceUnavailable, id)
	}
	content, err := fileutil.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSourceUnavailable, err)
	}
	return content, nil
}

// Thumbnail returns the PNG cover for id, or nil when there is none.
func (d *Directory) Thumbnail(_ context.Context, id string) ([]byte, error) {
	p, ok := d.path(id)
	if !ok {
		return nil, nil
	}
	base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	return fileutil.ReadOptionalFile(filepath.Join(d.thumbsDir, base+".png"))
}

func (d *Directory) Project(a types.ArtifactDescriptor) types.ProjectSpec {
	name := a.ID
	if d.config.Prefix != "" {
		name = d.config.Prefix + "-" + a.ID
	}
	return types.ProjectSpec{
		Name:  name,
		Title: a.Name,
		Description: fmt.Sprintf("%s extension mirrored from %s\nOriginal author: %s\n\n%s",
			a.Name, d.config.Label, a.Author, a.Description),
		Type: "text",
	}
}
