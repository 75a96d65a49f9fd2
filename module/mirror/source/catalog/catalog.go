// Package catalog reads extensions from a remote 40code-style catalog API.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zerocat/extension-mirror/module/mirror/http"
	"github.com/zerocat/extension-mirror/module/mirror/http/modifier"
	"github.com/zerocat/extension-mirror/module/mirror/source"
	"github.com/zerocat/extension-mirror/module/mirror/types"
)

func init() {
	if err := source.RegisterFactory(types.CATALOG, source.FactoryFunc(create)); err != nil {
		log.Fatal().Err(err).Msg("failed to register catalog source")
	}
}

func create(_ context.Context, name string, config types.SourceConfig) (source.Source, error) {
	return New(name, config, nil)
}

// entry is one element of the catalog listing.
type entry struct {
	ExtID       types.ID `json:"extId"`
	Name        string   `json:"name"`
	Author      string   `json:"author"`
	AuthorID    types.ID `json:"author_id"`
	Description string   `json:"description"`
}

// Catalog is a source backed by the catalog HTTP API.
type Catalog struct {
	name   string
	config types.SourceConfig
	client *http.Client
	logger zerolog.Logger
}

// New creates a catalog source. A nil client uses the default retrying
// client.
func New(name string, config types.SourceConfig, client *http.Client) (*Catalog, error) {
	if config.ListURL == "" || config.ContentURL == "" {
		return nil, fmt.Errorf("catalog source %s needs listURL and contentURL", name)
	}
	if _, err := url.Parse(config.ListURL); err != nil {
		return nil, fmt.Errorf("invalid listURL: %w", err)
	}
	if client == nil {
		client = http.NewClient(nil, modifier.HeaderModifier{"Accept": "application/json, text/plain, */*"})
	}
	return &Catalog{
		name:   name,
		config: config,
		client: client,
		logger: log.With().Str("source", name).Str("source_type", string(types.CATALOG)).Logger(),
	}, nil
}

func (c *Catalog) Name() string {
	return c.name
}

func (c *Catalog) List(ctx context.Context) ([]types.ArtifactDescriptor, error) {
	c.logger.Info().Str("url", c.config.ListURL).Msg("Fetching extension list")

	var entries []entry
	if err := c.client.Get(ctx, c.config.ListURL, &entries); err != nil {
		c.logger.Error().Err(err).Msg("Failed to fetch extension list")
		return nil, fmt.Errorf("%w: list %s: %v", types.ErrSourceUnavailable, c.name, err)
	}

	descriptors := make([]types.ArtifactDescriptor, 0, len(entries))
	for _, e := range entries {
		if e.ExtID == "" {
			c.logger.Warn().Str("name", e.Name).Msg("Ignoring catalog entry without id")
			continue
		}
		descriptors = append(descriptors, types.ArtifactDescriptor{
			ID:          e.ExtID.String(),
			Name:        e.Name,
			Author:      e.Author,
			AuthorID:    e.AuthorID.String(),
			Description: e.Description,
		})
	}
	c.logger.Info().Int("count", len(descriptors)).Msg("Fetched extension list")
	return descriptors, nil
}

func (c *Catalog) FetchContent(ctx context.Context, id string) ([]byte, error) {
	u := strings.TrimRight(c.config.ContentURL, "/") + "/" + url.PathEscape(id) + ".js"
	data, err := c.client.GetRaw(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", types.ErrSourceUnavailable, id, err)
	}
	return data, nil
}

func (c *Catalog) Project(d types.ArtifactDescriptor) types.ProjectSpec {
	name := d.ID
	if c.config.Prefix != "" {
		name = c.config.Prefix + "-" + d.ID
	}

	author := d.Author
	if c.config.AuthorURL != "" && d.AuthorID != "" {
		link := strings.Replace(c.config.AuthorURL, types.AuthorIDPlaceholder, d.AuthorID, 1)
		author = fmt.Sprintf("[%s](%s)", d.Author, link)
	}

	return types.ProjectSpec{
		Name:  name,
		Title: fmt.Sprintf("%s(%s %s)", d.Name, c.config.Label, d.Author),
		Description: fmt.Sprintf("%s extension mirrored from %s\nOriginal author: %s %s\n\n%s",
			d.Name, c.config.Label, c.config.Label, author, d.Description),
		Type: "text",
	}
}
