// Package mirror wires a configured source, the selector, the sync engine
// and the ZeroCat store into the runs exposed by the CLI.
package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zerocat/extension-mirror/module/mirror/engine"
	"github.com/zerocat/extension-mirror/module/mirror/http"
	"github.com/zerocat/extension-mirror/module/mirror/selector"
	"github.com/zerocat/extension-mirror/module/mirror/source"
	"github.com/zerocat/extension-mirror/module/mirror/store"
	"github.com/zerocat/extension-mirror/module/mirror/store/zerocat"
	"github.com/zerocat/extension-mirror/module/mirror/types"
	"github.com/zerocat/extension-mirror/util/common"
	"github.com/zerocat/extension-mirror/util/common/printer"
	"github.com/zerocat/extension-mirror/util/common/progress"

	// source implementations register themselves
	_ "github.com/zerocat/extension-mirror/module/mirror/source/catalog"
	_ "github.com/zerocat/extension-mirror/module/mirror/source/directory"
)

// Selection overrides the allow-list configured for a source. When neither
// IDs nor Authors is set the configured allow-list is used.
type Selection struct {
	IDs     []string
	Authors []string
	All     bool
}

// MirrorService runs syncs for one configured source.
type MirrorService struct {
	config    *types.Config
	name      string
	srcConfig types.SourceConfig
	source    source.Source
	store     store.Store
	reporter  progress.Reporter
	format    string
	out       io.Writer
	logger    zerolog.Logger
	ready     bool
}

type Option func(*MirrorService)

// WithStore replaces the ZeroCat store built from the configuration.
func WithStore(st store.Store) Option {
	return func(s *MirrorService) {
		s.store = st
	}
}

// WithSource replaces the source built from the configuration.
func WithSource(src source.Source) Option {
	return func(s *MirrorService) {
		s.source = src
	}
}

func WithReporter(r progress.Reporter) Option {
	return func(s *MirrorService) {
		s.reporter = r
	}
}

// WithOutput sets the result format (table, json or yaml) and the writer
// used for json and yaml output.
func WithOutput(format string, out io.Writer) Option {
	return func(s *MirrorService) {
		s.format = format
		if out != nil {
			s.out = out
		}
	}
}

// NewMirrorService resolves the named source from cfg. The store is built
// on first use so that listing works without credentials.
func NewMirrorService(ctx context.Context, cfg *types.Config, name string, opts ...Option) (*MirrorService, error) {
	srcConfig, err := cfg.Source(name)
	if err != nil {
		return nil, err
	}

	s := &MirrorService{
		config:    cfg,
		name:      name,
		srcConfig: srcConfig,
		reporter:  progress.NewNopReporter(),
		format:    printer.FormatTable,
		out:       os.Stdout,
		logger:    log.With().Str("source", name).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.source == nil {
		s.source, err = source.New(ctx, name, srcConfig)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Preview lists the artifacts a sync would process without touching the
// store.
func (s *MirrorService) Preview(ctx context.Context, sel Selection) ([]types.ArtifactDescriptor, error) {
	selected, err := s.selected(ctx, sel)
	if err != nil {
		return nil, err
	}

	type row struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Author  string `json:"author"`
		Project string `json:"project"`
	}
	rows := make([]row, 0, len(selected))
	for _, d := range selected {
		rows = append(rows, row{ID: d.ID, Name: d.Name, Author: d.Author, Project: s.source.Project(d).Name})
	}
	err = printer.Fprint(s.out, rows, s.format, printer.TableOptions{
		ColumnMapping: printer.ColumnMapping{
			{"id", "ID"}, {"name", "Name"}, {"author", "Author"}, {"project", "Project"},
		},
		Footer: fmt.Sprintf("%d extensions selected from %s", len(selected), s.name),
	})
	return selected, err
}

// Sync mirrors the selected artifacts. The returned error is set only when
// the run could not start; per-artifact failures are reported in the
// summary.
func (s *MirrorService) Sync(ctx context.Context, sel Selection, force bool) (*types.Summary, error) {
	startTime := time.Now()
	if err := s.initStore(ctx); err != nil {
		return nil, err
	}

	selected, err := s.selected(ctx, sel)
	if err != nil {
		return nil, err
	}

	summary := s.newEngine().SyncAll(ctx, selected, force)
	s.logger.Info().Str("run_id", summary.RunID).Dur("duration", time.Since(startTime)).
		Msg(summary.String())

	if err := s.printSummary(&summary); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to print summary")
	}
	return &summary, nil
}

// Watch syncs selected artifacts as the source reports them changed, until
// ctx is done. Only sources implementing source.Watcher support it.
func (s *MirrorService) Watch(ctx context.Context, sel Selection, force bool, settle time.Duration) error {
	w, ok := s.source.(source.Watcher)
	if !ok {
		return fmt.Errorf("source %s (%s) does not support watching", s.name, s.srcConfig.Type)
	}
	if err := s.initStore(ctx); err != nil {
		return err
	}
	sel = s.resolve(sel)
	eng := s.newEngine()

	// changes arriving together are paced like a batch
	var last time.Time
	return w.Watch(ctx, settle, func(ctx context.Context, d types.ArtifactDescriptor) {
		if !sel.All && len(selector.Select([]types.ArtifactDescriptor{d}, sel.IDs, sel.Authors)) == 0 {
			s.logger.Debug().Str("artifact_id", d.ID).Msg("Changed extension is not selected")
			return
		}
		if wait := s.config.Delay - time.Since(last); !last.IsZero() && wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
		res := eng.SyncOne(ctx, d, force)
		last = time.Now()
		if res.Outcome == types.OutcomeFailed {
			s.reporter.Error(fmt.Sprintf("%s: %v", res.Project, res.Err))
			return
		}
		s.reporter.Success(fmt.Sprintf("%s: %s (%s)", res.Project, res.Outcome, res.Detail))
	})
}

func (s *MirrorService) newEngine() *engine.Engine {
	return engine.NewEngine(s.source, s.store,
		engine.WithDelay(s.config.Delay),
		engine.WithReporter(s.reporter))
}

// initStore builds the ZeroCat store when none was injected and completes
// its start-up phase.
func (s *MirrorService) initStore(ctx context.Context) error {
	if s.ready {
		return nil
	}
	if s.store == nil {
		if err := s.config.ValidateForSync(s.name); err != nil {
			return err
		}
		client, err := zerocat.NewClient(zerocat.Options{
			Endpoint:   s.config.Store.Endpoint,
			Token:      s.srcConfig.Token,
			Visibility: s.config.Store.Visibility,
			Transport: []http.TransportOption{
				http.WithTimeout(s.config.Store.Timeout),
				http.WithRetryMax(s.config.Store.RetryMax),
				http.WithInsecure(s.config.Store.Insecure),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create store client: %w", err)
		}
		s.store = client
	}

	if initializer, ok := s.store.(store.Initializer); ok {
		account, err := initializer.Init(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		s.logger = s.logger.With().Str("account", account.Username).Logger()
		s.logger.Info().Str("display_name", account.DisplayName).Msg("Store ready")
	}
	s.ready = true
	return nil
}

// resolve merges command line selection with the configured one.
func (s *MirrorService) resolve(sel Selection) Selection {
	if sel.All {
		return sel
	}
	if len(sel.IDs) == 0 && len(sel.Authors) == 0 {
		return Selection{
			IDs:     s.srcConfig.Select.IDs,
			Authors: s.srcConfig.Select.Authors,
			All:     s.srcConfig.Select.All,
		}
	}
	return sel
}

func (s *MirrorService) selected(ctx context.Context, sel Selection) ([]types.ArtifactDescriptor, error) {
	all, err := s.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.name, err)
	}

	sel = s.resolve(sel)
	var selected []types.ArtifactDescriptor
	if sel.All {
		selected = selector.Dedup(all)
	} else {
		selected = selector.Select(all, sel.IDs, sel.Authors)
	}

	s.logger.Info().
		Int("listed", len(all)).
		Int("selected", len(selected)).
		Bool("all", sel.All).
		Strs("ids", sel.IDs).
		Strs("authors", sel.Authors).
		Msg("Selected extensions")
	if len(selected) == 0 {
		s.logger.Warn().Msg("No extensions matched the selection")
	}
	return selected, nil
}

type resultRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Project   string `json:"project"`
	ProjectID string `json:"projectId,omitempty"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
	Size      string `json:"size,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Duration  string `json:"duration"`
	Error     string `json:"error,omitempty"`
}

type report struct {
	RunID   string      `json:"runId"`
	Source  string      `json:"source"`
	Success int         `json:"success"`
	Fail    int         `json:"fail"`
	Created int         `json:"created"`
	Updated int         `json:"updated"`
	Skipped int         `json:"skipped"`
	Results []resultRow `json:"results"`
}

func (s *MirrorService) printSummary(summary *types.Summary) error {
	rows := make([]resultRow, 0, len(summary.Results))
	for _, r := range summary.Results {
		row := resultRow{
			ID:        r.Artifact.ID,
			Name:      r.Artifact.Name,
			Project:   r.Project,
			ProjectID: r.ProjectID,
			Outcome:   string(r.Outcome),
			Detail:    r.Detail,
			Digest:    r.Digest,
			Duration:  r.Duration.Round(time.Millisecond).String(),
		}
		if r.Size > 0 {
			row.Size = common.GetSize(r.Size)
		}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		rows = append(rows, row)
	}

	if s.format != printer.FormatTable {
		return printer.Fprint(s.out, report{
			RunID:   summary.RunID,
			Source:  s.name,
			Success: summary.Success,
			Fail:    summary.Fail,
			Created: summary.Created,
			Updated: summary.Updated,
			Skipped: summary.Skipped,
			Results: rows,
		}, s.format, printer.TableOptions{})
	}

	return printer.PrintTableWithOptions(rows, printer.TableOptions{
		ColumnMapping: printer.ColumnMapping{
			{"id", "ID"}, {"project", "Project"}, {"outcome", "Outcome"},
			{"detail", "Detail"}, {"size", "Size"}, {"duration", "Duration"}, {"error", "Error"},
		},
		Footer: summary.String(),
	})
}
