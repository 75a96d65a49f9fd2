// Package zerocat implements the project store on top of the ZeroCat
// community REST API.
package zerocat

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zerocat/extension-mirror/module/mirror/http"
	"github.com/zerocat/extension-mirror/module/mirror/http/auth/bearer"
	"github.com/zerocat/extension-mirror/module/mirror/http/modifier"
	"github.com/zerocat/extension-mirror/module/mirror/store"
	"github.com/zerocat/extension-mirror/module/mirror/types"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	defaultBranch = "main"
	projectType   = "text"
)

var (
	_ store.Store       = (*Client)(nil)
	_ store.Initializer = (*Client)(nil)
)

// Options configures a Client.
type Options struct {
	Endpoint   string
	Token      string
	Visibility types.Visibility
	// HTTPClient overrides the retrying client built from the transport
	// options below.
	HTTPClient *http.Client
	Transport  []http.TransportOption
}

// Client talks to one ZeroCat backend as one account.
type Client struct {
	endpoint   string
	visibility types.Visibility
	client     *http.Client
	logger     zerolog.Logger

	mu      sync.RWMutex
	account *types.Account
}

func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("zerocat endpoint is empty")
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("zerocat token is empty")
	}
	if _, err := url.Parse(opts.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid zerocat endpoint: %w", err)
	}
	visibility := opts.Visibility
	if visibility == "" {
		visibility = types.VisibilityPublic
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.NewClient(http.NewHTTPClient(opts.Transport...),
			bearer.NewAuthorizer(opts.Token, opts.Endpoint),
			modifier.HeaderModifier{"Accept": "application/json"})
	}
	return &Client{
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		visibility: visibility,
		client:     client,
		logger:     log.With().Str("store", "zerocat").Logger(),
	}, nil
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) url(path string, query url.Values) string {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) username() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.account == nil {
		return "", types.ErrNotInitialized
	}
	return c.account.Username, nil
}

// Init resolves the account behind the token. It must complete before any
// other call.
func (c *Client) Init(ctx context.Context) (*types.Account, error) {
	var resp struct {
		envelope
		Data struct {
			Username    string `json:"username"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := c.client.Get(ctx, c.url("/user/me", nil), &resp); err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	if resp.Status != statusSuccess || resp.Data.Username == "" {
		return nil, fmt.Errorf("failed to get user info: %s", orUnknown(resp.Message))
	}

	account := &types.Account{Username: resp.Data.Username, DisplayName: resp.Data.DisplayName}
	c.mu.Lock()
	c.account = account
	c.mu.Unlock()

	c.logger.Info().Str("username", account.Username).Str("display_name", account.DisplayName).
		Msg("Resolved backend account")
	return account, nil
}

func (c *Client) ProjectExists(ctx context.Context, name string) (types.ProjectRef, error) {
	username, err := c.username()
	if err != nil {
		return types.ProjectRef{}, err
	}
	var resp struct {
		ID types.ID `json:"id"`
	}
	path := "/project/namespace/" + url.PathEscape(username) + "/" + url.PathEscape(name)
	if err := c.client.Get(ctx, c.url(path, nil), &resp); err != nil {
		if http.IsNotFound(err) {
			return types.ProjectRef{Exists: false}, nil
		}
		return types.ProjectRef{}, fmt.Errorf("failed to look up project %s: %w", name, err)
	}
	return types.ProjectRef{Exists: true, ID: resp.ID.String()}, nil
}

func (c *Client) CreateProject(ctx context.Context, spec types.ProjectSpec) (string, error) {
	if _, err := c.username(); err != nil {
		return "", err
	}
	visibility := spec.Visibility
	if visibility == "" {
		visibility = c.visibility
	}
	projType := spec.Type
	if projType == "" {
		projType = projectType
	}
	body := map[string]string{
		"name":        spec.Name,
		"title":       spec.Title,
		"description": spec.Description,
		"type":        projType,
		"state":       string(visibility),
	}

	var resp struct {
		envelope
		ID types.ID `json:"id"`
	}
	if err := c.client.Post(ctx, c.url("/project", nil), body, &resp); err != nil {
		return "", fmt.Errorf("%w: %s: %v", types.ErrCreateRejected, spec.Name, err)
	}
	if resp.Status == statusError {
		return "", fmt.Errorf("%w: %s: %s", types.ErrCreateRejected, spec.Name, orUnknown(resp.Message))
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: %s: response carried no project id", types.ErrCreateRejected, spec.Name)
	}
	c.logger.Info().Str("project", spec.Name).Str("project_id", resp.ID.String()).Msg("Created project")
	return resp.ID.String(), nil
}

func (c *Client) InitializeProject(ctx context.Context, projectID string) error {
	q := url.Values{"projectid": {projectID}, "type": {projectType}}
	var resp envelope
	// the backend route is spelled "initlize"
	if err := c.client.Post(ctx, c.url("/project/initlize", q), nil, &resp); err != nil {
		return fmt.Errorf("failed to initialize project %s: %w", projectID, err)
	}
	if resp.Status == statusError {
		return fmt.Errorf("failed to initialize project %s: %s", projectID, orUnknown(resp.Message))
	}
	return nil
}

func (c *Client) LatestVersion(ctx context.Context, projectID string) (*types.Version, error) {
	var resp struct {
		Data []struct {
			ID         types.ID `json:"id"`
			CommitFile string   `json:"commit_file"`
		} `json:"data"`
	}
	q := url.Values{"projectid": {projectID}}
	if err := c.client.Get(ctx, c.url("/project/commits", q), &resp); err != nil {
		return nil, fmt.Errorf("failed to list commits of project %s: %w", projectID, err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	latest := resp.Data[0]
	return &types.Version{ID: latest.ID.String(), ContentRef: latest.CommitFile}, nil
}

func (c *Client) VersionAccessToken(ctx context.Context, projectID, versionID string) (string, error) {
	var resp struct {
		envelope
		AccessFileToken string `json:"accessFileToken"`
	}
	q := url.Values{"projectid": {projectID}, "commitid": {versionID}}
	if err := c.client.Get(ctx, c.url("/project/commit", q), &resp); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrTokenUnavailable, err)
	}
	if resp.Status != statusSuccess || resp.AccessFileToken == "" {
		return "", fmt.Errorf("%w: %s", types.ErrTokenUnavailable, orUnknown(resp.Message))
	}
	return resp.AccessFileToken, nil
}

func (c *Client) ResolveContent(ctx context.Context, contentRef, token string) ([]byte, error) {
	q := url.Values{"accessFileToken": {token}, "content": {"true"}}
	data, err := c.client.GetRaw(ctx, c.url("/project/files/"+url.PathEscape(contentRef), q))
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", contentRef, err)
	}
	return data, nil
}

func (c *Client) UploadContent(ctx context.Context, content []byte) (*types.Upload, error) {
	var resp struct {
		SHA256          string `json:"sha256"`
		AccessFileToken string `json:"accessFileToken"`
	}
	err := c.client.PostContent(ctx, c.url("/project/savefile", nil), "text/plain", bytes.NewReader(content), &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}
	if resp.AccessFileToken == "" {
		return nil, fmt.Errorf("failed to save file: response carried no access token")
	}
	return &types.Upload{ContentRef: resp.SHA256, Token: resp.AccessFileToken}, nil
}

func (c *Client) CommitVersion(ctx context.Context, projectID, token string, commit types.Commit) (string, error) {
	branch := commit.Branch
	if branch == "" {
		branch = defaultBranch
	}
	body := map[string]string{
		"projectid":          projectID,
		"accessFileToken":    token,
		"message":            commit.Message,
		"commit_description": commit.Description,
		"branch":             branch,
	}
	var resp struct {
		envelope
		ID   types.ID `json:"id"`
		Data struct {
			ID types.ID `json:"id"`
		} `json:"data"`
	}
	if err := c.client.Put(ctx, c.url("/project/commit/id/"+url.PathEscape(projectID), nil), body, &resp); err != nil {
		return "", fmt.Errorf("%w: project %s: %v", types.ErrCommitFailed, projectID, err)
	}
	if resp.Status == statusError {
		return "", fmt.Errorf("%w: project %s: %s", types.ErrCommitFailed, projectID, orUnknown(resp.Message))
	}
	if resp.Data.ID != "" {
		return resp.Data.ID.String(), nil
	}
	return resp.ID.String(), nil
}

func (c *Client) UploadThumbnail(ctx context.Context, projectID string, image []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s.png"`, projectID))
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(image); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	path := "/scratch/thumbnail/" + url.PathEscape(projectID)
	if err := c.client.PostContent(ctx, c.url(path, nil), w.FormDataContentType(), &buf); err != nil {
		return fmt.Errorf("failed to upload thumbnail for project %s: %w", projectID, err)
	}
	return nil
}

func orUnknown(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}
