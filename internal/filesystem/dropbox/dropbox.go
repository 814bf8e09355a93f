// Package dropbox implements filesystem.FileSystem on the Dropbox HTTP API v2.
//
// Requests are authorized with an OAuth2 bearer token. When a refresh token
// and app credentials are configured the access token is refreshed on expiry.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/atinyakov/BudgetKeeper/internal/filesystem"
)

// Credential keys accepted by SetAuthentication.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyExpiry       = "expiry"
	KeyAppKey       = "app_key"
	KeyAppSecret    = "app_secret"
)

// Default endpoints of the public Dropbox service.
const (
	DefaultAPIURL     = "https://api.dropboxapi.com"
	DefaultContentURL = "https://content.dropboxapi.com"
	DefaultAuthURL    = "https://www.dropbox.com/oauth2/authorize"
	DefaultTokenURL   = "https://api.dropboxapi.com/oauth2/token"
)

// Options overrides endpoints and the HTTP client, mostly for tests.
type Options struct {
	APIURL     string
	ContentURL string
	AuthURL    string
	TokenURL   string
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.APIURL == "" {
		o.APIURL = DefaultAPIURL
	}
	if o.ContentURL == "" {
		o.ContentURL = DefaultContentURL
	}
	if o.AuthURL == "" {
		o.AuthURL = DefaultAuthURL
	}
	if o.TokenURL == "" {
		o.TokenURL = DefaultTokenURL
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return o
}

func (o Options) oauthConfig(appKey, appSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     appKey,
		ClientSecret: appSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: o.AuthURL, TokenURL: o.TokenURL},
	}
}

var _ filesystem.FileSystem = (*FS)(nil)

// FS is a Dropbox-backed provider. Paths are relative to the app folder.
type FS struct {
	opts Options

	mu     sync.RWMutex
	tokens oauth2.TokenSource
}

// New returns an unauthenticated provider.
func New(opts Options) *FS {
	return &FS{opts: opts.withDefaults()}
}

func (f *FS) Kind() filesystem.Kind { return filesystem.KindDropbox }

// SetAuthentication installs the token source. An access token alone is used
// as is; with a refresh token, app key and app secret it is refreshed on demand.
func (f *FS) SetAuthentication(creds map[string]string) error {
	access, refresh := creds[KeyAccessToken], creds[KeyRefreshToken]
	if access == "" && refresh == "" {
		return filesystem.Wrap(filesystem.KindDropbox, "auth", "", fmt.Errorf("%s or %s is required", KeyAccessToken, KeyRefreshToken))
	}

	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}
	if exp := creds[KeyExpiry]; exp != "" {
		t, err := time.Parse(time.RFC3339, exp)
		if err != nil {
			return filesystem.Wrap(filesystem.KindDropbox, "auth", "", fmt.Errorf("parse %s: %w", KeyExpiry, err))
		}
		tok.Expiry = t
	}

	var ts oauth2.TokenSource
	if refresh != "" && creds[KeyAppKey] != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, f.opts.HTTPClient)
		ts = f.opts.oauthConfig(creds[KeyAppKey], creds[KeyAppSecret]).TokenSource(ctx, tok)
	} else {
		ts = oauth2.StaticTokenSource(tok)
	}

	f.mu.Lock()
	f.tokens = ts
	f.mu.Unlock()
	return nil
}

// AuthorizationURL returns the page where the user grants access and receives
// an authorization code for Exchange.
func AuthorizationURL(appKey string, opts Options) string {
	opts = opts.withDefaults()
	return opts.oauthConfig(appKey, "").AuthCodeURL("",
		oauth2.SetAuthURLParam("token_access_type", "offline"))
}

// Exchange trades an authorization code for tokens and returns them as
// credentials for SetAuthentication.
func Exchange(ctx context.Context, appKey, appSecret, code string, opts Options) (map[string]string, error) {
	opts = opts.withDefaults()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	tok, err := opts.oauthConfig(appKey, appSecret).Exchange(ctx, code)
	if err != nil {
		return nil, filesystem.Wrap(filesystem.KindDropbox, "exchange", "", err)
	}
	creds := map[string]string{
		KeyAccessToken: tok.AccessToken,
		KeyAppKey:      appKey,
		KeyAppSecret:   appSecret,
	}
	if tok.RefreshToken != "" {
		creds[KeyRefreshToken] = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		creds[KeyExpiry] = tok.Expiry.UTC().Format(time.RFC3339)
	}
	return creds, nil
}

// apiError is the body Dropbox sends with 409 and other failures.
type apiError struct {
	Status  int    `json:"-"`
	Summary string `json:"error_summary"`
}

func (e *apiError) Error() string {
	if e.Summary == "" {
		return fmt.Sprintf("dropbox: status %d", e.Status)
	}
	return fmt.Sprintf("dropbox: status %d: %s", e.Status, e.Summary)
}

func isNotFound(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Status == http.StatusConflict && strings.Contains(ae.Summary, "not_found")
}

func isConflict(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Status == http.StatusConflict && strings.Contains(ae.Summary, "conflict")
}

func (f *FS) fail(op, name string, err error) error {
	switch {
	case isNotFound(err):
		err = fmt.Errorf("%w: %v", filesystem.ErrNotFound, err)
	case isConflict(err):
		err = fmt.Errorf("%w: %v", filesystem.ErrExists, err)
	}
	return filesystem.Wrap(filesystem.KindDropbox, op, name, err)
}

func (f *FS) token() (*oauth2.Token, error) {
	f.mu.RLock()
	ts := f.tokens
	f.mu.RUnlock()
	if ts == nil {
		return nil, filesystem.ErrNotAuthenticated
	}
	return ts.Token()
}

// do sends one request. arg is JSON encoded into the body for RPC endpoints or
// into the Dropbox-API-Arg header for content endpoints.
func (f *FS) do(ctx context.Context, base, endpoint string, arg any, content []byte, contentEndpoint bool) ([]byte, error) {
	tok, err := f.token()
	if err != nil {
		return nil, err
	}
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return nil, err
	}

	body, header, contentType := argJSON, "", "application/json"
	if contentEndpoint {
		body, header, contentType = content, string(argJSON), "application/octet-stream"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if header != "" {
		req.Header.Set("Dropbox-API-Arg", header)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	tok.SetAuthHeader(req)

	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		ae := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, ae)
		return nil, ae
	}
	return data, nil
}

func (f *FS) rpc(ctx context.Context, endpoint string, arg, out any) error {
	data, err := f.do(ctx, f.opts.APIURL, endpoint, arg, nil, false)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// dbxPath maps a provider path to a Dropbox path; the root is "".
func dbxPath(name string) (string, error) {
	clean, err := filesystem.Clean(name)
	if err != nil {
		return "", err
	}
	if clean == "" {
		return "", nil
	}
	return "/" + clean, nil
}

type pathArg struct {
	Path string `json:"path"`
}

type relocationArg struct {
	FromPath   string `json:"from_path"`
	ToPath     string `json:"to_path"`
	Autorename bool   `json:"autorename"`
}

type metadata struct {
	Tag  string `json:".tag"`
	Name string `json:"name"`
}

// Account is the subset of users/get_current_account the provider reports.
type Account struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// Verify checks the token by fetching the current account.
func (f *FS) Verify(ctx context.Context) (Account, error) {
	var acct Account
	if err := f.rpc(ctx, "/2/users/get_current_account", nil, &acct); err != nil {
		return Account{}, f.fail("verify", "", err)
	}
	return acct, nil
}

func (f *FS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	p, err := dbxPath(name)
	if err != nil {
		return nil, f.fail("read", name, err)
	}
	data, err := f.do(ctx, f.opts.ContentURL, "/2/files/download", pathArg{Path: p}, nil, true)
	if err != nil {
		return nil, f.fail("read", name, err)
	}
	return data, nil
}

type uploadArg struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Autorename bool   `json:"autorename"`
	Mute       bool   `json:"mute"`
}

func (f *FS) WriteFile(ctx context.Context, name string, data []byte) error {
	p, err := dbxPath(name)
	if err != nil {
		return f.fail("write", name, err)
	}
	if data == nil {
		data = []byte{}
	}
	arg := uploadArg{Path: p, Mode: "overwrite", Mute: true}
	if _, err := f.do(ctx, f.opts.ContentURL, "/2/files/upload", arg, data, true); err != nil {
		return f.fail("write", name, err)
	}
	return nil
}

// stat returns nil metadata when the path does not exist.
func (f *FS) stat(ctx context.Context, p string) (*metadata, error) {
	if p == "" {
		return &metadata{Tag: "folder"}, nil
	}
	var md metadata
	err := f.rpc(ctx, "/2/files/get_metadata", pathArg{Path: p}, &md)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &md, nil
}

func (f *FS) exists(ctx context.Context, name, tag string) (bool, error) {
	p, err := dbxPath(name)
	if err != nil {
		return false, f.fail("stat", name, err)
	}
	md, err := f.stat(ctx, p)
	if err != nil {
		return false, f.fail("stat", name, err)
	}
	return md != nil && md.Tag == tag, nil
}

func (f *FS) FileExists(ctx context.Context, name string) (bool, error) {
	return f.exists(ctx, name, "file")
}

func (f *FS) DirExists(ctx context.Context, dir string) (bool, error) {
	return f.exists(ctx, dir, "folder")
}

func (f *FS) remove(ctx context.Context, op, name string) error {
	p, err := dbxPath(name)
	if err != nil {
		return f.fail(op, name, err)
	}
	if p == "" {
		return f.fail(op, name, errors.New("refusing to delete the root"))
	}
	if err := f.rpc(ctx, "/2/files/delete_v2", pathArg{Path: p}, nil); err != nil && !isNotFound(err) {
		return f.fail(op, name, err)
	}
	return nil
}

func (f *FS) DeleteFile(ctx context.Context, name string) error {
	return f.remove(ctx, "delete", name)
}

func (f *FS) relocate(ctx context.Context, op, endpoint, src, dst string, overwrite bool) error {
	sp, err := dbxPath(src)
	if err != nil {
		return f.fail(op, src, err)
	}
	dp, err := dbxPath(dst)
	if err != nil {
		return f.fail(op, dst, err)
	}
	existing, err := f.stat(ctx, dp)
	if err != nil {
		return f.fail(op, dst, err)
	}
	if existing != nil {
		if !overwrite || existing.Tag == "folder" {
			return f.fail(op, dst, filesystem.ErrExists)
		}
		if err := f.rpc(ctx, "/2/files/delete_v2", pathArg{Path: dp}, nil); err != nil {
			return f.fail(op, dst, err)
		}
	}
	if err := f.rpc(ctx, endpoint, relocationArg{FromPath: sp, ToPath: dp}, nil); err != nil {
		return f.fail(op, src, err)
	}
	return nil
}

func (f *FS) CopyFile(ctx context.Context, src, dst string, overwrite bool) error {
	return f.relocate(ctx, "copy", "/2/files/copy_v2", src, dst, overwrite)
}

func (f *FS) MoveFile(ctx context.Context, src, dst string, overwrite bool) error {
	return f.relocate(ctx, "move", "/2/files/move_v2", src, dst, overwrite)
}

func (f *FS) MoveDir(ctx context.Context, src, dst string) error {
	return f.relocate(ctx, "move", "/2/files/move_v2", src, dst, false)
}

func (f *FS) CreateDir(ctx context.Context, dir string) error {
	p, err := dbxPath(dir)
	if err != nil {
		return f.fail("mkdir", dir, err)
	}
	if p == "" {
		return nil
	}
	err = f.rpc(ctx, "/2/files/create_folder_v2", struct {
		Path       string `json:"path"`
		Autorename bool   `json:"autorename"`
	}{Path: p}, nil)
	if err != nil && !isConflict(err) {
		return f.fail("mkdir", dir, err)
	}
	return nil
}

type listResult struct {
	Entries []metadata `json:"entries"`
	Cursor  string     `json:"cursor"`
	HasMore bool       `json:"has_more"`
}

func (f *FS) list(ctx context.Context, dir, pattern, tag string) ([]string, error) {
	p, err := dbxPath(dir)
	if err != nil {
		return nil, f.fail("list", dir, err)
	}
	var res listResult
	if err := f.rpc(ctx, "/2/files/list_folder", struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
	}{Path: p}, &res); err != nil {
		return nil, f.fail("list", dir, err)
	}

	var names []string
	for {
		for _, e := range res.Entries {
			if e.Tag == tag {
				names = append(names, e.Name)
			}
		}
		if !res.HasMore {
			break
		}
		cursor := res.Cursor
		res = listResult{}
		if err := f.rpc(ctx, "/2/files/list_folder/continue", struct {
			Cursor string `json:"cursor"`
		}{Cursor: cursor}, &res); err != nil {
			return nil, f.fail("list", dir, err)
		}
	}
	return filesystem.Filter(names, pattern), nil
}

func (f *FS) ListFiles(ctx context.Context, dir, pattern string) ([]string, error) {
	return f.list(ctx, dir, pattern, "file")
}

func (f *FS) ListDirs(ctx context.Context, dir, pattern string) ([]string, error) {
	return f.list(ctx, dir, pattern, "folder")
}

func (f *FS) DeleteDir(ctx context.Context, dir string, recursive bool) error {
	if !recursive {
		p, err := dbxPath(dir)
		if err != nil {
			return f.fail("rmdir", dir, err)
		}
		md, err := f.stat(ctx, p)
		if err != nil {
			return f.fail("rmdir", dir, err)
		}
		if md == nil {
			return nil
		}
		var res listResult
		if err := f.rpc(ctx, "/2/files/list_folder", pathArg{Path: p}, &res); err != nil {
			return f.fail("rmdir", dir, err)
		}
		if len(res.Entries) > 0 {
			return f.fail("rmdir", dir, filesystem.ErrNotEmpty)
		}
	}
	return f.remove(ctx, "rmdir", dir)
}
