package insta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/Sayuri/common/retry"
)

const (
	defaultBaseURL = "https://www.instagram.com"

	// appID is the X-IG-App-ID value the Instagram web client sends.
	appID = "936619743392459"

	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	// listPageSize is the page size used for follower/following pagination.
	listPageSize = 100
)

// Client implements Provider against Instagram's private web API.
//
// A mutex serializes all calls: the underlying session state (cookies, CSRF
// token, challenge context) is not safe for concurrent use, and an immediate
// action may race a running batch on the same account session.
type Client struct {
	mu sync.Mutex

	http    *http.Client
	baseURL string

	userID   string
	username string

	// Retained between a Login that hit a branch and the follow-up call.
	twoFactorID  string
	challengeURL string
}

var _ Provider = (*Client)(nil)

// NewClient returns an unauthenticated Client against the real Instagram API.
// Its signature matches Factory.
func NewClient() Provider {
	return NewClientWithBaseURL(defaultBaseURL)
}

// NewClientWithBaseURL returns a Client that talks to base instead of the
// production endpoint. Used by tests.
func NewClientWithBaseURL(base string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		http: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimSuffix(base, "/"),
	}
}

// ── login flow ───────────────────────────────────────────────────────────────

type loginResponse struct {
	Authenticated bool   `json:"authenticated"`
	User          bool   `json:"user"`
	UserID        string `json:"userId"`
	Message       string `json:"message"`
	Status        string `json:"status"`
	CheckpointURL string `json:"checkpoint_url"`

	TwoFactorRequired bool `json:"two_factor_required"`
	TwoFactorInfo     struct {
		TwoFactorIdentifier string `json:"two_factor_identifier"`
	} `json:"two_factor_info"`
}

// Login authenticates with the web login endpoint. The password is sent in
// the browser enc_password envelope and is not retained by the client.
func (c *Client) Login(ctx context.Context, username, password string) (*Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.primeSession(ctx); err != nil {
		return nil, err
	}

	form := url.Values{
		"username":     {username},
		"enc_password": {encPassword(password)},
	}
	var resp loginResponse
	if err := c.postForm(ctx, "/api/v1/web/accounts/login/ajax/", form, &resp); err != nil {
		return nil, err
	}

	c.username = username
	return c.finishLogin(ctx, &resp)
}

// LoginWithSecondFactor retries a login that returned ErrTwoFactorRequired.
func (c *Client) LoginWithSecondFactor(ctx context.Context, username, password, code string) (*Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.twoFactorID == "" {
		return nil, &AuthError{Reason: "no pending two-factor login"}
	}

	form := url.Values{
		"username":         {username},
		"verificationCode": {code},
		"identifier":       {c.twoFactorID},
	}
	var resp loginResponse
	if err := c.postForm(ctx, "/api/v1/web/accounts/login/ajax/two_factor/", form, &resp); err != nil {
		return nil, err
	}
	c.twoFactorID = ""

	c.username = username
	if !resp.Authenticated {
		return nil, &AuthError{Reason: nonEmpty(resp.Message, "two-factor code rejected")}
	}
	c.userID = resp.UserID
	return c.accountInfoLocked(ctx)
}

// ResolveChallenge posts the verification code to the challenge context
// retained from the failed login and re-establishes the session.
func (c *Client) ResolveChallenge(ctx context.Context, code string) (*Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.challengeURL == "" {
		return nil, &AuthError{Reason: "no pending challenge"}
	}

	form := url.Values{"security_code": {code}}
	var resp loginResponse
	if err := c.postForm(ctx, c.challengeURL, form, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, &AuthError{Reason: nonEmpty(resp.Message, "challenge code rejected")}
	}
	c.challengeURL = ""
	if resp.UserID != "" {
		c.userID = resp.UserID
	}
	return c.accountInfoLocked(ctx)
}

// finishLogin maps a login response onto the three spec outcomes.
func (c *Client) finishLogin(ctx context.Context, resp *loginResponse) (*Profile, error) {
	switch {
	case resp.TwoFactorRequired:
		c.twoFactorID = resp.TwoFactorInfo.TwoFactorIdentifier
		return nil, ErrTwoFactorRequired
	case resp.Message == "checkpoint_required":
		c.challengeURL = resp.CheckpointURL
		return nil, ErrChallengeRequired
	case resp.Authenticated:
		c.userID = resp.UserID
		return c.accountInfoLocked(ctx)
	case !resp.User:
		return nil, &AuthError{Reason: "username not found"}
	default:
		return nil, &AuthError{Reason: nonEmpty(resp.Message, "incorrect password")}
	}
}

// ── profile and target lists ─────────────────────────────────────────────────

type webProfileResponse struct {
	Data struct {
		User *struct {
			ID             string `json:"id"`
			Username       string `json:"username"`
			FullName       string `json:"full_name"`
			EdgeFollowedBy struct {
				Count int `json:"count"`
			} `json:"edge_followed_by"`
			EdgeFollow struct {
				Count int `json:"count"`
			} `json:"edge_follow"`
			EdgeOwnerToTimelineMedia struct {
				Count int `json:"count"`
			} `json:"edge_owner_to_timeline_media"`
		} `json:"user"`
	} `json:"data"`
	Status string `json:"status"`
}

// AccountInfo returns the authenticated account's current profile summary.
func (c *Client) AccountInfo(ctx context.Context) (*Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountInfoLocked(ctx)
}

func (c *Client) accountInfoLocked(ctx context.Context) (*Profile, error) {
	if c.username == "" {
		return nil, ErrNotLoggedIn
	}
	return c.webProfile(ctx, c.username)
}

func (c *Client) webProfile(ctx context.Context, username string) (*Profile, error) {
	var resp webProfileResponse
	path := "/api/v1/users/web_profile_info/?username=" + url.QueryEscape(username)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	u := resp.Data.User
	if u == nil {
		return nil, ErrNotFound
	}
	return &Profile{
		ID:             u.ID,
		Username:       u.Username,
		FullName:       u.FullName,
		FollowerCount:  u.EdgeFollowedBy.Count,
		FollowingCount: u.EdgeFollow.Count,
		MediaCount:     u.EdgeOwnerToTimelineMedia.Count,
	}, nil
}

type friendshipPage struct {
	Users []struct {
		PK       json.Number `json:"pk"`
		Username string      `json:"username"`
	} `json:"users"`
	NextMaxID string `json:"next_max_id"`
	Status    string `json:"status"`
}

// ListFollowers fetches the full follower list, page by page, in the order
// the API returns it.
func (c *Client) ListFollowers(ctx context.Context) ([]Target, error) {
	return c.listFriendships(ctx, "followers")
}

// ListFollowing fetches the full following list, page by page, in the order
// the API returns it.
func (c *Client) ListFollowing(ctx context.Context) ([]Target, error) {
	return c.listFriendships(ctx, "following")
}

func (c *Client) listFriendships(ctx context.Context, edge string) ([]Target, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userID == "" {
		return nil, ErrNotLoggedIn
	}

	var targets []Target
	maxID := ""
	for {
		path := fmt.Sprintf("/api/v1/friendships/%s/%s/?count=%d", c.userID, edge, listPageSize)
		if maxID != "" {
			path += "&max_id=" + url.QueryEscape(maxID)
		}

		// Page fetches are read-only and retried on transient failure;
		// mutating calls never are.
		var page friendshipPage
		err := retry.Do(ctx, retry.DefaultConfig, func() error {
			page = friendshipPage{}
			return c.getJSON(ctx, path, &page)
		})
		if err != nil {
			return nil, &ProviderError{Op: "list " + edge, Err: err}
		}

		for _, u := range page.Users {
			targets = append(targets, Target{ID: u.PK.String(), Username: u.Username})
		}
		if page.NextMaxID == "" {
			return targets, nil
		}
		maxID = page.NextMaxID
	}
}

// ── mutating actions ─────────────────────────────────────────────────────────

// Unfollow removes the follow edge to targetID. One real mutation per call;
// never retried.
func (c *Client) Unfollow(ctx context.Context, targetID string) error {
	return c.friendshipAction(ctx, "unfollow", "/api/v1/friendships/destroy/"+targetID+"/")
}

// RemoveFollower removes targetID from the account's followers. One real
// mutation per call; never retried.
func (c *Client) RemoveFollower(ctx context.Context, targetID string) error {
	return c.friendshipAction(ctx, "remove follower", "/api/v1/friendships/remove_follower/"+targetID+"/")
}

func (c *Client) friendshipAction(ctx context.Context, op, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userID == "" {
		return ErrNotLoggedIn
	}

	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.postForm(ctx, path, url.Values{}, &resp); err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	if resp.Status != "ok" {
		return &ProviderError{Op: op, Err: fmt.Errorf("status %q: %s", resp.Status, resp.Message)}
	}
	return nil
}

// ResolveIDByUsername maps a username to its account ID.
func (c *Client) ResolveIDByUsername(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	profile, err := c.webProfile(ctx, name)
	if err != nil {
		return "", err
	}
	return profile.ID, nil
}

// ── resumable login context ──────────────────────────────────────────────────

type settingsBlob struct {
	UserID   string          `json:"user_id"`
	Username string          `json:"username"`
	Cookies  []settingCookie `json:"cookies"`
}

type settingCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ExportSettings serializes the session cookies and identifiers so the
// authenticated context can be resumed without credentials.
func (c *Client) ExportSettings() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	blob := settingsBlob{UserID: c.userID, Username: c.username}
	for _, ck := range c.http.Jar.Cookies(base) {
		blob.Cookies = append(blob.Cookies, settingCookie{Name: ck.Name, Value: ck.Value})
	}
	return json.Marshal(blob)
}

// RestoreSettings loads a previously exported login context.
func (c *Client) RestoreSettings(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var blob settingsBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse base URL: %w", err)
	}
	cookies := make([]*http.Cookie, 0, len(blob.Cookies))
	for _, ck := range blob.Cookies {
		cookies = append(cookies, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: "/"})
	}
	c.http.Jar.SetCookies(base, cookies)
	c.userID = blob.UserID
	c.username = blob.Username
	return nil
}

// ── HTTP plumbing ────────────────────────────────────────────────────────────

// primeSession performs the preflight GET that seeds the csrftoken cookie.
// Skipped when the cookie is already present (restored session).
func (c *Client) primeSession(ctx context.Context) error {
	if c.csrfToken() != "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("prime session: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (c *Client) csrfToken() string {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.http.Jar.Cookies(base) {
		if ck.Name == "csrftoken" {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-IG-App-ID", appID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", c.baseURL+"/")
	if token := c.csrfToken(); token != "" {
		req.Header.Set("X-CSRFToken", token)
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	return c.doJSON(req, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// 400-level login responses still carry a JSON body with the branch
		// markers (two_factor_required, checkpoint_required); decode those
		// before giving up.
		if json.Unmarshal(body, out) == nil {
			return nil
		}
		return &AuthError{Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}

// encPassword wraps the password in the plaintext browser envelope. The web
// client normally seals this with a published key; the :0: version ID marks
// an unsealed payload and is accepted over TLS.
func encPassword(password string) string {
	return fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", time.Now().Unix(), password)
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
