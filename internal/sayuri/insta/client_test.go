package insta_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bdobrica/Sayuri/internal/sayuri/insta"
)

// igServer is a minimal scripted Instagram web API.
type igServer struct {
	mux *http.ServeMux
	srv *httptest.Server
}

func newIGServer(t *testing.T) *igServer {
	t.Helper()
	s := &igServer{mux: http.NewServeMux()}
	// Preflight page that seeds the CSRF cookie.
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "testtoken", Path: "/"})
		fmt.Fprint(w, "<html></html>")
	})
	s.srv = httptest.NewServer(s.mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *igServer) handle(path string, fn http.HandlerFunc) {
	s.mux.HandleFunc(path, fn)
}

// profileHandler serves the web_profile_info endpoint for one account.
func profileHandler(username string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("username") != username {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"data":{"user":{"id":"111","username":"%s","full_name":"Alice A","edge_followed_by":{"count":250},"edge_follow":{"count":300},"edge_owner_to_timeline_media":{"count":12}}},"status":"ok"}`, username)
	}
}

func TestLoginSuccess(t *testing.T) {
	s := newIGServer(t)
	s.handle("/api/v1/web/accounts/login/ajax/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("login method = %s, want POST", r.Method)
		}
		r.ParseForm()
		if r.PostForm.Get("username") != "alice" {
			t.Errorf("username = %q", r.PostForm.Get("username"))
		}
		if enc := r.PostForm.Get("enc_password"); enc == "" || enc == "hunter2" {
			t.Errorf("enc_password = %q, want the browser envelope, not the raw password", enc)
		}
		if r.Header.Get("X-CSRFToken") != "testtoken" {
			t.Errorf("X-CSRFToken = %q, want the seeded token", r.Header.Get("X-CSRFToken"))
		}
		fmt.Fprint(w, `{"authenticated":true,"user":true,"userId":"111","status":"ok"}`)
	})
	s.handle("/api/v1/users/web_profile_info/", profileHandler("alice"))

	client := insta.NewClientWithBaseURL(s.srv.URL)
	profile, err := client.Login(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if profile.ID != "111" || profile.Username != "alice" {
		t.Errorf("profile = %+v", profile)
	}
	if profile.FollowerCount != 250 || profile.FollowingCount != 300 || profile.MediaCount != 12 {
		t.Errorf("profile counts = %+v", profile)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	s := newIGServer(t)
	s.handle("/api/v1/web/accounts/login/ajax/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"authenticated":false,"user":true,"status":"fail","message":"incorrect password"}`)
	})

	client := insta.NewClientWithBaseURL(s.srv.URL)
	_, err := client.Login(context.Background(), "alice", "wrong")

	var authErr *insta.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want *AuthError", err)
	}
}

func TestLoginTwoFactorBranch(t *testing.T) {
	s := newIGServer(t)
	s.handle("/api/v1/web/accounts/login/ajax/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"two_factor_required":true,"two_factor_info":{"two_factor_identifier":"tf-123"},"status":"fail"}`)
	})
	s.handle("/api/v1/web/accounts/login/ajax/two_factor/", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("identifier") != "tf-123" {
			t.Errorf("identifier = %q, want the retained two-factor ID", r.PostForm.Get("identifier"))
		}
		if r.PostForm.Get("verificationCode") != "654321" {
			t.Errorf("verificationCode = %q", r.PostForm.Get("verificationCode"))
		}
		fmt.Fprint(w, `{"authenticated":true,"user":true,"userId":"111","status":"ok"}`)
	})
	s.handle("/api/v1/users/web_profile_info/", profileHandler("alice"))

	client := insta.NewClientWithBaseURL(s.srv.URL)
	_, err := client.Login(context.Background(), "alice", "hunter2")
	if !errors.Is(err, insta.ErrTwoFactorRequired) {
		t.Fatalf("Login err = %v, want ErrTwoFactorRequired", err)
	}

	profile, err := client.LoginWithSecondFactor(context.Background(), "alice", "hunter2", "654321")
	if err != nil {
		t.Fatalf("LoginWithSecondFactor: %v", err)
	}
	if profile.Username != "alice" {
		t.Errorf("profile = %+v", profile)
	}
}

func TestLoginChallengeBranch(t *testing.T) {
	s := newIGServer(t)
	s.handle("/api/v1/web/accounts/login/ajax/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":"checkpoint_required","checkpoint_url":"/challenge/111/abc/","status":"fail"}`)
	})
	s.handle("/challenge/111/abc/", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("security_code") != "424242" {
			t.Errorf("security_code = %q", r.PostForm.Get("security_code"))
		}
		fmt.Fprint(w, `{"status":"ok","userId":"111"}`)
	})
	s.handle("/api/v1/users/web_profile_info/", profileHandler("alice"))

	client := insta.NewClientWithBaseURL(s.srv.URL)
	_, err := client.Login(context.Background(), "alice", "hunter2")
	if !errors.Is(err, insta.ErrChallengeRequired) {
		t.Fatalf("Login err = %v, want ErrChallengeRequired", err)
	}

	profile, err := client.ResolveChallenge(context.Background(), "424242")
	if err != nil {
		t.Fatalf("ResolveChallenge: %v", err)
	}
	if profile.Username != "alice" {
		t.Errorf("profile = %+v", profile)
	}
}

func TestResolveChallengeWithoutPendingChallenge(t *testing.T) {
	s := newIGServer(t)
	client := insta.NewClientWithBaseURL(s.srv.URL)

	_, err := client.ResolveChallenge(context.Background(), "123456")
	var authErr *insta.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want *AuthError", err)
	}
}

// restoreSession puts the client into an authenticated state without a login
// round trip.
func restoreSession(t *testing.T, client *insta.Client) {
	t.Helper()
	blob := []byte(`{"user_id":"111","username":"alice","cookies":[{"name":"csrftoken","value":"testtoken"},{"name":"sessionid","value":"sess"}]}`)
	if err := client.RestoreSettings(blob); err != nil {
		t.Fatalf("RestoreSettings: %v", err)
	}
}

func TestListFollowersPaginates(t *testing.T) {
	s := newIGServer(t)
	s.handle("/api/v1/friendships/111/followers/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("max_id") {
		case "":
			fmt.Fprint(w, `{"users":[{"pk":1,"username":"one"},{"pk":2,"username":"two"}],"next_max_id":"page2","status":"ok"}`)
		case "page2":
			fmt.Fprint(w, `{"users":[{"pk":3,"username":"three"}],"status":"ok"}`)
		default:
			t.Errorf("unexpected max_id %q", r.URL.Query().Get("max_id"))
		}
	})

	client := insta.NewClientWithBaseURL(s.srv.URL)
	restoreSession(t, client)

	targets, err := client.ListFollowers(context.Background())
	if err != nil {
		t.Fatalf("ListFollowers: %v", err)
	}
	if len(targets) != 3 {
		t.Fatalf("targets = %d, want 3", len(targets))
	}
	// Provider order is preserved across pages.
	want := []insta.Target{{ID: "1", Username: "one"}, {ID: "2", Username: "two"}, {ID: "3", Username: "three"}}
	for i, tgt := range targets {
		if tgt != want[i] {
			t.Errorf("targets[%d] = %+v, want %+v", i, tgt, want[i])
		}
	}
}

func TestListRequiresLogin(t *testing.T) {
	s := newIGServer(t)
	client := insta.NewClientWithBaseURL(s.srv.URL)

	if _, err := client.ListFollowing(context.Background()); !errors.Is(err, insta.ErrNotLoggedIn) {
		t.Errorf("err = %v, want ErrNotLoggedIn", err)
	}
}

func TestUnfollow(t *testing.T) {
	s := newIGServer(t)
	s.handle("/api/v1/friendships/destroy/77/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	client := insta.NewClientWithBaseURL(s.srv.URL)
	restoreSession(t, client)

	if err := client.Unfollow(context.Background(), "77"); err != nil {
		t.Fatalf("Unfollow: %v", err)
	}
}

func TestRemoveFollowerRejected(t *testing.T) {
	s := newIGServer(t)
	s.handle("/api/v1/friendships/remove_follower/88/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"fail","message":"action blocked"}`)
	})

	client := insta.NewClientWithBaseURL(s.srv.URL)
	restoreSession(t, client)

	err := client.RemoveFollower(context.Background(), "88")
	var provErr *insta.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
}

func TestResolveIDByUsername(t *testing.T) {
	s := newIGServer(t)
	s.handle("/api/v1/users/web_profile_info/", profileHandler("bob"))

	client := insta.NewClientWithBaseURL(s.srv.URL)
	restoreSession(t, client)

	id, err := client.ResolveIDByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("ResolveIDByUsername: %v", err)
	}
	if id != "111" {
		t.Errorf("id = %q, want 111", id)
	}

	if _, err := client.ResolveIDByUsername(context.Background(), "nobody"); !errors.Is(err, insta.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newIGServer(t)
	client := insta.NewClientWithBaseURL(s.srv.URL)
	restoreSession(t, client)

	blob, err := client.ExportSettings()
	if err != nil {
		t.Fatalf("ExportSettings: %v", err)
	}

	fresh := insta.NewClientWithBaseURL(s.srv.URL)
	if err := fresh.RestoreSettings(blob); err != nil {
		t.Fatalf("RestoreSettings: %v", err)
	}

	// The restored client can issue authenticated calls without a login.
	s.handle("/api/v1/friendships/destroy/5/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	if err := fresh.Unfollow(context.Background(), "5"); err != nil {
		t.Fatalf("Unfollow after restore: %v", err)
	}
}
