package app

import (
	"net/http"
	"testing"
)

func signUpUser(t *testing.T, handler http.Handler, username string) string {
	t.Helper()
	rr, payload := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"username": username,
		"password": "correct-horse",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup %s: %d %s", username, rr.Code, rr.Body.String())
	}
	token, _ := payload["token"].(string)
	return token
}

// End to end: an owner shares a session with a teammate, publishes it, and
// takes it private again, killing the link.
func TestSharingFlowOverHTTP(t *testing.T) {
	fs := newFakeStore()
	server := NewHTTPServer(newTestService(fs), "*")
	handler := server.Handler()

	ownerToken := signUpUser(t, handler, "avery")
	shareeToken := signUpUser(t, handler, "blake")

	rr, project := doJSON(t, handler, http.MethodPost, "/api/projects", ownerToken, map[string]any{
		"name": "Research",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create project: %d %s", rr.Code, rr.Body.String())
	}
	projectID := project["id"].(string)

	rr, chat := doJSON(t, handler, http.MethodPost, "/api/projects/"+projectID+"/sessions", ownerToken, map[string]any{
		"title": "Planning",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rr.Code, rr.Body.String())
	}
	sessionID := chat["id"].(string)
	if chat["visibility"] != "private" {
		t.Fatalf("new sessions must start private, got %v", chat["visibility"])
	}

	// The sharee cannot see the private session at all.
	rr, _ = doJSON(t, handler, http.MethodGet, "/api/sessions/"+sessionID, shareeToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("private session for outsider: expected 404, got %d", rr.Code)
	}

	rr, share := doJSON(t, handler, http.MethodPost, "/api/sessions/"+sessionID+"/shares", ownerToken, map[string]any{
		"username":   "blake",
		"permission": "comment",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("share: %d %s", rr.Code, rr.Body.String())
	}
	if share["permission"] != "comment" {
		t.Fatalf("expected comment grant, got %v", share["permission"])
	}

	rr, perm := doJSON(t, handler, http.MethodGet, "/api/sessions/"+sessionID+"/permission", shareeToken, nil)
	if rr.Code != http.StatusOK || perm["permission"] != "comment" {
		t.Fatalf("sharee permission: %d %v", rr.Code, perm)
	}

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/sessions/"+sessionID+"/messages", shareeToken, map[string]any{
		"role": "user",
		"body": "looks good",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("sharee comment: %d %s", rr.Code, rr.Body.String())
	}

	// The sharee cannot manage sharing.
	rr, _ = doJSON(t, handler, http.MethodPut, "/api/sessions/"+sessionID+"/visibility", shareeToken, map[string]any{
		"visibility": "public",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("sharee visibility change: expected 403, got %d", rr.Code)
	}

	rr, updated := doJSON(t, handler, http.MethodPut, "/api/sessions/"+sessionID+"/visibility", ownerToken, map[string]any{
		"visibility": "shared",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("go shared: %d %s", rr.Code, rr.Body.String())
	}
	token, _ := updated["shareToken"].(string)
	if len(token) != 32 {
		t.Fatalf("expected 32 hex chars of share token, got %q", token)
	}

	// Anyone with the link can read it, no credentials required.
	rr, resolved := doJSON(t, handler, http.MethodGet, "/share/"+token, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("anonymous share link: %d %s", rr.Code, rr.Body.String())
	}
	if resolved["type"] != "session" {
		t.Fatalf("expected session resolution, got %v", resolved["type"])
	}
	resolvedSession := resolved["session"].(map[string]any)
	if _, present := resolvedSession["shareToken"]; present {
		t.Fatalf("share payload must not echo the token as owner data")
	}

	// shared -> public keeps the same link working.
	rr, updated = doJSON(t, handler, http.MethodPut, "/api/sessions/"+sessionID+"/visibility", ownerToken, map[string]any{
		"visibility": "public",
	})
	if rr.Code != http.StatusOK || updated["shareToken"] != token {
		t.Fatalf("shared->public must keep the token: %d %v", rr.Code, updated["shareToken"])
	}

	// Back to private: the link dies.
	rr, _ = doJSON(t, handler, http.MethodPut, "/api/sessions/"+sessionID+"/visibility", ownerToken, map[string]any{
		"visibility": "private",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("go private: %d", rr.Code)
	}
	rr, _ = doJSON(t, handler, http.MethodGet, "/share/"+token, "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("stale share link: expected 404, got %d", rr.Code)
	}

	// The explicit grant still works while the session is private.
	rr, _ = doJSON(t, handler, http.MethodGet, "/api/sessions/"+sessionID, shareeToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("grant should survive visibility changes: %d", rr.Code)
	}
}

func TestDiscoveryEndpointsAreAnonymous(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	handler := server.Handler()

	owner := seedUser(fs, "usr_owner", "avery")
	seedProject(fs, "prj_1", owner.ID, "Research", "public")
	seedSession(fs, "ses_1", "prj_1", owner.ID, "Planning", "public")

	rr, payload := doJSON(t, handler, http.MethodGet, "/api/discover/sessions", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("discover sessions: %d", rr.Code)
	}
	sessions := payload["sessions"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("expected one public session, got %d", len(sessions))
	}
	if _, present := sessions[0].(map[string]any)["shareToken"]; present {
		t.Fatalf("share token leaked in anonymous discovery")
	}

	rr, payload = doJSON(t, handler, http.MethodGet, "/api/discover/projects", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("discover projects: %d", rr.Code)
	}
	if len(payload["projects"].([]any)) != 1 {
		t.Fatalf("expected one public project")
	}

	rr, _ = doJSON(t, handler, http.MethodGet, "/api/discover/search", "", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("search without q: expected 422, got %d", rr.Code)
	}
}
