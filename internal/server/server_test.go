package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/dukerupert/courtside/internal/config"
	"github.com/dukerupert/courtside/internal/database"
	"github.com/dukerupert/courtside/internal/email"
	"github.com/dukerupert/courtside/internal/flags"
	"github.com/dukerupert/courtside/internal/sports"
	ws "github.com/dukerupert/courtside/internal/websocket"
)

const testSecret = "test-secret"

type testEnv struct {
	ts    *httptest.Server
	codec *flags.Codec
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	catalog, err := sports.Default()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewUnstartedServer(nil)
	cfg := &config.Config{
		BaseURL:         "http://" + ts.Listener.Addr().String(),
		SessionSecret:   testSecret,
		RateLimit:       100,
		CleanupInterval: time.Hour,
		OriginPatterns:  []string{ts.Listener.Addr().String()},
	}

	srv, err := New(db, cfg, catalog, email.NewClient("", ""), logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts.Config.Handler = srv.Router()
	ts.Start()
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, codec: flags.NewCodec(testSecret)}
}

// browser returns a client with a cookie jar that does not follow redirects.
func (e *testEnv) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(e.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return readBody(t, resp)
}

func (e *testEnv) post(t *testing.T, c *http.Client, path string, form url.Values, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) (*http.Response, string) {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(b)
}

func (e *testEnv) flagsOf(t *testing.T, c *http.Client) flags.Flags {
	t.Helper()
	u, _ := url.Parse(e.ts.URL)
	for _, cookie := range c.Jar.Cookies(u) {
		if cookie.Name == flags.CookieName {
			f, err := e.codec.Decode(cookie.Value)
			if err != nil {
				t.Fatalf("decode flags: %v", err)
			}
			return f
		}
	}
	t.Fatal("flags cookie not set")
	return flags.Flags{}
}

func (e *testEnv) startFreeGame(t *testing.T, c *http.Client) string {
	t.Helper()
	e.post(t, c, "/free", nil, nil)
	resp, _ := e.post(t, c, "/games", url.Values{"sport": {"basketball"}}, nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("create game status = %d, want 303", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	code := strings.TrimSuffix(strings.TrimPrefix(loc, "/games/"), "/control")
	if len(code) != 6 {
		t.Fatalf("Location = %q, want /games/{code}/control", loc)
	}
	return code
}

func TestLandingAnonymous(t *testing.T) {
	e := setup(t)
	c := e.browser(t)

	resp, body := e.get(t, c, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, `action="/auth/signin"`) {
		t.Error("landing should render the sign-in form")
	}
	if got := e.flagsOf(t, c); got != flags.Guest {
		t.Errorf("flags = %+v, want guest", got)
	}
}

func TestSignUpFlow(t *testing.T) {
	e := setup(t)
	c := e.browser(t)

	resp, _ := e.post(t, c, "/auth/signup", url.Values{
		"email":    {"coach@example.com"},
		"password": {"hunter22"},
		"confirm":  {"hunter22"},
	}, nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/sports?mode=host" {
		t.Errorf("Location = %q, want /sports?mode=host", loc)
	}
	if got := e.flagsOf(t, c); got != (flags.Flags{IsHost: true, Mode: flags.ModeHost}) {
		t.Errorf("flags = %+v, want host", got)
	}

	resp, body := e.get(t, c, "/sports?mode=host")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sports status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "Account created") {
		t.Error("flashed notification should render on the next page")
	}
	if !strings.Contains(body, "Basketball") {
		t.Error("sports page should list the catalog")
	}

	// A returning visitor with a live session skips the sign-in view.
	resp, _ = e.get(t, c, "/")
	if loc := resp.Header.Get("Location"); resp.StatusCode != http.StatusSeeOther || loc != "/sports?mode=host" {
		t.Errorf("landing = %d %q, want 303 /sports?mode=host", resp.StatusCode, loc)
	}

	resp, body = e.get(t, c, "/api/profile")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		Profile struct {
			DisplayName string   `json:"display_name"`
			HostedGames []string `json:"hosted_games"`
		} `json:"profile"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if out.Profile.DisplayName != "coach" {
		t.Errorf("DisplayName = %q, want coach", out.Profile.DisplayName)
	}
}

func TestSignUpValidation(t *testing.T) {
	e := setup(t)
	c := e.browser(t)

	resp, body := e.post(t, c, "/auth/signup", url.Values{
		"email":    {"coach@example.com"},
		"password": {"abc"},
		"confirm":  {"abc"},
	}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if !strings.Contains(body, "Password must be at least 6 characters") {
		t.Error("validation notification missing")
	}
	if !strings.Contains(body, `value="coach@example.com"`) {
		t.Error("email should be kept in the form")
	}
}

func TestSignInWrongPassword(t *testing.T) {
	e := setup(t)
	c := e.browser(t)
	e.post(t, c, "/auth/signup", url.Values{
		"email": {"coach@example.com"}, "password": {"hunter22"}, "confirm": {"hunter22"},
	}, nil)

	other := e.browser(t)
	resp, body := e.post(t, other, "/auth/signin", url.Values{
		"email": {"coach@example.com"}, "password": {"wrong-one"},
	}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if !strings.Contains(body, "Invalid email or password") {
		t.Error("sign-in error notification missing")
	}

	resp, _ = e.post(t, other, "/auth/signin", url.Values{
		"email": {"coach@example.com"}, "password": {"hunter22"},
	}, nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
}

func TestSignOut(t *testing.T) {
	e := setup(t)
	c := e.browser(t)
	e.post(t, c, "/auth/signup", url.Values{
		"email": {"coach@example.com"}, "password": {"hunter22"}, "confirm": {"hunter22"},
	}, nil)

	resp, _ := e.post(t, c, "/auth/signout", nil, nil)
	if loc := resp.Header.Get("Location"); loc != "/auth?tab=signin" {
		t.Errorf("Location = %q, want /auth?tab=signin", loc)
	}
	if got := e.flagsOf(t, c); got != flags.Guest {
		t.Errorf("flags = %+v, want guest", got)
	}

	resp, _ = e.get(t, c, "/api/profile")
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("profile after sign-out = %d, want 303", resp.StatusCode)
	}
}

func TestFreeHost(t *testing.T) {
	e := setup(t)
	c := e.browser(t)

	resp, _ := e.post(t, c, "/free", nil, nil)
	if loc := resp.Header.Get("Location"); loc != "/sports?mode=free" {
		t.Errorf("Location = %q, want /sports?mode=free", loc)
	}
	if got := e.flagsOf(t, c); got != (flags.Flags{IsHost: true, Mode: flags.ModeFree}) {
		t.Errorf("flags = %+v, want free host", got)
	}

	resp, body := e.get(t, c, "/sports?mode=free")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Host a game") {
		t.Errorf("free sports page = %d", resp.StatusCode)
	}
}

func TestSportsFreeModeRequiresFlags(t *testing.T) {
	e := setup(t)
	c := e.browser(t)

	resp, _ := e.get(t, c, "/sports?mode=free")
	if loc := resp.Header.Get("Location"); resp.StatusCode != http.StatusSeeOther || loc != "/" {
		t.Errorf("got %d %q, want 303 /", resp.StatusCode, loc)
	}
}

func TestWatchInvalidCode(t *testing.T) {
	e := setup(t)
	c := e.browser(t)

	resp, body := e.post(t, c, "/watch", url.Values{"code": {"12ab"}}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if !strings.Contains(body, "Please enter a valid 6-digit game code") {
		t.Error("invalid code message missing")
	}
	if !strings.Contains(body, `value="12"`) {
		t.Error("sanitized code should be echoed back")
	}
}

func TestWatchNotFoundHTMX(t *testing.T) {
	e := setup(t)
	c := e.browser(t)

	resp, body := e.post(t, c, "/watch", url.Values{"code": {"123456"}}, http.Header{"Hx-Request": {"true"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, `class="inline-error"`) || !strings.Contains(body, "Game not found") {
		t.Errorf("partial should carry the inline error, got %q", body)
	}
	if strings.Contains(body, "<html") {
		t.Error("HTMX response should be a fragment")
	}
	trigger := resp.Header.Get("HX-Trigger")
	if !strings.Contains(trigger, "Game not found") {
		t.Errorf("HX-Trigger = %q, want toast", trigger)
	}
}

func TestWatchExistingGame(t *testing.T) {
	e := setup(t)
	code := e.startFreeGame(t, e.browser(t))

	c := e.browser(t)
	resp, _ := e.post(t, c, "/watch", url.Values{"code": {code}}, nil)
	want := "/sports?code=" + code + "&mode=watch"
	if loc := resp.Header.Get("Location"); loc != want {
		t.Fatalf("Location = %q, want %q", loc, want)
	}

	resp, _ = e.get(t, c, want)
	if loc := resp.Header.Get("Location"); loc != "/watch/"+code {
		t.Fatalf("Location = %q, want /watch/%s", loc, code)
	}

	resp, body := e.get(t, c, "/watch/"+code)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("watch page = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `data-feed="/ws/games/`+code+`"`) {
		t.Error("watch page should point at the live feed")
	}
}

func TestCreateGameRequiresHost(t *testing.T) {
	e := setup(t)
	c := e.browser(t)

	resp, _ := e.post(t, c, "/games", url.Values{"sport": {"basketball"}}, nil)
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}

func TestCreateGameComingSoon(t *testing.T) {
	e := setup(t)
	c := e.browser(t)
	e.post(t, c, "/free", nil, nil)

	resp, _ := e.post(t, c, "/games", url.Values{"sport": {"volleyball"}}, nil)
	if loc := resp.Header.Get("Location"); loc != "/sports?mode=free" {
		t.Errorf("Location = %q, want /sports?mode=free", loc)
	}
	_, body := e.get(t, c, "/sports?mode=free")
	if !strings.Contains(body, "Volleyball is coming soon") {
		t.Error("coming soon notification missing")
	}
}

func TestHostControl(t *testing.T) {
	e := setup(t)
	host := e.browser(t)
	code := e.startFreeGame(t, host)

	resp, body := e.get(t, host, "/games/"+code+"/control")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("control = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "Game "+code+" created") {
		t.Error("creation notification missing")
	}

	spectator := e.browser(t)
	resp, _ = e.get(t, spectator, "/games/"+code+"/control")
	if loc := resp.Header.Get("Location"); loc != "/watch/"+code {
		t.Errorf("non-host control Location = %q, want /watch/%s", loc, code)
	}
}

func (e *testEnv) putState(t *testing.T, c *http.Client, code, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPut, e.ts.URL+"/api/games/"+code+"/state", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("PUT state: %v", err)
	}
	resp.Body.Close()
	return resp
}

func TestUpdateState(t *testing.T) {
	e := setup(t)
	host := e.browser(t)
	code := e.startFreeGame(t, host)

	if resp := e.putState(t, host, code, `{"home":2,"away":0}`); resp.StatusCode != http.StatusOK {
		t.Errorf("host PUT = %d, want 200", resp.StatusCode)
	}
	if resp := e.putState(t, host, code, `{"home":`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", resp.StatusCode)
	}
	if resp := e.putState(t, e.browser(t), code, `{}`); resp.StatusCode != http.StatusForbidden {
		t.Errorf("spectator PUT = %d, want 403", resp.StatusCode)
	}
	if resp := e.putState(t, host, "999999", `{}`); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown game PUT = %d, want 404", resp.StatusCode)
	}

	_, body := e.get(t, e.browser(t), "/watch/"+code)
	if !strings.Contains(body, `&#34;home&#34;:2`) {
		t.Errorf("watch page should show the latest state, got %q", body)
	}
}

func TestLiveFeed(t *testing.T) {
	e := setup(t)
	host := e.browser(t)
	code := e.startFreeGame(t, host)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws/games/" + code
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var snapshot ws.Message
	if err := wsjson.Read(ctx, conn, &snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Type != ws.TypeState || snapshot.Code != code {
		t.Errorf("snapshot = %+v", snapshot)
	}

	e.putState(t, host, code, `{"home":3}`)

	var update ws.Message
	if err := wsjson.Read(ctx, conn, &update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if string(update.State) != `{"home":3}` {
		t.Errorf("State = %s, want {\"home\":3}", update.State)
	}
}

func TestDeleteGame(t *testing.T) {
	e := setup(t)
	host := e.browser(t)
	code := e.startFreeGame(t, host)

	req, _ := http.NewRequest(http.MethodDelete, e.ts.URL+"/api/games/"+code, nil)
	resp, err := e.browser(t).Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("spectator DELETE = %d, want 403", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, e.ts.URL+"/api/games/"+code, nil)
	resp, err = host.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("host DELETE = %d, want 204", resp.StatusCode)
	}

	resp, _ = e.get(t, host, "/watch/"+code)
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Errorf("deleted game watch Location = %q, want /", loc)
	}
}

func TestDeleteGameEndsLiveFeed(t *testing.T) {
	e := setup(t)
	host := e.browser(t)
	code := e.startFreeGame(t, host)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws/games/" + code
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var snapshot ws.Message
	if err := wsjson.Read(ctx, conn, &snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	req, _ := http.NewRequest(http.MethodDelete, e.ts.URL+"/api/games/"+code, nil)
	resp, err := host.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("host DELETE = %d, want 204", resp.StatusCode)
	}

	var ended ws.Message
	if err := wsjson.Read(ctx, conn, &ended); err != nil {
		t.Fatalf("read ended: %v", err)
	}
	if ended.Type != ws.TypeEnded || ended.Code != code {
		t.Errorf("ended = %+v", ended)
	}

	_, _, err = conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusNormalClosure {
		t.Errorf("close status = %v, want normal closure (err = %v)", got, err)
	}
}

func TestPublicGameAPI(t *testing.T) {
	e := setup(t)
	code := e.startFreeGame(t, e.browser(t))

	req, _ := http.NewRequest(http.MethodGet, e.ts.URL+"/api/games/"+code, nil)
	req.Header.Set("Origin", "https://overlay.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp, body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if strings.Contains(body, "host_key") {
		t.Error("host key must not be exposed")
	}
	var out struct {
		Game struct {
			Code string `json:"code"`
		} `json:"game"`
		SportName string `json:"sport_name"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Game.Code != code || out.SportName != "Basketball" {
		t.Errorf("got %+v", out)
	}

	resp, _ = e.get(t, e.browser(t), "/api/games/999999")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown game = %d, want 404", resp.StatusCode)
	}
}

func TestQRCode(t *testing.T) {
	e := setup(t)
	c := e.browser(t)

	resp, body := e.get(t, c, "/games/123456/qr.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if !strings.HasPrefix(body, "\x89PNG") {
		t.Error("body is not a PNG")
	}

	resp, _ = e.get(t, c, "/games/12/qr.png")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short code = %d, want 400", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	e := setup(t)
	resp, body := e.get(t, e.browser(t), "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, `"status":"ok"`) {
		t.Errorf("body = %q", body)
	}
	if !strings.Contains(body, `"schema":2`) {
		t.Errorf("schema version missing: %q", body)
	}
}

func TestAuthTabs(t *testing.T) {
	e := setup(t)
	c := e.browser(t)

	_, body := e.get(t, c, "/auth?tab=reset")
	if strings.Contains(body, `id="reset-panel" class="panel" hidden`) {
		t.Error("reset panel should be visible")
	}
	_, body = e.get(t, c, "/auth?tab=bogus")
	if strings.Contains(body, `id="signin-panel" class="panel" hidden`) {
		t.Error("unknown tab should fall back to sign-in")
	}
}

func TestCleanupTasks(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	catalog, _ := sports.Default()
	srv, err := New(db, &config.Config{SessionSecret: testSecret, RateLimit: 10}, catalog, email.NewClient("", ""),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}

	for _, task := range srv.CleanupTasks() {
		if _, err := task.Run(); err != nil {
			t.Errorf("task %s: %v", task.Name, err)
		}
	}
}
