package user

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/tasktracker/internal/store"
	"github.com/nao1215/tasktracker/pkg/logging"
	"github.com/nao1215/tasktracker/pkg/middleware"
	"github.com/nao1215/tasktracker/pkg/password"
	"github.com/nao1215/tasktracker/pkg/route"
	"github.com/nao1215/tasktracker/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingNotifier は送信要求された宛先を記録するテスト用の通知送信者。
type recordingNotifier struct {
	mu            sync.Mutex
	welcomes      []string
	cancellations []string
}

func (n *recordingNotifier) Welcome(_ context.Context, email, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcomes = append(n.welcomes, email)
}

func (n *recordingNotifier) Cancellation(_ context.Context, email, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancellations = append(n.cancellations, email)
}

// testEnv はコントローラーをマウントしたテスト用のHTTP環境。
type testEnv struct {
	router   *gin.Engine
	store    *store.Store
	notifier *recordingNotifier
}

// countingHasher は照合の呼び出し回数を数えるテスト用のHasher。
type countingHasher struct {
	*password.Hasher
	verifies atomic.Int64
}

func (h *countingHasher) Verify(plain, digest string) (bool, error) {
	h.verifies.Add(1)
	return h.Hasher.Verify(plain, digest)
}

// setupTestEnv はインメモリSQLiteを使うユーザーコントローラーを構築する。
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	return setupTestEnvWithHasher(t, password.NewHasher(bcrypt.MinCost))
}

// setupTestEnvWithHasher は指定したHasherでユーザーコントローラーを構築する。
func setupTestEnvWithHasher(t *testing.T, hasher Hasher) *testEnv {
	t.Helper()

	logger := logging.Discard()
	st, err := store.Open(context.Background(), store.Config{Driver: "sqlite", DSN: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("store.Open()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	tokens, err := token.New(token.Config{Secret: []byte("test-secret"), TTL: time.Hour})
	if err != nil {
		t.Fatalf("token.New()でエラーが発生: %v", err)
	}

	notifier := &recordingNotifier{}
	ctrl := NewController(Config{
		Store:    st,
		Hasher:   hasher,
		Tokens:   tokens,
		Notifier: notifier,
		Auth:     middleware.Authenticate(tokens, st, logger),
		Logger:   logger,
	})

	router := gin.New()
	if err := route.Mount(router, logger, ctrl); err != nil {
		t.Fatalf("route.Mount()でエラーが発生: %v", err)
	}
	return &testEnv{router: router, store: st, notifier: notifier}
}

// do はJSONボディ付きのリクエストを送信する。tokenが空の場合はAuthorizationヘッダーを付けない。
func (e *testEnv) do(method, path, tokenString, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tokenString != "" {
		req.Header.Set("Authorization", "Bearer "+tokenString)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// register はユーザーを登録し、ユーザーIDとトークンを返す。
func (e *testEnv) register(t *testing.T, email, pass string) (string, string) {
	t.Helper()

	w := e.do(http.MethodPost, "/users", "", `{"name":"テスト","email":"`+email+`","password":"`+pass+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("ユーザー登録に失敗: status=%d body=%s", w.Code, w.Body.String())
	}
	resp := decode[sessionResponse](t, w)
	return resp.User.ID, resp.Token
}

// login はログインしてトークンを返す。
func (e *testEnv) login(t *testing.T, email, pass string) string {
	t.Helper()

	w := e.do(http.MethodPost, "/users/login", "", `{"email":"`+email+`","password":"`+pass+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("ログインに失敗: status=%d body=%s", w.Code, w.Body.String())
	}
	return decode[sessionResponse](t, w).Token
}

// decode はレスポンスボディをJSONとしてデコードする。
func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v (body=%s)", err, w.Body.String())
	}
	return v
}

// assertStatus はステータスコードを検証する。
func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()

	if w.Code != want {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, want, w.Body.String())
	}
}

// assertUnauthorized は401と共通メッセージを検証する。
func assertUnauthorized(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()

	assertStatus(t, w, http.StatusUnauthorized)
	if got := decode[map[string]string](t, w)["error"]; got != "Please authenticate." {
		t.Errorf("error = %q, want %q", got, "Please authenticate.")
	}
}

func TestRouteTable(t *testing.T) {
	t.Parallel()

	ctrl := NewController(Config{Logger: logging.Discard(), Auth: func(*gin.Context) {}})
	if err := ctrl.Table().Validate(); err != nil {
		t.Fatalf("Validate()でエラーが発生: %v", err)
	}
	if ctrl.Prefix() != "/users" {
		t.Errorf("Prefix() = %q, want %q", ctrl.Prefix(), "/users")
	}

	// 認証ゲートの適用範囲
	gated := map[string]bool{
		"GET ":              false,
		"GET /me":           true,
		"POST /login":       false,
		"POST /logout":      true,
		"POST /logoutAll":   true,
		"GET /:id":          false,
		"PATCH /me":         true,
		"DELETE /me":        true,
		"POST ":             false,
		"POST /me/avatar":   true,
		"DELETE /me/avatar": true,
		"GET /:id/avatar":   false,
	}
	routes := ctrl.Table().Routes()
	if len(routes) != len(gated) {
		t.Fatalf("len(routes) = %d, want %d", len(routes), len(gated))
	}
	for _, rt := range routes {
		key := rt.Method + " " + rt.Path
		want, ok := gated[key]
		if !ok {
			t.Errorf("想定外のルート: %s", key)
			continue
		}
		// ゲートありはパス単位の認証ゲート分だけハンドラー列が長くなる
		chain := ctrl.Table().Chain(rt)
		if got := len(chain) > 1+len(rt.Gates); got != want {
			t.Errorf("%s の認証ゲート = %v, want %v", key, got, want)
		}
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()

	t.Run("メールアドレスとパスワードで登録するとユーザーとトークンが返ること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		w := e.do(http.MethodPost, "/users", "", `{"email":"a@x.com","password":"secret123"}`)
		assertStatus(t, w, http.StatusCreated)

		resp := decode[sessionResponse](t, w)
		if resp.User.Email != "a@x.com" {
			t.Errorf("user.email = %q, want %q", resp.User.Email, "a@x.com")
		}
		if resp.Token == "" {
			t.Error("tokenが空")
		}
		if resp.User.ID == "" || resp.User.CreatedAt == "" {
			t.Errorf("user = %+v", resp.User)
		}
		if strings.Contains(w.Body.String(), "password") || strings.Contains(w.Body.String(), "$2a$") {
			t.Errorf("レスポンスにパスワード情報が含まれる: %s", w.Body.String())
		}
		if len(e.notifier.welcomes) != 1 || e.notifier.welcomes[0] != "a@x.com" {
			t.Errorf("ウェルカムメール = %v", e.notifier.welcomes)
		}

		// 登録時のトークンで認証できること
		assertStatus(t, e.do(http.MethodGet, "/users/me", resp.Token, ""), http.StatusOK)
	})

	t.Run("メールアドレスは小文字に正規化されること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		w := e.do(http.MethodPost, "/users", "", `{"email":"  Alice@Example.COM ","password":"secret123"}`)
		assertStatus(t, w, http.StatusCreated)
		if got := decode[sessionResponse](t, w).User.Email; got != "alice@example.com" {
			t.Errorf("email = %q, want %q", got, "alice@example.com")
		}
		e.login(t, "ALICE@example.com", "secret123")
	})

	t.Run("不正な登録内容は400になること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		e.register(t, "dup@example.com", "secret123")

		bodies := []string{
			`{"email":"dup@example.com","password":"secret123"}`,
			`{"email":"not-an-email","password":"secret123"}`,
			`{"email":"b@example.com"}`,
			`{"email":"b@example.com","password":"short"}`,
			`{"email":"b@example.com","password":"mypassword1"}`,
			`{"email":"b@example.com","password":"secret123","age":-1}`,
			`{"email":"b@example.com","password":"` + strings.Repeat("x", 80) + `"}`,
			`{"email":"b@example.com","password":"` + strings.Repeat("あ", 30) + `"}`,
			`not json`,
		}
		for _, body := range bodies {
			w := e.do(http.MethodPost, "/users", "", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("body=%s: status = %d, want %d", body, w.Code, http.StatusBadRequest)
				continue
			}
			if decode[map[string]string](t, w)["error"] == "" {
				t.Errorf("body=%s: errorメッセージが空", body)
			}
		}
		if len(e.notifier.welcomes) != 1 {
			t.Errorf("失敗した登録でメールが送信された: %v", e.notifier.welcomes)
		}
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("ログインのたびに異なるトークンが追加されること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		userID, first := e.register(t, "a@x.com", "secret123")

		seen := map[string]struct{}{first: {}}
		for range 3 {
			tok := e.login(t, "a@x.com", "secret123")
			if _, ok := seen[tok]; ok {
				t.Fatalf("重複したトークンが発行された: %s", tok)
			}
			seen[tok] = struct{}{}
		}

		sessions, err := e.store.ListSessions(context.Background(), userID)
		if err != nil {
			t.Fatalf("ListSessions()でエラーが発生: %v", err)
		}
		if len(sessions) != len(seen) {
			t.Errorf("セッション数 = %d, want %d", len(sessions), len(seen))
		}
		for tok := range seen {
			assertStatus(t, e.do(http.MethodGet, "/users/me", tok, ""), http.StatusOK)
		}
	})

	t.Run("誤ったパスワードと未登録のメールアドレスは400になること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		e.register(t, "a@x.com", "secret123")

		for _, body := range []string{
			`{"email":"a@x.com","password":"wrong-pass"}`,
			`{"email":"nobody@x.com","password":"secret123"}`,
			`{"email":"a@x.com"}`,
		} {
			w := e.do(http.MethodPost, "/users/login", "", body)
			assertStatus(t, w, http.StatusBadRequest)
			if got := decode[map[string]string](t, w)["error"]; got != loginFailedMessage {
				t.Errorf("body=%s: error = %q, want %q", body, got, loginFailedMessage)
			}
		}
	})

	t.Run("未登録のメールアドレスでもパスワード照合が行われること", func(t *testing.T) {
		t.Parallel()

		hasher := &countingHasher{Hasher: password.NewHasher(bcrypt.MinCost)}
		e := setupTestEnvWithHasher(t, hasher)
		e.register(t, "a@x.com", "secret123")

		before := hasher.verifies.Load()
		w := e.do(http.MethodPost, "/users/login", "", `{"email":"nobody@x.com","password":"secret123"}`)
		assertStatus(t, w, http.StatusBadRequest)
		if got := hasher.verifies.Load() - before; got != 1 {
			t.Errorf("Verify()の呼び出し回数 = %d, want 1", got)
		}
	})
}

func TestLogout(t *testing.T) {
	t.Parallel()

	t.Run("ログアウトしたトークンだけが失効すること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		_, t1 := e.register(t, "a@x.com", "secret123")
		t2 := e.login(t, "a@x.com", "secret123")

		w := e.do(http.MethodPost, "/users/logout", t1, "")
		assertStatus(t, w, http.StatusOK)
		if got := decode[messageResponse](t, w).Message; got != "Logout successful" {
			t.Errorf("message = %q", got)
		}

		assertUnauthorized(t, e.do(http.MethodGet, "/users/me", t1, ""))
		assertUnauthorized(t, e.do(http.MethodPost, "/users/logout", t1, ""))
		assertStatus(t, e.do(http.MethodGet, "/users/me", t2, ""), http.StatusOK)
	})

	t.Run("全ログアウト後は以前のトークンがすべて拒否されること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		_, t1 := e.register(t, "a@x.com", "secret123")
		t2 := e.login(t, "a@x.com", "secret123")
		t3 := e.login(t, "a@x.com", "secret123")

		assertStatus(t, e.do(http.MethodPost, "/users/logoutAll", t2, ""), http.StatusOK)
		for _, tok := range []string{t1, t2, t3} {
			assertUnauthorized(t, e.do(http.MethodGet, "/users/me", tok, ""))
		}

		// 再ログインすれば新しいトークンで認証できること
		t4 := e.login(t, "a@x.com", "secret123")
		assertStatus(t, e.do(http.MethodGet, "/users/me", t4, ""), http.StatusOK)
	})

	t.Run("認証なしのログアウトは401になること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		assertUnauthorized(t, e.do(http.MethodPost, "/users/logout", "", ""))
		assertUnauthorized(t, e.do(http.MethodPost, "/users/logoutAll", "not-a-token", ""))
	})
}

func TestGet(t *testing.T) {
	t.Parallel()

	e := setupTestEnv(t)
	aliceID, _ := e.register(t, "alice@x.com", "secret123")
	e.register(t, "bob@x.com", "secret123")

	t.Run("一覧は認証なしで取得できること", func(t *testing.T) {
		w := e.do(http.MethodGet, "/users", "", "")
		assertStatus(t, w, http.StatusOK)
		if got := decode[[]userResponse](t, w); len(got) != 2 {
			t.Errorf("len(users) = %d, want 2", len(got))
		}
	})

	t.Run("IDで取得できること", func(t *testing.T) {
		w := e.do(http.MethodGet, "/users/"+aliceID, "", "")
		assertStatus(t, w, http.StatusOK)
		if got := decode[userResponse](t, w); got.Email != "alice@x.com" {
			t.Errorf("email = %q", got.Email)
		}
	})

	t.Run("存在しないIDは本文なしの404になること", func(t *testing.T) {
		w := e.do(http.MethodGet, "/users/unknown-id", "", "")
		assertStatus(t, w, http.StatusNotFound)
		if w.Body.Len() != 0 {
			t.Errorf("body = %q, want empty", w.Body.String())
		}
	})

	t.Run("自分のプロフィールは認証が必要なこと", func(t *testing.T) {
		assertUnauthorized(t, e.do(http.MethodGet, "/users/me", "", ""))
	})
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	t.Run("許可されたフィールドを更新できること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		_, tok := e.register(t, "a@x.com", "secret123")

		w := e.do(http.MethodPatch, "/users/me", tok, `{"name":"新しい名前","age":42,"email":"new@x.com","password":"newsecret1"}`)
		assertStatus(t, w, http.StatusOK)
		got := decode[userResponse](t, w)
		if got.Name != "新しい名前" || got.Age != 42 || got.Email != "new@x.com" {
			t.Errorf("user = %+v", got)
		}

		// 新しい認証情報でログインでき、古いパスワードでは失敗すること
		e.login(t, "new@x.com", "newsecret1")
		assertStatus(t, e.do(http.MethodPost, "/users/login", "", `{"email":"new@x.com","password":"secret123"}`), http.StatusBadRequest)
	})

	t.Run("許可されていないフィールドを含む場合は400で何も更新されないこと", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		_, tok := e.register(t, "a@x.com", "secret123")

		for _, body := range []string{
			`{"name":"変更","tokens":[]}`,
			`{"id":"other"}`,
			`{"avatar":"x"}`,
		} {
			w := e.do(http.MethodPatch, "/users/me", tok, body)
			assertStatus(t, w, http.StatusBadRequest)
			if got := decode[map[string]string](t, w)["error"]; got != "Invalid update data." {
				t.Errorf("body=%s: error = %q", body, got)
			}
		}

		me := decode[userResponse](t, e.do(http.MethodGet, "/users/me", tok, ""))
		if me.Name != "テスト" {
			t.Errorf("name = %q, 更新されてはいけない", me.Name)
		}
	})

	t.Run("他ユーザーと重複するメールアドレスは400になること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		e.register(t, "a@x.com", "secret123")
		_, tok := e.register(t, "b@x.com", "secret123")

		assertStatus(t, e.do(http.MethodPatch, "/users/me", tok, `{"email":"A@x.com"}`), http.StatusBadRequest)
		assertStatus(t, e.do(http.MethodPatch, "/users/me", tok, `{"email":""}`), http.StatusBadRequest)
		assertStatus(t, e.do(http.MethodPatch, "/users/me", tok, `{"password":"password99"}`), http.StatusBadRequest)
	})

	t.Run("72バイトを超えるパスワードへの変更は400で元のパスワードが有効なままであること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		_, tok := e.register(t, "a@x.com", "secret123")

		long := strings.Repeat("x", 80)
		w := e.do(http.MethodPatch, "/users/me", tok, `{"password":"`+long+`"}`)
		assertStatus(t, w, http.StatusBadRequest)
		if got := decode[map[string]string](t, w)["error"]; got != "Password must be at most 72 bytes" {
			t.Errorf("error = %q", got)
		}
		e.login(t, "a@x.com", "secret123")
		assertStatus(t, e.do(http.MethodPost, "/users/login", "", `{"email":"a@x.com","password":"`+long+`"}`), http.StatusBadRequest)
	})
}

func TestDelete(t *testing.T) {
	t.Parallel()

	e := setupTestEnv(t)
	userID, tok := e.register(t, "a@x.com", "secret123")
	other := e.login(t, "a@x.com", "secret123")

	w := e.do(http.MethodDelete, "/users/me", tok, "")
	assertStatus(t, w, http.StatusOK)
	if got := decode[userResponse](t, w); got.ID != userID {
		t.Errorf("id = %q, want %q", got.ID, userID)
	}

	assertStatus(t, e.do(http.MethodGet, "/users/"+userID, "", ""), http.StatusNotFound)
	assertUnauthorized(t, e.do(http.MethodGet, "/users/me", tok, ""))
	assertUnauthorized(t, e.do(http.MethodGet, "/users/me", other, ""))
	if len(e.notifier.cancellations) != 1 || e.notifier.cancellations[0] != "a@x.com" {
		t.Errorf("お別れメール = %v", e.notifier.cancellations)
	}
}

// pngFixture はテスト用のPNG画像を生成する。
func pngFixture(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{G: 128, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("PNGのエンコードに失敗: %v", err)
	}
	return buf.Bytes()
}

// upload はmultipartでアバター画像を送信する。
func (e *testEnv) upload(t *testing.T, tokenString, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile()でエラーが発生: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("書き込みに失敗: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipartのクローズに失敗: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/users/me/avatar", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if tokenString != "" {
		req.Header.Set("Authorization", "Bearer "+tokenString)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestAvatar(t *testing.T) {
	t.Parallel()

	t.Run("アップロード・取得・削除ができること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		userID, tok := e.register(t, "a@x.com", "secret123")

		w := e.upload(t, tok, "avatar", "me.png", pngFixture(t, 640, 480))
		assertStatus(t, w, http.StatusOK)
		if got := decode[messageResponse](t, w).Message; got != "Avatar set" {
			t.Errorf("message = %q", got)
		}

		w = e.do(http.MethodGet, "/users/"+userID+"/avatar", "", "")
		assertStatus(t, w, http.StatusOK)
		if ct := w.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("Content-Type = %q, want image/png", ct)
		}
		cfg, err := png.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
		if err != nil {
			t.Fatalf("アバターのデコードに失敗: %v", err)
		}
		if cfg.Width != 250 || cfg.Height != 250 {
			t.Errorf("サイズ = %dx%d, want 250x250", cfg.Width, cfg.Height)
		}

		w = e.do(http.MethodDelete, "/users/me/avatar", tok, "")
		assertStatus(t, w, http.StatusOK)
		if got := decode[messageResponse](t, w).Message; got != "Avatar successfully deleted" {
			t.Errorf("message = %q", got)
		}
		assertStatus(t, e.do(http.MethodGet, "/users/"+userID+"/avatar", "", ""), http.StatusNotFound)
	})

	t.Run("アバター未設定で削除すると400になること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		_, tok := e.register(t, "a@x.com", "secret123")

		w := e.do(http.MethodDelete, "/users/me/avatar", tok, "")
		assertStatus(t, w, http.StatusBadRequest)
		if got := decode[map[string]string](t, w)["error"]; got != "No avatar" {
			t.Errorf("error = %q, want %q", got, "No avatar")
		}
	})

	t.Run("不正なアップロードは400になること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		_, tok := e.register(t, "a@x.com", "secret123")

		w := e.upload(t, tok, "avatar", "me.gif", pngFixture(t, 10, 10))
		assertStatus(t, w, http.StatusBadRequest)
		if got := decode[map[string]string](t, w)["error"]; got != "Allowed file types: jpg, jpeg, png" {
			t.Errorf("error = %q", got)
		}

		assertStatus(t, e.upload(t, tok, "file", "me.png", pngFixture(t, 10, 10)), http.StatusBadRequest)
		assertStatus(t, e.upload(t, tok, "avatar", "me.png", []byte("not an image")), http.StatusBadRequest)
		assertStatus(t, e.upload(t, tok, "avatar", "me.png", make([]byte, 9<<20)), http.StatusBadRequest)
	})

	t.Run("寸法だけが巨大な画像は400になり保存されないこと", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		userID, tok := e.register(t, "a@x.com", "secret123")

		data := pngFixture(t, 1, 1)
		binary.BigEndian.PutUint32(data[16:20], 40000)
		binary.BigEndian.PutUint32(data[20:24], 40000)
		binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

		w := e.upload(t, tok, "avatar", "me.png", data)
		assertStatus(t, w, http.StatusBadRequest)
		if got := decode[map[string]string](t, w)["error"]; got != "Image dimensions too large" {
			t.Errorf("error = %q", got)
		}
		assertStatus(t, e.do(http.MethodGet, "/users/"+userID+"/avatar", "", ""), http.StatusNotFound)
	})

	t.Run("認証なしのアップロードは401になること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		assertUnauthorized(t, e.upload(t, "", "avatar", "me.png", pngFixture(t, 10, 10)))
	})

	t.Run("存在しないユーザーのアバターは404になること", func(t *testing.T) {
		t.Parallel()

		e := setupTestEnv(t)
		assertStatus(t, e.do(http.MethodGet, "/users/unknown/avatar", "", ""), http.StatusNotFound)
	})
}
