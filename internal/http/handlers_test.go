package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/krishi/internal/auth"
	"github.com/sujalbistaa/krishi/internal/db"
	"github.com/sujalbistaa/krishi/internal/models"
	"github.com/sujalbistaa/krishi/internal/qa"
	"github.com/sujalbistaa/krishi/internal/ws"
)

const (
	testAdminToken    = "admin-token"
	testAdminPassword = "admin-pass"
)

type testServer struct {
	router *gin.Engine
	env    *Env
}

func newTestServer(t *testing.T, limiter *IPRateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.OpenMemory()
	require.NoError(t, err)

	authCfg := auth.Config{JWTSecret: "test-secret", TokenTTL: time.Hour}
	log := zap.NewNop()
	env := &Env{
		QA:            qa.NewService(conn),
		Auth:          auth.NewService(conn, authCfg),
		AuthConfig:    authCfg,
		Hub:           ws.NewHub(log),
		Metrics:       NewMetrics("krishi_test"),
		Log:           log,
		AdminToken:    testAdminToken,
		AdminPassword: testAdminPassword,
	}
	if limiter == nil {
		limiter = NewIPRateLimiter(rate.Inf, 1)
	}
	router := gin.New()
	SetupRoutes(router, env, limiter, "")
	return &testServer{router: router, env: env}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (s *testServer) register(t *testing.T, phone string) authResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/register", gin.H{"phone": phone, "password": "pass1234", "name": "Farmer " + phone}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out authResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, nil)

	reg := s.register(t, "9000000001")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, models.RoleFarmer, reg.User.Role)
	assert.NotContains(t, s.do(t, http.MethodGet, "/api/users/me", nil, bearer(reg.Token)).Body.String(), "passwordHash")

	w := s.do(t, http.MethodPost, "/api/auth/register", gin.H{"phone": "9000000001", "password": "pass1234", "name": "Dup"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", gin.H{"phone": "9000000001", "password": "pass1234"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[authResponse](t, w).Token)

	w = s.do(t, http.MethodPost, "/api/auth/login", gin.H{"phone": "9000000001", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/register", gin.H{"phone": "9000000002"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
	}{
		{"no header", http.MethodPost, "/api/questions", nil},
		{"not bearer", http.MethodPost, "/api/questions", map[string]string{"Authorization": "Basic abc"}},
		{"bad token", http.MethodPost, "/api/answers", bearer("garbage")},
		{"vote without token", http.MethodPost, "/api/answers/1/vote", nil},
		{"profile without token", http.MethodGet, "/api/users/me", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, gin.H{}, tt.headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.register(t, "9000000001")

	w := s.do(t, http.MethodPut, "/api/users/me", gin.H{
		"name":       "Lakshmi",
		"region":     gin.H{"state": "Tamil Nadu", "district": "Thanjavur"},
		"role":       "expert",
		"reputation": 1000,
	}, bearer(reg.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode[struct {
		User models.User `json:"user"`
	}](t, w)
	assert.Equal(t, "Lakshmi", out.User.Name)
	assert.Equal(t, "Thanjavur", out.User.Region.District)
	assert.Equal(t, models.RoleFarmer, out.User.Role)
	assert.Zero(t, out.User.Reputation)
}

func TestAdminApproveExpert(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.register(t, "9000000001")
	path := fmt.Sprintf("/api/admin/approve-expert/%d", reg.User.ID)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, path, nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, path, nil, map[string]string{"X-Admin-Token": "wrong"}).Code)

	w := s.do(t, http.MethodPost, "/api/admin/login", gin.H{"password": testAdminPassword}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	login := decode[struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expiresIn"`
	}](t, w)
	token := login.Token
	assert.NotEqual(t, testAdminToken, token, "login must not hand out the static admin token")
	assert.True(t, auth.IsAdminToken(s.env.AuthConfig, token))
	assert.Equal(t, 3600, login.ExpiresIn)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/admin/login", gin.H{"password": "x"}, nil).Code)

	w = s.do(t, http.MethodPost, path, nil, map[string]string{"X-Admin-Token": token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[struct {
		User models.User `json:"user"`
	}](t, w)
	assert.Equal(t, models.RoleExpert, out.User.Role)
	assert.True(t, out.User.IsExpertApproved)

	w = s.do(t, http.MethodPost, "/api/admin/approve-expert/999", nil, map[string]string{"X-Admin-Token": token})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodPost, "/api/admin/approve-expert/abc", nil, map[string]string{"X-Admin-Token": token})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommunityFlow(t *testing.T) {
	s := newTestServer(t, nil)
	x := s.register(t, "9000000001")
	y := s.register(t, "9000000002")
	z := s.register(t, "9000000003")
	expert := s.register(t, "9000000004")
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost,
		fmt.Sprintf("/api/admin/approve-expert/%d", expert.User.ID), nil,
		map[string]string{"X-Admin-Token": testAdminToken}).Code)

	// Empty title is rejected and nothing is created.
	w := s.do(t, http.MethodPost, "/api/questions", gin.H{"title": "", "description": "d"}, bearer(x.Token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/questions", gin.H{
		"title": "Pests on cotton", "description": "White flies everywhere.", "tags": []string{"cotton"},
	}, bearer(x.Token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	q := decode[struct {
		Question models.Question `json:"question"`
	}](t, w).Question
	assert.Equal(t, x.User.ID, q.AskedBy)

	w = s.do(t, http.MethodGet, "/api/questions", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[[]models.Question](t, w)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].Author)
	assert.Equal(t, x.User.Name, listed[0].Author.Name)
	assert.NotContains(t, w.Body.String(), x.User.Phone)

	w = s.do(t, http.MethodPost, "/api/answers", gin.H{"questionId": q.ID, "answerText": "Neem oil spray."}, bearer(x.Token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	farmerAnswer := decode[struct {
		Answer models.Answer `json:"answer"`
	}](t, w).Answer
	assert.False(t, farmerAnswer.IsExpertAnswer)

	w = s.do(t, http.MethodPost, "/api/answers", gin.H{"questionId": q.ID, "answerText": "Yellow sticky traps."}, bearer(expert.Token))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decode[struct {
		Answer models.Answer `json:"answer"`
	}](t, w).Answer.IsExpertAnswer)

	w = s.do(t, http.MethodPost, "/api/answers", gin.H{"questionId": 999, "answerText": "?"}, bearer(x.Token))
	assert.Equal(t, http.StatusNotFound, w.Code)

	votePath := fmt.Sprintf("/api/answers/%d/vote", farmerAnswer.ID)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, votePath, gin.H{"voteType": "up"}, bearer(y.Token)).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, votePath, gin.H{"voteType": "down"}, bearer(z.Token)).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, votePath, gin.H{"voteType": "up"}, bearer(y.Token)).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, votePath, gin.H{"voteType": "meh"}, bearer(y.Token)).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/answers/999/vote", gin.H{"voteType": "up"}, bearer(y.Token)).Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/answers/%d", q.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	answers := decode[[]models.Answer](t, w)
	require.Len(t, answers, 2)
	assert.True(t, answers[0].IsExpertAnswer)
	assert.Equal(t, farmerAnswer.ID, answers[1].ID)
	assert.Equal(t, 1, answers[1].Upvotes)
	assert.Equal(t, 1, answers[1].Downvotes)
	require.NotNil(t, answers[1].Author)
	assert.Equal(t, 3, answers[1].Author.Reputation)

	w = s.do(t, http.MethodGet, "/api/users/me", nil, bearer(x.Token))
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[models.User](t, w)
	assert.Equal(t, 3, me.Reputation)
	assert.Equal(t, 1, me.QuestionsAsked)
	assert.Equal(t, 1, me.AnswersGiven)

	metrics := s.do(t, http.MethodGet, "/metrics", nil, nil).Body.String()
	assert.Contains(t, metrics, `krishi_test_votes_total{type="up"} 1`)
	assert.Contains(t, metrics, `krishi_test_duplicate_votes_total 1`)
	assert.Contains(t, metrics, `krishi_test_questions_asked_total 1`)
}

func TestRateLimitOnPosting(t *testing.T) {
	s := newTestServer(t, DefaultRateLimiter())
	x := s.register(t, "9000000001")

	body := gin.H{"title": "t", "description": "d"}
	assert.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/questions", body, bearer(x.Token)).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(t, http.MethodPost, "/api/questions", body, bearer(x.Token)).Code)
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = s.do(t, http.MethodGet, "/health", nil, map[string]string{"X-Request-ID": "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestIPRateLimiter_Prune(t *testing.T) {
	rl := NewIPRateLimiter(rate.Inf, 1)
	rl.GetLimiter("10.0.0.1")
	rl.GetLimiter("10.0.0.2")
	require.Equal(t, 2, rl.size())

	rl.Prune(time.Hour)
	assert.Equal(t, 2, rl.size())

	time.Sleep(5 * time.Millisecond)
	rl.Prune(time.Millisecond)
	assert.Equal(t, 0, rl.size())
}

func TestAdminAuthMiddleware_PanicsWithoutToken(t *testing.T) {
	assert.Panics(t, func() { AdminAuthMiddleware("", auth.Config{JWTSecret: "s"}) })
}

func TestAdminAuthMiddleware_RejectsNonAdminTokens(t *testing.T) {
	s := newTestServer(t, nil)
	reg := s.register(t, "9000000001")
	path := fmt.Sprintf("/api/admin/approve-expert/%d", reg.User.ID)

	expired, err := auth.GenerateAdminToken(s.env.AuthConfig, -time.Minute)
	require.NoError(t, err)
	foreign, err := auth.GenerateAdminToken(auth.Config{JWTSecret: "other-secret"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"user token", reg.Token},
		{"expired admin session", expired},
		{"admin session signed elsewhere", foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, path, nil, map[string]string{"X-Admin-Token": tt.token})
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}

	w := s.do(t, http.MethodGet, "/api/users/me", nil, bearer(reg.Token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.User](t, w).IsExpertApproved)

	session, err := auth.GenerateAdminToken(s.env.AuthConfig, time.Hour)
	require.NoError(t, err)
	w = s.do(t, http.MethodGet, "/api/users/me", nil, bearer(session))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "admin sessions are not user tokens")
}

func TestParseIDRejectsZero(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/api/answers/0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "questionId"))
}
