package app

import (
	"bytes"
	"context"
	"encoding/json"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository/repotest"
	"learnhub_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-at-least-32-characters"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	app *App
	cat *repotest.Catalog
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server:    config.ServerConfig{Port: "0", Mode: "debug"},
		JWT:       config.JWTConfig{Secret: testSecret},
		RateLimit: config.RateLimitConfig{MaxRequests: 1000, WindowMinutes: 1},
		Engine: config.EngineConfig{
			LockBackend:      util.BackendMemory,
			LockWait:         5 * time.Second,
			EventBackend:     util.BackendMemory,
			EventWorkers:     1,
			EventBuffer:      64,
			ReconcileCron:    "@every 1h",
			ReconcileWindow:  time.Hour,
			CertificateRetry: 1,
		},
		Notifier: config.NotifierConfig{Backend: util.BackendLog, Enabled: true},
	}

	db := repotest.Open(t)
	a, err := New(cfg, db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	return &testServer{app: a, cat: repotest.NewCatalog(db)}
}

func token(t *testing.T, userID string, role model.UserRole) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, string(role), userID+"@example.com", testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.app.Router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func submitBody(answers ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"answers": answers}
}

func ans(index int, value interface{}) map[string]interface{} {
	return map[string]interface{}{"questionIndex": index, "answer": value}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"database":"up"`)
}

func TestSwaggerDocServed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil)
	w := httptest.NewRecorder()
	s.app.Router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/assessments/{id}/submissions")
	assert.Contains(t, w.Body.String(), "BearerAuth")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodGet, "/api/progress", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/progress", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLessonFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	course := s.cat.Course(t, "", "Networking", 1)
	m := s.cat.Module(t, course.ID, "TCP", 1)
	l1 := s.cat.Lesson(t, m, "Handshake", 1)
	l2 := s.cat.Lesson(t, m, "Teardown", 2)
	student := uuid.NewString()
	tok := token(t, student, model.Student)

	w, _ := s.do(t, http.MethodPost, "/api/lessons/"+l1.ID+"/complete", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "未开始的课程没有进度记录")

	w, _ = s.do(t, http.MethodPost, "/api/lessons/"+l1.ID+"/start", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/lessons/"+l1.ID+"/complete", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(t, http.MethodGet, "/api/courses/"+course.ID+"/progress", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p model.Progress
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 50, p.OverallProgress)
	assert.Nil(t, p.CompletedAt)

	w, _ = s.do(t, http.MethodPost, "/api/lessons/"+l2.ID+"/start", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(t, http.MethodPost, "/api/lessons/"+l2.ID+"/complete", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 100, p.OverallProgress)
	assert.NotNil(t, p.CompletedAt)

	w, env = s.do(t, http.MethodGet, "/api/progress", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Progress
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

func TestSubmitAndGradeOverHTTP(t *testing.T) {
	s := newTestServer(t)
	course := s.cat.Course(t, "", "Writing", 1)
	m := s.cat.Module(t, course.ID, "Essays", 1)
	a := s.cat.Assessment(t, m, 50, 2,
		repotest.Choice(2, `1`, "no", "yes"),
		repotest.Essay(8),
	)
	student := uuid.NewString()
	other := uuid.NewString()
	teacher := uuid.NewString()
	studentTok := token(t, student, model.Student)

	w, env := s.do(t, http.MethodPost, "/api/assessments/"+a.ID+"/submissions", studentTok,
		submitBody(ans(0, 1), ans(1, "because")))
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	var sub model.Submission
	require.NoError(t, json.Unmarshal(env.Data, &sub))
	assert.Equal(t, model.SubmissionSubmitted, sub.Status)
	assert.Equal(t, 2, sub.Score)
	assert.Nil(t, sub.Percentage)

	w, _ = s.do(t, http.MethodGet, "/api/submissions/"+sub.ID, token(t, other, model.Student), nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "其他学生看不到这份提交")

	grade := map[string]interface{}{"score": 7, "feedback": "clear argument"}
	w, _ = s.do(t, http.MethodPost, "/api/teacher/submissions/"+sub.ID+"/grade", studentTok, grade)
	assert.Equal(t, http.StatusForbidden, w.Code)

	teacherTok := token(t, teacher, model.Teacher)
	w, env = s.do(t, http.MethodPost, "/api/teacher/submissions/"+sub.ID+"/grade", teacherTok,
		map[string]interface{}{"score": 11})
	assert.Equal(t, http.StatusBadRequest, w.Code, env.Message)

	w, env = s.do(t, http.MethodPost, "/api/teacher/submissions/"+sub.ID+"/grade", teacherTok, grade)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &sub))
	assert.Equal(t, model.SubmissionGraded, sub.Status)
	require.NotNil(t, sub.Percentage)
	assert.Equal(t, 70, *sub.Percentage)
	assert.Equal(t, teacher, sub.GradedBy)

	w, env = s.do(t, http.MethodGet, "/api/submissions/"+sub.ID, studentTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "clear argument")

	w, env = s.do(t, http.MethodGet, "/api/courses/"+course.ID+"/progress", studentTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p model.Progress
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 100, p.OverallProgress)
	assert.Equal(t, 70.0, p.AverageScore)
}

func TestSubmitErrorsMapToStatusCodes(t *testing.T) {
	s := newTestServer(t)
	course := s.cat.Course(t, "", "Math", 1)
	m := s.cat.Module(t, course.ID, "Sets", 1)
	a := s.cat.Assessment(t, m, 50, 1, repotest.Choice(1, `0`, "yes", "no"))
	tok := token(t, uuid.NewString(), model.Student)
	path := "/api/assessments/" + a.ID + "/submissions"

	w, _ := s.do(t, http.MethodPost, path, tok, submitBody(ans(5, 0)))
	assert.Equal(t, http.StatusBadRequest, w.Code, "题号越界")

	w, _ = s.do(t, http.MethodPost, path, tok, submitBody(ans(0, 0)))
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := s.do(t, http.MethodPost, path, tok, submitBody(ans(0, 0)))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Message, "attempt limit exceeded")

	w, _ = s.do(t, http.MethodPost, "/api/assessments/"+uuid.NewString()+"/submissions", tok, submitBody(ans(0, 0)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	path := "/api/admin/certificates/" + uuid.NewString()

	w, _ := s.do(t, http.MethodDelete, path, token(t, uuid.NewString(), model.Teacher), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodDelete, path, token(t, uuid.NewString(), model.Admin), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProgramCompletionIssuesCertificate(t *testing.T) {
	s := newTestServer(t)
	program := s.cat.Program(t, "Backend")
	course := s.cat.Course(t, program.ID, "Go", 1)
	m := s.cat.Module(t, course.ID, "Basics", 1)
	l := s.cat.Lesson(t, m, "Hello", 1)
	tok := token(t, uuid.NewString(), model.Student)

	w, _ := s.do(t, http.MethodGet, "/api/programs/"+program.ID+"/certificate", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.do(t, http.MethodPost, "/api/lessons/"+l.ID+"/start", tok, nil)
	w, _ = s.do(t, http.MethodPost, "/api/lessons/"+l.ID+"/complete", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(t, http.MethodGet, "/api/programs/"+program.ID+"/enrollment", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var e model.Enrollment
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.Equal(t, model.EnrollmentCompleted, e.Status)

	// 证书由事件处理器异步签发
	var cert model.Certificate
	require.Eventually(t, func() bool {
		w, env := s.do(t, http.MethodGet, "/api/programs/"+program.ID+"/certificate", tok, nil)
		if w.Code != http.StatusOK {
			return false
		}
		return json.Unmarshal(env.Data, &cert) == nil
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, program.ID, cert.ProgramID)
	assert.False(t, cert.Revoked)

	w, env = s.do(t, http.MethodDelete, "/api/admin/certificates/"+cert.ID, token(t, uuid.NewString(), model.Admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &cert))
	assert.True(t, cert.Revoked)
}
