package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"licensedesk/internal/bookings/repository"
	"licensedesk/internal/bookings/service"
	"licensedesk/internal/bookings/validator"
	"licensedesk/internal/session"
	"licensedesk/pkg/config"
	"licensedesk/pkg/logger"
	"licensedesk/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	handler  http.Handler
	repo     repository.BookingRepository
	verifier *session.Verifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.FromEnv()
	cfg.Log = logger.Nop()

	repo := repository.NewMemoryBookingRepository()
	svc := service.NewBookingService(repo, repository.NewMemoryExamBookingRepository(), validator.NewBookingValidator(cfg.Log), nil, cfg)

	router := httprouter.New()
	NewBookingHandler(svc, cfg.Log).RegisterRoutes(router)

	verifier := session.NewVerifier(testSecret)
	return &testServer{
		handler:  verifier.Middleware(cfg.Log)(router),
		repo:     repo,
		verifier: verifier,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, sess *session.Session) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sess != nil {
		token, err := s.verifier.Issue(*sess, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seed(t *testing.T, userID string) *model.Booking {
	t.Helper()
	b := &model.Booking{
		Kind:      model.KindAppointment,
		SlotID:    primitive.NewObjectID().Hex(),
		UserID:    userID,
		Status:    model.BookingPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.repo.Create(context.Background(), b))
	return b
}

var (
	alice = &session.Session{UserID: "alice", Role: session.RoleUser}
	staff = &session.Session{UserID: "staff", Role: session.RoleAdmin}
)

func TestListOwn_RequiresSession(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/v1/bookings/appointment", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListOwn_UnknownKind(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/v1/bookings/haircut", "", alice)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOwn_Paginated(t *testing.T) {
	srv := newTestServer(t)
	srv.seed(t, "alice")
	srv.seed(t, "bob")

	rec := srv.do(t, http.MethodGet, "/api/v1/bookings/appointment?limit=5", "", alice)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data       []model.Booking `json:"data"`
		TotalCount int64           `json:"total_count"`
		Limit      int             `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.TotalCount)
	assert.Equal(t, 5, body.Limit)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "alice", body.Data[0].UserID)
}

func TestReview_AdminOnly(t *testing.T) {
	srv := newTestServer(t)
	b := srv.seed(t, "alice")
	path := "/api/v1/admin/bookings/appointment/id/" + b.ID

	rec := srv.do(t, http.MethodPatch, path, `{"status":"confirmed"}`, alice)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodPatch, path, `{"status":"confirmed","admin_message":"See you Monday"}`, staff)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data model.Booking `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.BookingConfirmed, body.Data.Status)
	assert.Equal(t, "See you Monday", body.Data.AdminMessage)
}

func TestReview_RejectsLongMessage(t *testing.T) {
	srv := newTestServer(t)
	b := srv.seed(t, "alice")
	payload, _ := json.Marshal(map[string]string{"status": "rejected", "admin_message": strings.Repeat("z", 501)})

	rec := srv.do(t, http.MethodPatch, "/api/v1/admin/bookings/appointment/id/"+b.ID, string(payload), staff)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	stored, err := srv.repo.FindByID(context.Background(), model.KindAppointment, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, stored.Status)
}

func TestReview_BadBody(t *testing.T) {
	srv := newTestServer(t)
	b := srv.seed(t, "alice")

	rec := srv.do(t, http.MethodPatch, "/api/v1/admin/bookings/appointment/id/"+b.ID, `{`, staff)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
