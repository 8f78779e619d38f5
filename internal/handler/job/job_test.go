package job_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/handler"
	jobHandler "github.com/shaysadin/wedding-rsvp-sub004/internal/handler/job"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	jobService "github.com/shaysadin/wedding-rsvp-sub004/internal/service/job"
	apperrors "github.com/shaysadin/wedding-rsvp-sub004/pkg/errors"
)

type fakeService struct {
	created   *jobService.CreateInput
	job       *model.BulkJob
	view      *jobService.StatusView
	createErr error
	cancelErr error
}

func (f *fakeService) Create(ctx context.Context, input *jobService.CreateInput) (*model.BulkJob, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = input
	return f.job, nil
}

func (f *fakeService) Dispatch(ctx context.Context, jobID uuid.UUID) error { return nil }

func (f *fakeService) Get(ctx context.Context, tenantID, jobID uuid.UUID) (*jobService.StatusView, error) {
	if f.view == nil {
		return nil, apperrors.NotFound("job", nil)
	}
	return f.view, nil
}

func (f *fakeService) Cancel(ctx context.Context, tenantID, jobID uuid.UUID) (*model.BulkJob, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return f.job, nil
}

func setupRouter(svc jobService.Service, tenantID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler.RegisterValidations()
	engine := gin.New()
	api := engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Set("tenantID", tenantID)
		c.Next()
	})
	jobHandler.NewHandler(svc).RegisterRoutes(api)
	return engine
}

func TestCreateJobEndpoint(t *testing.T) {
	tenantID := uuid.New()
	eventID := uuid.New()
	guestID := uuid.New()
	svc := &fakeService{job: &model.BulkJob{
		Base:     model.Base{ID: uuid.New()},
		TenantID: tenantID,
		EventID:  eventID,
		Type:     model.MessageTypeInvite,
		Status:   model.JobStatusPending,
		Total:    1,
	}}
	engine := setupRouter(svc, tenantID)

	body, _ := json.Marshal(map[string]interface{}{
		"type":      "invite",
		"guest_ids": []string{guestID.String()},
		"channel":   "sms",
	})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/events/%s/jobs", eventID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, tenantID, svc.created.TenantID)
	assert.Equal(t, eventID, svc.created.EventID)
	assert.Equal(t, model.ChannelSMS, svc.created.ChannelOverride)
	assert.Equal(t, []uuid.UUID{guestID}, svc.created.GuestIDs)
}

func TestCreateJobValidation(t *testing.T) {
	tenantID := uuid.New()
	engine := setupRouter(&fakeService{}, tenantID)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing type", map[string]interface{}{"guest_ids": []string{uuid.NewString()}}},
		{"bad channel", map[string]interface{}{"type": "invite", "guest_ids": []string{uuid.NewString()}, "channel": "fax"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.body)
			req := httptest.NewRequest(http.MethodPost,
				fmt.Sprintf("/api/v1/events/%s/jobs", uuid.New()), bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateJobQuotaExceeded(t *testing.T) {
	tenantID := uuid.New()
	svc := &fakeService{createErr: apperrors.QuotaExceeded("monthly send limit reached")}
	engine := setupRouter(svc, tenantID)

	body, _ := json.Marshal(map[string]interface{}{
		"type":      "invite",
		"guest_ids": []string{uuid.NewString()},
	})
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/v1/events/%s/jobs", uuid.New()), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestGetJobEndpoint(t *testing.T) {
	tenantID := uuid.New()
	jobID := uuid.New()
	svc := &fakeService{view: &jobService.StatusView{
		Job: &model.BulkJob{Base: model.Base{ID: jobID}, TenantID: tenantID, Status: model.JobStatusCompleted},
	}}
	engine := setupRouter(svc, tenantID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID.String(), nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJobConflict(t *testing.T) {
	tenantID := uuid.New()
	svc := &fakeService{cancelErr: apperrors.Conflict("job is already COMPLETED")}
	engine := setupRouter(svc, tenantID)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+uuid.NewString()+"/cancel", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
