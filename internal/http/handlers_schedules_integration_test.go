package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/broker"
	"github.com/conveyorhq/conveyor/internal/domain/model"
	"github.com/conveyorhq/conveyor/internal/service"
	"github.com/conveyorhq/conveyor/internal/testutil"
)

func TestScheduleCreateResponse(t *testing.T) {
	client := broker.NewClient(testutil.SetupTestRedis(t))
	registry := broker.NewRegistry(client, []string{"schedQueue"})
	svc, err := service.NewSchedulerService(service.SchedulerServiceOptions{
		Registry: registry,
		Logger:   discardLogger(),
	})
	require.NoError(t, err)
	h := &ScheduleHandlers{Svc: svc}

	body := `{"name":"report","schedule":{"repeat":{"every":60000}}}`
	req := httptest.NewRequest(http.MethodPost, "/jobs/schedQueue/schedule", strings.NewReader(body))
	req.SetPathValue("queue", "schedQueue")
	req = req.WithContext(SetPrincipalInContext(req.Context(), &Principal{User: &model.User{ID: 7}}))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Regexp(t, `^7-report-\d+$`, resp["schedulerId"])
}
