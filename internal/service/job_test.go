package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/domain/model"
)

func TestPaginate(t *testing.T) {
	jobs := make([]model.JobView, 45)
	for i := range jobs {
		jobs[i] = model.JobView{ID: fmt.Sprintf("job-%d", i)}
	}

	tests := []struct {
		name      string
		page      int
		limit     int
		wantLen   int
		wantFirst string
		want      model.Pagination
	}{
		{
			name: "defaults", page: 0, limit: 0,
			wantLen: 20, wantFirst: "job-0",
			want: model.Pagination{Total: 45, Page: 1, Limit: 20, Pages: 3},
		},
		{
			name: "middle page", page: 2, limit: 20,
			wantLen: 20, wantFirst: "job-20",
			want: model.Pagination{Total: 45, Page: 2, Limit: 20, Pages: 3},
		},
		{
			name: "short last page", page: 3, limit: 20,
			wantLen: 5, wantFirst: "job-40",
			want: model.Pagination{Total: 45, Page: 3, Limit: 20, Pages: 3},
		},
		{
			name: "past the end", page: 9, limit: 20,
			wantLen: 0,
			want:    model.Pagination{Total: 45, Page: 9, Limit: 20, Pages: 3},
		},
		{
			name: "negative inputs normalize", page: -1, limit: -5,
			wantLen: 20, wantFirst: "job-0",
			want: model.Pagination{Total: 45, Page: 1, Limit: 20, Pages: 3},
		},
		{
			name: "small limit", page: 1, limit: 7,
			wantLen: 7, wantFirst: "job-0",
			want: model.Pagination{Total: 45, Page: 1, Limit: 7, Pages: 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, pagination := paginate(jobs, tt.page, tt.limit)
			assert.Equal(t, tt.want, pagination)
			require.Len(t, page, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, page[0].ID)
			}
		})
	}
}

func TestPaginateEmpty(t *testing.T) {
	page, pagination := paginate(nil, 1, 20)
	assert.Empty(t, page)
	assert.Equal(t, model.Pagination{Total: 0, Page: 1, Limit: 20, Pages: 0}, pagination)
}

func TestDecodeOpts(t *testing.T) {
	svc := &JobService{logger: slog.Default()}

	t.Run("missing opts get defaults", func(t *testing.T) {
		opts := svc.decodeOpts(nil, "jobQueue", "render")
		require.NotNil(t, opts.RemoveOnComplete)
		require.NotNil(t, opts.RemoveOnFail)
		assert.Equal(t, 3, opts.RemoveOnComplete.Count)
		assert.Equal(t, 5, opts.RemoveOnFail.Count)
	})

	t.Run("json null gets defaults", func(t *testing.T) {
		opts := svc.decodeOpts(json.RawMessage("null"), "jobQueue", "render")
		assert.Equal(t, model.DefaultJobOpts(), opts)
	})

	t.Run("undecodable opts fall back to defaults", func(t *testing.T) {
		opts := svc.decodeOpts(json.RawMessage(`{"attempts": "three"}`), "jobQueue", "render")
		assert.Equal(t, model.DefaultJobOpts(), opts)
	})

	t.Run("typed fields survive", func(t *testing.T) {
		raw := json.RawMessage(`{"attempts": 4, "priority": 2, "delay": 1500}`)
		opts := svc.decodeOpts(raw, "jobQueue", "render")
		assert.Equal(t, 4, opts.Attempts)
		assert.Equal(t, 2, opts.Priority)
		assert.Equal(t, 1500*time.Millisecond, opts.Delay)
		assert.Equal(t, 3, opts.RemoveOnComplete.Count, "missing retention still defaults")
		assert.Equal(t, 5, opts.RemoveOnFail.Count)
	})

	t.Run("explicit retention wins over defaults", func(t *testing.T) {
		raw := json.RawMessage(`{"removeOnComplete": {"count": 10}, "removeOnFail": {"count": 1}}`)
		opts := svc.decodeOpts(raw, "jobQueue", "render")
		assert.Equal(t, 10, opts.RemoveOnComplete.Count)
		assert.Equal(t, 1, opts.RemoveOnFail.Count)
	})

	t.Run("unknown fields land in Extra", func(t *testing.T) {
		raw := json.RawMessage(`{"attempts": 2, "lifo": true, "jobId": "custom"}`)
		opts := svc.decodeOpts(raw, "jobQueue", "render")
		assert.Equal(t, 2, opts.Attempts)
		assert.Equal(t, map[string]any{"lifo": true, "jobId": "custom"}, opts.Extra)
	})
}
