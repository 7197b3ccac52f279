package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/broker"
	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
	"github.com/conveyorhq/conveyor/internal/testutil"
)

func TestJobOwnershipAcrossUsers(t *testing.T) {
	client := broker.NewClient(testutil.SetupTestRedis(t))
	registry := broker.NewRegistry(client, []string{"jobQueue"})
	svc, err := NewJobService(JobServiceOptions{Registry: registry})
	require.NoError(t, err)
	ctx := context.Background()

	id, err := svc.Submit(ctx, "jobQueue", &model.SubmitJobRequest{
		Name: "export",
		Data: map[string]any{"path": "/tmp/out"},
	}, 1)
	require.NoError(t, err)

	// The owner reads the job back.
	view, err := svc.Get(ctx, "jobQueue", id, 1)
	require.NoError(t, err)
	assert.Equal(t, "export", view.Name)

	// Another user sees forbidden on the existing job, never not-found.
	_, err = svc.Get(ctx, "jobQueue", id, 2)
	assert.True(t, apperrors.IsForbidden(err))
	err = svc.Delete(ctx, "jobQueue", id, 2)
	assert.True(t, apperrors.IsForbidden(err))

	// The foreign job stays out of their listings.
	list, err := svc.List(ctx, "jobQueue", 2, ListJobsQuery{})
	require.NoError(t, err)
	assert.Empty(t, list.Jobs)
	assert.Zero(t, list.Pagination.Total)

	list, err = svc.List(ctx, "jobQueue", 1, ListJobsQuery{})
	require.NoError(t, err)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, id, list.Jobs[0].ID)

	// A job that does not exist at all is not-found for everyone.
	_, err = svc.Get(ctx, "jobQueue", "999999", 1)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = svc.Get(ctx, "jobQueue", "999999", 2)
	assert.True(t, apperrors.IsNotFound(err))

	// The owner can delete their own job.
	require.NoError(t, svc.Delete(ctx, "jobQueue", id, 1))
	_, err = svc.Get(ctx, "jobQueue", id, 1)
	assert.True(t, apperrors.IsNotFound(err))
}
