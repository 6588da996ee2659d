package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/repository"
)

func TestClassServiceLifecycle(t *testing.T) {
	db := newTestDB(t)
	svc := NewClassService(repository.NewClassRepository(db), validator.New(), zerolog.Nop())
	ctx := context.Background()

	created, err := svc.Create(ctx, "prof-1", dto.ClassCreateRequest{Title: "<script>x</script>Statistics 101", Term: "Fall"})
	require.NoError(t, err)
	require.Equal(t, "Statistics 101", created.Title)
	require.Equal(t, models.ClassStatusActive, created.Status)

	_, err = svc.Get(ctx, created.ID, "prof-2")
	require.ErrorIs(t, err, ErrClassNotFound)

	status := models.ClassStatusInactive
	updated, err := svc.Update(ctx, created.ID, "prof-1", dto.ClassUpdateRequest{Status: &status})
	require.NoError(t, err)
	require.Equal(t, models.ClassStatusInactive, updated.Status)
	require.Equal(t, "Fall", updated.Term)

	listed, err := svc.List(ctx, "prof-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, svc.Delete(ctx, created.ID, "prof-1"))
	require.ErrorIs(t, svc.Delete(ctx, created.ID, "prof-1"), ErrClassNotFound)
}

func TestClassServiceValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewClassService(repository.NewClassRepository(db), validator.New(), zerolog.Nop())

	_, err := svc.Create(context.Background(), "prof-1", dto.ClassCreateRequest{})
	require.True(t, IsValidationError(err))

	_, err = svc.Create(context.Background(), "prof-1", dto.ClassCreateRequest{Title: "<b></b>"})
	require.True(t, IsValidationError(err))

	bad := "archived"
	_, err = svc.Update(context.Background(), 1, "prof-1", dto.ClassUpdateRequest{Status: &bad})
	require.True(t, IsValidationError(err))
}
