// internal/workers/recruiting/create-invite/handler_test.go
package createinvite

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/invites"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

func TestHandler_Execute_Success(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	svc := invites.NewService(client,
		invites.WithClock(func() time.Time { return created }),
		invites.WithTokenGenerator(func() string { return "tok-42" }),
		invites.WithBaseURL("https://ambient.example.com/join"),
		invites.WithTTL(72*time.Hour),
	)
	handler := NewHandler(LoadConfig(), svc, logger.NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{InviterID: "setter-1", Email: "recruit@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "tok-42", output.InviteToken)
	assert.Equal(t, "https://ambient.example.com/join?token=tok-42", output.InviteURL)
	assert.Equal(t, "2024-03-09T12:00:00Z", output.ExpiresAt)
	assert.True(t, mr.Exists("invite:tok-42"))
}

func TestHandler_Execute_ValidationError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	handler := NewHandler(LoadConfig(), invites.NewService(client), logger.NewTestLogger(t))

	_, err = handler.Execute(context.Background(), &Input{InviterID: "setter-1", Email: "nope"})
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.CodeOf(err))
	assert.Empty(t, mr.Keys())
}

func TestHandler_Execute_RedisDownIsRetryable(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectSet(`invite:tok-1`, `.*`, 168*time.Hour).SetErr(errors.New("connection refused"))

	svc := invites.NewService(db, invites.WithTokenGenerator(func() string { return "tok-1" }))
	handler := NewHandler(LoadConfig(), svc, logger.NewTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{InviterID: "setter-1", Email: "recruit@example.com"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePersistenceFailed, apperrors.CodeOf(err))
	assert.Equal(t, 3, apperrors.GetRetryCount(apperrors.CodeOf(err)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
