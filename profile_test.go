package authcore_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	authcore "github.com/kesslerlabs/go-authcore"
)

func fixedClock() time.Time { return testEpoch }

func TestProfileSyncCreate(t *testing.T) {
	store := new(MockProfileStore)

	var written *authcore.ProfileRecord
	store.On("Upsert", mock.Anything, "user-1", mock.Anything, false).
		Run(func(args mock.Arguments) {
			written = args.Get(2).(*authcore.ProfileRecord)
		}).
		Return(nil)

	handler := authcore.NewProfileSyncHandler(store).WithClock(fixedClock)

	err := handler.Execute(context.Background(), authcore.ProfileSyncMessage{
		Identity:    *newUserIdentity("user-1"),
		DisplayName: "Preferred Name",
	})
	require.NoError(t, err)

	require.NotNil(t, written)
	assert.Equal(t, "Preferred Name", written.DisplayName)
	assert.Equal(t, "user-1@example.com", written.Email)
	require.NotNil(t, written.CreatedAt)
	require.NotNil(t, written.LastLoginAt)
	assert.True(t, written.CreatedAt.Equal(testEpoch))
	assert.True(t, written.LastLoginAt.Equal(testEpoch))
}

func TestProfileSyncCreateFallsBackToIdentityName(t *testing.T) {
	store := new(MockProfileStore)

	var written *authcore.ProfileRecord
	store.On("Upsert", mock.Anything, mock.Anything, mock.Anything, false).
		Run(func(args mock.Arguments) {
			written = args.Get(2).(*authcore.ProfileRecord)
		}).
		Return(nil)

	handler := authcore.NewProfileSyncHandler(store)

	err := handler.Execute(context.Background(), authcore.ProfileSyncMessage{
		Identity: *newUserIdentity("user-1"),
	})
	require.NoError(t, err)
	require.NotNil(t, written)
	assert.Equal(t, "Test User", written.DisplayName)
}

func TestProfileSyncMergeTouchesOnlyLoginMetadata(t *testing.T) {
	store := new(MockProfileStore)

	var written *authcore.ProfileRecord
	store.On("Upsert", mock.Anything, "user-1", mock.Anything, true).
		Run(func(args mock.Arguments) {
			written = args.Get(2).(*authcore.ProfileRecord)
		}).
		Return(nil)

	handler := authcore.NewProfileSyncHandler(store).WithClock(fixedClock)

	err := handler.Execute(context.Background(), authcore.ProfileSyncMessage{
		Identity: *returningUserIdentity("user-1"),
		Merge:    true,
	})
	require.NoError(t, err)

	require.NotNil(t, written)
	assert.Nil(t, written.CreatedAt)
	assert.Empty(t, written.DisplayName)
	assert.Empty(t, written.Email)
	assert.NotEmpty(t, written.PhotoURL)
	require.NotNil(t, written.LastLoginAt)
	assert.True(t, written.LastLoginAt.Equal(testEpoch))
}

func TestProfileSyncRequiresIdentityID(t *testing.T) {
	store := new(MockProfileStore)
	handler := authcore.NewProfileSyncHandler(store)

	err := handler.Execute(context.Background(), authcore.ProfileSyncMessage{})
	require.Error(t, err)
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProfileSyncHonorsCancelledContext(t *testing.T) {
	store := new(MockProfileStore)
	handler := authcore.NewProfileSyncHandler(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := handler.Execute(ctx, authcore.ProfileSyncMessage{
		Identity: *newUserIdentity("user-1"),
	})
	require.Error(t, err)
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProfileSyncWrapsStoreFailure(t *testing.T) {
	store := new(MockProfileStore)
	store.On("Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	handler := authcore.NewProfileSyncHandler(store)

	err := handler.Execute(context.Background(), authcore.ProfileSyncMessage{
		Identity: *newUserIdentity("user-1"),
	})
	require.Error(t, err)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, goerrors.CategoryOperation, rich.Category)
	assert.Equal(t, "profile creation failed", rich.Message)
	assert.True(t, goerrors.Is(err, assert.AnError))
}
