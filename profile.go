package authcore

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ProfileRecord is the per-user document persisted in the profile store,
// keyed by the identity's provider id. It holds presentation metadata only;
// credentials never live here.
type ProfileRecord struct {
	ID          string     `json:"id"`
	Email       string     `json:"email,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	PhotoURL    string     `json:"photo_url,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// ProfileSyncMessage describes one profile persistence request. Merge
// selects between full creation (false) and a merge-style upsert touching
// only LastLoginAt and PhotoURL (true).
type ProfileSyncMessage struct {
	Identity    Identity `json:"identity"`
	DisplayName string   `json:"display_name"`
	Merge       bool     `json:"merge"`
}

func (m ProfileSyncMessage) Type() string { return "profile.sync" }

// ProfileSyncHandler performs idempotent profile persistence against the
// external document store.
type ProfileSyncHandler struct {
	store  ProfileStore
	now    func() time.Time
	logger Logger
}

func NewProfileSyncHandler(store ProfileStore) *ProfileSyncHandler {
	return &ProfileSyncHandler{
		store:  store,
		now:    time.Now,
		logger: defLogger{},
	}
}

func (h *ProfileSyncHandler) WithClock(clock func() time.Time) *ProfileSyncHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *ProfileSyncHandler) WithLogger(logger Logger) *ProfileSyncHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Execute writes the profile document for the message's identity. Creation
// (Merge=false) stamps CreatedAt == LastLoginAt == now and is idempotent:
// retrying never overwrites an existing document's CreatedAt or
// DisplayName. Merge updates only LastLoginAt and PhotoURL.
func (h *ProfileSyncHandler) Execute(ctx context.Context, event ProfileSyncMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile sync",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ProfileSyncHandler) execute(ctx context.Context, event ProfileSyncMessage) error {
	if h.store == nil {
		return goerrors.New("profile store not configured", goerrors.CategoryInternal)
	}

	identity := event.Identity
	if identity.ID == "" {
		return goerrors.New("identity id is required for profile sync", goerrors.CategoryBadInput)
	}

	now := h.now()

	if event.Merge {
		record := &ProfileRecord{
			ID:          identity.ID,
			PhotoURL:    identity.PhotoURL,
			LastLoginAt: &now,
		}
		if err := h.store.Upsert(ctx, identity.ID, record, true); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "profile merge update failed")
		}
		return nil
	}

	name := event.DisplayName
	if name == "" {
		name = identity.DisplayName
	}

	record := &ProfileRecord{
		ID:          identity.ID,
		Email:       identity.Email,
		DisplayName: name,
		PhotoURL:    identity.PhotoURL,
		CreatedAt:   &now,
		LastLoginAt: &now,
	}
	if err := h.store.Upsert(ctx, identity.ID, record, false); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "profile creation failed")
	}
	return nil
}
