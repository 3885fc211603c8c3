package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"magiclink-auth/internal/middleware"
	"magiclink-auth/internal/model"
	"magiclink-auth/pkg/apierror"
)

type userAdminStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	Update(ctx context.Context, u model.User) (model.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.User, error)
}

type tokenRevoker interface {
	RevokeAll(ctx context.Context, userID string) error
}

type AdminHandler struct {
	users      userAdminStore
	tokens     tokenRevoker
	audit      auditLogger
	production bool
}

func NewAdminHandler(users userAdminStore, tokens tokenRevoker, audit auditLogger, production bool) *AdminHandler {
	return &AdminHandler{
		users:      users,
		tokens:     tokens,
		audit:      audit,
		production: production,
	}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, err, h.production)
		return
	}

	entry := auditEntry(r, model.EventAdminAction)
	entry.ResourceType = "user"
	entry.Metadata = map[string]any{"action": "list"}
	h.audit.Log(r.Context(), entry)

	writeSuccess(w, http.StatusOK, users, &model.Meta{Total: len(users)})
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.users.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err, h.production)
		return
	}

	entry := auditEntry(r, model.EventAdminAction)
	entry.TargetUserID = user.ID
	entry.ResourceType = "user"
	entry.ResourceID = user.ID
	entry.Metadata = map[string]any{"action": "get"}
	h.audit.Log(r.Context(), entry)

	writeSuccess(w, http.StatusOK, user, nil)
}

// UpdateUser applies a partial update. An admin cannot demote their
// own account; that guard keeps at least the acting admin in place.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var payload model.UpdateUserRequest
	if !decodeAndValidate(w, r, &payload, h.production) {
		return
	}

	acting, _ := middleware.UserFromContext(r.Context())

	user, err := h.users.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err, h.production)
		return
	}

	previousRole := user.Role

	if payload.Name != nil {
		user.Name = *payload.Name
	}
	if payload.Email != nil {
		user.Email = *payload.Email
	}
	if payload.Role != nil {
		if acting.ID == user.ID && *payload.Role != model.RoleAdmin {
			writeError(w, apierror.Forbidden("cannot change your own role"), h.production)
			return
		}
		user.Role = *payload.Role
	}

	updated, err := h.users.Update(r.Context(), user)
	if err != nil {
		writeError(w, err, h.production)
		return
	}

	eventType := model.EventUserUpdated
	if updated.Role != previousRole {
		eventType = model.EventRoleChanged
	}
	entry := auditEntry(r, eventType)
	entry.TargetUserID = updated.ID
	entry.ResourceType = "user"
	entry.ResourceID = updated.ID
	if updated.Role != previousRole {
		entry.Metadata = map[string]any{"previous_role": previousRole, "new_role": updated.Role}
	}
	h.audit.Log(r.Context(), entry)

	writeSuccess(w, http.StatusOK, updated, nil)
}

// DeleteUser revokes the user's tokens before removing the row, so a
// live session cannot outlast its account. Self-deletion is refused.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	acting, _ := middleware.UserFromContext(r.Context())
	if acting.ID == id {
		writeError(w, apierror.Forbidden("cannot delete your own account"), h.production)
		return
	}

	user, err := h.users.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err, h.production)
		return
	}

	if err := h.tokens.RevokeAll(r.Context(), user.ID); err != nil {
		writeError(w, err, h.production)
		return
	}
	if err := h.users.Delete(r.Context(), user.ID); err != nil {
		writeError(w, err, h.production)
		return
	}

	entry := auditEntry(r, model.EventUserDeleted)
	entry.TargetUserID = user.ID
	entry.ResourceType = "user"
	entry.ResourceID = user.ID
	h.audit.Log(r.Context(), entry)

	writeSuccess(w, http.StatusOK, map[string]any{"message": "user deleted"}, nil)
}
