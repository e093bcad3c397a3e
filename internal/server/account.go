package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"herdline/internal/domain"
	"herdline/internal/engine"
	"herdline/internal/repo"
)

func registerAccount(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-actor",
		Method:        http.MethodPost,
		Path:          "/actors",
		Summary:       "Register actor",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ID          string `json:"id"`
			Role        string `json:"role"`
			DisplayName string `json:"display_name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.RegisterActor(ctx, input.Body.ID, input.Body.Role, input.Body.DisplayName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current actor",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetActor(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Name string `json:"name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			ID  string `json:"id"`
			Key string `json:"key"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw := uuid.NewString() + uuid.NewString()
		k := domain.APIKey{
			ID:        uuid.NewString(),
			ActorID:   actorID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(raw),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAPIKey(ctx, k); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				ID  string `json:"id"`
				Key string `json:"key"`
			} `json:"body"`
		}{}
		out.Body.ID = k.ID
		out.Body.Key = raw
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.APIKey{}
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit records",
	}, func(ctx context.Context, input *struct {
		Action     string `query:"action"`
		EntityKind string `query:"entity_kind" enum:",animal,part,product"`
		EntityID   int64  `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.AuditRecord `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAuditRecords(ctx, repo.AuditFilters{
			Action:     input.Action,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.AuditRecord{}
		}
		return &struct {
			Body []domain.AuditRecord `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List notifications for the current actor",
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListNotifications(ctx, actorID, input.Unread, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Notification{}
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-notification",
		Method:      http.MethodPost,
		Path:        "/notifications/{id}/read",
		Summary:     "Mark notification as read",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.MarkNotificationRead(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "read"}}, nil
	})
}

// registerDevAuth adds a development-only login endpoint that mints a
// short-lived HS256 token for a known actor.
func registerDevAuth(api huma.API, e engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Dev login (issues a JWT)",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ActorID string `json:"actor_id"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if _, err := e.Repo.GetActor(ctx, input.Body.ActorID); err != nil {
			return nil, handleError(err)
		}
		now := time.Now()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   input.Body.ActorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(12 * time.Hour)),
		})
		signed, err := token.SignedString([]byte(auth.JWTSecret))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"token": signed}}, nil
	})
}
