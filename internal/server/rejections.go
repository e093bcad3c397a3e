package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"herdline/internal/domain"
	"herdline/internal/engine"
)

func registerRejections(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "reject-entity",
		Method:        http.MethodPost,
		Path:          "/rejections",
		Summary:       "Reject a delivered entity",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			EntityKind string `json:"entity_kind" enum:"animal,part,product"`
			EntityID   int64  `json:"entity_id"`
			Category   string `json:"category"`
			Reason     string `json:"reason"`
			Notes      string `json:"notes,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.RejectionReason `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rr, err := e.Reject(ctx, engine.RejectOptions{
			ActorID:    actorID,
			EntityKind: input.Body.EntityKind,
			EntityID:   input.Body.EntityID,
			Category:   input.Body.Category,
			Reason:     input.Body.Reason,
			Notes:      input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RejectionReason `json:"body"`
		}{Body: rr}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rejections",
		Method:      http.MethodGet,
		Path:        "/rejections",
		Summary:     "List rejection reasons for an entity",
	}, func(ctx context.Context, input *struct {
		EntityKind string `query:"entity_kind" enum:"animal,part,product"`
		EntityID   int64  `query:"entity_id"`
	}) (*struct {
		Body []domain.RejectionReason `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListRejectionReasons(ctx, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.RejectionReason{}
		}
		return &struct {
			Body []domain.RejectionReason `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "open-appeal",
		Method:        http.MethodPost,
		Path:          "/appeals",
		Summary:       "Open an appeal against a rejection",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			EntityKind string `json:"entity_kind" enum:"animal,part,product"`
			EntityID   int64  `json:"entity_id"`
			Notes      string `json:"notes,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Appeal `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.OpenAppeal(ctx, engine.AppealOptions{
			ActorID:    actorID,
			EntityKind: input.Body.EntityKind,
			EntityID:   input.Body.EntityID,
			Notes:      input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Appeal `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-appeals",
		Method:      http.MethodGet,
		Path:        "/appeals",
		Summary:     "List appeals",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:",pending,approved,denied"`
	}) (*struct {
		Body []domain.Appeal `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAppeals(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Appeal{}
		}
		return &struct {
			Body []domain.Appeal `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-appeal",
		Method:      http.MethodPost,
		Path:        "/appeals/{id}/resolve",
		Summary:     "Resolve a pending appeal",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Approve bool   `json:"approve"`
			Notes   string `json:"notes,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Appeal `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ResolveAppeal(ctx, engine.ResolveAppealOptions{
			ActorID:  actorID,
			AppealID: input.ID,
			Approve:  input.Body.Approve,
			Notes:    input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Appeal `json:"body"`
		}{Body: a}, nil
	})
}
