package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"herdline/internal/domain"
	"herdline/internal/engine"
)

func registerUnits(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-unit",
		Method:        http.MethodPost,
		Path:          "/units",
		Summary:       "Create a processing unit or shop",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Kind string `json:"kind" enum:"processing_unit,shop"`
			Name string `json:"name"`
		} `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var id int64
		var name string
		if input.Body.Kind == domain.UnitKindShop {
			s, err := e.CreateShop(ctx, actorID, input.Body.Name)
			if err != nil {
				return nil, handleError(err)
			}
			id, name = s.ID, s.Name
		} else {
			u, err := e.CreateProcessingUnit(ctx, actorID, input.Body.Name)
			if err != nil {
				return nil, handleError(err)
			}
			id, name = u.ID, u.Name
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{"id": id, "kind": input.Body.Kind, "name": name}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-unit-members",
		Method:      http.MethodGet,
		Path:        "/units/{kind}/{id}/members",
		Summary:     "List unit members",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind" enum:"processing_unit,shop"`
		ID   int64  `path:"id"`
	}) (*struct {
		Body []domain.Membership `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListMemberships(ctx, input.Kind, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Membership{}
		}
		return &struct {
			Body []domain.Membership `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "invite-member",
		Method:        http.MethodPost,
		Path:          "/memberships/invite",
		Summary:       "Invite an actor to the caller's unit",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ActorID string `json:"actor_id"`
			Role    string `json:"role"`
		} `json:"body"`
	}) (*struct {
		Body domain.Membership `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.InviteMember(ctx, actorID, input.Body.ActorID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Membership `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "respond-invitation",
		Method:      http.MethodPost,
		Path:        "/memberships/{id}/respond",
		Summary:     "Accept or decline an invitation",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Accept bool `json:"accept"`
		} `json:"body"`
	}) (*struct {
		Body domain.Membership `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.RespondInvitation(ctx, actorID, input.ID, input.Body.Accept)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Membership `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "request-join",
		Method:        http.MethodPost,
		Path:          "/memberships/join",
		Summary:       "Request to join a unit",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			UnitKind string `json:"unit_kind" enum:"processing_unit,shop"`
			UnitID   int64  `json:"unit_id"`
		} `json:"body"`
	}) (*struct {
		Body domain.Membership `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.RequestJoin(ctx, actorID, input.Body.UnitKind, input.Body.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Membership `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-join-request",
		Method:      http.MethodPost,
		Path:        "/memberships/{id}/review",
		Summary:     "Approve or deny a join request",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Approve bool `json:"approve"`
		} `json:"body"`
	}) (*struct {
		Body domain.Membership `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.ReviewJoinRequest(ctx, actorID, input.ID, input.Body.Approve)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Membership `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "suspend-member",
		Method:      http.MethodPost,
		Path:        "/memberships/{id}/suspend",
		Summary:     "Suspend a member",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Membership `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.SuspendMember(ctx, actorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Membership `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-member",
		Method:      http.MethodDelete,
		Path:        "/memberships/{id}",
		Summary:     "Remove a member from the unit",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Membership `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.RemoveMember(ctx, actorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Membership `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "leave-unit",
		Method:      http.MethodPost,
		Path:        "/memberships/leave",
		Summary:     "Leave the caller's unit",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.LeaveUnit(ctx, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "left"}}, nil
	})
}
