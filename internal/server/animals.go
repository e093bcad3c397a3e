package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"herdline/internal/app"
	"herdline/internal/domain"
	"herdline/internal/engine"
	"herdline/internal/repo"
)

func registerAnimals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-animal",
		Method:        http.MethodPost,
		Path:          "/animals",
		Summary:       "Register animal",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Tag     string `json:"tag"`
			Species string `json:"species,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Animal `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RegisterAnimal(ctx, actorID, input.Body.Tag, input.Body.Species)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Animal `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-animals",
		Method:      http.MethodGet,
		Path:        "/animals",
		Summary:     "List animals",
	}, func(ctx context.Context, input *struct {
		Producer string `query:"producer"`
		Status   string `query:"status" enum:",active,slaughtered"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Animal `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAnimals(ctx, repo.AnimalFilters{
			ProducerID: input.Producer,
			Status:     input.Status,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Animal{}
		}
		return &struct {
			Body []domain.Animal `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-animal",
		Method:      http.MethodGet,
		Path:        "/animals/{id}",
		Summary:     "Get animal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body struct {
			Animal domain.Animal       `json:"animal"`
			Parts  []domain.CarcassPart `json:"parts,omitempty"`
		} `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetAnimal(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		parts, err := e.Repo.ListPartsByAnimal(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Animal domain.Animal       `json:"animal"`
				Parts  []domain.CarcassPart `json:"parts,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Animal = a
		out.Body.Parts = parts
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "slaughter-animal",
		Method:      http.MethodPost,
		Path:        "/animals/{id}/slaughter",
		Summary:     "Record slaughter",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64            `path:"id"`
		Body SlaughterRequest `json:"body"`
	}) (*struct {
		Body domain.Animal `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.SlaughterOptions{
			ActorID:     actorID,
			AnimalID:    input.ID,
			CarcassType: input.Body.CarcassType,
		}
		for _, p := range input.Body.Parts {
			opts.Parts = append(opts.Parts, engine.PartInput{PartType: p.PartType, WeightKg: p.WeightKg})
		}
		a, err := e.Slaughter(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Animal `json:"body"`
		}{Body: a}, nil
	})
}

func registerTransfers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "transfer",
		Method:      http.MethodPost,
		Path:        "/transfer",
		Summary:     "Transfer animals and parts to a processing unit",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ProcessingUnitID int64   `json:"processing_unit_id"`
			AnimalIDs        []int64 `json:"animal_ids,omitempty"`
			PartIDs          []int64 `json:"part_ids,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body engine.TransferResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Transfer(ctx, engine.TransferOptions{
			ActorID:          actorID,
			ProcessingUnitID: input.Body.ProcessingUnitID,
			AnimalIDs:        input.Body.AnimalIDs,
			PartIDs:          input.Body.PartIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.TransferResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "receive",
		Method:      http.MethodPost,
		Path:        "/receive",
		Summary:     "Receive animals and parts at the processing unit",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			AnimalIDs []int64 `json:"animal_ids,omitempty"`
			PartIDs   []int64 `json:"part_ids,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body engine.ReceiveResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Receive(ctx, engine.ReceiveOptions{
			ActorID:   actorID,
			AnimalIDs: input.Body.AnimalIDs,
			PartIDs:   input.Body.PartIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ReceiveResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pending-receive",
		Method:      http.MethodGet,
		Path:        "/receive/pending",
		Summary:     "List entities awaiting receipt at the caller's unit",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Animals  []domain.Animal      `json:"animals"`
			Parts    []domain.CarcassPart `json:"parts"`
			Products []domain.Product     `json:"products"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		aff, err := app.EnsureAffiliation(ctx, actorID, e.Repo, e.Gate)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Animals  []domain.Animal      `json:"animals"`
				Parts    []domain.CarcassPart `json:"parts"`
				Products []domain.Product     `json:"products"`
			} `json:"body"`
		}{}
		out.Body.Animals = []domain.Animal{}
		out.Body.Parts = []domain.CarcassPart{}
		out.Body.Products = []domain.Product{}
		if aff.UnitKind == domain.UnitKindShop {
			products, err := e.Repo.ListPendingProducts(ctx, aff.UnitID)
			if err != nil {
				return nil, handleError(err)
			}
			if products != nil {
				out.Body.Products = products
			}
			return out, nil
		}
		animals, err := e.Repo.ListPendingAnimals(ctx, aff.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		parts, err := e.Repo.ListPendingParts(ctx, aff.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		if animals != nil {
			out.Body.Animals = animals
		}
		if parts != nil {
			out.Body.Parts = parts
		}
		return out, nil
	})
}
