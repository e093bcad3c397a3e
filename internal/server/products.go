package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"herdline/internal/domain"
	"herdline/internal/engine"
	"herdline/internal/repo"
)

func registerProducts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-product",
		Method:        http.MethodPost,
		Path:          "/products",
		Summary:       "Create product batch",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			AnimalID    int64   `json:"animal_id,omitempty"`
			PartIDs     []int64 `json:"part_ids,omitempty"`
			BatchNumber string  `json:"batch_number"`
			Name        string  `json:"name"`
			Quantity    int64   `json:"quantity"`
		} `json:"body"`
	}) (*struct {
		Body domain.Product `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProduct(ctx, engine.ProductCreateOptions{
			ActorID:     actorID,
			AnimalID:    input.Body.AnimalID,
			PartIDs:     input.Body.PartIDs,
			BatchNumber: input.Body.BatchNumber,
			Name:        input.Body.Name,
			Quantity:    input.Body.Quantity,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Product `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-products",
		Method:      http.MethodGet,
		Path:        "/products",
		Summary:     "List products",
	}, func(ctx context.Context, input *struct {
		Batch string `query:"batch"`
		Unit  int64  `query:"unit"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Product `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListProducts(ctx, repo.ProductFilters{
			BatchNumber:      input.Batch,
			ProcessingUnitID: input.Unit,
			Limit:            input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Product{}
		}
		return &struct {
			Body []domain.Product `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transfer-products",
		Method:      http.MethodPost,
		Path:        "/products/transfer",
		Summary:     "Transfer products to a shop",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ShopID    int64                 `json:"shop_id"`
			Transfers []ProductTransferLine `json:"transfers"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ProductTransferOptions{ActorID: actorID, ShopID: input.Body.ShopID}
		for _, t := range input.Body.Transfers {
			opts.Items = append(opts.Items, engine.ProductTransferItem{ProductID: t.ProductID, Quantity: t.Quantity})
		}
		if err := e.TransferProducts(ctx, opts); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "transferred"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "receive-products",
		Method:      http.MethodPost,
		Path:        "/products/receive",
		Summary:     "Receive products at the shop",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ProductIDs []int64 `json:"product_ids"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ReceiveProducts(ctx, engine.ProductReceiveOptions{
			ActorID:    actorID,
			ProductIDs: input.Body.ProductIDs,
		}); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "received"}}, nil
	})
}
