package api

import (
	"context"

	"github.com/rs/xid"

	"github.com/buildstate/fm-sync/core"
)

// UnitsService covers units within properties.
type UnitsService struct {
	c *Client
}

type CreateUnitRequest struct {
	ID         string `json:"id"`
	PropertyID string `json:"propertyId" validate:"required"`
	Name       string `json:"name" validate:"required,max=100"`
	Bedrooms   int    `json:"bedrooms" validate:"min=0,max=50"`
	Floor      string `json:"floor,omitempty"`
}

func (s *UnitsService) List(ctx context.Context) (core.Collection, error) {
	const op = "units.list"
	body, err := s.c.get(ctx, op, "/units", nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "units")
}

func (s *UnitsService) ByProperty(ctx context.Context, propertyID string) (core.Collection, error) {
	const op = "units.byProperty"
	body, err := s.c.get(ctx, op, "/units", map[string]string{"property_id": propertyID})
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "units")
}

func (s *UnitsService) Get(ctx context.Context, id string) (core.Doc, error) {
	const op = "units.get"
	body, err := s.c.get(ctx, op, "/units/"+id, nil)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "unit")
}

func (s *UnitsService) Create(ctx context.Context, req CreateUnitRequest) (core.Doc, error) {
	const op = "units.create"
	if req.ID == "" {
		req.ID = xid.New().String()
	}
	if err := s.c.checkPayload(op, req); err != nil {
		return nil, err
	}
	body, err := s.c.post(ctx, op, "/units", req)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "unit")
}

func (s *UnitsService) Update(ctx context.Context, id string, fields map[string]any) (core.Doc, error) {
	const op = "units.update"
	body, err := s.c.put(ctx, op, "/units/"+id, fields)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "unit")
}

func (s *UnitsService) Delete(ctx context.Context, id string) error {
	_, err := s.c.delete(ctx, "units.delete", "/units/"+id)
	return err
}
