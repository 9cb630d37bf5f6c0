package api

import (
	"context"

	"github.com/rs/xid"

	"github.com/buildstate/fm-sync/core"
)

// PropertiesService covers the property portfolio.
type PropertiesService struct {
	c *Client
}

type CreatePropertyRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name" validate:"required,max=200"`
	Address  string `json:"address" validate:"required,max=500"`
	City     string `json:"city" validate:"required,max=100"`
	Postcode string `json:"postcode" validate:"required,max=20"`
}

type UpdatePropertyRequest struct {
	Name     string `json:"name,omitempty" validate:"omitempty,max=200"`
	Address  string `json:"address,omitempty" validate:"omitempty,max=500"`
	City     string `json:"city,omitempty" validate:"omitempty,max=100"`
	Postcode string `json:"postcode,omitempty" validate:"omitempty,max=20"`
}

func (s *PropertiesService) List(ctx context.Context) (core.Collection, error) {
	const op = "properties.list"
	body, err := s.c.get(ctx, op, "/properties", nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "properties")
}

func (s *PropertiesService) Get(ctx context.Context, id string) (core.Doc, error) {
	const op = "properties.get"
	body, err := s.c.get(ctx, op, "/properties/"+id, nil)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "property")
}

func (s *PropertiesService) Create(ctx context.Context, req CreatePropertyRequest) (core.Doc, error) {
	const op = "properties.create"
	if req.ID == "" {
		req.ID = xid.New().String()
	}
	if err := s.c.checkPayload(op, req); err != nil {
		return nil, err
	}
	body, err := s.c.post(ctx, op, "/properties", req)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "property")
}

func (s *PropertiesService) Update(ctx context.Context, id string, req UpdatePropertyRequest) (core.Doc, error) {
	const op = "properties.update"
	if err := s.c.checkPayload(op, req); err != nil {
		return nil, err
	}
	body, err := s.c.put(ctx, op, "/properties/"+id, req)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "property")
}

func (s *PropertiesService) Delete(ctx context.Context, id string) error {
	_, err := s.c.delete(ctx, "properties.delete", "/properties/"+id)
	return err
}
