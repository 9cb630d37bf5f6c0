package api

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/buildstate/fm-sync/core"
)

// TenantsService covers tenants and tenancy moves.
type TenantsService struct {
	c *Client
}

type CreateTenantRequest struct {
	ID     string `json:"id"`
	UnitID string `json:"unitId" validate:"required"`
	Name   string `json:"name" validate:"required,max=200"`
	Email  string `json:"email" validate:"required,email"`
	Phone  string `json:"phone,omitempty" validate:"omitempty,e164"`
}

func (s *TenantsService) List(ctx context.Context) (core.Collection, error) {
	const op = "tenants.list"
	body, err := s.c.get(ctx, op, "/tenants", nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "tenants")
}

func (s *TenantsService) ByUnit(ctx context.Context, unitID string) (core.Collection, error) {
	const op = "tenants.byUnit"
	body, err := s.c.get(ctx, op, "/tenants", map[string]string{"unit_id": unitID})
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "tenants")
}

func (s *TenantsService) Get(ctx context.Context, id string) (core.Doc, error) {
	const op = "tenants.get"
	body, err := s.c.get(ctx, op, "/tenants/"+id, nil)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "tenant")
}

func (s *TenantsService) Create(ctx context.Context, req CreateTenantRequest) (core.Doc, error) {
	const op = "tenants.create"
	if req.ID == "" {
		req.ID = xid.New().String()
	}
	if err := s.c.checkPayload(op, req); err != nil {
		return nil, err
	}
	body, err := s.c.post(ctx, op, "/tenants", req)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "tenant")
}

func (s *TenantsService) Update(ctx context.Context, id string, fields map[string]any) (core.Doc, error) {
	const op = "tenants.update"
	body, err := s.c.put(ctx, op, "/tenants/"+id, fields)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "tenant")
}

// MoveOut records the end of a tenancy. The move-out flow also
// schedules the final inspection server-side, so callers should
// invalidate inspection lists along with the tenant's keys.
func (s *TenantsService) MoveOut(ctx context.Context, id string, moveOutDate string) (core.Doc, error) {
	const op = "tenants.moveOut"
	body, err := s.c.post(ctx, op, fmt.Sprintf("/tenants/%s/move-out", id),
		map[string]string{"moveOutDate": moveOutDate})
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "tenant")
}
