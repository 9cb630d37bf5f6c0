package api

import (
	"context"

	"github.com/buildstate/fm-sync/core"
)

// TeamService covers team members and invite administration.
type TeamService struct {
	c *Client
}

type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=ADMIN MANAGER VIEWER"`
}

func (s *TeamService) Members(ctx context.Context) (core.Collection, error) {
	const op = "team.members"
	body, err := s.c.get(ctx, op, "/team/members", nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "members")
}

func (s *TeamService) Invites(ctx context.Context) (core.Collection, error) {
	const op = "team.invites"
	body, err := s.c.get(ctx, op, "/team/invites", nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "invites")
}

func (s *TeamService) Invite(ctx context.Context, req InviteRequest) (core.Doc, error) {
	const op = "team.invite"
	if err := s.c.checkPayload(op, req); err != nil {
		return nil, err
	}
	body, err := s.c.post(ctx, op, "/team/invites", req)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "invite")
}

func (s *TeamService) RevokeInvite(ctx context.Context, inviteID string) error {
	_, err := s.c.delete(ctx, "team.revokeInvite", "/team/invites/"+inviteID)
	return err
}

func (s *TeamService) RemoveMember(ctx context.Context, memberID string) error {
	_, err := s.c.delete(ctx, "team.removeMember", "/team/members/"+memberID)
	return err
}
