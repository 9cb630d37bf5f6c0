package api

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/buildstate/fm-sync/core"
)

// JobsService covers maintenance jobs and their comment threads.
type JobsService struct {
	c *Client
}

// CreateJobRequest is the payload for a new job. ID may be left empty;
// a client-generated one is assigned so the optimistic insert and the
// server row share an identity.
type CreateJobRequest struct {
	ID          string `json:"id"`
	UnitID      string `json:"unitId" validate:"required"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Priority    string `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	AssigneeID  string `json:"assigneeId"`
}

// CommentRequest is the payload for adding or editing a job comment.
type CommentRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

func (s *JobsService) List(ctx context.Context) (core.Collection, error) {
	const op = "jobs.list"
	body, err := s.c.get(ctx, op, "/jobs", nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "jobs")
}

func (s *JobsService) ByUnit(ctx context.Context, unitID string) (core.Collection, error) {
	const op = "jobs.byUnit"
	body, err := s.c.get(ctx, op, "/jobs", map[string]string{"unit_id": unitID})
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "jobs")
}

func (s *JobsService) Get(ctx context.Context, id string) (core.Doc, error) {
	const op = "jobs.get"
	body, err := s.c.get(ctx, op, "/jobs/"+id, nil)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "job")
}

func (s *JobsService) Create(ctx context.Context, req CreateJobRequest) (core.Doc, error) {
	const op = "jobs.create"
	if req.ID == "" {
		req.ID = xid.New().String()
	}
	if err := s.c.checkPayload(op, req); err != nil {
		return nil, err
	}
	body, err := s.c.post(ctx, op, "/jobs", req)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "job")
}

// UpdateStatus changes a job's status. Transition legality is checked
// by the caller against the cached job before this is invoked; the
// server enforces it again regardless.
func (s *JobsService) UpdateStatus(ctx context.Context, id, status string) (core.Doc, error) {
	const op = "jobs.updateStatus"
	body, err := s.c.put(ctx, op, fmt.Sprintf("/jobs/%s/status", id), map[string]string{"status": status})
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "job")
}

func (s *JobsService) Delete(ctx context.Context, id string) error {
	_, err := s.c.delete(ctx, "jobs.delete", "/jobs/"+id)
	return err
}

func (s *JobsService) Comments(ctx context.Context, jobID string) (core.Collection, error) {
	const op = "jobs.comments"
	body, err := s.c.get(ctx, op, fmt.Sprintf("/jobs/%s/comments", jobID), nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "comments")
}

func (s *JobsService) AddComment(ctx context.Context, jobID string, req CommentRequest) (core.Doc, error) {
	const op = "jobs.addComment"
	if err := s.c.checkPayload(op, req); err != nil {
		return nil, err
	}
	body, err := s.c.post(ctx, op, fmt.Sprintf("/jobs/%s/comments", jobID), req)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "comment")
}

func (s *JobsService) UpdateComment(ctx context.Context, jobID, commentID string, req CommentRequest) (core.Doc, error) {
	const op = "jobs.updateComment"
	if err := s.c.checkPayload(op, req); err != nil {
		return nil, err
	}
	body, err := s.c.put(ctx, op, fmt.Sprintf("/jobs/%s/comments/%s", jobID, commentID), req)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "comment")
}

func (s *JobsService) DeleteComment(ctx context.Context, jobID, commentID string) error {
	_, err := s.c.delete(ctx, "jobs.deleteComment", fmt.Sprintf("/jobs/%s/comments/%s", jobID, commentID))
	return err
}
