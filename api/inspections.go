package api

import (
	"context"
	"fmt"

	"github.com/buildstate/fm-sync/core"
)

// InspectionsService covers inspections, their rooms, and the issues
// and photos recorded per room.
type InspectionsService struct {
	c *Client
}

type IssueRequest struct {
	Description string `json:"description" validate:"required,max=2000"`
	Severity    string `json:"severity" validate:"required,oneof=MINOR MODERATE MAJOR"`
}

func (s *InspectionsService) List(ctx context.Context) (core.Collection, error) {
	const op = "inspections.list"
	body, err := s.c.get(ctx, op, "/inspections", nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "inspections")
}

func (s *InspectionsService) Get(ctx context.Context, id string) (core.Doc, error) {
	const op = "inspections.get"
	body, err := s.c.get(ctx, op, "/inspections/"+id, nil)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "inspection")
}

func (s *InspectionsService) Rooms(ctx context.Context, id string) (core.Collection, error) {
	const op = "inspections.rooms"
	body, err := s.c.get(ctx, op, fmt.Sprintf("/inspections/%s/rooms", id), nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "rooms")
}

func (s *InspectionsService) UpdateRoom(ctx context.Context, id, roomID string, fields map[string]any) (core.Doc, error) {
	const op = "inspections.updateRoom"
	body, err := s.c.put(ctx, op, fmt.Sprintf("/inspections/%s/rooms/%s", id, roomID), fields)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "room")
}

func (s *InspectionsService) Issues(ctx context.Context, id, roomID string) (core.Collection, error) {
	const op = "inspections.issues"
	body, err := s.c.get(ctx, op, fmt.Sprintf("/inspections/%s/rooms/%s/issues", id, roomID), nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "issues")
}

func (s *InspectionsService) AddIssue(ctx context.Context, id, roomID string, req IssueRequest) (core.Doc, error) {
	const op = "inspections.addIssue"
	if err := s.c.checkPayload(op, req); err != nil {
		return nil, err
	}
	body, err := s.c.post(ctx, op, fmt.Sprintf("/inspections/%s/rooms/%s/issues", id, roomID), req)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "issue")
}

func (s *InspectionsService) UpdateIssue(ctx context.Context, id, roomID, issueID string, fields map[string]any) (core.Doc, error) {
	const op = "inspections.updateIssue"
	body, err := s.c.put(ctx, op,
		fmt.Sprintf("/inspections/%s/rooms/%s/issues/%s", id, roomID, issueID), fields)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "issue")
}

func (s *InspectionsService) Photos(ctx context.Context, id, roomID string) (core.Collection, error) {
	const op = "inspections.photos"
	body, err := s.c.get(ctx, op, fmt.Sprintf("/inspections/%s/rooms/%s/photos", id, roomID), nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "photos")
}

// AttachPhotos links previously uploaded files to a room. The binary
// transfer itself goes through UploadsService.
func (s *InspectionsService) AttachPhotos(ctx context.Context, id, roomID string, files []UploadedFile) (core.Collection, error) {
	const op = "inspections.attachPhotos"
	body, err := s.c.post(ctx, op,
		fmt.Sprintf("/inspections/%s/rooms/%s/photos", id, roomID),
		map[string]any{"files": files})
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "photos")
}

func (s *InspectionsService) DeletePhoto(ctx context.Context, id, roomID, photoID string) error {
	_, err := s.c.delete(ctx, "inspections.deletePhoto",
		fmt.Sprintf("/inspections/%s/rooms/%s/photos/%s", id, roomID, photoID))
	return err
}

// Complete marks the inspection finished. Used as the last step of the
// move-out flow.
func (s *InspectionsService) Complete(ctx context.Context, id string) (core.Doc, error) {
	const op = "inspections.complete"
	body, err := s.c.post(ctx, op, fmt.Sprintf("/inspections/%s/complete", id), nil)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "inspection")
}
