package api

import (
	"context"
	"fmt"

	"github.com/buildstate/fm-sync/core"
)

// ServiceRequestsService covers tenant-submitted service requests and
// their triage into jobs.
type ServiceRequestsService struct {
	c *Client
}

func (s *ServiceRequestsService) List(ctx context.Context) (core.Collection, error) {
	const op = "serviceRequests.list"
	body, err := s.c.get(ctx, op, "/service-requests", nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "requests")
}

func (s *ServiceRequestsService) Get(ctx context.Context, id string) (core.Doc, error) {
	const op = "serviceRequests.get"
	body, err := s.c.get(ctx, op, "/service-requests/"+id, nil)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "request")
}

func (s *ServiceRequestsService) UpdateStatus(ctx context.Context, id, status string) (core.Doc, error) {
	const op = "serviceRequests.updateStatus"
	body, err := s.c.put(ctx, op, fmt.Sprintf("/service-requests/%s/status", id),
		map[string]string{"status": status})
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "request")
}

// Convert turns a triaged request into a job. The response carries the
// new job document.
func (s *ServiceRequestsService) Convert(ctx context.Context, id string) (core.Doc, error) {
	const op = "serviceRequests.convert"
	body, err := s.c.post(ctx, op, fmt.Sprintf("/service-requests/%s/convert", id), nil)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "job")
}
