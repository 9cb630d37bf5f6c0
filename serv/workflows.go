package serv

import (
	"context"
	"time"

	"github.com/rs/xid"

	"github.com/buildstate/fm-sync/api"
	"github.com/buildstate/fm-sync/core"
)

// execute runs a mutation and unwraps the response document.
func (s *Service) execute(ctx context.Context, m core.Mutation) (core.Doc, error) {
	res, err := s.executor.Execute(ctx, m)
	if err != nil {
		return nil, err
	}
	if d, ok := res.Response.(core.Doc); ok {
		return d, nil
	}
	return nil, nil
}

// cachedField reads one field of a document from the first cached slot
// that holds it.
func (s *Service) cachedField(ctx context.Context, keys []core.Key, id, field string) (string, bool) {
	for _, k := range keys {
		e, ok := s.store.Get(ctx, k)
		if !ok || e.Data == nil {
			continue
		}
		if d := e.Data.Find(id); d != nil {
			if v, ok := d[field].(string); ok {
				return v, true
			}
		}
	}
	return "", false
}

// CreateJob creates a maintenance job. The job appears in the cached
// job lists immediately; the id is generated client-side so the
// optimistic document and the server's document line up.
func (s *Service) CreateJob(ctx context.Context, req api.CreateJobRequest) (core.Doc, error) {
	if req.ID == "" {
		req.ID = xid.New().String()
	}

	doc := core.Doc{
		"id":          req.ID,
		"unitId":      req.UnitID,
		"title":       req.Title,
		"description": req.Description,
		"priority":    req.Priority,
		"status":      core.JobOpen,
		"createdAt":   time.Now().UTC().Format(time.RFC3339),
	}
	if req.AssigneeID != "" {
		doc["assigneeId"] = req.AssigneeID
		doc["status"] = core.JobAssigned
	}

	return s.execute(ctx, core.Mutation{
		Name: "jobs.create",
		Affects: []core.Key{
			core.Keys.Jobs.List(),
			core.Keys.Jobs.ByUnit(req.UnitID),
		},
		Validate: func() error {
			return s.client.ValidateRequest("jobs.create", req)
		},
		Patch: core.InsertPatch{Doc: doc},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Jobs.Create(ctx, req)
		},
	})
}

// UpdateJobStatus moves a job to a new status. The current status is
// read from cache, or from the API when the job is not cached, and the
// change is rejected locally when the transition table forbids it.
func (s *Service) UpdateJobStatus(ctx context.Context, id, status string) (core.Doc, error) {
	lookup := []core.Key{core.Keys.Jobs.Detail(id), core.Keys.Jobs.List()}

	current, ok := s.cachedField(ctx, lookup, id, "status")
	if !ok {
		doc, err := s.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			current, _ = doc["status"].(string)
		}
	}

	affects := lookup
	unitID, _ := s.cachedField(ctx, lookup, id, "unitId")
	if unitID != "" {
		affects = append(affects, core.Keys.Jobs.ByUnit(unitID))
	}

	return s.execute(ctx, core.Mutation{
		Name:    "jobs.updateStatus",
		Affects: affects,
		Validate: func() error {
			return core.CheckTransition("jobs", current, status)
		},
		Patch: core.MergePatch{ID: id, Fields: map[string]any{"status": status}},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Jobs.UpdateStatus(ctx, id, status)
		},
	})
}

// DeleteJob removes a job. The cached lists drop it immediately and
// the affected slots are refetched on next read after the server
// confirms.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	affects := []core.Key{core.Keys.Jobs.List(), core.Keys.Jobs.Detail(id)}
	if unitID, ok := s.cachedField(ctx, affects, id, "unitId"); ok {
		affects = append(affects, core.Keys.Jobs.ByUnit(unitID))
	}

	_, err := s.execute(ctx, core.Mutation{
		Name:    "jobs.delete",
		Affects: affects,
		Patch:   core.RemovePatch{ID: id},
		Do: func(ctx context.Context) (any, error) {
			return nil, s.client.Jobs.Delete(ctx, id)
		},
		Commit: core.CommitInvalidate,
	})
	return err
}

// AddJobComment appends a comment to a job's thread. The comment id is
// server-generated, so the optimistic insert uses a placeholder and
// the thread is refetched on commit.
func (s *Service) AddJobComment(ctx context.Context, jobID, body string) (core.Doc, error) {
	doc := core.Doc{
		"id":        xid.New().String(),
		"body":      body,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}

	return s.execute(ctx, core.Mutation{
		Name:    "jobs.addComment",
		Affects: []core.Key{core.Keys.Jobs.Comments(jobID)},
		Validate: func() error {
			return s.client.ValidateRequest("jobs.addComment", api.CommentRequest{Body: body})
		},
		Patch: core.InsertPatch{Doc: doc},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Jobs.AddComment(ctx, jobID, api.CommentRequest{Body: body})
		},
		Commit: core.CommitInvalidate,
	})
}

// UpdateJobComment edits one comment in place.
func (s *Service) UpdateJobComment(ctx context.Context, jobID, commentID, body string) (core.Doc, error) {
	return s.execute(ctx, core.Mutation{
		Name:    "jobs.updateComment",
		Affects: []core.Key{core.Keys.Jobs.Comments(jobID)},
		Validate: func() error {
			return s.client.ValidateRequest("jobs.updateComment", api.CommentRequest{Body: body})
		},
		Patch: core.MergePatch{ID: commentID, Fields: map[string]any{"body": body}},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Jobs.UpdateComment(ctx, jobID, commentID, api.CommentRequest{Body: body})
		},
	})
}

// DeleteJobComment removes one comment from a job's thread.
func (s *Service) DeleteJobComment(ctx context.Context, jobID, commentID string) error {
	_, err := s.execute(ctx, core.Mutation{
		Name:    "jobs.deleteComment",
		Affects: []core.Key{core.Keys.Jobs.Comments(jobID)},
		Patch:   core.RemovePatch{ID: commentID},
		Do: func(ctx context.Context) (any, error) {
			return nil, s.client.Jobs.DeleteComment(ctx, jobID, commentID)
		},
		Commit: core.CommitInvalidate,
	})
	return err
}

// UpdateRoom edits one room of an inspection, e.g. its condition
// rating or notes.
func (s *Service) UpdateRoom(ctx context.Context, inspectionID, roomID string, fields map[string]any) (core.Doc, error) {
	return s.execute(ctx, core.Mutation{
		Name:    "inspections.updateRoom",
		Affects: []core.Key{core.Keys.Inspections.Rooms(inspectionID)},
		Patch:   core.MergePatch{ID: roomID, Fields: fields},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Inspections.UpdateRoom(ctx, inspectionID, roomID, fields)
		},
	})
}

// AddRoomIssue records an issue against a room.
func (s *Service) AddRoomIssue(ctx context.Context, inspectionID, roomID string, req api.IssueRequest) (core.Doc, error) {
	doc := core.Doc{
		"id":          xid.New().String(),
		"description": req.Description,
		"severity":    req.Severity,
	}

	return s.execute(ctx, core.Mutation{
		Name:    "inspections.addIssue",
		Affects: []core.Key{core.Keys.Inspections.Issues(inspectionID, roomID)},
		Validate: func() error {
			return s.client.ValidateRequest("inspections.addIssue", req)
		},
		Patch: core.InsertPatch{Doc: doc},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Inspections.AddIssue(ctx, inspectionID, roomID, req)
		},
		Commit: core.CommitInvalidate,
	})
}

// UpdateRoomIssue edits one recorded issue.
func (s *Service) UpdateRoomIssue(ctx context.Context, inspectionID, roomID, issueID string, fields map[string]any) (core.Doc, error) {
	return s.execute(ctx, core.Mutation{
		Name:    "inspections.updateIssue",
		Affects: []core.Key{core.Keys.Inspections.Issues(inspectionID, roomID)},
		Patch:   core.MergePatch{ID: issueID, Fields: fields},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Inspections.UpdateIssue(ctx, inspectionID, roomID, issueID, fields)
		},
	})
}

// DeleteRoomPhoto detaches one photo from a room.
func (s *Service) DeleteRoomPhoto(ctx context.Context, inspectionID, roomID, photoID string) error {
	_, err := s.execute(ctx, core.Mutation{
		Name:    "inspections.deletePhoto",
		Affects: []core.Key{core.Keys.Inspections.Photos(inspectionID, roomID)},
		Patch:   core.RemovePatch{ID: photoID},
		Do: func(ctx context.Context) (any, error) {
			return nil, s.client.Inspections.DeletePhoto(ctx, inspectionID, roomID, photoID)
		},
		Commit: core.CommitInvalidate,
	})
	return err
}

// CompleteInspection marks an inspection finished.
func (s *Service) CompleteInspection(ctx context.Context, id string) (core.Doc, error) {
	return s.execute(ctx, core.Mutation{
		Name: "inspections.complete",
		Affects: []core.Key{
			core.Keys.Inspections.List(),
			core.Keys.Inspections.Detail(id),
		},
		Patch: core.MergePatch{ID: id, Fields: map[string]any{"status": "COMPLETED"}},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Inspections.Complete(ctx, id)
		},
	})
}

// UploadRoomPhotos queues a photo batch for a room. The returned batch
// reports per-file progress; once every file settles, the completed
// ones are attached to the room and the cached photo list is dropped
// so the next read sees the server's records.
func (s *Service) UploadRoomPhotos(ctx context.Context, inspectionID, roomID string, files []api.UploadFile) (*UploadBatch, error) {
	return s.uploads.enqueue(files, func(ctx context.Context, stored []api.UploadedFile) error {
		if _, err := s.client.Inspections.AttachPhotos(ctx, inspectionID, roomID, stored); err != nil {
			return err
		}
		return s.store.Invalidate(ctx, core.Keys.Inspections.Photos(inspectionID, roomID))
	})
}

// UpdateServiceRequestStatus triages, declines or otherwise moves a
// service request, subject to the request transition table.
func (s *Service) UpdateServiceRequestStatus(ctx context.Context, id, status string) (core.Doc, error) {
	lookup := []core.Key{core.Keys.ServiceRequests.Detail(id), core.Keys.ServiceRequests.List()}
	current, _ := s.cachedField(ctx, lookup, id, "status")

	return s.execute(ctx, core.Mutation{
		Name:    "requests.updateStatus",
		Affects: lookup,
		Validate: func() error {
			return core.CheckTransition("service_requests", current, status)
		},
		Patch: core.MergePatch{ID: id, Fields: map[string]any{"status": status}},
		Do: func(ctx context.Context) (any, error) {
			return s.client.ServiceRequests.UpdateStatus(ctx, id, status)
		},
	})
}

// ConvertServiceRequest turns a triaged request into a maintenance
// job. The job lists are refetched since the server creates the job.
func (s *Service) ConvertServiceRequest(ctx context.Context, id string) (core.Doc, error) {
	lookup := []core.Key{core.Keys.ServiceRequests.Detail(id), core.Keys.ServiceRequests.List()}
	current, _ := s.cachedField(ctx, lookup, id, "status")

	return s.execute(ctx, core.Mutation{
		Name:    "requests.convert",
		Affects: lookup,
		Validate: func() error {
			return core.CheckTransition("service_requests", current, core.RequestConverted)
		},
		Patch: core.MergePatch{ID: id, Fields: map[string]any{"status": core.RequestConverted}},
		Do: func(ctx context.Context) (any, error) {
			return s.client.ServiceRequests.Convert(ctx, id)
		},
		Invalidates: []core.Key{core.Keys.Jobs.All()},
	})
}

// CreateProperty adds a property to the portfolio.
func (s *Service) CreateProperty(ctx context.Context, req api.CreatePropertyRequest) (core.Doc, error) {
	if req.ID == "" {
		req.ID = xid.New().String()
	}

	doc := core.Doc{
		"id":       req.ID,
		"name":     req.Name,
		"address":  req.Address,
		"city":     req.City,
		"postcode": req.Postcode,
	}

	return s.execute(ctx, core.Mutation{
		Name:    "properties.create",
		Affects: []core.Key{core.Keys.Properties.List()},
		Validate: func() error {
			return s.client.ValidateRequest("properties.create", req)
		},
		Patch: core.InsertPatch{Doc: doc},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Properties.Create(ctx, req)
		},
	})
}

// UpdateProperty edits a property.
func (s *Service) UpdateProperty(ctx context.Context, id string, req api.UpdatePropertyRequest) (core.Doc, error) {
	fields := map[string]any{}
	if req.Name != "" {
		fields["name"] = req.Name
	}
	if req.Address != "" {
		fields["address"] = req.Address
	}
	if req.City != "" {
		fields["city"] = req.City
	}
	if req.Postcode != "" {
		fields["postcode"] = req.Postcode
	}

	return s.execute(ctx, core.Mutation{
		Name: "properties.update",
		Affects: []core.Key{
			core.Keys.Properties.List(),
			core.Keys.Properties.Detail(id),
		},
		Validate: func() error {
			return s.client.ValidateRequest("properties.update", req)
		},
		Patch: core.MergePatch{ID: id, Fields: fields},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Properties.Update(ctx, id, req)
		},
	})
}

// CreateUnit adds a unit to a property.
func (s *Service) CreateUnit(ctx context.Context, req api.CreateUnitRequest) (core.Doc, error) {
	if req.ID == "" {
		req.ID = xid.New().String()
	}

	doc := core.Doc{
		"id":         req.ID,
		"propertyId": req.PropertyID,
		"name":       req.Name,
		"bedrooms":   req.Bedrooms,
	}
	if req.Floor != "" {
		doc["floor"] = req.Floor
	}

	return s.execute(ctx, core.Mutation{
		Name: "units.create",
		Affects: []core.Key{
			core.Keys.Units.List(),
			core.Keys.Units.ByProperty(req.PropertyID),
		},
		Validate: func() error {
			return s.client.ValidateRequest("units.create", req)
		},
		Patch: core.InsertPatch{Doc: doc},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Units.Create(ctx, req)
		},
	})
}

// UpdateUnit edits a unit.
func (s *Service) UpdateUnit(ctx context.Context, id string, fields map[string]any) (core.Doc, error) {
	affects := []core.Key{core.Keys.Units.List(), core.Keys.Units.Detail(id)}
	if propertyID, ok := s.cachedField(ctx, affects, id, "propertyId"); ok {
		affects = append(affects, core.Keys.Units.ByProperty(propertyID))
	}

	return s.execute(ctx, core.Mutation{
		Name:    "units.update",
		Affects: affects,
		Patch:   core.MergePatch{ID: id, Fields: fields},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Units.Update(ctx, id, fields)
		},
	})
}

// CreateTenant registers a tenant against a unit.
func (s *Service) CreateTenant(ctx context.Context, req api.CreateTenantRequest) (core.Doc, error) {
	if req.ID == "" {
		req.ID = xid.New().String()
	}

	doc := core.Doc{
		"id":     req.ID,
		"unitId": req.UnitID,
		"name":   req.Name,
		"email":  req.Email,
	}
	if req.Phone != "" {
		doc["phone"] = req.Phone
	}

	return s.execute(ctx, core.Mutation{
		Name: "tenants.create",
		Affects: []core.Key{
			core.Keys.Tenants.List(),
			core.Keys.Tenants.ByUnit(req.UnitID),
		},
		Validate: func() error {
			return s.client.ValidateRequest("tenants.create", req)
		},
		Patch: core.InsertPatch{Doc: doc},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Tenants.Create(ctx, req)
		},
	})
}

// UpdateTenant edits a tenant.
func (s *Service) UpdateTenant(ctx context.Context, id string, fields map[string]any) (core.Doc, error) {
	affects := []core.Key{core.Keys.Tenants.List(), core.Keys.Tenants.Detail(id)}
	if unitID, ok := s.cachedField(ctx, affects, id, "unitId"); ok {
		affects = append(affects, core.Keys.Tenants.ByUnit(unitID))
	}

	return s.execute(ctx, core.Mutation{
		Name:    "tenants.update",
		Affects: affects,
		Patch:   core.MergePatch{ID: id, Fields: fields},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Tenants.Update(ctx, id, fields)
		},
	})
}

// MoveOutTenant runs the move-out flow: the tenant is marked moved out
// immediately, and on success the unit and inspection caches are
// dropped because the server vacates the unit and schedules a move-out
// inspection.
func (s *Service) MoveOutTenant(ctx context.Context, id, moveOutDate string) (core.Doc, error) {
	affects := []core.Key{core.Keys.Tenants.List(), core.Keys.Tenants.Detail(id)}
	if unitID, ok := s.cachedField(ctx, affects, id, "unitId"); ok {
		affects = append(affects, core.Keys.Tenants.ByUnit(unitID))
	}

	return s.execute(ctx, core.Mutation{
		Name:    "tenants.moveOut",
		Affects: affects,
		Patch: core.MergePatch{ID: id, Fields: map[string]any{
			"status":      "MOVED_OUT",
			"moveOutDate": moveOutDate,
		}},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Tenants.MoveOut(ctx, id, moveOutDate)
		},
		Invalidates: []core.Key{
			core.Keys.Units.All(),
			core.Keys.Inspections.All(),
		},
	})
}

// InviteTeamMember sends an invite. The invite list shows it as
// pending immediately and is refetched once the server assigns the
// real invite id.
func (s *Service) InviteTeamMember(ctx context.Context, req api.InviteRequest) (core.Doc, error) {
	doc := core.Doc{
		"id":     xid.New().String(),
		"email":  req.Email,
		"role":   req.Role,
		"status": core.InvitePending,
	}

	return s.execute(ctx, core.Mutation{
		Name:    "team.invite",
		Affects: []core.Key{core.Keys.Team.Invites()},
		Validate: func() error {
			return s.client.ValidateRequest("team.invite", req)
		},
		Patch: core.InsertPatch{Doc: doc},
		Do: func(ctx context.Context) (any, error) {
			return s.client.Team.Invite(ctx, req)
		},
		Commit: core.CommitInvalidate,
	})
}

// RevokeInvite cancels a pending invite.
func (s *Service) RevokeInvite(ctx context.Context, inviteID string) error {
	lookup := []core.Key{core.Keys.Team.Invites()}
	current, _ := s.cachedField(ctx, lookup, inviteID, "status")

	_, err := s.execute(ctx, core.Mutation{
		Name:    "team.revokeInvite",
		Affects: lookup,
		Validate: func() error {
			if current == "" {
				return nil
			}
			return core.CheckTransition("invites", current, core.InviteRevoked)
		},
		Patch: core.MergePatch{ID: inviteID, Fields: map[string]any{"status": core.InviteRevoked}},
		Do: func(ctx context.Context) (any, error) {
			return nil, s.client.Team.RevokeInvite(ctx, inviteID)
		},
		Commit: core.CommitInvalidate,
	})
	return err
}

// RemoveTeamMember removes a member from the account.
func (s *Service) RemoveTeamMember(ctx context.Context, memberID string) error {
	_, err := s.execute(ctx, core.Mutation{
		Name:    "team.removeMember",
		Affects: []core.Key{core.Keys.Team.Members()},
		Patch:   core.RemovePatch{ID: memberID},
		Do: func(ctx context.Context) (any, error) {
			return nil, s.client.Team.RemoveMember(ctx, memberID)
		},
		Commit: core.CommitInvalidate,
	})
	return err
}
