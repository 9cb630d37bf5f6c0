package serv

import (
	"context"
	"time"

	"github.com/buildstate/fm-sync/core"
)

// fetchThrough serves a collection from cache, loading it on a miss.
// The loader is also registered with the refresh pool so a stale hit
// can be revalidated in the background.
func (s *Service) fetchThrough(ctx context.Context, key core.Key, load core.Loader) (core.Collection, error) {
	s.refresh.register(key, load)

	e, err := s.fetcher.Fetch(ctx, key, load)
	if err != nil {
		return core.Collection{}, err
	}
	if e.Data == nil {
		return core.Flat(nil), nil
	}
	return *e.Data, nil
}

// fetchDoc serves a single resource from cache. Single resources are
// cached as one-item collections so detail slots and list slots are
// patched by the same machinery.
func (s *Service) fetchDoc(ctx context.Context, key core.Key, load core.Loader) (core.Doc, error) {
	col, err := s.fetchThrough(ctx, key, load)
	if err != nil {
		return nil, err
	}
	if col.Len() == 0 {
		return nil, nil
	}
	return col.Items[0], nil
}

// Properties returns all properties in the portfolio.
func (s *Service) Properties(ctx context.Context) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Properties.List(), func(ctx context.Context) (any, error) {
		return s.client.Properties.List(ctx)
	})
}

// Property returns one property by id.
func (s *Service) Property(ctx context.Context, id string) (core.Doc, error) {
	return s.fetchDoc(ctx, core.Keys.Properties.Detail(id), func(ctx context.Context) (any, error) {
		return s.client.Properties.Get(ctx, id)
	})
}

// Units returns all units.
func (s *Service) Units(ctx context.Context) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Units.List(), func(ctx context.Context) (any, error) {
		return s.client.Units.List(ctx)
	})
}

// UnitsByProperty returns the units of one property.
func (s *Service) UnitsByProperty(ctx context.Context, propertyID string) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Units.ByProperty(propertyID), func(ctx context.Context) (any, error) {
		return s.client.Units.ByProperty(ctx, propertyID)
	})
}

// Tenants returns all tenants.
func (s *Service) Tenants(ctx context.Context) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Tenants.List(), func(ctx context.Context) (any, error) {
		return s.client.Tenants.List(ctx)
	})
}

// TenantsByUnit returns the tenants of one unit.
func (s *Service) TenantsByUnit(ctx context.Context, unitID string) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Tenants.ByUnit(unitID), func(ctx context.Context) (any, error) {
		return s.client.Tenants.ByUnit(ctx, unitID)
	})
}

// Jobs returns all maintenance jobs.
func (s *Service) Jobs(ctx context.Context) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Jobs.List(), func(ctx context.Context) (any, error) {
		return s.client.Jobs.List(ctx)
	})
}

// JobsByUnit returns the jobs of one unit.
func (s *Service) JobsByUnit(ctx context.Context, unitID string) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Jobs.ByUnit(unitID), func(ctx context.Context) (any, error) {
		return s.client.Jobs.ByUnit(ctx, unitID)
	})
}

// Job returns one job by id.
func (s *Service) Job(ctx context.Context, id string) (core.Doc, error) {
	return s.fetchDoc(ctx, core.Keys.Jobs.Detail(id), func(ctx context.Context) (any, error) {
		return s.client.Jobs.Get(ctx, id)
	})
}

// JobComments returns the comment thread of one job.
func (s *Service) JobComments(ctx context.Context, jobID string) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Jobs.Comments(jobID), func(ctx context.Context) (any, error) {
		return s.client.Jobs.Comments(ctx, jobID)
	})
}

// Inspections returns all inspections.
func (s *Service) Inspections(ctx context.Context) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Inspections.List(), func(ctx context.Context) (any, error) {
		return s.client.Inspections.List(ctx)
	})
}

// Inspection returns one inspection by id.
func (s *Service) Inspection(ctx context.Context, id string) (core.Doc, error) {
	return s.fetchDoc(ctx, core.Keys.Inspections.Detail(id), func(ctx context.Context) (any, error) {
		return s.client.Inspections.Get(ctx, id)
	})
}

// Rooms returns the rooms of one inspection.
func (s *Service) Rooms(ctx context.Context, inspectionID string) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Inspections.Rooms(inspectionID), func(ctx context.Context) (any, error) {
		return s.client.Inspections.Rooms(ctx, inspectionID)
	})
}

// RoomIssues returns the issues recorded for one room.
func (s *Service) RoomIssues(ctx context.Context, inspectionID, roomID string) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Inspections.Issues(inspectionID, roomID), func(ctx context.Context) (any, error) {
		return s.client.Inspections.Issues(ctx, inspectionID, roomID)
	})
}

// RoomPhotos returns the photos attached to one room.
func (s *Service) RoomPhotos(ctx context.Context, inspectionID, roomID string) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Inspections.Photos(inspectionID, roomID), func(ctx context.Context) (any, error) {
		return s.client.Inspections.Photos(ctx, inspectionID, roomID)
	})
}

// ServiceRequests returns all service requests.
func (s *Service) ServiceRequests(ctx context.Context) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.ServiceRequests.List(), func(ctx context.Context) (any, error) {
		return s.client.ServiceRequests.List(ctx)
	})
}

// Subscription returns the account's billing subscription.
func (s *Service) Subscription(ctx context.Context) (core.Doc, error) {
	return s.fetchDoc(ctx, core.Keys.Billing.Detail("subscription"), func(ctx context.Context) (any, error) {
		return s.client.Billing.Subscription(ctx)
	})
}

// Invoices returns the account's invoices.
func (s *Service) Invoices(ctx context.Context) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Billing.List(), func(ctx context.Context) (any, error) {
		return s.client.Billing.Invoices(ctx)
	})
}

// TeamMembers returns the account's team members.
func (s *Service) TeamMembers(ctx context.Context) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Team.Members(), func(ctx context.Context) (any, error) {
		return s.client.Team.Members(ctx)
	})
}

// TeamInvites returns the pending invites.
func (s *Service) TeamInvites(ctx context.Context) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Team.Invites(), func(ctx context.Context) (any, error) {
		return s.client.Team.Invites(ctx)
	})
}

// BlogPosts returns the cached blog post pages, loading the first page
// on a miss.
func (s *Service) BlogPosts(ctx context.Context) (core.Collection, error) {
	return s.fetchThrough(ctx, core.Keys.Blog.List(), func(ctx context.Context) (any, error) {
		return s.client.Blog.Posts(ctx, "")
	})
}

// MoreBlogPosts loads the page after the last cached one and appends
// it to the cached collection. Returns the grown collection and
// whether another page may follow.
func (s *Service) MoreBlogPosts(ctx context.Context) (core.Collection, bool, error) {
	key := core.Keys.Blog.List()

	col, err := s.BlogPosts(ctx)
	if err != nil {
		return core.Collection{}, false, err
	}
	if col.Shape != core.ShapePaginated || len(col.Pages) == 0 {
		return col, false, nil
	}

	cursor := col.Pages[len(col.Pages)-1].Cursor
	if cursor == "" {
		return col, false, nil
	}

	next, err := s.client.Blog.Posts(ctx, cursor)
	if err != nil {
		return col, true, err
	}

	grown := col.Clone()
	if next.Shape == core.ShapePaginated {
		grown.Pages = append(grown.Pages, next.Pages...)
	} else {
		grown.Pages = append(grown.Pages, core.Page{Items: next.Items})
	}

	e := &core.Entry{
		Key:       key,
		Data:      &grown,
		Status:    core.StatusSuccess,
		UpdatedAt: time.Now(),
	}
	if err := s.store.Set(ctx, key, e); err != nil {
		return grown, false, err
	}

	more := len(grown.Pages) > 0 && grown.Pages[len(grown.Pages)-1].Cursor != ""
	return grown, more, nil
}

// BlogPost returns one post by slug.
func (s *Service) BlogPost(ctx context.Context, slug string) (core.Doc, error) {
	return s.fetchDoc(ctx, core.Keys.Blog.Detail(slug), func(ctx context.Context) (any, error) {
		return s.client.Blog.Post(ctx, slug)
	})
}
