package store

import (
	"context"

	"github.com/ryosuke1832/remind/internal/events"
	"github.com/ryosuke1832/remind/internal/model"
)

// WithNotifications decorates s so every successful write publishes a
// change on bus. Reads pass straight through.
func WithNotifications(s Store, bus *events.Bus) Store {
	return &notifying{inner: s, bus: bus}
}

type notifying struct {
	inner Store
	bus   *events.Bus
}

func (n *notifying) Avatars() Avatars { return &notifyingAvatars{inner: n.inner.Avatars(), bus: n.bus} }
func (n *notifying) Users() Users     { return &notifyingUsers{inner: n.inner.Users(), bus: n.bus} }

func (n *notifying) HealthPing(ctx context.Context) error { return n.inner.HealthPing(ctx) }

type notifyingAvatars struct {
	inner Avatars
	bus   *events.Bus
}

func (a *notifyingAvatars) publish(kind events.ChangeKind, ownerID, id string) {
	a.bus.Publish(events.Change{Collection: events.CollectionAvatars, Kind: kind, OwnerID: ownerID, DocID: id})
}

func (a *notifyingAvatars) Create(ctx context.Context, m *model.Avatar) (*model.Avatar, error) {
	out, err := a.inner.Create(ctx, m)
	if err != nil {
		return nil, err
	}
	a.publish(events.ChangeCreated, out.OwnerID, out.ID)
	return out, nil
}

func (a *notifyingAvatars) Get(ctx context.Context, id string) (*model.Avatar, error) {
	return a.inner.Get(ctx, id)
}

func (a *notifyingAvatars) Query(ctx context.Context, ownerID string) ([]Document, error) {
	return a.inner.Query(ctx, ownerID)
}

func (a *notifyingAvatars) Update(ctx context.Context, id string, p model.AvatarPatch) (*model.Avatar, error) {
	out, err := a.inner.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	a.publish(events.ChangeUpdated, out.OwnerID, out.ID)
	return out, nil
}

func (a *notifyingAvatars) Put(ctx context.Context, m *model.Avatar) (*model.Avatar, error) {
	out, err := a.inner.Put(ctx, m)
	if err != nil {
		return nil, err
	}
	a.publish(events.ChangeUpdated, out.OwnerID, out.ID)
	return out, nil
}

func (a *notifyingAvatars) Delete(ctx context.Context, id string) error {
	existing, err := a.inner.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := a.inner.Delete(ctx, id); err != nil {
		return err
	}
	a.publish(events.ChangeDeleted, existing.OwnerID, id)
	return nil
}

func (a *notifyingAvatars) SetDefault(ctx context.Context, ownerID, id string) error {
	if err := a.inner.SetDefault(ctx, ownerID, id); err != nil {
		return err
	}
	a.publish(events.ChangeUpdated, ownerID, id)
	return nil
}

type notifyingUsers struct {
	inner Users
	bus   *events.Bus
}

func (u *notifyingUsers) publish(kind events.ChangeKind, id string) {
	u.bus.Publish(events.Change{Collection: events.CollectionUsers, Kind: kind, OwnerID: id, DocID: id})
}

func (u *notifyingUsers) Create(ctx context.Context, m *model.User) (*model.User, error) {
	out, err := u.inner.Create(ctx, m)
	if err != nil {
		return nil, err
	}
	u.publish(events.ChangeCreated, out.ID)
	return out, nil
}

func (u *notifyingUsers) Get(ctx context.Context, id string) (*model.User, error) {
	return u.inner.Get(ctx, id)
}

func (u *notifyingUsers) GetRaw(ctx context.Context, id string) ([]byte, error) {
	return u.inner.GetRaw(ctx, id)
}

func (u *notifyingUsers) Update(ctx context.Context, id string, p model.UserPatch) (*model.User, error) {
	out, err := u.inner.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	u.publish(events.ChangeUpdated, out.ID)
	return out, nil
}
