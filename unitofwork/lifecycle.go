package unitofwork

import (
	"context"
	"reflect"

	"github.com/google/uuid"

	"github.com/goliatone/go-unitofwork/internal/identitymap"
	"github.com/goliatone/go-unitofwork/metadata"
)

// RegisterNew schedules a NEW entity for insertion. Entities that already
// carry their identifier enter the identity map right away.
func (u *UnitOfWork) RegisterNew(entity any) error {
	class, err := u.classOf(entity)
	if err != nil {
		return err
	}
	return u.registerNew(class, entity)
}

func (u *UnitOfWork) registerNew(class *metadata.ClassMetadata, entity any) error {
	ec := u.errorContext(class, entity)
	switch {
	case u.deletes.has(entity):
		return invalidStateError(ec, "deleted entity %s cannot be registered as new", class.Name)
	case u.IsScheduledForUpdate(entity):
		return invalidStateError(ec, "dirty entity %s cannot be registered as new", class.Name)
	case u.inserts.has(entity):
		return invalidStateError(ec, "entity %s is already scheduled for insertion", class.Name)
	}
	switch u.states[entity] {
	case StateDetached:
		return detachedEntityError(ec)
	case StateManaged:
		return invalidStateError(ec, "managed entity %s cannot be registered as new", class.Name)
	}

	key, err := u.keyOf(class, entity)
	if err != nil {
		return err
	}
	if key.Valid() && !u.identities.Register(key, entity) {
		return duplicateIdentityError(ec)
	}
	u.inserts.add(entity)
	u.states[entity] = StateManaged
	return nil
}

// RegisterDirty schedules a managed entity for update. Calling it for an
// entity already scheduled for insertion or update does nothing.
func (u *UnitOfWork) RegisterDirty(entity any) error {
	class, err := u.classOf(entity)
	if err != nil {
		return err
	}
	ec := u.errorContext(class, entity)
	if ec.identifier == "" {
		return missingIdentityError(ec, "entity %s without identifier cannot be registered as dirty", class.Name)
	}
	switch u.stateOf(class, entity) {
	case StateDetached:
		return detachedEntityError(ec)
	case StateDeleted:
		return invalidStateError(ec, "deleted entity %s cannot be registered as dirty", class.Name)
	case StateNew:
		return invalidStateError(ec, "entity %s is not managed", class.Name)
	}
	if u.inserts.has(entity) || u.dirty.has(entity) {
		return nil
	}
	u.dirty.add(entity)
	u.updates.add(entity)
	return nil
}

// RegisterDeleted schedules a managed entity for removal. Entities outside
// the identity map are ignored, except that a pending insertion is
// cancelled since the row was never written.
func (u *UnitOfWork) RegisterDeleted(entity any) error {
	class, err := u.classOf(entity)
	if err != nil {
		return err
	}
	return u.registerDeleted(class, entity)
}

func (u *UnitOfWork) registerDeleted(class *metadata.ClassMetadata, entity any) error {
	if u.inserts.has(entity) {
		u.identities.Remove(entity)
		u.inserts.remove(entity)
		u.snapshots.Remove(entity)
		delete(u.changeSets, entity)
		delete(u.states, entity)
		return nil
	}
	if !u.identities.Remove(entity) {
		return nil
	}
	u.dirty.remove(entity)
	u.updates.remove(entity)
	u.dirtyChecks.remove(entity)
	delete(u.changeSets, entity)
	u.deletes.add(entity)
	u.states[entity] = StateDeleted
	return nil
}

// Detach stops tracking entity. Later Save or Delete calls with it fail
// with a DetachedEntityError.
func (u *UnitOfWork) Detach(entity any) {
	if metadata.IsNil(entity) {
		return
	}
	u.identities.Remove(entity)
	u.inserts.remove(entity)
	u.dirty.remove(entity)
	u.updates.remove(entity)
	u.deletes.remove(entity)
	u.dirtyChecks.remove(entity)
	u.snapshots.Remove(entity)
	delete(u.changeSets, entity)

	kept := u.collections[:0]
	for _, cs := range u.collections {
		if cs.owner != entity {
			kept = append(kept, cs)
		}
	}
	u.collections = kept
	u.states[entity] = StateDetached
}

// ScheduleForDirtyCheck adds a managed entity to the candidates compared on
// the next commit when automatic dirty checking is off.
func (u *UnitOfWork) ScheduleForDirtyCheck(entity any) error {
	class, err := u.classOf(entity)
	if err != nil {
		return err
	}
	ec := u.errorContext(class, entity)
	switch u.stateOf(class, entity) {
	case StateManaged:
		u.dirtyChecks.add(entity)
		return nil
	case StateDetached:
		return detachedEntityError(ec)
	default:
		return invalidStateError(ec, "entity %s is not managed", class.Name)
	}
}

// Save makes entity managed and cascades along associations marked with
// CascadeSave. Each entity is visited once per call, so cyclic graphs
// terminate.
//
// When ImmediatePostInsert is on and the walk scheduled an entity whose
// identifier is generated by storage, every pending insertion is written
// right away through the transaction carried by ctx.
func (u *UnitOfWork) Save(ctx context.Context, entity any) error {
	if err := u.ready(); err != nil {
		return err
	}
	visited := make(map[any]struct{})
	postInsert := false
	if err := u.save(entity, visited, &postInsert); err != nil {
		return err
	}
	u.logger.DebugContext(ctx, "uow.save", "visited", len(visited), "scheduled_inserts", u.inserts.len())

	if postInsert && u.cfg.ImmediatePostInsert {
		return u.flushInserts(ctx)
	}
	return nil
}

func (u *UnitOfWork) save(entity any, visited map[any]struct{}, postInsert *bool) error {
	if _, seen := visited[entity]; seen {
		return nil
	}
	visited[entity] = struct{}{}

	class, err := u.classOf(entity)
	if err != nil {
		return err
	}

	switch u.stateOf(class, entity) {
	case StateManaged:
		if !u.cfg.AutomaticDirtyChecking && !u.inserts.has(entity) {
			u.dirtyChecks.add(entity)
		}
	case StateNew:
		if err := u.persistNew(class, entity); err != nil {
			return err
		}
		if class.IsPostInsertGenerator() {
			*postInsert = true
		}
	case StateDeleted:
		key, err := u.keyOf(class, entity)
		if err != nil {
			return err
		}
		if !u.identities.Register(key, entity) {
			return duplicateIdentityError(u.errorContext(class, entity))
		}
		u.deletes.remove(entity)
		u.states[entity] = StateManaged
	case StateDetached:
		return detachedEntityError(u.errorContext(class, entity))
	}

	return u.cascade(class, entity, metadata.CascadeSave, func(target any) error {
		return u.save(target, visited, postInsert)
	})
}

// Delete schedules entity for removal and cascades along associations
// marked with CascadeDelete. NEW and already deleted entities are left as
// they are, but the cascade still walks through them.
func (u *UnitOfWork) Delete(ctx context.Context, entity any) error {
	if err := u.ready(); err != nil {
		return err
	}
	visited := make(map[any]struct{})
	if err := u.delete(entity, visited); err != nil {
		return err
	}
	u.logger.DebugContext(ctx, "uow.delete", "visited", len(visited), "scheduled_deletes", u.deletes.len())
	return nil
}

func (u *UnitOfWork) delete(entity any, visited map[any]struct{}) error {
	if _, seen := visited[entity]; seen {
		return nil
	}
	visited[entity] = struct{}{}

	class, err := u.classOf(entity)
	if err != nil {
		return err
	}
	state := u.stateOf(class, entity)
	if state == StateDetached {
		return detachedEntityError(u.errorContext(class, entity))
	}

	// Related entities are walked while entity is still in the identity map.
	if err := u.cascade(class, entity, metadata.CascadeDelete, func(target any) error {
		return u.delete(target, visited)
	}); err != nil {
		return err
	}

	if state == StateManaged {
		return u.registerDeleted(class, entity)
	}
	return nil
}

func (u *UnitOfWork) cascade(class *metadata.ClassMetadata, entity any, op metadata.Cascade, fn func(any) error) error {
	for _, a := range class.Associations {
		if !a.Cascade.Has(op) {
			continue
		}
		for _, target := range class.Related(entity, a) {
			if err := fn(target); err != nil {
				return err
			}
		}
	}
	return nil
}

// persistNew assigns pre-insert identifiers and schedules the insertion.
func (u *UnitOfWork) persistNew(class *metadata.ClassMetadata, entity any) error {
	if err := generateIdentifier(class, entity); err != nil {
		return err
	}
	return u.registerNew(class, entity)
}

func generateIdentifier(class *metadata.ClassMetadata, entity any) error {
	if class.Generator != metadata.GeneratorUUID {
		return nil
	}
	name := class.Identifier[0]
	current, err := class.Get(entity, name)
	if err != nil {
		return err
	}
	if !identitymap.IsAbsent(current) {
		return nil
	}

	var id any = uuid.New()
	if f, ok := class.Type.FieldByName(name); ok && f.Type.Kind() == reflect.String {
		id = uuid.NewString()
	}
	return class.Set(entity, name, id)
}
