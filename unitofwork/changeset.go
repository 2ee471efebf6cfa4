package unitofwork

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-unitofwork/internal/identitymap"
	"github.com/goliatone/go-unitofwork/internal/snapshot"
	"github.com/goliatone/go-unitofwork/metadata"
	"github.com/goliatone/go-unitofwork/persister"
)

// ComputeChangeSets compares the candidate entities with their snapshots
// and schedules the resulting updates and collection synchronizations.
// Commit calls it; calling it directly exposes the result through
// ChangeSet without writing anything.
func (u *UnitOfWork) ComputeChangeSets() error {
	return u.computeChangeSets(nil)
}

// computeChangeSets starts a new commit cycle. Candidates are the pending
// insertions and updates plus, in order of precedence, the explicit
// entities, every managed entity under automatic dirty checking, or the
// entities scheduled for a dirty check.
func (u *UnitOfWork) computeChangeSets(explicit []any) error {
	u.changeSets = make(map[any]persister.ChangeSet)
	u.collections = nil
	u.updates.clear()
	for _, e := range u.dirty.list() {
		u.updates.add(e)
	}

	candidates := newEntitySet()
	for _, e := range u.inserts.list() {
		candidates.add(e)
	}
	for _, e := range u.dirty.list() {
		candidates.add(e)
	}
	switch {
	case len(explicit) > 0:
		for _, e := range explicit {
			if u.identities.IsRegistered(e) {
				candidates.add(e)
			}
		}
	case u.cfg.AutomaticDirtyChecking:
		for _, e := range u.identities.Entities("") {
			candidates.add(e)
		}
	default:
		for _, e := range u.dirtyChecks.list() {
			candidates.add(e)
		}
	}

	return u.computeFrom(candidates.list())
}

// computeFrom computes change sets for queue and for every entity newly
// scheduled while walking their associations.
func (u *UnitOfWork) computeFrom(queue []any) error {
	done := make(map[any]struct{}, len(queue))
	for i := 0; i < len(queue); i++ {
		e := queue[i]
		if _, ok := done[e]; ok {
			continue
		}
		done[e] = struct{}{}

		class, err := u.classOf(e)
		if err != nil {
			return err
		}
		discovered, err := u.computeChangeSet(class, e)
		if err != nil {
			return err
		}
		queue = append(queue, discovered...)
	}
	return nil
}

// computeChangeSet records the change set of one entity and returns the
// NEW entities it scheduled through cascading associations.
func (u *UnitOfWork) computeChangeSet(class *metadata.ClassMetadata, entity any) ([]any, error) {
	current, err := currentValues(class, entity)
	if err != nil {
		return nil, err
	}
	if u.cfg.ValidateFields {
		if err := u.validate(class, entity, current); err != nil {
			return nil, err
		}
	}

	original, hasSnapshot := u.snapshots.Get(entity)
	inserting := u.inserts.has(entity)
	changes := persister.ChangeSet{}

	if inserting || !hasSnapshot {
		for _, f := range class.Fields {
			changes[f.Name] = persister.Change{New: current[f.Name]}
		}
		for _, a := range class.Associations {
			switch {
			case a.Kind == metadata.OwningToOne:
				changes[a.Name] = persister.Change{New: current[a.Name]}
			case a.UsesJoinTable():
				if members := asEntities(current[a.Name]); len(members) > 0 {
					u.scheduleCollection(class, entity, a, members, nil)
				}
			}
		}
		u.snapshots.Capture(entity, current)
		if !inserting {
			u.updates.add(entity)
		}
		u.changeSets[entity] = changes
	} else {
		for _, f := range class.Fields {
			if old, now := original[f.Name], current[f.Name]; !sameValue(old, now) {
				changes[f.Name] = persister.Change{Old: old, New: now}
			}
		}
		for _, a := range class.Associations {
			old, now := original[a.Name], current[a.Name]
			switch a.Kind {
			case metadata.OwningToOne:
				if !sameEntity(old, now) {
					changes[a.Name] = persister.Change{Old: old, New: now}
				}
			case metadata.OwningToMany, metadata.ManyToMany:
				if !a.IsOwningSide() {
					continue
				}
				inserted, removed := diffCollection(asEntities(old), asEntities(now))
				if len(inserted) > 0 || len(removed) > 0 {
					u.scheduleCollection(class, entity, a, inserted, removed)
				}
			case metadata.InverseToOne, metadata.InverseToMany:
				// mirrors, written by the owning side
			}
		}
		if len(changes) > 0 {
			u.updates.add(entity)
		}
		if len(changes) > 0 || u.updates.has(entity) {
			u.changeSets[entity] = changes
		}
	}

	return u.discover(class, entity, current)
}

// discover schedules NEW entities reachable through cascading associations
// and rejects references to deleted entities from owning associations.
// NEW entities behind non-cascading associations are left alone; storage
// reports the missing row.
func (u *UnitOfWork) discover(class *metadata.ClassMetadata, entity any, current snapshot.Data) ([]any, error) {
	var discovered []any
	for _, a := range class.Associations {
		for _, target := range asEntities(current[a.Name]) {
			targetClass, err := u.classOf(target)
			if err != nil {
				return nil, err
			}
			switch u.stateOf(targetClass, target) {
			case StateNew:
				if !a.Cascade.Has(metadata.CascadeSave) {
					continue
				}
				if err := u.persistNew(targetClass, target); err != nil {
					return nil, err
				}
				discovered = append(discovered, target)
			case StateManaged:
				if u.inserts.has(target) {
					discovered = append(discovered, target)
				}
			case StateDeleted:
				if a.IsOwningSide() && !u.deletes.has(entity) {
					ec := u.errorContext(class, entity)
					ec.field = a.Name
					return nil, invalidStateError(ec, "%s.%s references a %s scheduled for deletion", class.Name, a.Name, targetClass.Name)
				}
			}
		}
	}
	return discovered, nil
}

func (u *UnitOfWork) scheduleCollection(class *metadata.ClassMetadata, owner any, a metadata.AssociationMapping, inserted, removed []any) {
	u.collections = append(u.collections, collectionSync{
		owner:    owner,
		class:    class,
		assoc:    a,
		inserted: inserted,
		removed:  removed,
	})
}

func (u *UnitOfWork) validate(class *metadata.ClassMetadata, entity any, current snapshot.Data) error {
	for _, f := range class.Fields {
		if len(f.Rules) == 0 {
			continue
		}
		v := current[f.Name]
		// generated identifiers are validated once storage assigned them
		if f.ID && !class.IsIdentifierAssignedByApplication() && identitymap.IsAbsent(v) {
			continue
		}
		if err := validation.Validate(v, f.Rules...); err != nil {
			ec := u.errorContext(class, entity)
			ec.field = f.Name
			return invalidFieldValueError(ec, err)
		}
	}
	return nil
}

// currentValues reads every mapped field of entity. To-one associations
// hold the related pointer and collections a []any of their members.
func currentValues(class *metadata.ClassMetadata, entity any) (snapshot.Data, error) {
	data := make(snapshot.Data, len(class.Fields)+len(class.Associations))
	for _, f := range class.Fields {
		v, err := class.Get(entity, f.Name)
		if err != nil {
			return nil, err
		}
		data[f.Name] = v
	}
	for _, a := range class.Associations {
		raw, err := class.Get(entity, a.Name)
		if err != nil {
			return nil, err
		}
		switch {
		case metadata.IsNil(raw):
			data[a.Name] = nil
		case a.IsToOne():
			data[a.Name] = raw
		default:
			data[a.Name] = metadata.Entities(raw)
		}
	}
	return data, nil
}

func asEntities(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	default:
		return metadata.Entities(x)
	}
}
