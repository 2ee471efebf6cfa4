package unitofwork

import (
	"context"
	"strconv"
	"time"

	"github.com/goliatone/go-unitofwork/commitorder"
	"github.com/goliatone/go-unitofwork/internal/identitymap"
	"github.com/goliatone/go-unitofwork/metadata"
	"github.com/goliatone/go-unitofwork/persister"
)

// plan groups scheduled entities by class and orders the classes.
type plan struct {
	order   []string
	classes map[string]*metadata.ClassMetadata
	inserts map[string][]any
	updates map[string][]any
	deletes map[string][]any
}

// Commit writes every scheduled change: inserts in commit order, then
// updates, then collection synchronizations, then deletes in reverse
// commit order. Written entities are snapshotted and all schedules are
// cleared.
//
// Commit neither opens nor ends a transaction. Attach one to ctx with
// persister.WithTx and roll it back when Commit fails; entities written
// before the failure keep their new identifiers and the unit of work stays
// in PhaseFailed until Reset.
//
// With entities, only those managed entities are compared with their
// snapshots in addition to the pending insertions and updates.
func (u *UnitOfWork) Commit(ctx context.Context, entities ...any) error {
	if err := u.ready(); err != nil {
		return err
	}
	started := time.Now()

	u.setPhase(ctx, PhaseComputing)
	if err := u.computeChangeSets(entities); err != nil {
		return u.fail(ctx, started, err)
	}

	if u.inserts.len() == 0 && u.updates.len() == 0 && u.deletes.len() == 0 && len(u.collections) == 0 {
		u.finish()
		u.phase = PhaseIdle
		u.metrics.commit("empty", started)
		return nil
	}

	u.setPhase(ctx, PhaseOrdering)
	p, err := u.plan(u.inserts.list(), u.updates.list(), u.deletes.list())
	if err != nil {
		return u.fail(ctx, started, err)
	}
	if u.order.Cyclic() {
		u.logger.WarnContext(ctx, "uow.commit.cycle", "order", p.order)
	}

	u.setPhase(ctx, PhaseWriting)
	written := newEntitySet()
	if err := u.executeInserts(ctx, p, written); err != nil {
		return u.fail(ctx, started, err)
	}
	inserted := written.len()
	if err := u.executeUpdates(ctx, p, written); err != nil {
		return u.fail(ctx, started, err)
	}
	updated := written.len() - inserted
	synced, err := u.executeCollections(ctx, p)
	if err != nil {
		return u.fail(ctx, started, err)
	}
	deleted, err := u.executeDeletes(ctx, p)
	if err != nil {
		return u.fail(ctx, started, err)
	}

	u.setPhase(ctx, PhaseSnapshotting)
	for _, cs := range u.collections {
		if u.states[cs.owner] == StateManaged {
			written.add(cs.owner)
		}
	}
	for _, e := range written.list() {
		if err := u.capture(e, false); err != nil {
			return u.fail(ctx, started, err)
		}
	}

	u.finish()
	u.phase = PhaseIdle
	u.metrics.commit("success", started)
	u.metrics.setManaged(u.identities.Size())
	u.logger.InfoContext(ctx, "uow.commit",
		"inserts", inserted,
		"updates", updated,
		"collections", synced,
		"deletes", deleted,
		"duration", time.Since(started),
	)
	return nil
}

func (u *UnitOfWork) fail(ctx context.Context, started time.Time, err error) error {
	u.logger.ErrorContext(ctx, "uow.commit.failed", "phase", u.phase.String(), "error", err)
	u.phase = PhaseFailed
	u.metrics.commit("failed", started)
	return err
}

// finish clears the schedules and change sets of the commit cycle.
func (u *UnitOfWork) finish() {
	u.inserts.clear()
	u.dirty.clear()
	u.updates.clear()
	u.deletes.clear()
	u.dirtyChecks.clear()
	u.collections = nil
	u.changeSets = make(map[any]persister.ChangeSet)
}

// flushInserts writes every pending insertion right away, in commit order.
// Owning collections of the written entities are snapshotted empty so the
// next commit writes their link rows once every member has a row.
func (u *UnitOfWork) flushInserts(ctx context.Context) error {
	started := time.Now()
	pending := u.inserts.list()
	collections := u.collections

	u.setPhase(ctx, PhaseComputing)
	if err := u.computeFrom(pending); err != nil {
		return u.fail(ctx, started, err)
	}
	u.collections = collections
	pending = u.inserts.list()

	u.setPhase(ctx, PhaseOrdering)
	p, err := u.plan(pending, nil, nil)
	if err != nil {
		return u.fail(ctx, started, err)
	}

	u.setPhase(ctx, PhaseWriting)
	written := newEntitySet()
	if err := u.executeInserts(ctx, p, written); err != nil {
		return u.fail(ctx, started, err)
	}

	u.setPhase(ctx, PhaseSnapshotting)
	for _, e := range written.list() {
		if err := u.capture(e, true); err != nil {
			return u.fail(ctx, started, err)
		}
		u.inserts.remove(e)
		delete(u.changeSets, e)
		if !u.cfg.AutomaticDirtyChecking {
			u.dirtyChecks.add(e)
		}
	}
	u.phase = PhaseIdle
	u.metrics.setManaged(u.identities.Size())
	u.logger.DebugContext(ctx, "uow.flush_inserts", "inserts", written.len())
	return nil
}

// plan builds the commit order over the classes of the scheduled entities
// and of the classes their owning associations reference.
func (u *UnitOfWork) plan(inserts, updates, deletes []any) (*plan, error) {
	p := &plan{
		classes: make(map[string]*metadata.ClassMetadata),
		inserts: make(map[string][]any),
		updates: make(map[string][]any),
		deletes: make(map[string][]any),
	}
	var seeds []*metadata.ClassMetadata
	group := func(entities []any, into map[string][]any) error {
		for _, e := range entities {
			class, err := u.classOf(e)
			if err != nil {
				return err
			}
			if _, ok := p.classes[class.Name]; !ok {
				p.classes[class.Name] = class
				seeds = append(seeds, class)
			}
			into[class.Name] = append(into[class.Name], e)
		}
		return nil
	}
	if err := group(inserts, p.inserts); err != nil {
		return nil, err
	}
	if err := group(updates, p.updates); err != nil {
		return nil, err
	}
	if err := group(deletes, p.deletes); err != nil {
		return nil, err
	}

	for name, batch := range p.inserts {
		p.inserts[name], _ = orderBatch(p.classes[name], batch)
	}
	for name, batch := range p.deletes {
		if ordered, ok := orderBatch(p.classes[name], batch); ok {
			p.deletes[name] = reversed(ordered)
		}
	}

	order, err := u.commitOrder(seeds)
	if err != nil {
		return nil, err
	}
	p.order = order
	return p, nil
}

// orderBatch orders the instances of one class so that an instance
// referenced through an owning to-one association of another instance in
// the batch comes first. It reports false and returns batch unchanged when
// no instance references another.
func orderBatch(class *metadata.ClassMetadata, batch []any) ([]any, bool) {
	if len(batch) < 2 {
		return batch, false
	}
	keys := make(map[any]string, len(batch))
	for i, e := range batch {
		keys[e] = strconv.Itoa(i)
	}

	// nodes go in backwards so unrelated instances keep their scheduling order
	calc := commitorder.New[any]()
	for i := len(batch) - 1; i >= 0; i-- {
		calc.AddNode(keys[batch[i]], batch[i])
	}
	edges := 0
	for _, e := range batch {
		for _, a := range class.Associations {
			if a.Kind != metadata.OwningToOne {
				continue
			}
			target, err := class.Get(e, a.Name)
			if err != nil || metadata.IsNil(target) || target == e {
				continue
			}
			if dep, ok := keys[target]; ok {
				calc.AddDependency(dep, keys[e])
				edges++
			}
		}
	}
	if edges == 0 {
		return batch, false
	}
	return calc.Items(), true
}

func reversed(entities []any) []any {
	out := make([]any, len(entities))
	for i, e := range entities {
		out[len(entities)-1-i] = e
	}
	return out
}

// commitOrder adds a node per class, discovering the targets of owning
// associations, and an implicit node per join table that depends on both
// of its endpoints. An edge from a target also reaches the target's known
// subclasses. Self references add no edge.
func (u *UnitOfWork) commitOrder(seeds []*metadata.ClassMetadata) ([]string, error) {
	calc := u.order
	calc.Clear()

	var classes []*metadata.ClassMetadata
	queue := append([]*metadata.ClassMetadata(nil), seeds...)
	for len(queue) > 0 {
		class := queue[0]
		queue = queue[1:]
		if !calc.AddNode(class.Name, class) {
			continue
		}
		classes = append(classes, class)
		for _, a := range class.Associations {
			if a.Kind != metadata.OwningToOne && !a.UsesJoinTable() {
				continue
			}
			if !calc.HasNode(a.Target) {
				target, err := u.metadata.Class(a.Target)
				if err != nil {
					return nil, err
				}
				queue = append(queue, target)
			}
		}
	}

	for _, class := range classes {
		for _, a := range class.Associations {
			switch {
			case a.Kind == metadata.OwningToOne:
				for _, dep := range u.targetsOf(a.Target) {
					if dep != class.Name {
						calc.AddDependency(dep, class.Name)
					}
				}
			case a.UsesJoinTable():
				join := class.Name + "." + a.Name
				calc.AddNode(join, class)
				calc.AddDependency(class.Name, join)
				for _, dep := range u.targetsOf(a.Target) {
					calc.AddDependency(dep, join)
				}
			}
		}
	}
	return calc.Order(), nil
}

// targetsOf returns name and its subclasses that are nodes of the graph.
func (u *UnitOfWork) targetsOf(name string) []string {
	var out []string
	if u.order.HasNode(name) {
		out = append(out, name)
	}
	if target, err := u.metadata.Class(name); err == nil {
		for _, sub := range target.Subclasses {
			if u.order.HasNode(sub) {
				out = append(out, sub)
			}
		}
	}
	return out
}

// deferredReference is an owning to-one reference whose target had no
// identifier yet when its owner was inserted.
type deferredReference struct {
	class   *metadata.ClassMetadata
	entity  any
	changes persister.ChangeSet
}

// executeInserts writes the scheduled insertions in commit order. Foreign
// keys to entities inserted later in the same pass, as happens with
// reference cycles, are written by one update per owner once every row
// exists.
func (u *UnitOfWork) executeInserts(ctx context.Context, p *plan, written *entitySet) error {
	var deferred []deferredReference
	for _, name := range p.order {
		class := p.classes[name]
		for _, e := range p.inserts[name] {
			changes, err := u.unresolvedReferences(class, e)
			if err != nil {
				return err
			}
			if err := u.insert(ctx, class, e); err != nil {
				return err
			}
			written.add(e)
			if len(changes) > 0 {
				deferred = append(deferred, deferredReference{class: class, entity: e, changes: changes})
			}
		}
	}

	for _, d := range deferred {
		ec := u.errorContext(d.class, d.entity)
		if err := u.syncJoinFields(d.class, d.entity, nil); err != nil {
			return err
		}
		w, err := u.persisters.PersisterFor(d.class)
		if err != nil {
			return storageError(ec, "update", err)
		}
		if err := w.Update(ctx, d.entity, d.changes); err != nil {
			return storageError(ec, "update", err)
		}
		u.metrics.write("update")
	}
	return nil
}

// unresolvedReferences returns the owning to-one associations of entity
// whose targets are scheduled for insertion and have no identifier yet.
func (u *UnitOfWork) unresolvedReferences(class *metadata.ClassMetadata, entity any) (persister.ChangeSet, error) {
	var changes persister.ChangeSet
	for _, a := range class.Associations {
		if a.Kind != metadata.OwningToOne {
			continue
		}
		target, err := class.Get(entity, a.Name)
		if err != nil {
			return nil, err
		}
		if metadata.IsNil(target) || !u.inserts.has(target) {
			continue
		}
		targetClass, err := u.classOf(target)
		if err != nil {
			return nil, err
		}
		ids, err := targetClass.IdentifierValues(target)
		if err != nil {
			return nil, err
		}
		if len(ids) == 1 && !identitymap.IsAbsent(ids[0]) {
			continue
		}
		if changes == nil {
			changes = make(persister.ChangeSet)
		}
		changes[a.Name] = persister.Change{New: target}
	}
	return changes, nil
}

func (u *UnitOfWork) insert(ctx context.Context, class *metadata.ClassMetadata, entity any) error {
	ec := u.errorContext(class, entity)
	if err := u.syncJoinFields(class, entity, nil); err != nil {
		return err
	}
	w, err := u.persisters.PersisterFor(class)
	if err != nil {
		return storageError(ec, "insert", err)
	}
	generated, err := w.Insert(ctx, entity)
	if err != nil {
		return storageError(ec, "insert", err)
	}
	u.metrics.write("insert")

	if generated != nil && class.IsPostInsertGenerator() {
		name := class.Identifier[0]
		if err := class.Set(entity, name, generated); err != nil {
			return err
		}
		u.snapshots.SetField(entity, name, class.MustGet(entity, name))
	}

	if !u.identities.IsRegistered(entity) {
		key, err := u.keyOf(class, entity)
		if err != nil {
			return err
		}
		ec = u.errorContext(class, entity)
		if !key.Valid() {
			return missingIdentityError(ec, "entity %s has no identifier after insert", class.Name)
		}
		if !u.identities.Register(key, entity) {
			return duplicateIdentityError(ec)
		}
	}
	u.states[entity] = StateManaged
	return nil
}

func (u *UnitOfWork) executeUpdates(ctx context.Context, p *plan, written *entitySet) error {
	for _, name := range p.order {
		class := p.classes[name]
		for _, e := range p.updates[name] {
			ec := u.errorContext(class, e)
			if err := u.syncJoinFields(class, e, u.changeSets[e]); err != nil {
				return err
			}
			w, err := u.persisters.PersisterFor(class)
			if err != nil {
				return storageError(ec, "update", err)
			}
			if err := w.Update(ctx, e, u.changeSets[e]); err != nil {
				return storageError(ec, "update", err)
			}
			u.metrics.write("update")
			written.add(e)
		}
	}
	return nil
}

// executeCollections writes the link row changes of owning collections and
// removes the link rows of owners about to be deleted.
func (u *UnitOfWork) executeCollections(ctx context.Context, p *plan) (int, error) {
	n := 0
	for _, cs := range u.collections {
		if u.deletes.has(cs.owner) {
			continue
		}
		ec := u.errorContext(cs.class, cs.owner)
		ec.field = cs.assoc.Name
		w, err := u.persisters.CollectionPersisterFor(cs.class, cs.assoc)
		if err != nil {
			return n, storageError(ec, "collection sync", err)
		}
		if err := w.Sync(ctx, cs.owner, cs.assoc, cs.inserted, cs.removed); err != nil {
			return n, storageError(ec, "collection sync", err)
		}
		u.metrics.write("collection")
		n++
	}

	for _, name := range p.order {
		class := p.classes[name]
		for _, e := range p.deletes[name] {
			for _, a := range class.Associations {
				if !a.UsesJoinTable() {
					continue
				}
				ec := u.errorContext(class, e)
				ec.field = a.Name
				w, err := u.persisters.CollectionPersisterFor(class, a)
				if err != nil {
					return n, storageError(ec, "collection delete", err)
				}
				if err := w.DeleteRows(ctx, e, a); err != nil {
					return n, storageError(ec, "collection delete", err)
				}
				u.metrics.write("collection_delete")
				n++
			}
		}
	}
	return n, nil
}

func (u *UnitOfWork) executeDeletes(ctx context.Context, p *plan) (int, error) {
	n := 0
	for i := len(p.order) - 1; i >= 0; i-- {
		name := p.order[i]
		class := p.classes[name]
		for _, e := range p.deletes[name] {
			ec := u.errorContext(class, e)
			w, err := u.persisters.PersisterFor(class)
			if err != nil {
				return n, storageError(ec, "delete", err)
			}
			if err := w.Delete(ctx, e); err != nil {
				return n, storageError(ec, "delete", err)
			}
			u.metrics.write("delete")
			n++

			u.deletes.remove(e)
			u.snapshots.Remove(e)
			delete(u.changeSets, e)
			delete(u.states, e)
			if class.IsPostInsertGenerator() {
				if err := class.Set(e, class.Identifier[0], nil); err != nil {
					return n, err
				}
			}
		}
	}
	return n, nil
}

// syncJoinFields copies the identifier of referenced entities into the
// scalar fields mirroring their foreign keys. A mirror is reset when its
// association was cleared; otherwise a nil association leaves it alone.
func (u *UnitOfWork) syncJoinFields(class *metadata.ClassMetadata, entity any, changes persister.ChangeSet) error {
	for _, a := range class.Associations {
		if a.Kind != metadata.OwningToOne || a.JoinField == "" {
			continue
		}
		target, err := class.Get(entity, a.Name)
		if err != nil {
			return err
		}
		if metadata.IsNil(target) {
			if ch, ok := changes[a.Name]; ok && !metadata.IsNil(ch.Old) {
				if err := class.Set(entity, a.JoinField, nil); err != nil {
					return err
				}
			}
			continue
		}
		targetClass, err := u.classOf(target)
		if err != nil {
			return err
		}
		ids, err := targetClass.IdentifierValues(target)
		if err != nil {
			return err
		}
		if len(ids) != 1 || identitymap.IsAbsent(ids[0]) {
			continue
		}
		if err := class.Set(entity, a.JoinField, ids[0]); err != nil {
			return err
		}
	}
	return nil
}

// capture snapshots entity. With emptyCollections, owning collections are
// recorded as empty so their members are written as link rows later.
func (u *UnitOfWork) capture(entity any, emptyCollections bool) error {
	class, err := u.classOf(entity)
	if err != nil {
		return err
	}
	data, err := currentValues(class, entity)
	if err != nil {
		return err
	}
	if emptyCollections {
		for _, a := range class.Associations {
			if a.UsesJoinTable() {
				data[a.Name] = nil
			}
		}
	}
	u.snapshots.Capture(entity, data)
	return nil
}
