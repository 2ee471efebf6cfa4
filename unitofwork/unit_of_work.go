package unitofwork

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-unitofwork/commitorder"
	"github.com/goliatone/go-unitofwork/internal/identitymap"
	"github.com/goliatone/go-unitofwork/internal/snapshot"
	"github.com/goliatone/go-unitofwork/metadata"
	"github.com/goliatone/go-unitofwork/persister"
)

// collectionSync is a pending write of the link rows of one owning collection.
type collectionSync struct {
	owner    any
	class    *metadata.ClassMetadata
	assoc    metadata.AssociationMapping
	inserted []any
	removed  []any
}

// UnitOfWork tracks entities of one logical transaction and writes their
// changes on Commit. A UnitOfWork is not safe for concurrent use; callers
// serialize access and must not mutate entities while Commit runs.
type UnitOfWork struct {
	cfg        Config
	metadata   metadata.Provider
	persisters persister.Resolver
	logger     *slog.Logger
	metrics    *Metrics

	identities *identitymap.Registry
	snapshots  *snapshot.Store
	states     map[any]State

	inserts     *entitySet
	dirty       *entitySet
	updates     *entitySet
	deletes     *entitySet
	dirtyChecks *entitySet
	collections []collectionSync
	changeSets  map[any]persister.ChangeSet

	order *commitorder.Calculator[*metadata.ClassMetadata]
	phase Phase
}

// New creates a unit of work reading mappings from provider and writing
// through the persisters resolved by persisters.
func New(provider metadata.Provider, persisters persister.Resolver, opts ...Option) *UnitOfWork {
	isEntity := func(v any) bool {
		_, err := provider.ClassFor(v)
		return err == nil
	}
	u := &UnitOfWork{
		cfg:         DefaultConfig(),
		metadata:    provider,
		persisters:  persisters,
		logger:      slog.Default(),
		identities:  identitymap.New(),
		snapshots:   snapshot.New(snapshot.WithReferences(isEntity)),
		states:      make(map[any]State),
		inserts:     newEntitySet(),
		dirty:       newEntitySet(),
		updates:     newEntitySet(),
		deletes:     newEntitySet(),
		dirtyChecks: newEntitySet(),
		changeSets:  make(map[any]persister.ChangeSet),
		order:       commitorder.New[*metadata.ClassMetadata](),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Config returns the policies in effect.
func (u *UnitOfWork) Config() Config {
	return u.cfg
}

// Phase returns the commit protocol state.
func (u *UnitOfWork) Phase() Phase {
	return u.phase
}

func (u *UnitOfWork) setPhase(ctx context.Context, p Phase) {
	u.phase = p
	u.logger.DebugContext(ctx, "uow.commit.phase", "phase", p.String())
}

// ready rejects operations after a failed commit.
func (u *UnitOfWork) ready() error {
	if u.phase == PhaseFailed {
		return invalidStateError(errorContext{}, "unit of work is in failed state, call Reset before reuse")
	}
	return nil
}

func (u *UnitOfWork) classOf(entity any) (*metadata.ClassMetadata, error) {
	return u.metadata.ClassFor(entity)
}

func (u *UnitOfWork) keyOf(class *metadata.ClassMetadata, entity any) (identitymap.Key, error) {
	ids, err := class.IdentifierValues(entity)
	if err != nil {
		return identitymap.Key{}, err
	}
	return identitymap.Key{Root: class.RootName, Hash: identitymap.Hash(ids...)}, nil
}

func (u *UnitOfWork) errorContext(class *metadata.ClassMetadata, entity any) errorContext {
	ec := errorContext{entity: class.Name}
	if key, err := u.keyOf(class, entity); err == nil {
		ec.identifier = key.Hash
	}
	return ec
}

// stateOf classifies entity. Entities the unit of work never saw are NEW,
// unless their identifier can only come from storage or another instance
// already holds it, in which case they are DETACHED.
func (u *UnitOfWork) stateOf(class *metadata.ClassMetadata, entity any) State {
	if st, ok := u.states[entity]; ok {
		return st
	}
	key, err := u.keyOf(class, entity)
	if err != nil || !key.Valid() {
		return StateNew
	}
	if class.IsPostInsertGenerator() {
		return StateDetached
	}
	if _, found := u.identities.Lookup(key.Root, key.Hash); found {
		return StateDetached
	}
	return StateNew
}

// State returns the lifecycle state of entity. Unmapped values are NEW.
func (u *UnitOfWork) State(entity any) State {
	class, err := u.classOf(entity)
	if err != nil {
		return StateNew
	}
	return u.stateOf(class, entity)
}

// Size returns the number of entities in the identity map.
func (u *UnitOfWork) Size() int {
	return u.identities.Size()
}

// IsRegistered reports whether entity is in the identity map.
func (u *UnitOfWork) IsRegistered(entity any) bool {
	return u.identities.IsRegistered(entity)
}

func (u *UnitOfWork) IsScheduledForInsert(entity any) bool { return u.inserts.has(entity) }

func (u *UnitOfWork) IsScheduledForUpdate(entity any) bool {
	return u.dirty.has(entity) || u.updates.has(entity)
}

func (u *UnitOfWork) IsScheduledForDelete(entity any) bool { return u.deletes.has(entity) }

// IsScheduled reports whether entity waits for any write.
func (u *UnitOfWork) IsScheduled(entity any) bool {
	return u.IsScheduledForInsert(entity) || u.IsScheduledForUpdate(entity) || u.IsScheduledForDelete(entity)
}

// Identifier returns the identifier values of entity in mapping order.
func (u *UnitOfWork) Identifier(entity any) ([]any, error) {
	class, err := u.classOf(entity)
	if err != nil {
		return nil, err
	}
	return class.IdentifierValues(entity)
}

// TryGetByID returns the managed instance of class with the given
// identifier. Subclasses resolve through the root of their hierarchy.
func (u *UnitOfWork) TryGetByID(class string, id ...any) (any, bool) {
	root := class
	if c, err := u.metadata.Class(class); err == nil {
		root = c.RootName
	}
	return u.identities.Lookup(root, identitymap.Hash(id...))
}

// OriginalData returns a copy of the snapshot of entity.
func (u *UnitOfWork) OriginalData(entity any) (map[string]any, bool) {
	data, ok := u.snapshots.Get(entity)
	return map[string]any(data), ok
}

// ChangeSet returns the changes computed for entity by the last change
// set computation of the current commit cycle.
func (u *UnitOfWork) ChangeSet(entity any) persister.ChangeSet {
	changes, ok := u.changeSets[entity]
	if !ok {
		return persister.ChangeSet{}
	}
	out := make(persister.ChangeSet, len(changes))
	for k, v := range changes {
		out[k] = v
	}
	return out
}

// Clear detaches every entity and drops all schedules. Entities that were
// only scheduled for insertion become NEW again.
func (u *UnitOfWork) Clear() {
	for e, st := range u.states {
		switch {
		case u.inserts.has(e):
			delete(u.states, e)
		case st == StateManaged || st == StateDeleted:
			u.states[e] = StateDetached
		}
	}
	u.identities.Clear()
	u.snapshots.Clear()
	u.inserts.clear()
	u.dirty.clear()
	u.updates.clear()
	u.deletes.clear()
	u.dirtyChecks.clear()
	u.collections = nil
	u.changeSets = make(map[any]persister.ChangeSet)
	u.metrics.setManaged(0)
}

// ClearType detaches every entity of the hierarchy rooted at class and
// returns how many were untracked. Entities that were only scheduled for
// insertion become NEW again, as with Clear.
func (u *UnitOfWork) ClearType(class string) int {
	root := class
	if c, err := u.metadata.Class(class); err == nil {
		root = c.RootName
	}

	targets := newEntitySet()
	for _, e := range u.identities.Entities(root) {
		targets.add(e)
	}
	for _, set := range []*entitySet{u.inserts, u.deletes} {
		for _, e := range set.list() {
			if c, err := u.classOf(e); err == nil && c.RootName == root {
				targets.add(e)
			}
		}
	}
	for _, e := range targets.list() {
		pending := u.inserts.has(e)
		u.Detach(e)
		if pending {
			delete(u.states, e)
		}
	}
	u.metrics.setManaged(u.identities.Size())
	return targets.len()
}

// Reset leaves the failed state. Tracked state cannot be trusted after a
// failed commit, so every entity is detached as with Clear.
func (u *UnitOfWork) Reset() {
	u.Clear()
	u.phase = PhaseIdle
}
