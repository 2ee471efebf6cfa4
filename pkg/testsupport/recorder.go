package testsupport

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-unitofwork/internal/identitymap"
	"github.com/goliatone/go-unitofwork/metadata"
	"github.com/goliatone/go-unitofwork/persister"
)

// Op is one write observed by a Recorder.
type Op struct {
	Kind    string
	Class   string
	Entity  any
	Changes persister.ChangeSet
	// References holds the identifier of every entity referenced through an
	// owning to-one association at the time of the write.
	References map[string]any
	Assoc      string
	Inserted   []any
	Removed    []any
}

func (o Op) String() string {
	if o.Assoc != "" {
		return fmt.Sprintf("%s %s.%s", o.Kind, o.Class, o.Assoc)
	}
	return fmt.Sprintf("%s %s", o.Kind, o.Class)
}

// Recorder is a persister.Resolver that records writes instead of issuing
// them. Classes with storage generated identifiers receive sequential int64
// identifiers starting at 1.
type Recorder struct {
	mu       sync.Mutex
	provider metadata.Provider
	ops      []Op
	nextID   int64
	failures map[string]error
}

var _ persister.Resolver = (*Recorder)(nil)

// NewRecorder creates a Recorder resolving referenced classes through provider.
func NewRecorder(provider metadata.Provider) *Recorder {
	return &Recorder{provider: provider, failures: make(map[string]error)}
}

// FailOn makes writes of kind (insert, update, delete, sync, delete_rows)
// for class return err.
func (r *Recorder) FailOn(kind, class string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[kind+" "+class] = err
}

// Ops returns the recorded writes in order.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Op(nil), r.ops...)
}

// Log returns the recorded writes as "kind Class" strings.
func (r *Recorder) Log() []string {
	ops := r.Ops()
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

// Count returns how many writes of kind were recorded for entity.
func (r *Recorder) Count(kind string, entity any) int {
	n := 0
	for _, op := range r.Ops() {
		if op.Kind == kind && op.Entity == entity {
			n++
		}
	}
	return n
}

// Reset forgets recorded writes and failures.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
	r.failures = make(map[string]error)
}

func (r *Recorder) record(op Op) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failures[op.Kind+" "+op.Class]; ok {
		return err
	}
	r.ops = append(r.ops, op)
	return nil
}

func (r *Recorder) generate() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

func (r *Recorder) PersisterFor(class *metadata.ClassMetadata) (persister.Persister, error) {
	return &classRecorder{recorder: r, class: class}, nil
}

func (r *Recorder) CollectionPersisterFor(class *metadata.ClassMetadata, _ metadata.AssociationMapping) (persister.CollectionPersister, error) {
	return &collectionRecorder{recorder: r, class: class}, nil
}

type classRecorder struct {
	recorder *Recorder
	class    *metadata.ClassMetadata
}

func (p *classRecorder) references(entity any) map[string]any {
	refs := map[string]any{}
	for _, a := range p.class.Associations {
		if a.Kind != metadata.OwningToOne {
			continue
		}
		for _, target := range p.class.Related(entity, a) {
			c, err := p.recorder.provider.ClassFor(target)
			if err != nil {
				continue
			}
			if ids, err := c.IdentifierValues(target); err == nil {
				refs[a.Name] = identitymap.Hash(ids...)
			}
		}
	}
	return refs
}

func (p *classRecorder) Insert(_ context.Context, entity any) (any, error) {
	op := Op{Kind: "insert", Class: p.class.Name, Entity: entity, References: p.references(entity)}
	if err := p.recorder.record(op); err != nil {
		return nil, err
	}
	if p.class.IsPostInsertGenerator() {
		return p.recorder.generate(), nil
	}
	return nil, nil
}

func (p *classRecorder) Update(_ context.Context, entity any, changes persister.ChangeSet) error {
	copied := make(persister.ChangeSet, len(changes))
	for k, v := range changes {
		copied[k] = v
	}
	return p.recorder.record(Op{
		Kind:       "update",
		Class:      p.class.Name,
		Entity:     entity,
		Changes:    copied,
		References: p.references(entity),
	})
}

func (p *classRecorder) Delete(_ context.Context, entity any) error {
	return p.recorder.record(Op{Kind: "delete", Class: p.class.Name, Entity: entity})
}

type collectionRecorder struct {
	recorder *Recorder
	class    *metadata.ClassMetadata
}

func (p *collectionRecorder) Sync(_ context.Context, owner any, assoc metadata.AssociationMapping, inserted, removed []any) error {
	return p.recorder.record(Op{
		Kind:     "sync",
		Class:    p.class.Name,
		Entity:   owner,
		Assoc:    assoc.Name,
		Inserted: append([]any(nil), inserted...),
		Removed:  append([]any(nil), removed...),
	})
}

func (p *collectionRecorder) DeleteRows(_ context.Context, owner any, assoc metadata.AssociationMapping) error {
	return p.recorder.record(Op{Kind: "delete_rows", Class: p.class.Name, Entity: owner, Assoc: assoc.Name})
}
