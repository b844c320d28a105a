package domain

import "time"

// Entity is anything with a stable identity.
type Entity interface {
	ID() string
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Equals(other Entity) bool
}

// AggregateRoot is the consistency boundary repositories load and save. It
// buffers the events raised since it was loaded; the application layer drains
// them into the outbox in the same unit of work.
type AggregateRoot interface {
	Entity
	DomainEvents() []DomainEvent
	ClearDomainEvents()
	AddDomainEvent(event DomainEvent)
	Version() int
}

// BaseEntity holds identity and timestamps. Ids come from outside the
// system (gateway transaction ids, auth provider subjects), never generated.
type BaseEntity struct {
	id        string
	createdAt time.Time
	updatedAt time.Time
}

func NewBaseEntity(id string, createdAt time.Time) BaseEntity {
	return BaseEntity{id: id, createdAt: createdAt.UTC(), updatedAt: time.Now().UTC()}
}

// RehydrateBaseEntity restores an entity exactly as stored.
func RehydrateBaseEntity(id string, createdAt, updatedAt time.Time) BaseEntity {
	return BaseEntity{id: id, createdAt: createdAt, updatedAt: updatedAt}
}

func (e BaseEntity) ID() string           { return e.id }
func (e BaseEntity) CreatedAt() time.Time { return e.createdAt }
func (e BaseEntity) UpdatedAt() time.Time { return e.updatedAt }

// Touch stamps a modification.
func (e *BaseEntity) Touch() { e.updatedAt = time.Now().UTC() }

func (e BaseEntity) Equals(other Entity) bool {
	return other != nil && other.ID() == e.id
}

// BaseAggregateRoot adds an event buffer and an optimistic-lock version to
// BaseEntity. Version 0 means not yet persisted.
type BaseAggregateRoot struct {
	BaseEntity
	pending []DomainEvent
	version int
}

func NewBaseAggregateRoot(id string, createdAt time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(id, createdAt)}
}

// RehydrateBaseAggregateRoot restores an aggregate at its stored version
// with no pending events.
func RehydrateBaseAggregateRoot(entity BaseEntity, version int) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: entity, version: version}
}

func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.pending = append(a.pending, event)
}

func (a *BaseAggregateRoot) DomainEvents() []DomainEvent { return a.pending }
func (a *BaseAggregateRoot) ClearDomainEvents()          { a.pending = nil }
func (a *BaseAggregateRoot) Version() int                { return a.version }

// SetVersion records the version written by a successful conditional update.
func (a *BaseAggregateRoot) SetVersion(version int) { a.version = version }
