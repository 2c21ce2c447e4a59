package dynamic

import (
	"fmt"
	"slices"
	"sort"

	"github.com/syssam/linkql/dialect/sql/schema"
	"github.com/syssam/linkql/relation"
)

// Registry holds the collections and the links between them. Registration
// is explicit; a registry is not safe for concurrent mutation but may be
// read concurrently once built.
type Registry struct {
	collections map[string]*Collection
	order       []string
	links       map[string]map[string]Link
	junctions   []junctionDef
}

type junctionDef struct {
	junction relation.Junction
	from, to string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		collections: make(map[string]*Collection),
		links:       make(map[string]map[string]Link),
	}
}

// AddCollection registers a collection under its table name.
func (r *Registry) AddCollection(c *Collection) error {
	if _, ok := r.collections[c.Table()]; ok {
		return fmt.Errorf("dynamic: collection %q already registered", c.Table())
	}
	r.collections[c.Table()] = c
	r.order = append(r.order, c.Table())
	r.links[c.Table()] = make(map[string]Link)
	return nil
}

// Collection returns the collection with the given name.
func (r *Registry) Collection(name string) (*Collection, bool) {
	c, ok := r.collections[name]
	return c, ok
}

// Collections returns the collections in registration order.
func (r *Registry) Collections() []*Collection {
	cs := make([]*Collection, len(r.order))
	for i, name := range r.order {
		cs[i] = r.collections[name]
	}
	return cs
}

// AddLink registers a link of a collection under key.
func (r *Registry) AddLink(collection, key string, l Link) error {
	links, ok := r.links[collection]
	if !ok {
		return fmt.Errorf("dynamic: unknown collection %q", collection)
	}
	if _, ok := links[key]; ok {
		return fmt.Errorf("dynamic: link %q of %q already registered", key, collection)
	}
	if _, ok := r.collections[collection].Field(key); ok {
		return fmt.Errorf("dynamic: link %q of %q shadows a member", key, collection)
	}
	links[key] = l
	return nil
}

// Link returns the link of a collection registered under key.
func (r *Registry) Link(collection, key string) (Link, bool) {
	l, ok := r.links[collection][key]
	return l, ok
}

// LinkKeys returns the sorted link keys of a collection.
func (r *Registry) LinkKeys(collection string) []string {
	keys := make([]string, 0, len(r.links[collection]))
	for k := range r.links[collection] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ManyToMany registers the link from one collection to another through the
// junction, and records the junction table for schema creation.
func (r *Registry) ManyToMany(from, to, key string, j relation.Junction) error {
	target, ok := r.collections[to]
	if !ok {
		return fmt.Errorf("dynamic: unknown collection %q", to)
	}
	if err := r.AddLink(from, key, NewManyToManyLink(target, j)); err != nil {
		return err
	}
	if !slices.ContainsFunc(r.junctions, func(d junctionDef) bool { return d.junction.Table == j.Table }) {
		r.junctions = append(r.junctions, junctionDef{junction: j, from: from, to: to})
	}
	return nil
}

// Junction returns the recorded junction between two collections, in
// either direction, oriented from the first one.
func (r *Registry) Junction(from, to string) (relation.Junction, bool) {
	for _, d := range r.junctions {
		switch {
		case d.from == from && d.to == to:
			return d.junction, true
		case d.from == to && d.to == from:
			j := d.junction
			j.From, j.To = j.To, j.From
			return j, true
		}
	}
	return relation.Junction{}, false
}

// Count registers the link counting the rows related through the junction.
func (r *Registry) Count(collection, key string, j relation.Junction) error {
	return r.AddLink(collection, key, NewCountLink(j))
}

// Optional registers the link to the row referenced by the foreign key
// column of the collection. The target is joined under the link key, so
// the key of a link from a collection to itself must differ from the
// collection name.
func (r *Registry) Optional(from, to, key, column string) error {
	target, ok := r.collections[to]
	if !ok {
		return fmt.Errorf("dynamic: unknown collection %q", to)
	}
	if key == from {
		return fmt.Errorf("dynamic: link %q of %q is named after its collection", key, from)
	}
	return r.AddLink(from, key, NewOptionalLink(target, key, column))
}

// Dependents returns the collections whose outputs may change when the
// given tables are written: the tables themselves and every collection
// linked to one of them.
func (r *Registry) Dependents(tables ...string) []string {
	var deps []string
	for _, name := range r.order {
		if slices.Contains(tables, name) {
			deps = append(deps, name)
			continue
		}
	links:
		for _, l := range r.links[name] {
			for _, t := range l.Tables() {
				if slices.Contains(tables, t) {
					deps = append(deps, name)
					break links
				}
			}
		}
	}
	return deps
}

// Tables returns the table definitions of the collections, with the
// foreign key columns of optional links and the junction tables.
func (r *Registry) Tables() []*schema.Table {
	byName := make(map[string]*schema.Table, len(r.order))
	tables := make([]*schema.Table, 0, len(r.order)+len(r.junctions))
	for _, name := range r.order {
		t := schema.NewTable(name)
		for _, f := range r.collections[name].Fields() {
			t.AddColumn(&schema.Column{
				Name:     f.Name,
				Type:     f.Type,
				Size:     f.Size,
				Nullable: f.Nullable,
				Unique:   f.Unique,
				Default:  f.Default,
			})
		}
		byName[name] = t
		tables = append(tables, t)
	}
	for _, name := range r.order {
		for _, key := range r.LinkKeys(name) {
			l, ok := r.links[name][key].(*OptionalLink)
			if !ok {
				continue
			}
			t := byName[name]
			if _, ok := t.Column(l.Column()); !ok {
				t.AddColumn(&schema.Column{Name: l.Column(), Type: schema.TypeInt, Nullable: true})
			}
			t.AddForeignKey(l.Column(), byName[l.Tables()[0]], "SET NULL")
		}
	}
	for _, d := range r.junctions {
		tables = append(tables, schema.Junction(d.junction.Table, byName[d.from], byName[d.to], d.junction.From, d.junction.To))
	}
	return tables
}
