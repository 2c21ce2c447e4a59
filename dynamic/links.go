package dynamic

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syssam/linkql"
	"github.com/syssam/linkql/relation"
)

// ErrUnsupported is returned when a link is requested on an operation it
// does not support.
var ErrUnsupported = errors.New("link does not support the operation")

// Link builds the erased link of one request entry. The input is the raw
// JSON value of the entry, nil when absent.
type Link interface {
	Select(input json.RawMessage) (linkql.SelectLink[any], error)
	Insert(input json.RawMessage) (linkql.InsertLink[any], error)
	Update(input json.RawMessage) (linkql.UpdateLink[any], error)
	Delete(input json.RawMessage) (linkql.DeleteLink[any], error)
	// Tables returns the tables the link reads or writes besides the base
	// table.
	Tables() []string
}

// ManyToManyLink lists, connects and detaches the rows of a collection
// related through a junction table.
//
// Insert input is the list of target ids to connect. Update input is the
// list that replaces the current one.
type ManyToManyLink struct {
	rel *relation.ManyToManyRel[map[string]any, map[string]any]
}

// NewManyToManyLink returns the link to the target collection through the
// junction.
func NewManyToManyLink(to *Collection, j relation.Junction) *ManyToManyLink {
	return &ManyToManyLink{rel: relation.ManyToMany[map[string]any, map[string]any](to, j)}
}

// Select implements Link.
func (l *ManyToManyLink) Select(json.RawMessage) (linkql.SelectLink[any], error) {
	return linkql.EraseSelect(l.rel.Select()), nil
}

// Insert implements Link.
func (l *ManyToManyLink) Insert(input json.RawMessage) (linkql.InsertLink[any], error) {
	ids, err := decodeIDs(input)
	if err != nil {
		return nil, err
	}
	return linkql.EraseInsert[[]int64](l.rel.Connect(ids...)), nil
}

// Update implements Link.
func (l *ManyToManyLink) Update(input json.RawMessage) (linkql.UpdateLink[any], error) {
	ids, err := decodeIDs(input)
	if err != nil {
		return nil, err
	}
	return linkql.EraseUpdate[[]int64](l.rel.Replace(ids...)), nil
}

// Delete implements Link.
func (l *ManyToManyLink) Delete(json.RawMessage) (linkql.DeleteLink[any], error) {
	return linkql.EraseDelete[int64](l.rel.Detach()), nil
}

// Tables implements Link.
func (l *ManyToManyLink) Tables() []string {
	return []string{l.rel.Junction().Table, l.rel.Target().Table()}
}

// CountLink counts the junction rows of every selected row. It supports
// select only.
type CountLink struct {
	junction relation.Junction
}

// NewCountLink returns the count link over the junction.
func NewCountLink(j relation.Junction) *CountLink {
	return &CountLink{junction: j}
}

// Select implements Link.
func (l *CountLink) Select(json.RawMessage) (linkql.SelectLink[any], error) {
	return linkql.EraseSelect(relation.Count(l.junction)), nil
}

// Insert implements Link.
func (l *CountLink) Insert(json.RawMessage) (linkql.InsertLink[any], error) {
	return nil, ErrUnsupported
}

// Update implements Link.
func (l *CountLink) Update(json.RawMessage) (linkql.UpdateLink[any], error) {
	return nil, ErrUnsupported
}

// Delete implements Link.
func (l *CountLink) Delete(json.RawMessage) (linkql.DeleteLink[any], error) {
	return nil, ErrUnsupported
}

// Tables implements Link.
func (l *CountLink) Tables() []string { return []string{l.junction.Table} }

// OptionalLink reads and assigns the row referenced by a nullable foreign
// key. Insert and update input is the target id, or null to clear it.
type OptionalLink struct {
	rel *relation.OptionalRel[map[string]any, map[string]any]
}

// NewOptionalLink returns the link to the target collection through the
// foreign key column of the base table. The target is joined under alias.
func NewOptionalLink(to *Collection, alias, column string) *OptionalLink {
	return &OptionalLink{rel: relation.Optional[map[string]any, map[string]any](to, column).As(alias)}
}

// Column returns the foreign key column.
func (l *OptionalLink) Column() string { return l.rel.Column() }

// Select implements Link.
func (l *OptionalLink) Select(json.RawMessage) (linkql.SelectLink[any], error) {
	return linkql.EraseSelect(l.rel.Select()), nil
}

// Insert implements Link.
func (l *OptionalLink) Insert(input json.RawMessage) (linkql.InsertLink[any], error) {
	w, err := l.write(input)
	if err != nil {
		return nil, err
	}
	return linkql.EraseInsert[*int64](w), nil
}

// Update implements Link.
func (l *OptionalLink) Update(input json.RawMessage) (linkql.UpdateLink[any], error) {
	w, err := l.write(input)
	if err != nil {
		return nil, err
	}
	return linkql.EraseUpdate[*int64](w), nil
}

func (l *OptionalLink) write(input json.RawMessage) (*relation.FKWrite, error) {
	var id *int64
	if len(input) > 0 {
		if err := json.Unmarshal(input, &id); err != nil {
			return nil, fmt.Errorf("expect id or null: %w", err)
		}
	}
	if id == nil {
		return l.rel.Clear(), nil
	}
	return l.rel.Assign(*id), nil
}

// Delete implements Link. The foreign key goes away with the row.
func (l *OptionalLink) Delete(json.RawMessage) (linkql.DeleteLink[any], error) {
	return nil, ErrUnsupported
}

// Tables implements Link.
func (l *OptionalLink) Tables() []string { return []string{l.rel.Target().Table()} }

func decodeIDs(input json.RawMessage) ([]int64, error) {
	if len(input) == 0 {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal(input, &ids); err != nil {
		return nil, fmt.Errorf("expect list of ids: %w", err)
	}
	return ids, nil
}

var (
	_ Link = (*ManyToManyLink)(nil)
	_ Link = (*CountLink)(nil)
	_ Link = (*OptionalLink)(nil)
)
