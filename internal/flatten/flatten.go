// Package flatten turns nested query results (parents carrying child
// relations) into a bag of flat records grouped by type, with each child
// pointing back at its parent.
package flatten

import (
	"fmt"

	"sftocsv/internal/record"
)

const (
	DefaultTagField      = "attributes"
	DefaultTypeKey       = "type"
	DefaultIdentityField = "Id"
	DefaultChildrenField = "records"
)

// MissingIdentityError is returned when a node lacks a type tag or an
// identity value. Flattening is all-or-nothing, so the partial bag is discarded.
type MissingIdentityError struct {
	Field string // the missing field, e.g. "attributes.type" or "Id"
	Node  *record.Record
}

func (e *MissingIdentityError) Error() string {
	return fmt.Sprintf("flatten: node is missing %s: %s", e.Field, e.Node)
}

// Flattener holds the field names that describe a nested result node.
// The zero value uses the defaults.
type Flattener struct {
	TagField      string // object holding the type tag
	TypeKey       string // key of the type name inside TagField
	IdentityField string
	ChildrenField string // list of children inside a one-to-many container
}

// Flatten flattens nodes with the default field names.
func Flatten(nodes record.Collection) (*record.Bag, error) {
	return (&Flattener{}).Flatten(nodes)
}

// Flatten walks every node depth-first. A node's flat record is appended
// before any of its children, and list order is preserved.
func (f *Flattener) Flatten(nodes record.Collection) (*record.Bag, error) {
	bag := record.NewBag()
	for _, n := range nodes {
		if err := f.visit(n, nil, bag); err != nil {
			return nil, err
		}
	}
	return bag, nil
}

// parentRef is the back-reference a child carries: <Type> = <Id>.
type parentRef struct {
	typ string
	id  record.Value
}

func (f *Flattener) visit(node *record.Record, parent *parentRef, bag *record.Bag) error {
	typ, id, err := f.identity(node)
	if err != nil {
		return err
	}

	flat := record.New()
	if parent != nil {
		flat.Set(parent.typ, parent.id)
	}

	var children []*record.Record
	node.Range(func(key string, v record.Value) bool {
		if key == f.tagField() || record.IsNull(v) {
			return true
		}
		nested, ok := v.(*record.Record)
		if !ok {
			flat.Set(key, v)
			return true
		}
		if nested.Has(f.tagField()) {
			children = append(children, nested)
			return true
		}
		if items, ok := f.childList(nested); ok {
			children = append(children, items...)
		}
		return true
	})

	bag.Add(typ, flat)

	self := &parentRef{typ: typ, id: id}
	for _, child := range children {
		if err := f.visit(child, self, bag); err != nil {
			return err
		}
	}
	return nil
}

// identity extracts the type tag and identity value of a node.
func (f *Flattener) identity(node *record.Record) (string, record.Value, error) {
	tagField := f.tagField()
	tag, ok := node.Get(tagField)
	if !ok {
		return "", nil, &MissingIdentityError{Field: tagField + "." + f.typeKey(), Node: node}
	}
	tagRec, ok := tag.(*record.Record)
	if !ok {
		return "", nil, &MissingIdentityError{Field: tagField + "." + f.typeKey(), Node: node}
	}
	typVal, _ := tagRec.Get(f.typeKey())
	typ, ok := typVal.(record.String)
	if !ok || typ == "" {
		return "", nil, &MissingIdentityError{Field: tagField + "." + f.typeKey(), Node: node}
	}

	id, ok := node.Get(f.identityField())
	if !ok || record.IsNull(id) {
		return "", nil, &MissingIdentityError{Field: f.identityField(), Node: node}
	}
	return string(typ), id, nil
}

// childList returns the elements of a one-to-many container.
func (f *Flattener) childList(container *record.Record) ([]*record.Record, bool) {
	v, ok := container.Get(f.childrenField())
	if !ok {
		return nil, false
	}
	list, ok := v.(record.List)
	if !ok {
		return nil, false
	}
	out := make([]*record.Record, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(*record.Record); ok {
			out = append(out, rec)
		}
	}
	return out, true
}

func (f *Flattener) tagField() string {
	if f.TagField == "" {
		return DefaultTagField
	}
	return f.TagField
}

func (f *Flattener) typeKey() string {
	if f.TypeKey == "" {
		return DefaultTypeKey
	}
	return f.TypeKey
}

func (f *Flattener) identityField() string {
	if f.IdentityField == "" {
		return DefaultIdentityField
	}
	return f.IdentityField
}

func (f *Flattener) childrenField() string {
	if f.ChildrenField == "" {
		return DefaultChildrenField
	}
	return f.ChildrenField
}

// StripTags returns copies of records with the tag field removed. This is
// the flat-query path: no nesting, only the metadata object dropped.
func StripTags(records record.Collection) record.Collection {
	return records.StripField(DefaultTagField)
}
