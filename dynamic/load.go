package dynamic

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-openapi/inflect"
	"gopkg.in/yaml.v3"

	"github.com/syssam/linkql/dialect/sql/schema"
	"github.com/syssam/linkql/relation"
)

// Relation kinds of a schema file.
const (
	KindManyToMany = "many_to_many"
	KindCount      = "count"
	KindOptional   = "optional"
)

// File is the YAML description of a registry:
//
//	collections:
//	  - name: student
//	    fields:
//	      - {name: name, type: string}
//	  - name: course
//	    fields:
//	      - {name: code, type: string, unique: true}
//	relations:
//	  - {kind: many_to_many, from: student, to: course, inverse: students}
//	  - {kind: count, from: course, to: student}
//
// Names are normalized to snake case. Link keys default to the pluralized
// target name for many-to-many links, to "<targets>_count" for counts and
// to the target name for optional links. Junctions default to
// <from>_<to>(<from>_id, <to>_id).
type File struct {
	Collections []CollectionDef `yaml:"collections"`
	Relations   []RelationDef   `yaml:"relations"`
}

// CollectionDef is a collection of a schema file.
type CollectionDef struct {
	Name   string     `yaml:"name"`
	Fields []FieldDef `yaml:"fields"`
}

// FieldDef is a field of a schema file.
type FieldDef struct {
	Field `yaml:",inline"`
	Type  string `yaml:"type"`
}

// RelationDef is a relation of a schema file.
type RelationDef struct {
	Kind     string       `yaml:"kind"`
	From     string       `yaml:"from"`
	To       string       `yaml:"to"`
	Key      string       `yaml:"key"`
	Inverse  string       `yaml:"inverse"`
	Column   string       `yaml:"column"`
	Junction *JunctionDef `yaml:"junction"`
}

// JunctionDef overrides the default junction of a relation.
type JunctionDef struct {
	Table string `yaml:"table"`
	From  string `yaml:"from"`
	To    string `yaml:"to"`
}

// LoadFile reads a registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dynamic: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a registry from YAML.
func Load(r io.Reader) (*Registry, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("dynamic: decode schema: %w", err)
	}
	return file.Registry()
}

// Registry builds the registry described by the file.
func (f *File) Registry() (*Registry, error) {
	reg := NewRegistry()
	for _, cd := range f.Collections {
		fields := make([]Field, len(cd.Fields))
		for i, fd := range cd.Fields {
			t, err := schema.ParseType(fd.Type)
			if err != nil {
				return nil, fmt.Errorf("dynamic: field %s.%s: %w", cd.Name, fd.Name, err)
			}
			fields[i] = fd.Field
			fields[i].Name = name(fd.Name)
			fields[i].Type = t
		}
		if err := reg.AddCollection(NewCollection(name(cd.Name), fields...)); err != nil {
			return nil, err
		}
	}
	for i, rd := range f.Relations {
		if err := rd.register(reg); err != nil {
			return nil, fmt.Errorf("dynamic: relation %d (%s %s -> %s): %w", i, rd.Kind, rd.From, rd.To, err)
		}
	}
	return reg, nil
}

func (rd RelationDef) register(reg *Registry) error {
	from, to := name(rd.From), name(rd.To)
	switch rd.Kind {
	case KindManyToMany:
		j := relation.JunctionOf(from, to)
		if rd.Junction != nil {
			j = relation.Junction{Table: name(rd.Junction.Table), From: name(rd.Junction.From), To: name(rd.Junction.To)}
		}
		if err := reg.ManyToMany(from, to, keyOr(rd.Key, inflect.Pluralize(to)), j); err != nil {
			return err
		}
		if rd.Inverse == "" {
			return nil
		}
		inv := j
		inv.From, inv.To = j.To, j.From
		return reg.ManyToMany(to, from, name(rd.Inverse), inv)
	case KindCount:
		j, ok := reg.Junction(from, to)
		if rd.Junction != nil {
			j, ok = relation.Junction{Table: name(rd.Junction.Table), From: name(rd.Junction.From), To: name(rd.Junction.To)}, true
		}
		if !ok {
			return fmt.Errorf("no junction between %q and %q", from, to)
		}
		return reg.Count(from, keyOr(rd.Key, inflect.Pluralize(to)+"_count"), j)
	case KindOptional:
		return reg.Optional(from, to, keyOr(rd.Key, to), keyOr(rd.Column, to+"_id"))
	default:
		return fmt.Errorf("unknown relation kind %q", rd.Kind)
	}
}

// name normalizes an identifier of a schema file to snake case.
func name(s string) string {
	return inflect.Underscore(strings.TrimSpace(s))
}

func keyOr(key, def string) string {
	if key != "" {
		return name(key)
	}
	return def
}
