package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// MappingFileSuffix is the extension picked up when a directory is loaded.
const MappingFileSuffix = ".uow.yml"

// YAMLDriver reads class mappings from YAML documents keyed by class name:
//
//	Customer:
//	  table: customers
//	  id:
//	    ID: {generator: identity}
//	  fields:
//	    Name: {rules: {required: true, length: {max: 64}}}
//	  oneToMany:
//	    Orders: {target: Order, mappedBy: Customer, cascade: [save]}
//	Order:
//	  manyToOne:
//	    Customer:
//	      target: Customer
//	      joinColumn: {name: customer_id, field: CustomerID}
type YAMLDriver struct {
	classes map[string]yamlClass
	names   []string
}

var _ Driver = (*YAMLDriver)(nil)

// NewYAMLDriver loads every path. Directories contribute their
// *.uow.yml files in lexical order.
func NewYAMLDriver(paths ...string) (*YAMLDriver, error) {
	d := &YAMLDriver{classes: make(map[string]yamlClass)}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		files := []string{path}
		if info.IsDir() {
			files, err = filepath.Glob(filepath.Join(path, "*"+MappingFileSuffix))
			if err != nil {
				return nil, err
			}
			sort.Strings(files)
		}
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				return nil, err
			}
			if err := d.add(data); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
	}
	return d, nil
}

// ParseYAML builds a driver from an in-memory document.
func ParseYAML(data []byte) (*YAMLDriver, error) {
	d := &YAMLDriver{classes: make(map[string]yamlClass)}
	if err := d.add(data); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *YAMLDriver) add(data []byte) error {
	var doc orderedMap[yamlClass]
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	for _, e := range doc {
		if _, dup := d.classes[e.key]; dup {
			return fmt.Errorf("class %s is defined twice", e.key)
		}
		d.classes[e.key] = e.value
		d.names = append(d.names, e.key)
	}
	return nil
}

// ClassNames lists classes in document order.
func (d *YAMLDriver) ClassNames() []string {
	return append([]string(nil), d.names...)
}

// Load fills class from its YAML mapping. class.Type, when set, types the
// thresholds of min and max rules.
func (d *YAMLDriver) Load(class *ClassMetadata) error {
	src, ok := d.classes[class.Name]
	if !ok {
		return fmt.Errorf("no YAML mapping for class %s", class.Name)
	}

	var err error
	class.Table = src.Table
	class.Parent = src.Extends
	if class.Inheritance, err = ParseInheritance(src.InheritanceType); err != nil {
		return err
	}
	class.DiscriminatorColumn = src.Discriminator.Column
	class.DiscriminatorValue = src.Discriminator.Value

	for _, e := range src.ID {
		class.Identifier = append(class.Identifier, e.key)
		class.Fields = append(class.Fields, FieldMapping{Name: e.key, Column: e.value.Column, ID: true})
		if e.value.Generator != "" {
			if class.Generator, err = ParseGenerator(e.value.Generator); err != nil {
				return err
			}
		}
	}

	for _, e := range src.Fields {
		rules, err := e.value.Rules.build(fieldType(class.Type, e.key))
		if err != nil {
			return fmt.Errorf("field %s: %w", e.key, err)
		}
		class.Fields = append(class.Fields, FieldMapping{Name: e.key, Column: e.value.Column, Rules: rules})
	}

	groups := []struct {
		entries orderedMap[yamlAssociation]
		kind    func(yamlAssociation) AssociationKind
	}{
		{src.OneToOne, func(a yamlAssociation) AssociationKind {
			if a.MappedBy != "" {
				return InverseToOne
			}
			return OwningToOne
		}},
		{src.ManyToOne, func(yamlAssociation) AssociationKind { return OwningToOne }},
		{src.OneToMany, func(a yamlAssociation) AssociationKind {
			if a.MappedBy != "" {
				return InverseToMany
			}
			return OwningToMany
		}},
		{src.ManyToMany, func(yamlAssociation) AssociationKind { return ManyToMany }},
	}
	for _, g := range groups {
		for _, e := range g.entries {
			assoc, err := e.value.mapping(e.key, g.kind(e.value))
			if err != nil {
				return err
			}
			class.Associations = append(class.Associations, assoc)
		}
	}
	return nil
}

type yamlClass struct {
	Table           string `yaml:"table"`
	Extends         string `yaml:"extends"`
	InheritanceType string `yaml:"inheritanceType"`
	Discriminator   struct {
		Column string `yaml:"column"`
		Value  string `yaml:"value"`
	} `yaml:"discriminator"`
	ID         orderedMap[yamlID]          `yaml:"id"`
	Fields     orderedMap[yamlField]       `yaml:"fields"`
	OneToOne   orderedMap[yamlAssociation] `yaml:"oneToOne"`
	ManyToOne  orderedMap[yamlAssociation] `yaml:"manyToOne"`
	OneToMany  orderedMap[yamlAssociation] `yaml:"oneToMany"`
	ManyToMany orderedMap[yamlAssociation] `yaml:"manyToMany"`
}

type yamlID struct {
	Column    string `yaml:"column"`
	Generator string `yaml:"generator"`
}

type yamlField struct {
	Column string    `yaml:"column"`
	Rules  yamlRules `yaml:"rules"`
}

type yamlRules struct {
	Required bool     `yaml:"required"`
	NotNil   bool     `yaml:"notNil"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
	Length   *struct {
		Min int `yaml:"min"`
		Max int `yaml:"max"`
	} `yaml:"length"`
	In    []any  `yaml:"in"`
	Match string `yaml:"match"`
}

func (r yamlRules) build(typ reflect.Type) ([]validation.Rule, error) {
	var rules []validation.Rule
	if r.Required {
		rules = append(rules, validation.Required)
	}
	if r.NotNil {
		rules = append(rules, validation.NotNil)
	}
	if r.Length != nil {
		rules = append(rules, validation.Length(r.Length.Min, r.Length.Max))
	}
	if r.Min != nil {
		rules = append(rules, validation.Min(threshold(*r.Min, typ)))
	}
	if r.Max != nil {
		rules = append(rules, validation.Max(threshold(*r.Max, typ)))
	}
	if len(r.In) > 0 {
		rules = append(rules, validation.In(r.In...))
	}
	if r.Match != "" {
		re, err := regexp.Compile(r.Match)
		if err != nil {
			return nil, err
		}
		rules = append(rules, validation.Match(re))
	}
	return rules, nil
}

// threshold types a YAML number after the field it constrains, since
// threshold rules compare values of the same kind.
func threshold(v float64, typ reflect.Type) any {
	if typ == nil {
		return v
	}
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int64(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uint64(v)
	default:
		return v
	}
}

func fieldType(typ reflect.Type, name string) reflect.Type {
	if typ == nil {
		return nil
	}
	f, ok := typ.FieldByName(name)
	if !ok {
		return nil
	}
	return f.Type
}

type yamlAssociation struct {
	Target     string `yaml:"target"`
	MappedBy   string `yaml:"mappedBy"`
	JoinColumn struct {
		Name  string `yaml:"name"`
		Field string `yaml:"field"`
	} `yaml:"joinColumn"`
	JoinTable *struct {
		Name              string `yaml:"name"`
		JoinColumn        string `yaml:"joinColumn"`
		InverseJoinColumn string `yaml:"inverseJoinColumn"`
	} `yaml:"joinTable"`
	Cascade []string `yaml:"cascade"`
}

func (a yamlAssociation) mapping(name string, kind AssociationKind) (AssociationMapping, error) {
	cascade, err := ParseCascade(a.Cascade...)
	if err != nil {
		return AssociationMapping{}, fmt.Errorf("association %s: %w", name, err)
	}
	m := AssociationMapping{
		Name:       name,
		Target:     a.Target,
		Kind:       kind,
		MappedBy:   a.MappedBy,
		JoinColumn: a.JoinColumn.Name,
		JoinField:  a.JoinColumn.Field,
		Cascade:    cascade,
	}
	if a.JoinTable != nil {
		m.JoinTable = &JoinTable{
			Name:              a.JoinTable.Name,
			JoinColumn:        a.JoinTable.JoinColumn,
			InverseJoinColumn: a.JoinTable.InverseJoinColumn,
		}
	}
	return m, nil
}

// ParseCascade maps cascade names to a Cascade set. Both save/delete and
// persist/remove spellings are accepted.
func ParseCascade(names ...string) (Cascade, error) {
	var c Cascade
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "save", "persist":
			c |= CascadeSave
		case "delete", "remove":
			c |= CascadeDelete
		case "all":
			c |= CascadeAll
		default:
			return CascadeNone, fmt.Errorf("unknown cascade %q", n)
		}
	}
	return c, nil
}

type orderedEntry[T any] struct {
	key   string
	value T
}

// orderedMap keeps YAML mapping keys in document order.
type orderedMap[T any] []orderedEntry[T]

func (m *orderedMap[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	out := make(orderedMap[T], 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var value T
		if err := node.Content[i+1].Decode(&value); err != nil {
			return err
		}
		out = append(out, orderedEntry[T]{key: node.Content[i].Value, value: value})
	}
	*m = out
	return nil
}
