package registry

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rpattn/yoda/internal/auth"
	"github.com/rpattn/yoda/internal/domain"
	"github.com/rpattn/yoda/internal/schema/validator"
)

// Registry holds the entity definitions a deployment serves.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]domain.EntityDefinition
}

// New builds a registry from defs, validating each one.
func New(defs ...domain.EntityDefinition) (*Registry, error) {
	r := &Registry{definitions: make(map[string]domain.EntityDefinition, len(defs))}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefault returns a registry holding Account, Organization and Transaction.
func NewDefault() *Registry {
	r, err := New(domain.BuiltinDefinitions()...)
	if err != nil {
		panic(fmt.Sprintf("builtin entity definitions are invalid: %v", err))
	}
	return r
}

// Register adds or replaces a definition.
func (r *Registry) Register(def domain.EntityDefinition) error {
	if err := validator.ValidateDefinition(def); err != nil {
		return fmt.Errorf("failed to register %s: %w", def.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[def.Name] = def
	return nil
}

// Lookup returns the definition of entityType.
func (r *Registry) Lookup(entityType string) (domain.EntityDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[entityType]
	if !ok {
		return domain.EntityDefinition{}, domain.Validationf("unknown entity type %q", entityType)
	}
	return def, nil
}

// Names lists registered entity types in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type definitionFile struct {
	Entities []definitionDoc `yaml:"entities"`
}

type definitionDoc struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Fields      []fieldDoc `yaml:"fields"`
	Access      struct {
		Mutate []string `yaml:"mutate"`
		Query  []string `yaml:"query"`
	} `yaml:"access"`
}

type fieldDoc struct {
	Name          string   `yaml:"name"`
	Type          string   `yaml:"type"`
	Array         bool     `yaml:"array"`
	Searchable    bool     `yaml:"searchable"`
	Constructible *bool    `yaml:"constructible"`
	Required      bool     `yaml:"required"`
	Enum          []string `yaml:"enum"`
	Description   string   `yaml:"description"`
}

// LoadYAML registers every definition in a YAML document of the form
//
//	entities:
//	  - name: Venue
//	    fields:
//	      - {name: title, type: string, searchable: true}
//	    access: {mutate: [admin], query: [user, admin]}
//
// Fields are constructible unless they say otherwise. Nothing is registered
// when any definition is invalid.
func (r *Registry) LoadYAML(reader io.Reader) ([]string, error) {
	var file definitionFile
	if err := yaml.NewDecoder(reader).Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to parse entity definitions: %v", domain.ErrValidation, err)
	}

	defs := make([]domain.EntityDefinition, 0, len(file.Entities))
	for _, doc := range file.Entities {
		def, err := doc.toDefinition()
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateDefinition(def); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", doc.Name, err)
		}
		defs = append(defs, def)
	}

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
		names = append(names, def.Name)
	}
	return names, nil
}

func (d definitionDoc) toDefinition() (domain.EntityDefinition, error) {
	mutate, err := auth.ParseRoles(d.Access.Mutate)
	if err != nil {
		return domain.EntityDefinition{}, fmt.Errorf("%w: entity %s: %v", domain.ErrValidation, d.Name, err)
	}
	query, err := auth.ParseRoles(d.Access.Query)
	if err != nil {
		return domain.EntityDefinition{}, fmt.Errorf("%w: entity %s: %v", domain.ErrValidation, d.Name, err)
	}

	fields := make([]domain.FieldSpec, len(d.Fields))
	for i, f := range d.Fields {
		constructible := true
		if f.Constructible != nil {
			constructible = *f.Constructible
		}
		fields[i] = domain.FieldSpec{
			Name:          f.Name,
			Type:          domain.FieldType(f.Type),
			Array:         f.Array,
			Searchable:    f.Searchable,
			Constructible: constructible,
			Required:      f.Required,
			Enum:          f.Enum,
			Description:   f.Description,
		}
	}

	return domain.EntityDefinition{
		Name:        d.Name,
		Description: d.Description,
		Fields:      fields,
		Access:      domain.AccessPolicy{MutateRoles: mutate, QueryRoles: query},
	}, nil
}
