package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/yungbote/metagraph-backend/internal/pkg/errors"
	"github.com/yungbote/metagraph-backend/internal/platform/logger"
)

type yamlRegistry struct {
	Name     string       `yaml:"name"`
	Version  string       `yaml:"version"`
	Entities []yamlEntity `yaml:"entities"`
}

type yamlEntity struct {
	Name      string        `yaml:"name"`
	KeyAspect yamlKeyAspect `yaml:"keyAspect"`
	Aspects   []yamlAspect  `yaml:"aspects"`
}

type yamlKeyAspect struct {
	Name   string          `yaml:"name"`
	Fields []yamlKeyField  `yaml:"fields"`
}

type yamlKeyField struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type yamlAspect struct {
	Name          string             `yaml:"name"`
	Timeseries    bool               `yaml:"timeseries"`
	Relationships []yamlRelationship `yaml:"relationships"`
}

type yamlRelationship struct {
	Name             string   `yaml:"name"`
	Field            string   `yaml:"field"`
	DestinationTypes []string `yaml:"destinationTypes"`
	Lineage          string   `yaml:"lineage"` // "", "upstreamOfTarget", "downstreamOfTarget"
}

// LoadFile reads the declarative entity model from a YAML file.
func LoadFile(path string, log *logger.Logger) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entity registry %s: %w", path, err)
	}
	return Load(data, log)
}

// Load parses and validates a declarative entity model.
func Load(data []byte, log *logger.Logger) (*Registry, error) {
	var raw yamlRegistry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse entity registry: %w", err)
	}
	if len(raw.Entities) == 0 {
		return nil, fmt.Errorf("%w: entity registry declares no entities", pkgerrors.ErrInvalidArgument)
	}

	reg := &Registry{
		Name:     raw.Name,
		Version:  raw.Version,
		entities: make(map[string]*EntitySpec, len(raw.Entities)),
	}

	for _, ye := range raw.Entities {
		if ye.Name == "" {
			return nil, fmt.Errorf("%w: entity with empty name", pkgerrors.ErrInvalidArgument)
		}
		if _, dup := reg.entities[ye.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate entity type %q", pkgerrors.ErrInvalidArgument, ye.Name)
		}
		spec, err := buildEntitySpec(ye)
		if err != nil {
			return nil, err
		}
		reg.entities[ye.Name] = spec
		reg.order = append(reg.order, ye.Name)
	}

	// Destination types must be resolvable after the full set is known.
	for _, spec := range reg.entities {
		for _, a := range spec.Aspects {
			for _, rel := range a.Relationships {
				for _, dt := range rel.DestinationTypes {
					if _, ok := reg.entities[dt]; !ok {
						return nil, fmt.Errorf("%w: aspect %s.%s relationship %q references unknown destination type %q",
							pkgerrors.ErrInvalidArgument, spec.Name, a.Name, rel.Name, dt)
					}
				}
			}
		}
	}

	if log != nil {
		log.Info("Entity registry loaded", "name", reg.Name, "version", reg.Version, "entities", len(reg.entities))
	}
	return reg, nil
}

func buildEntitySpec(ye yamlEntity) (*EntitySpec, error) {
	if ye.KeyAspect.Name == "" || len(ye.KeyAspect.Fields) == 0 {
		return nil, fmt.Errorf("%w: entity %q missing key aspect declaration", pkgerrors.ErrInvalidArgument, ye.Name)
	}
	key := KeyAspectSpec{Name: ye.KeyAspect.Name}
	for _, f := range ye.KeyAspect.Fields {
		if f.Type != "string" && f.Type != "enum" {
			return nil, fmt.Errorf("%w: entity %q key field %q has type %q, only string and enum are allowed",
				pkgerrors.ErrInvalidArgument, ye.Name, f.Name, f.Type)
		}
		key.Fields = append(key.Fields, KeyFieldSpec{Name: f.Name, Type: f.Type})
	}

	spec := &EntitySpec{
		Name:        ye.Name,
		KeyAspect:   key,
		Aspects:     make([]AspectSpec, 0, len(ye.Aspects)),
		aspectIndex: make(map[string]*AspectSpec, len(ye.Aspects)),
	}
	for _, ya := range ye.Aspects {
		if ya.Name == "" {
			return nil, fmt.Errorf("%w: entity %q declares an aspect with empty name", pkgerrors.ErrInvalidArgument, ye.Name)
		}
		if spec.HasAspect(ya.Name) || ya.Name == key.Name {
			return nil, fmt.Errorf("%w: entity %q declares aspect %q twice", pkgerrors.ErrInvalidArgument, ye.Name, ya.Name)
		}
		aspect := AspectSpec{Name: ya.Name, Timeseries: ya.Timeseries}
		for _, yr := range ya.Relationships {
			tag := LineageTag(yr.Lineage)
			switch tag {
			case LineageNone, LineageUpstreamOfTarget, LineageDownstreamOfTarget:
			default:
				return nil, fmt.Errorf("%w: aspect %s.%s relationship %q has invalid lineage tag %q",
					pkgerrors.ErrInvalidArgument, ye.Name, ya.Name, yr.Name, yr.Lineage)
			}
			if yr.Name == "" || yr.Field == "" || len(yr.DestinationTypes) == 0 {
				return nil, fmt.Errorf("%w: aspect %s.%s has an incomplete relationship declaration",
					pkgerrors.ErrInvalidArgument, ye.Name, ya.Name)
			}
			aspect.Relationships = append(aspect.Relationships, RelationshipFieldSpec{
				Name:             yr.Name,
				Field:            yr.Field,
				DestinationTypes: yr.DestinationTypes,
				Lineage:          tag,
			})
		}
		spec.Aspects = append(spec.Aspects, aspect)
		spec.aspectIndex[ya.Name] = &spec.Aspects[len(spec.Aspects)-1]
	}
	return spec, nil
}
