package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/infrastructure/di"
	apperrors "conceptgraph/pkg/errors"
)

// graphFile is the YAML layout accepted by the import command
type graphFile struct {
	Scope         string         `yaml:"scope"`
	Concepts      []conceptSpec  `yaml:"concepts"`
	Relationships []relationSpec `yaml:"relationships"`
}

type conceptSpec struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	Difficulty int     `yaml:"difficulty"`
	Importance float64 `yaml:"importance"`
	Level      string  `yaml:"level"`
	Parent     string  `yaml:"parent"`
}

type relationSpec struct {
	Source    string  `yaml:"source"`
	Target    string  `yaml:"target"`
	Type      string  `yaml:"type"`
	Weight    float64 `yaml:"weight"`
	Reasoning string  `yaml:"reasoning"`
}

// importSummary is printed after an import
type importSummary struct {
	Scope    string           `json:"scope"`
	Concepts int              `json:"concepts"`
	Accepted int              `json:"accepted"`
	Rejected []rejectedImport `json:"rejected,omitempty"`
}

type rejectedImport struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

func decodeGraphFile(r io.Reader) (*graphFile, error) {
	var f graphFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse graph file: %w", err)
	}
	return &f, nil
}

func (f *graphFile) nodes(scope valueobjects.ScopeID) ([]*entities.ConceptNode, error) {
	nodes := make([]*entities.ConceptNode, 0, len(f.Concepts))
	for _, c := range f.Concepts {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		node, err := entities.NewConceptNode(valueobjects.ConceptID(c.ID), scope, name, c.Difficulty)
		if err != nil {
			return nil, invalidConcept(c.ID, err)
		}
		node.Importance = c.Importance
		node.ParentName = c.Parent
		if c.Level != "" {
			node.Level = entities.Level(c.Level)
		}
		if err := node.Validate(); err != nil {
			return nil, invalidConcept(c.ID, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// invalidConcept reports field failures of one concept in the error details
func invalidConcept(id string, err error) error {
	appErr := apperrors.NewValidationError(fmt.Sprintf("concept %q is invalid", id)).WithCause(err)
	var fieldErrs *apperrors.ValidationErrors
	if errors.As(err, &fieldErrs) {
		appErr.WithDetails(map[string]interface{}{"fields": fieldErrs.ToMap()})
	}
	return appErr
}

// rejectionKind names why a relationship was refused
func rejectionKind(err error) string {
	switch {
	case errors.Is(err, entities.ErrWouldCreateCycle):
		return "cycle"
	case errors.Is(err, entities.ErrNodeNotFound):
		return "unknown_concept"
	case apperrors.IsValidation(err), errors.Is(err, entities.ErrSelfReference):
		return "invalid"
	default:
		return "error"
	}
}

// load saves every concept, then proposes relationships in file order so
// each one is checked against those already accepted
func (f *graphFile) load(ctx context.Context, c *di.Container, scope valueobjects.ScopeID) (*importSummary, error) {
	nodes, err := f.nodes(scope)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if err := c.Nodes.Save(ctx, n); err != nil {
			return nil, err
		}
	}

	summary := &importSummary{Scope: scope.String(), Concepts: len(nodes)}
	for _, r := range f.Relationships {
		relType := r.Type
		if relType == "" {
			relType = string(entities.RelationPrerequisite)
		}
		_, err := c.Service.ProposeRelationship(ctx, scope, entities.RelationshipProposal{
			SourceID:  valueobjects.ConceptID(r.Source),
			TargetID:  valueobjects.ConceptID(r.Target),
			Type:      entities.RelationshipType(relType),
			Weight:    r.Weight,
			Reasoning: r.Reasoning,
		})
		if err != nil {
			summary.Rejected = append(summary.Rejected, rejectedImport{
				Source: r.Source,
				Target: r.Target,
				Kind:   rejectionKind(err),
				Reason: err.Error(),
			})
			continue
		}
		summary.Accepted++
	}
	return summary, nil
}

func newImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Load concepts and relationships, rejecting any that would form a cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			graph, err := decodeGraphFile(file)
			if err != nil {
				return err
			}

			scope := valueobjects.ScopeID(graph.Scope)
			if opts.scope != "" {
				scope = valueobjects.ScopeID(opts.scope)
			}
			if scope == "" {
				return fmt.Errorf("no scope: set scope in the file or pass --scope")
			}

			return withContainer(opts, func(c *di.Container) error {
				summary, err := graph.load(cmd.Context(), c, scope)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}
