// Package schematree builds, edits and compiles selection trees.
package schematree

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lychee-technology/customapi"
)

// Builder expands a content type's relation graph into a selection tree.
type Builder struct {
	describer   customapi.ContentTypeDescriber
	concurrency int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithConcurrency bounds the relation expansions run in parallel per node.
// Values below 2 expand sequentially.
func WithConcurrency(n int) BuilderOption {
	return func(b *Builder) {
		b.concurrency = n
	}
}

// NewBuilder creates a Builder over the given describer.
func NewBuilder(describer customapi.ContentTypeDescriber, opts ...BuilderOption) *Builder {
	b := &Builder{describer: describer, concurrency: 1}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the selection tree rooted at uid. Only a failure to describe
// the root is fatal; unresolvable relations are dropped.
func (b *Builder) Build(ctx context.Context, uid string) (*customapi.SchemaNode, error) {
	root, err := b.describer.Describe(ctx, uid)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if customapi.ErrorCodeOf(err) == customapi.ErrCodeTypeNotFound {
			return nil, err
		}
		return nil, customapi.NewTypeNotFoundError(uid).WithCause(err)
	}
	return b.expand(ctx, root, root.DisplayName, nil)
}

// expand builds the node for ct. path holds the uids open above ct and is
// never mutated; each branch gets its own copy.
func (b *Builder) expand(ctx context.Context, ct *customapi.ContentType, label string, path map[string]struct{}) (*customapi.SchemaNode, error) {
	onPath := make(map[string]struct{}, len(path)+1)
	for uid := range path {
		onPath[uid] = struct{}{}
	}
	onPath[ct.UID] = struct{}{}

	node := newNode(label)
	if _, declared := ct.Attribute(customapi.DefaultIdentifierField); !declared {
		node.Fields = append(node.Fields, customapi.Item{Name: customapi.DefaultIdentifierField, Selected: true})
	}

	var relations []customapi.Attribute
	for _, attr := range ct.Attributes {
		switch attr.Kind() {
		case customapi.AttributeKindRelation:
			if attr.Target == "" {
				continue
			}
			if _, seen := onPath[attr.Target]; seen {
				continue
			}
			relations = append(relations, attr)
		case customapi.AttributeKindMedia:
			node.Media = append(node.Media, customapi.Item{Name: attr.Name})
		case customapi.AttributeKindComponent:
			node.Components = append(node.Components, customapi.Item{Name: attr.Name})
		case customapi.AttributeKindDynamicZone:
			node.DynamicZones = append(node.DynamicZones, customapi.Item{Name: attr.Name})
		default:
			node.Fields = append(node.Fields, customapi.Item{
				Name:     attr.Name,
				Selected: attr.Name == customapi.DefaultIdentifierField,
			})
		}
	}

	children, err := b.expandRelations(ctx, ct, relations, onPath)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child != nil {
			node.Populate = append(node.Populate, child)
		}
	}
	return node, nil
}

// expandRelations returns one slot per relation, in declaration order. Slots of
// dropped relations are nil.
func (b *Builder) expandRelations(ctx context.Context, owner *customapi.ContentType, relations []customapi.Attribute, path map[string]struct{}) ([]*customapi.SchemaNode, error) {
	children := make([]*customapi.SchemaNode, len(relations))
	if len(relations) == 0 {
		return children, nil
	}

	if b.concurrency < 2 || len(relations) == 1 {
		for i, attr := range relations {
			child, err := b.expandRelation(ctx, owner, attr, path)
			if err != nil {
				return nil, err
			}
			children[i] = child
		}
		return children, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, attr := range relations {
		g.Go(func() error {
			child, err := b.expandRelation(gctx, owner, attr, path)
			if err != nil {
				return err
			}
			children[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return children, nil
}

func (b *Builder) expandRelation(ctx context.Context, owner *customapi.ContentType, attr customapi.Attribute, path map[string]struct{}) (*customapi.SchemaNode, error) {
	target, err := b.describer.Describe(ctx, attr.Target)
	if err != nil {
		if isContextError(err) || ctx.Err() != nil {
			return nil, err
		}
		zap.S().Warnw("dropping relation that cannot be described",
			"owner", owner.UID, "relation", attr.Name, "target", attr.Target, "error", err)
		return nil, nil
	}
	return b.expand(ctx, target, attr.Name, path)
}

func newNode(label string) *customapi.SchemaNode {
	return &customapi.SchemaNode{
		Table:        label,
		Fields:       []customapi.Item{},
		Media:        []customapi.Item{},
		Components:   []customapi.Item{},
		DynamicZones: []customapi.Item{},
		Populate:     []*customapi.SchemaNode{},
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
