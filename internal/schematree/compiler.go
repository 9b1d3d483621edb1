package schematree

import (
	"github.com/lychee-technology/customapi"
)

// Trim returns a copy of tree keeping only selected items. Children are kept
// even when nothing below them is selected.
func Trim(tree *customapi.SchemaNode) *customapi.SchemaNode {
	if tree == nil {
		return nil
	}
	out := &customapi.SchemaNode{
		Table:        tree.Table,
		Fields:       selectedItems(tree.Fields),
		Media:        selectedItems(tree.Media),
		Components:   selectedItems(tree.Components),
		DynamicZones: selectedItems(tree.DynamicZones),
		Populate:     make([]*customapi.SchemaNode, 0, len(tree.Populate)),
	}
	for _, child := range tree.Populate {
		if child != nil {
			out.Populate = append(out.Populate, Trim(child))
		}
	}
	return out
}

// Compile folds the selected part of tree into a projection. The root always
// has non-nil fields and populate. Media, components and dynamic zones become
// leaf projections. A child whose only selected item is the identifier field,
// and which has no emitted children, is omitted.
func Compile(tree *customapi.SchemaNode) *customapi.QueryProjection {
	if tree == nil {
		return &customapi.QueryProjection{Fields: []string{}, Populate: map[string]*customapi.QueryProjection{}}
	}
	proj, _ := fold(Trim(tree))
	return proj
}

// fold compiles a trimmed node and reports whether it selects anything beyond
// the identifier field.
func fold(node *customapi.SchemaNode) (*customapi.QueryProjection, bool) {
	proj := &customapi.QueryProjection{
		Fields:   make([]string, 0, len(node.Fields)),
		Populate: map[string]*customapi.QueryProjection{},
	}
	meaningful := false

	for _, item := range node.Fields {
		proj.Fields = append(proj.Fields, item.Name)
		if item.Name != customapi.DefaultIdentifierField {
			meaningful = true
		}
	}
	for _, items := range [][]customapi.Item{node.Media, node.Components, node.DynamicZones} {
		for _, item := range items {
			proj.Populate[item.Name] = &customapi.QueryProjection{}
			meaningful = true
		}
	}
	for _, child := range node.Populate {
		childProj, ok := fold(child)
		if !ok {
			continue
		}
		proj.Populate[child.Table] = childProj
		meaningful = true
	}
	return proj, meaningful
}

// SelectedFields lists the selected names of the root's fields category.
func SelectedFields(tree *customapi.SchemaNode) []string {
	if tree == nil {
		return nil
	}
	out := make([]string, 0, len(tree.Fields))
	for _, item := range tree.Fields {
		if item.Selected {
			out = append(out, item.Name)
		}
	}
	return out
}

func selectedItems(items []customapi.Item) []customapi.Item {
	out := make([]customapi.Item, 0, len(items))
	for _, item := range items {
		if item.Selected {
			out = append(out, item)
		}
	}
	return out
}
