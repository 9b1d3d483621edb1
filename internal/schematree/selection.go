package schematree

import (
	"github.com/lychee-technology/customapi"
)

// Find returns the first node labelled table in depth-first preorder, or nil.
func Find(tree *customapi.SchemaNode, table string) *customapi.SchemaNode {
	path, ok := locate(tree, table)
	if !ok {
		return nil
	}
	node := tree
	for _, idx := range path {
		node = node.Populate[idx]
	}
	return node
}

// ToggleItem flips one item and returns the new tree. Unknown tables, items and
// categories leave the tree unchanged, as does toggling the identifier field.
func ToggleItem(tree *customapi.SchemaNode, table, item string, category customapi.Category) *customapi.SchemaNode {
	out, err := ToggleItemStrict(tree, table, item, category)
	if err != nil {
		return tree
	}
	return out
}

// ToggleItemStrict is ToggleItem reporting NODE_NOT_FOUND, ITEM_NOT_FOUND and
// INVALID_CATEGORY instead of ignoring them.
func ToggleItemStrict(tree *customapi.SchemaNode, table, item string, category customapi.Category) (*customapi.SchemaNode, error) {
	if !category.Valid() {
		return nil, customapi.NewInvalidCategoryError(category)
	}
	path, ok := locate(tree, table)
	if !ok {
		return nil, customapi.NewNodeNotFoundError(table)
	}

	target := tree
	for _, idx := range path {
		target = target.Populate[idx]
	}
	pos := indexOf(target.Items(category), item)
	if pos < 0 {
		return nil, customapi.NewItemNotFoundError(table, category, item)
	}
	if isPinned(category, item) {
		return tree, nil
	}

	return rewrite(tree, path, func(node *customapi.SchemaNode) *customapi.SchemaNode {
		items := cloneItems(node.Items(category))
		items[pos].Selected = !items[pos].Selected
		out := *node
		out.SetItems(category, items)
		return &out
	}), nil
}

// ToggleCategory sets every item of a category to selectAll. The identifier
// field stays selected.
func ToggleCategory(tree *customapi.SchemaNode, table string, category customapi.Category, selectAll bool) *customapi.SchemaNode {
	out, err := ToggleCategoryStrict(tree, table, category, selectAll)
	if err != nil {
		return tree
	}
	return out
}

// ToggleCategoryStrict is ToggleCategory reporting NODE_NOT_FOUND and INVALID_CATEGORY.
func ToggleCategoryStrict(tree *customapi.SchemaNode, table string, category customapi.Category, selectAll bool) (*customapi.SchemaNode, error) {
	if !category.Valid() {
		return nil, customapi.NewInvalidCategoryError(category)
	}
	path, ok := locate(tree, table)
	if !ok {
		return nil, customapi.NewNodeNotFoundError(table)
	}

	return rewrite(tree, path, func(node *customapi.SchemaNode) *customapi.SchemaNode {
		items := cloneItems(node.Items(category))
		for i := range items {
			items[i].Selected = selectAll || isPinned(category, items[i].Name)
		}
		out := *node
		out.SetItems(category, items)
		return &out
	}), nil
}

// Clone returns a deep copy of tree.
func Clone(tree *customapi.SchemaNode) *customapi.SchemaNode {
	if tree == nil {
		return nil
	}
	out := *tree
	out.Fields = cloneItems(tree.Fields)
	out.Media = cloneItems(tree.Media)
	out.Components = cloneItems(tree.Components)
	out.DynamicZones = cloneItems(tree.DynamicZones)
	if tree.Populate != nil {
		out.Populate = make([]*customapi.SchemaNode, len(tree.Populate))
		for i, child := range tree.Populate {
			out.Populate[i] = Clone(child)
		}
	}
	return &out
}

// locate returns the child indexes leading from tree to the first node
// labelled table.
func locate(tree *customapi.SchemaNode, table string) ([]int, bool) {
	if tree == nil {
		return nil, false
	}
	if tree.Table == table {
		return []int{}, true
	}
	for i, child := range tree.Populate {
		if sub, ok := locate(child, table); ok {
			return append([]int{i}, sub...), true
		}
	}
	return nil, false
}

// rewrite copies the nodes along path and replaces the last one with fn's result.
// Nodes off the path are shared with the input.
func rewrite(node *customapi.SchemaNode, path []int, fn func(*customapi.SchemaNode) *customapi.SchemaNode) *customapi.SchemaNode {
	if len(path) == 0 {
		return fn(node)
	}
	out := *node
	out.Populate = make([]*customapi.SchemaNode, len(node.Populate))
	copy(out.Populate, node.Populate)
	out.Populate[path[0]] = rewrite(node.Populate[path[0]], path[1:], fn)
	return &out
}

func isPinned(category customapi.Category, item string) bool {
	return category == customapi.CategoryFields && item == customapi.DefaultIdentifierField
}

func indexOf(items []customapi.Item, name string) int {
	for i, item := range items {
		if item.Name == name {
			return i
		}
	}
	return -1
}

func cloneItems(items []customapi.Item) []customapi.Item {
	if items == nil {
		return nil
	}
	out := make([]customapi.Item, len(items))
	copy(out, items)
	return out
}
