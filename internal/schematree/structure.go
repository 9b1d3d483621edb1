package schematree

import (
	"fmt"

	"github.com/lychee-technology/customapi"
)

// AutoFixOptions selects the repairs AutoFix applies.
type AutoFixOptions struct {
	RemoveDeleted bool
	AddNewFields  bool
}

// Diff compares a saved tree with a freshly built tree for the same root.
// Nodes are paired by their table label path.
func Diff(saved, current *customapi.SchemaNode) *customapi.StructureReport {
	report := &customapi.StructureReport{
		Valid:       true,
		Errors:      []string{},
		Warnings:    []string{},
		Removed:     []customapi.ItemChange{},
		Added:       []customapi.ItemChange{},
		Modified:    []customapi.ItemChange{},
		Suggestions: []string{},
	}
	if saved == nil || current == nil {
		report.Errors = append(report.Errors, "Missing structure or schema for validation")
		report.Valid = false
		return report
	}
	diffNode(report, saved.Table, saved, current)
	report.Migrations = MigrationSuggestions(report)
	return report
}

func diffNode(report *customapi.StructureReport, path string, saved, current *customapi.SchemaNode) {
	savedKinds := itemKinds(saved)
	currentKinds := itemKinds(current)

	for _, category := range customapi.Categories {
		for _, item := range saved.Items(category) {
			kind, ok := currentKinds[item.Name]
			switch {
			case !ok:
				report.Removed = append(report.Removed, customapi.ItemChange{Path: path, Name: item.Name, Kind: string(category)})
				report.Warnings = append(report.Warnings, fmt.Sprintf("Field %q no longer exists in %s", item.Name, path))
			case kind != category:
				report.Modified = append(report.Modified, customapi.ItemChange{
					Path: path, Name: item.Name, Kind: string(kind), OldKind: string(category),
				})
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("Field %q in %s changed from %s to %s", item.Name, path, category, kind))
			}
		}
	}
	for _, category := range customapi.Categories {
		for _, item := range current.Items(category) {
			if _, ok := savedKinds[item.Name]; ok {
				continue
			}
			report.Added = append(report.Added, customapi.ItemChange{Path: path, Name: item.Name, Kind: string(category)})
			report.Suggestions = append(report.Suggestions, fmt.Sprintf("New field %q is available for selection in %s", item.Name, path))
		}
	}

	for _, child := range saved.Populate {
		match := current.Child(child.Table)
		if match == nil {
			report.Removed = append(report.Removed, customapi.ItemChange{Path: path, Name: child.Table, Kind: customapi.ChangeKindRelation})
			report.Warnings = append(report.Warnings, fmt.Sprintf("Relation %q no longer exists in %s", child.Table, path))
			continue
		}
		diffNode(report, path+"."+child.Table, child, match)
	}
	for _, child := range current.Populate {
		if saved.Child(child.Table) != nil {
			continue
		}
		report.Added = append(report.Added, customapi.ItemChange{Path: path, Name: child.Table, Kind: customapi.ChangeKindRelation})
		report.Suggestions = append(report.Suggestions, fmt.Sprintf("New relation %q is available for selection in %s", child.Table, path))
	}
}

// Clean drops items and relations that no longer exist and moves items whose
// category changed. Selections are kept.
func Clean(saved, current *customapi.SchemaNode) *customapi.SchemaNode {
	return AutoFix(saved, current, AutoFixOptions{RemoveDeleted: true})
}

// AutoFix repairs saved against current. New items and relations are added
// unselected, apart from the identifier field.
func AutoFix(saved, current *customapi.SchemaNode, opts AutoFixOptions) *customapi.SchemaNode {
	if saved == nil || current == nil {
		return Clone(saved)
	}
	return reconcile(saved, current, opts)
}

func reconcile(saved, current *customapi.SchemaNode, opts AutoFixOptions) *customapi.SchemaNode {
	out := &customapi.SchemaNode{Table: saved.Table, Populate: []*customapi.SchemaNode{}}
	savedKinds := itemKinds(saved)
	currentKinds := itemKinds(current)

	for _, category := range customapi.Categories {
		items := []customapi.Item{}
		for _, item := range saved.Items(category) {
			kind, ok := currentKinds[item.Name]
			if opts.RemoveDeleted && (!ok || kind != category) {
				continue
			}
			items = append(items, item)
		}
		if opts.RemoveDeleted {
			for _, other := range customapi.Categories {
				if other == category {
					continue
				}
				for _, item := range saved.Items(other) {
					if kind, ok := currentKinds[item.Name]; ok && kind == category {
						items = append(items, item)
					}
				}
			}
		}
		if opts.AddNewFields {
			for _, item := range current.Items(category) {
				if _, ok := savedKinds[item.Name]; ok {
					continue
				}
				items = append(items, customapi.Item{Name: item.Name, Selected: isPinned(category, item.Name)})
			}
		}
		out.SetItems(category, items)
	}

	for _, child := range saved.Populate {
		match := current.Child(child.Table)
		switch {
		case match != nil:
			out.Populate = append(out.Populate, reconcile(child, match, opts))
		case !opts.RemoveDeleted:
			out.Populate = append(out.Populate, Clone(child))
		}
	}
	if opts.AddNewFields {
		for _, child := range current.Populate {
			if saved.Child(child.Table) == nil {
				out.Populate = append(out.Populate, deselect(child))
			}
		}
	}
	return out
}

// MigrationSuggestions summarises a report into actionable suggestions.
func MigrationSuggestions(report *customapi.StructureReport) []customapi.MigrationSuggestion {
	suggestions := []customapi.MigrationSuggestion{}
	if report == nil {
		return suggestions
	}
	if len(report.Removed) > 0 {
		suggestions = append(suggestions, customapi.MigrationSuggestion{
			Type:        "warning",
			Title:       "Removed Fields Detected",
			Description: fmt.Sprintf("%d field(s) have been removed from the content type", len(report.Removed)),
			Fields:      changeNames(report.Removed),
			Action:      "These fields will be removed from the API configuration when it is cleaned",
		})
	}
	if len(report.Added) > 0 {
		suggestions = append(suggestions, customapi.MigrationSuggestion{
			Type:        "info",
			Title:       "New Fields Available",
			Description: fmt.Sprintf("%d new field(s) are available", len(report.Added)),
			Fields:      changeNames(report.Added),
			Action:      "Consider adding these fields to the API configuration",
		})
	}
	if len(report.Modified) > 0 {
		fields := make([]string, 0, len(report.Modified))
		for _, change := range report.Modified {
			fields = append(fields, fmt.Sprintf("%s.%s: %s -> %s", change.Path, change.Name, change.OldKind, change.Kind))
		}
		suggestions = append(suggestions, customapi.MigrationSuggestion{
			Type:        "warning",
			Title:       "Field Type Changes",
			Description: "Some fields moved to a different category",
			Fields:      fields,
			Action:      "Review these changes to ensure the API works as expected",
		})
	}
	return suggestions
}

func itemKinds(node *customapi.SchemaNode) map[string]customapi.Category {
	kinds := make(map[string]customapi.Category)
	for _, category := range customapi.Categories {
		for _, item := range node.Items(category) {
			kinds[item.Name] = category
		}
	}
	return kinds
}

func deselect(tree *customapi.SchemaNode) *customapi.SchemaNode {
	out := Clone(tree)
	var walk func(*customapi.SchemaNode)
	walk = func(node *customapi.SchemaNode) {
		for _, category := range customapi.Categories {
			items := node.Items(category)
			for i := range items {
				items[i].Selected = isPinned(category, items[i].Name)
			}
		}
		for _, child := range node.Populate {
			walk(child)
		}
	}
	walk(out)
	return out
}

func changeNames(changes []customapi.ItemChange) []string {
	out := make([]string, 0, len(changes))
	for _, change := range changes {
		out = append(out, change.Path+"."+change.Name)
	}
	return out
}
