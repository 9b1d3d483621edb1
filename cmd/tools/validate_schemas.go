package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/lychee-technology/customapi"
	"github.com/lychee-technology/customapi/internal"
	"github.com/lychee-technology/customapi/internal/schematree"
)

func runValidateSchemas(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("validate-schemas", flag.ContinueOnError)
	flags.SetOutput(out)
	dir := flags.String("schema-dir", getenvDefault("SCHEMA_DIR", ""), "directory of content-type documents")
	concurrency := flags.Int("concurrency", getenvDefaultInt("SCHEMA_BUILD_CONCURRENCY", 4), "relation expansion concurrency")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *dir == "" {
		return fmt.Errorf("-schema-dir is required")
	}
	if _, err := os.Stat(*dir); err != nil {
		return fmt.Errorf("schema directory %s: %w", *dir, err)
	}

	return validateSchemas(context.Background(), *dir, *concurrency, out)
}

// validateSchemas loads every document in dir and builds the selection tree
// of each content type. A relation to an unknown type is reported as a
// failure even though the tree builder drops it.
func validateSchemas(ctx context.Context, dir string, concurrency int, out io.Writer) error {
	registry, err := internal.NewFileSchemaRegistryFromDirectory(ctx, dir)
	if err != nil {
		return err
	}
	builder := schematree.NewBuilder(registry, schematree.WithConcurrency(concurrency))

	failures := 0
	uids := registry.UIDs()
	for _, uid := range uids {
		ct, err := registry.Describe(ctx, uid)
		if err != nil {
			return err
		}
		for _, attr := range ct.Attributes {
			if attr.Kind() != customapi.AttributeKindRelation || attr.Target == "" {
				continue
			}
			if _, err := registry.Describe(ctx, attr.Target); err != nil {
				fmt.Fprintf(out, "FAIL %s: attribute %s targets unknown type %s\n", uid, attr.Name, attr.Target)
				failures++
			}
		}

		tree, err := builder.Build(ctx, uid)
		if err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", uid, err)
			failures++
			continue
		}
		fmt.Fprintf(out, "ok   %s (%d fields, %d relations)\n", uid, len(tree.Fields), len(tree.Populate))
	}

	fmt.Fprintf(out, "%d content types, %d problems\n", len(uids), failures)
	if failures > 0 {
		return fmt.Errorf("%d schema problems found", failures)
	}
	return nil
}
