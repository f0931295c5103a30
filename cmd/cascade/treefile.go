package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/cascade"
	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/domain"
	"gopkg.in/yaml.v3"
)

// readTreeFile decodes a YAML or JSON tree.
func readTreeFile(path string) (*domain.PromptNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree: %w", err)
	}
	var root domain.PromptNode
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if root.ID == "" {
		return nil, fmt.Errorf("%s: root node needs an id", path)
	}
	return &root, nil
}

// importTree validates a tree file and stores it. It returns the issues
// found; nothing is stored when any of them is an error.
func importTree(ctx context.Context, sys *cascade.System, path string) (*domain.PromptNode, []runtime.Issue, error) {
	root, err := readTreeFile(path)
	if err != nil {
		return nil, nil, err
	}
	issues := runtime.ValidateTree(root, nil)
	if runtime.HasErrors(issues) {
		return root, issues, fmt.Errorf("%s has validation errors", path)
	}
	if err := sys.Store.PutTree(ctx, root); err != nil {
		return root, issues, fmt.Errorf("failed to store tree: %w", err)
	}
	return root, issues, nil
}
