package policy

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vigil/telemetry"
)

// PolicyLoader loads every .rego file under a directory into an engine
type PolicyLoader struct {
	bundlePath string
	engine     *PolicyEngine
	logger     *telemetry.Logger
	tracer     trace.Tracer
}

// NewPolicyLoader creates a loader for bundlePath
func NewPolicyLoader(bundlePath string, engine *PolicyEngine) *PolicyLoader {
	return &PolicyLoader{
		bundlePath: bundlePath,
		engine:     engine,
		logger:     engine.logger,
		tracer:     telemetry.Tracer,
	}
}

// LoadPolicies walks the bundle and returns the number of policies loaded
func (pl *PolicyLoader) LoadPolicies(ctx context.Context) (int, error) {
	ctx, span := pl.tracer.Start(ctx, "policy_loader.load_policies",
		trace.WithAttributes(attribute.String("bundle_path", pl.bundlePath)))
	defer span.End()

	if _, err := os.Stat(pl.bundlePath); err != nil {
		return 0, fmt.Errorf("policy bundle path %s: %w", pl.bundlePath, err)
	}

	loaded := 0
	err := filepath.WalkDir(pl.bundlePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, "_test.rego") {
			return nil
		}
		if err := pl.loadPolicyFile(ctx, path); err != nil {
			return err
		}
		loaded++
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return loaded, err
	}

	pl.logger.WithContext(ctx).Info().
		Str("bundle_path", pl.bundlePath).
		Int("count", loaded).
		Msg("policy bundle loaded")
	return loaded, nil
}

func (pl *PolicyLoader) loadPolicyFile(ctx context.Context, filePath string) error {
	if err := pl.validateFilePath(filePath); err != nil {
		return fmt.Errorf("invalid file path %s: %w", filePath, err)
	}

	content, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to read policy file %s: %w", filePath, err)
	}

	rel, _ := filepath.Rel(pl.bundlePath, filePath)
	name := strings.TrimSuffix(filepath.ToSlash(rel), ".rego")

	if err := pl.engine.LoadPolicy(ctx, name, string(content)); err != nil {
		return fmt.Errorf("failed to load policy %s from %s: %w", name, filePath, err)
	}
	return nil
}

func (pl *PolicyLoader) validateFilePath(filePath string) error {
	relPath, err := filepath.Rel(filepath.Clean(pl.bundlePath), filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve relative path: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected")
	}
	return nil
}
