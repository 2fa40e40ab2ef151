package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/burstgraph/internal/ctxlog"
	"github.com/vk/burstgraph/internal/fsutil"
	"github.com/vk/burstgraph/internal/scheduler"
)

// Load reads a config file, or every .hcl file below a directory, and
// merges them into a single File.
func Load(ctx context.Context, path string) (*File, error) {
	paths, err := ResolvePath(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %s", path)
	}

	out := &File{Engine: Engine{SchedulerOptions: scheduler.NewOptions()}}
	parser := hclparse.NewParser()
	for _, p := range paths {
		if err := decodeFile(ctx, parser, p, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ResolvePath returns the .hcl files named by path. A file must carry the
// .hcl extension; a directory is scanned recursively.
func ResolvePath(ctx context.Context, path string) ([]string, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Resolving config path.", "path", path)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config path not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("error accessing path %s: %w", path, err)
	}

	if !info.IsDir() {
		if filepath.Ext(path) != ".hcl" {
			return nil, fmt.Errorf("specified file is not an .hcl file: %s", path)
		}
		return []string{path}, nil
	}

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, err
	}
	logger.Debug("Scanned config directory.", "directory", path, "files", len(files))
	return files, nil
}

func decodeFile(ctx context.Context, parser *hclparse.Parser, path string, out *File) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Decoding config file.", "path", path)
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %s", path, diags.Error())
	}

	var raw fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %s", path, diags.Error())
	}

	if raw.Engine != nil {
		if err := raw.Engine.mergeInto(&out.Engine); err != nil {
			return fmt.Errorf("invalid engine block in %s: %w", path, err)
		}
	}
	if raw.App != nil {
		if raw.App.Vertices != nil && *raw.App.Vertices < 0 {
			return fmt.Errorf("invalid app block in %s: vertices must not be negative", path)
		}
		setIf(&out.App.Name, raw.App.Name)
		setIf(&out.App.Vertices, raw.App.Vertices)
	}
	logger.Debug("Successfully decoded config file.", "path", path,
		"has_engine", raw.Engine != nil, "has_app", raw.App != nil)
	return nil
}

func (b *engineBlock) mergeInto(dst *Engine) error {
	if b.Workers != nil && *b.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", *b.Workers)
	}
	if b.TaskBudget != nil && *b.TaskBudget < 0 {
		return fmt.Errorf("task_budget must not be negative, got %d", *b.TaskBudget)
	}
	if b.Timeout != nil {
		d, err := time.ParseDuration(*b.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("timeout must not be negative, got %s", d)
		}
		dst.Timeout = &d
	}
	if b.TaskBudget != nil {
		budget := uint64(*b.TaskBudget)
		dst.TaskBudget = &budget
	}
	opts, err := decodeOptions(b)
	if err != nil {
		return err
	}

	setIf(&dst.Workers, b.Workers)
	setIf(&dst.Scheduler, b.Scheduler)
	setIf(&dst.Scope, b.Scope)
	setIf(&dst.CPUAffinity, b.CPUAffinity)
	dst.SchedulerOptions = dst.SchedulerOptions.Merge(opts)
	return nil
}

// decodeOptions evaluates scheduler_options, which must be an object or map
// of primitive values.
func decodeOptions(b *engineBlock) (scheduler.Options, error) {
	opts := scheduler.NewOptions()
	if b.SchedulerOptions == nil {
		return opts, nil
	}
	val, diags := b.SchedulerOptions.Value(nil)
	if diags.HasErrors() {
		return opts, fmt.Errorf("scheduler_options: %s", diags.Error())
	}
	if val.IsNull() {
		return opts, nil
	}
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return opts, fmt.Errorf("scheduler_options must be an object, got %s", ty.FriendlyName())
	}
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		if !v.IsKnown() || v.IsNull() || !v.Type().IsPrimitiveType() {
			return opts, fmt.Errorf("scheduler_options.%s must be a string, number or bool", k.AsString())
		}
		opts.Set(k.AsString(), v)
	}
	return opts, nil
}

func setIf[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
