package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"

	"github.com/vk/burstgraph/internal/scheduler"
)

// File is the decoded, merged content of one or more config files.
type File struct {
	Engine Engine
	App    App
}

// Engine holds the engine settings found in the files. Nil means unset.
type Engine struct {
	Workers          *int
	Scheduler        *string
	Scope            *string
	Timeout          *time.Duration
	TaskBudget       *uint64
	CPUAffinity      *bool
	SchedulerOptions scheduler.Options
}

// App holds the demo application settings found in the files.
type App struct {
	Name     *string
	Vertices *int
}

// SchedulerSpec returns the scheduler spec string the engine understands.
// Options from the scheduler_options attribute override options embedded in
// the scheduler string. def is used when no scheduler name is set.
func (e Engine) SchedulerSpec(def string) (string, error) {
	spec := def
	if e.Scheduler != nil {
		spec = *e.Scheduler
	}
	name, opts, err := scheduler.ParseSpec(spec)
	if err != nil {
		return "", err
	}
	return scheduler.FormatSpec(name, opts.Merge(e.SchedulerOptions)), nil
}

// fileSchema mirrors the HCL layout for gohcl.
type fileSchema struct {
	Engine *engineBlock `hcl:"engine,block"`
	App    *appBlock    `hcl:"app,block"`
}

type engineBlock struct {
	Workers          *int           `hcl:"workers,optional"`
	Scheduler        *string        `hcl:"scheduler,optional"`
	Scope            *string        `hcl:"scope,optional"`
	Timeout          *string        `hcl:"timeout,optional"`
	TaskBudget       *int64         `hcl:"task_budget,optional"`
	CPUAffinity      *bool          `hcl:"cpu_affinity,optional"`
	SchedulerOptions hcl.Expression `hcl:"scheduler_options,optional"`
}

type appBlock struct {
	Name     *string `hcl:"name,optional"`
	Vertices *int    `hcl:"vertices,optional"`
}
