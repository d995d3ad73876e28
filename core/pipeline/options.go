package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"asset-orchestrator/core/executor"
)

// DefaultFollowUpLease bounds how long a follow-up claim blocks other pollers.
const DefaultFollowUpLease = 2 * time.Minute

// Conversion is the follow-up stage for one primary artifact format.
type Conversion struct {
	JobType string
	Format  string
}

// Options describes the stage chain shared by submission and status polling.
type Options struct {
	Bucket       string
	Region       string
	JobType      string // Stage 1 job type
	OutputPrefix string
	OutputFormat string

	// Stage templates by job type; each carries its executor target.
	Stages map[string]executor.StageTemplate
	// Follow-up stages keyed by the primary artifact's extension.
	Conversions map[string]Conversion

	FollowUpLease time.Duration
}

// Validate checks that every referenced job type resolves to a target.
func (o *Options) Validate() error {
	if o.Bucket == "" {
		return errors.New("pipeline: bucket is required")
	}
	if o.OutputFormat == "" {
		return errors.New("pipeline: output format is required")
	}
	if _, err := o.stage(o.JobType); err != nil {
		return err
	}
	for ext, conv := range o.Conversions {
		if conv.Format == "" {
			return fmt.Errorf("pipeline: conversion for %q has no format", ext)
		}
		if _, err := o.stage(conv.JobType); err != nil {
			return err
		}
	}
	return nil
}

// Targets returns the distinct executor targets of all stages, sorted.
func (o *Options) Targets() []string {
	seen := make(map[string]bool, len(o.Stages))
	var targets []string
	for _, tpl := range o.Stages {
		if tpl.Target == "" || seen[tpl.Target] {
			continue
		}
		seen[tpl.Target] = true
		targets = append(targets, tpl.Target)
	}
	sort.Strings(targets)
	return targets
}

func (o *Options) stage(jobType string) (executor.StageTemplate, error) {
	tpl, ok := o.Stages[jobType]
	if !ok {
		return executor.StageTemplate{}, fmt.Errorf("pipeline: no stage configured for job type %q", jobType)
	}
	if err := tpl.Validate(); err != nil {
		return executor.StageTemplate{}, fmt.Errorf("pipeline: stage %q: %w", jobType, err)
	}
	return tpl, nil
}

// conversionFor returns the follow-up stage for a primary artifact extension.
func (o *Options) conversionFor(ext string) (Conversion, bool) {
	conv, ok := o.Conversions[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return conv, ok
}

// followUpFor resolves the stage producing format from a primary artifact
// extension. A record keeps the format it was submitted with, so any
// configured conversion to that format is accepted.
func (o *Options) followUpFor(ext, format string) (Conversion, bool) {
	if conv, ok := o.conversionFor(ext); ok && conv.Format == format {
		return conv, true
	}
	keys := make([]string, 0, len(o.Conversions))
	for k := range o.Conversions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if o.Conversions[k].Format == format {
			return o.Conversions[k], true
		}
	}
	return Conversion{}, false
}

func (o *Options) lease() time.Duration {
	if o.FollowUpLease <= 0 {
		return DefaultFollowUpLease
	}
	return o.FollowUpLease
}
