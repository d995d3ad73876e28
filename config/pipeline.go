package config

import (
	"fmt"
	"os"

	"asset-orchestrator/core/executor"
	"asset-orchestrator/core/pipeline"
	"asset-orchestrator/storage"

	"gopkg.in/yaml.v3"
)

// PipelineSpec is the YAML description of the stage chain.
//
//	job_type: reconstruct
//	output_format: glb
//	stages:
//	  reconstruct:
//	    target: ${RECONSTRUCT_TARGET}
//	    workdir: /home/ssm-user/TripoSR
//	    run: python3 run.py {input} --output-dir {output_dir} --model-save-format {format}
//	    output: output/0/mesh.{format}
//	conversions:
//	  glb: {job_type: convert, format: usdz}
type PipelineSpec struct {
	JobType      string                            `yaml:"job_type"`
	OutputPrefix string                            `yaml:"output_prefix"`
	OutputFormat string                            `yaml:"output_format"`
	Stages       map[string]executor.StageTemplate `yaml:"stages"`
	Conversions  map[string]ConversionSpec         `yaml:"conversions"`
}

// ConversionSpec names the stage converting one output format into another.
type ConversionSpec struct {
	JobType string `yaml:"job_type"`
	Format  string `yaml:"format"`
}

// DefaultPipeline reconstructs a mesh with TripoSR and converts GLB output to USDZ.
func DefaultPipeline(cfg *Config) PipelineSpec {
	return PipelineSpec{
		JobType:      "reconstruct",
		OutputPrefix: storage.PrefixGenerated3DAssets,
		OutputFormat: "glb",
		Stages: map[string]executor.StageTemplate{
			"reconstruct": {
				Target:   cfg.ReconstructTarget,
				WorkDir:  "/home/ssm-user/TripoSR",
				Setup:    []string{". myenv/bin/activate"},
				Run:      "python3 run.py {input} --output-dir {output_dir} --model-save-format {format}",
				Output:   "output/0/mesh.{format}",
				Teardown: []string{"deactivate"},
			},
			"convert": {
				Target:   cfg.ConvertTarget,
				WorkDir:  "/home/ssm-user/usdz-converter",
				Setup:    []string{". myenv/bin/activate"},
				Run:      "python3 convert.py {input} output/{model_id}.{format} --name {name}",
				Output:   "output/{model_id}.{format}",
				Teardown: []string{"deactivate"},
			},
		},
		Conversions: map[string]ConversionSpec{
			"glb": {JobType: "convert", Format: "usdz"},
		},
	}
}

// ParsePipeline decodes a YAML stage chain over the defaults. Environment
// references such as ${CONVERT_TARGET} are expanded before decoding.
func ParsePipeline(data []byte, base PipelineSpec) (PipelineSpec, error) {
	expanded := os.ExpandEnv(string(data))

	var spec PipelineSpec
	if err := yaml.Unmarshal([]byte(expanded), &spec); err != nil {
		return PipelineSpec{}, fmt.Errorf("failed to parse pipeline YAML: %w", err)
	}

	if spec.JobType != "" {
		base.JobType = spec.JobType
	}
	if spec.OutputPrefix != "" {
		base.OutputPrefix = spec.OutputPrefix
	}
	if spec.OutputFormat != "" {
		base.OutputFormat = spec.OutputFormat
	}
	if spec.Stages != nil {
		base.Stages = spec.Stages
	}
	if spec.Conversions != nil {
		base.Conversions = spec.Conversions
	}
	return base, nil
}

// LoadPipeline builds the pipeline options from the defaults and, when
// PIPELINE_CONFIG names a file, the YAML definition in it.
func LoadPipeline(cfg *Config) (*pipeline.Options, error) {
	spec := DefaultPipeline(cfg)

	if cfg.PipelineConfig != "" {
		data, err := os.ReadFile(cfg.PipelineConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to read pipeline config: %w", err)
		}
		spec, err = ParsePipeline(data, spec)
		if err != nil {
			return nil, err
		}
	}

	opts := spec.Options(cfg)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Options converts the spec into pipeline options bound to cfg.
func (s PipelineSpec) Options(cfg *Config) *pipeline.Options {
	conversions := make(map[string]pipeline.Conversion, len(s.Conversions))
	for ext, c := range s.Conversions {
		conversions[ext] = pipeline.Conversion{JobType: c.JobType, Format: c.Format}
	}
	return &pipeline.Options{
		Bucket:        cfg.ArtifactBucket,
		Region:        cfg.AWSRegion,
		JobType:       s.JobType,
		OutputPrefix:  s.OutputPrefix,
		OutputFormat:  s.OutputFormat,
		Stages:        s.Stages,
		Conversions:   conversions,
		FollowUpLease: cfg.FollowUpLease,
	}
}
