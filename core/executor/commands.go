package executor

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"asset-orchestrator/core/models"
	"asset-orchestrator/storage"
)

// DefaultDocument is the executor document that runs a list of shell lines.
const DefaultDocument = "AWS-RunShellScript"

// StageTemplate describes how one stage runs on its executor target.
// Run and Output may reference {input}, {output_dir}, {model_id}, {name}
// and {format}; substituted values are shell-quoted.
type StageTemplate struct {
	Target   string   `yaml:"target"`
	Document string   `yaml:"document"`
	WorkDir  string   `yaml:"workdir"`
	Setup    []string `yaml:"setup"`
	Run      string   `yaml:"run"`
	Output   string   `yaml:"output"`
	Teardown []string `yaml:"teardown"`
}

// Validate checks that the template can produce a command.
func (t StageTemplate) Validate() error {
	switch {
	case strings.TrimSpace(t.Target) == "":
		return errors.New("target is required")
	case strings.TrimSpace(t.Run) == "":
		return errors.New("run is required")
	case strings.TrimSpace(t.Output) == "":
		return errors.New("output is required")
	}
	return nil
}

// StageParams are the per-job values rendered into a StageTemplate.
type StageParams struct {
	Input   storage.ArtifactURI
	Output  storage.ArtifactURI
	ModelID string
	Name    string
	Format  string
	Region  string
}

// BuildStageCommand renders the fixed stage shape: stage the input into the
// working directory, run the program, upload the result to params.Output.
func BuildStageCommand(tpl StageTemplate, params StageParams) models.RemoteCommand {
	localInput := path.Join("inputs", params.ModelID+path.Ext(params.Input.Key))
	name := params.Name
	if name == "" {
		name = params.ModelID
	}

	vars := strings.NewReplacer(
		"{input}", shellQuote(localInput),
		"{output_dir}", shellQuote("output/"),
		"{model_id}", shellQuote(params.ModelID),
		"{name}", shellQuote(name),
		"{format}", shellQuote(params.Format),
	)

	var lines []string
	if tpl.WorkDir != "" {
		lines = append(lines, "cd "+shellQuote(tpl.WorkDir))
	}
	lines = append(lines, tpl.Setup...)
	lines = append(lines,
		"mkdir -p inputs output",
		fmt.Sprintf("aws s3 cp %s %s%s", shellQuote(params.Input.String()), shellQuote(localInput), regionFlag(params.Region)),
		vars.Replace(tpl.Run),
		fmt.Sprintf("aws s3 cp %s %s%s", vars.Replace(tpl.Output), shellQuote(params.Output.String()), regionFlag(params.Region)),
	)
	lines = append(lines, tpl.Teardown...)

	document := tpl.Document
	if document == "" {
		document = DefaultDocument
	}

	return models.RemoteCommand{
		Target:   tpl.Target,
		Document: document,
		Commands: lines,
		Comment:  "model " + params.ModelID,
	}
}

func regionFlag(region string) string {
	if region == "" {
		return ""
	}
	return " --region " + shellQuote(region)
}

// shellQuote wraps s in single quotes unless it is made of safe characters.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@+", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
