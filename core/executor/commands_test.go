package executor

import (
	"strings"
	"testing"

	"asset-orchestrator/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reconstructTemplate = StageTemplate{
	Target:   "i-0909bb5ffeda3d36e",
	WorkDir:  "/home/ssm-user/TripoSR",
	Setup:    []string{". myenv/bin/activate"},
	Run:      "python3 run.py {input} --output-dir {output_dir} --model-save-format {format}",
	Output:   "output/0/mesh.{format}",
	Teardown: []string{"deactivate"},
}

func TestBuildStageCommand_Reconstruction(t *testing.T) {
	cmd := BuildStageCommand(reconstructTemplate, StageParams{
		Input:   storage.ArtifactURI{Bucket: "bucket", Key: "in.png"},
		Output:  storage.ArtifactURI{Bucket: "assets", Key: "generated-3d-assets/0f3a.glb"},
		ModelID: "0f3a",
		Format:  "glb",
		Region:  "us-west-2",
	})

	assert.Equal(t, "i-0909bb5ffeda3d36e", cmd.Target)
	assert.Equal(t, DefaultDocument, cmd.Document)
	assert.Equal(t, []string{
		"cd /home/ssm-user/TripoSR",
		". myenv/bin/activate",
		"mkdir -p inputs output",
		"aws s3 cp s3://bucket/in.png inputs/0f3a.png --region us-west-2",
		"python3 run.py inputs/0f3a.png --output-dir output/ --model-save-format glb",
		"aws s3 cp output/0/mesh.glb s3://assets/generated-3d-assets/0f3a.glb --region us-west-2",
		"deactivate",
	}, cmd.Commands)
}

func TestBuildStageCommand_QuotesUserInput(t *testing.T) {
	tpl := StageTemplate{
		Target: "i-convert",
		Run:    "python3 convert.py {input} --name {name}",
		Output: "output/{model_id}.{format}",
	}
	cmd := BuildStageCommand(tpl, StageParams{
		Input:   storage.ArtifactURI{Bucket: "assets", Key: "generated-3d-assets/0f3a.glb"},
		Output:  storage.ArtifactURI{Bucket: "assets", Key: "generated-3d-assets/0f3a.usdz"},
		ModelID: "0f3a",
		Name:    "Bob's chair; rm -rf /",
		Format:  "usdz",
	})

	run := cmd.Commands[2]
	assert.Equal(t, `python3 convert.py inputs/0f3a.glb --name 'Bob'"'"'s chair; rm -rf /'`, run)
	assert.False(t, strings.HasPrefix(cmd.Commands[0], "cd "))
}

func TestBuildStageCommand_NameDefaultsToModelID(t *testing.T) {
	tpl := StageTemplate{Target: "t", Run: "convert --name {name}", Output: "out.usdz"}
	cmd := BuildStageCommand(tpl, StageParams{ModelID: "abc", Input: storage.ArtifactURI{Bucket: "b", Key: "k.glb"}})
	assert.Contains(t, cmd.Commands, "convert --name abc")
}

func TestStageTemplate_Validate(t *testing.T) {
	require.NoError(t, reconstructTemplate.Validate())
	assert.Error(t, StageTemplate{Run: "x", Output: "y"}.Validate())
	assert.Error(t, StageTemplate{Target: "t", Output: "y"}.Validate())
	assert.Error(t, StageTemplate{Target: "t", Run: "x"}.Validate())
}
