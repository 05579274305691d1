// Package agents implements the background sub-agents behind the assistant's
// tools.
package agents

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/room4-2/ada/gemini"
	"github.com/room4-2/ada/logger"
	"github.com/room4-2/ada/session"
)

const (
	cadScriptName = "temp_cad_gen.py"
	cadOutputName = "output.stl"
)

const cadSystemPrompt = `
You are a Python-based 3D CAD Engineer using the ` + "`build123d`" + ` library.
Your goal is to write a Python script that generates a 3D model based on the user's request.

Requirements:
1. ALWAYS import build123d and all its components: ` + "`from build123d import *`" + `.
2. Create parts using the BuildPart context manager or direct CSG operations.
3. You MUST assign the final object to a variable named result_part.
4. If you create a sketch or line, extrude it to make it a solid Part.
5. The model should be centered at (0,0,0) and have reasonable dimensions (mm).
6. At the end of the script, you MUST export result_part to an STL file named 'output.stl'.
   Example: export_stl(result_part, 'output.stl')

Example Script:
` + "```python" + `
from build123d import *

with BuildPart() as p:
    Box(10, 10, 10)
    Fillet(p.edges(), radius=1)

result_part = p.part
export_stl(result_part, 'output.stl')
` + "```" + `
`

var pythonBlock = regexp.MustCompile("(?s)```python(.*?)```")

// ScriptRunner executes a Python script inside dir.
type ScriptRunner func(ctx context.Context, dir, python, script string) error

// CADAgent asks a model for a build123d script, runs it locally and returns
// the resulting STL.
type CADAgent struct {
	model   gemini.Generator
	workDir string
	python  string
	run     ScriptRunner
}

// NewCADAgent creates a CAD agent that runs each generation in a fresh
// directory under workDir.
func NewCADAgent(model gemini.Generator, workDir, python string) *CADAgent {
	return &CADAgent{
		model:   model,
		workDir: workDir,
		python:  python,
		run:     runPython,
	}
}

// Run implements functions.Runner. The STL is delivered as progress data
// {"format": "stl", "data": base64}.
func (a *CADAgent) Run(ctx context.Context, prompt string, progress func(session.Progress)) (string, error) {
	log := logger.With("agent", "cad")
	log.Info("📐 CAD generation started", "prompt", prompt)

	if err := os.MkdirAll(a.workDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create CAD workdir: %w", err)
	}
	// Each run gets its own directory; concurrent runs share workDir.
	runDir, err := os.MkdirTemp(a.workDir, "cad-*")
	if err != nil {
		return "", fmt.Errorf("failed to create CAD run dir: %w", err)
	}
	defer os.RemoveAll(runDir)
	output := filepath.Join(runDir, cadOutputName)

	temperature := float32(0.7)
	resp, err := a.model.GenerateContent(ctx, genai.Text(fmt.Sprintf(
		"You are a build123d expert. Write a generic python script to create a 3D model of: %s. Ensure you export to 'output.stl'. Unscaled.", prompt,
	)), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: cadSystemPrompt}}},
		Temperature:       &temperature,
	})
	if err != nil {
		return "", err
	}

	code, err := extractScript(resp.Text())
	if err != nil {
		return "", err
	}
	progress(session.Progress{Log: "Script generated, running build123d"})

	if err := os.WriteFile(filepath.Join(runDir, cadScriptName), []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("failed to write CAD script: %w", err)
	}

	log.Info("Running local CAD script", "dir", runDir)
	if err := a.run(ctx, runDir, a.python, cadScriptName); err != nil {
		return "", err
	}

	stl, err := os.ReadFile(output)
	if err != nil {
		return "", fmt.Errorf("'%s' was not generated: %w", cadOutputName, err)
	}

	progress(session.Progress{Data: map[string]any{
		"format": "stl",
		"data":   base64.StdEncoding.EncodeToString(stl),
	}})
	log.Info("✅ CAD model ready", "bytes", len(stl))
	return fmt.Sprintf("%s (%d bytes)", cadOutputName, len(stl)), nil
}

// extractScript pulls the python block out of a model answer. An answer
// without a fenced block is accepted only if it imports build123d.
func extractScript(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	if m := pythonBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	if strings.Contains(text, "build123d") {
		return text, nil
	}
	return "", fmt.Errorf("could not extract python code from model response")
}

func runPython(ctx context.Context, dir, python, script string) error {
	cmd := exec.CommandContext(ctx, python, script)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("script execution failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
