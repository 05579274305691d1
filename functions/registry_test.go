package functions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/room4-2/ada/session"
)

func echoRunner() Runner {
	return RunnerFunc(func(ctx context.Context, prompt string, progress func(session.Progress)) (string, error) {
		progress(session.Progress{Log: "running " + prompt})
		return "echo: " + prompt, nil
	})
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(Definition{Runner: echoRunner()}))
	assert.Error(t, r.Register(Definition{Name: "x"}))
	require.NoError(t, r.Register(Definition{Name: "x", Runner: echoRunner()}))
	assert.Error(t, r.Register(Definition{Name: "x", Runner: echoRunner()}))
}

func TestRegistry_ValidateArguments(t *testing.T) {
	r, err := NewCatalog(echoRunner(), echoRunner(), true)
	require.NoError(t, err)

	tool, ok := r.Lookup(GenerateCADName)
	require.True(t, ok)

	assert.NoError(t, tool.Validate(map[string]any{"prompt": "a 20mm cube"}))
	assert.Error(t, tool.Validate(nil))
	assert.Error(t, tool.Validate(map[string]any{"prompt": 42}))

	_, ok = r.Lookup("launch_rocket")
	assert.False(t, ok)
}

func TestRegistry_RunForwardsPrompt(t *testing.T) {
	r, err := NewCatalog(echoRunner(), echoRunner(), false)
	require.NoError(t, err)

	tool, ok := r.Lookup(RunWebAgentName)
	require.True(t, ok)
	assert.False(t, tool.RequiresConfirmation())

	var logs []string
	result, err := tool.Run(context.Background(), map[string]any{"prompt": "open the news"}, func(p session.Progress) {
		logs = append(logs, p.Log)
	})
	require.NoError(t, err)
	assert.Equal(t, "echo: open the news", result)
	assert.Equal(t, []string{"running open the news"}, logs)
}

func TestCatalog_Messages(t *testing.T) {
	r, err := NewCatalog(echoRunner(), echoRunner(), true)
	require.NoError(t, err)

	cad, _ := r.Lookup(GenerateCADName)
	assert.True(t, cad.RequiresConfirmation())
	assert.Contains(t, cad.Acknowledgement(), "Do not reply to this message.")
	assert.Equal(t, "System Notification: CAD generation failed.", cad.CompletionMessage("", errors.New("x")))
	assert.Contains(t, cad.CompletionMessage("ok", nil), "CAD generation is complete")

	web, _ := r.Lookup(RunWebAgentName)
	assert.Equal(t, "System Notification: Web Agent has finished.\nResult: found it", web.CompletionMessage("found it", nil))
}

func TestRegistry_Declarations(t *testing.T) {
	r, err := NewCatalog(echoRunner(), echoRunner(), true)
	require.NoError(t, err)

	decls := r.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, GenerateCADName, decls[0].Name)
	assert.Equal(t, RunWebAgentName, decls[1].Name)
	for _, d := range decls {
		assert.Equal(t, genai.BehaviorNonBlocking, d.Behavior)
		require.NotNil(t, d.Parameters)
		assert.Equal(t, genai.TypeObject, d.Parameters.Type)
		assert.Equal(t, []string{"prompt"}, d.Parameters.Required)
		assert.Equal(t, genai.TypeString, d.Parameters.Properties["prompt"].Type)
	}

	tools := r.Tools()
	require.Len(t, tools, 2)
	assert.NotNil(t, tools[0].GoogleSearch)
	assert.Len(t, tools[1].FunctionDeclarations, 2)
}
