package lua

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeScript(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prepare.lua")
	if err := os.WriteFile(path, []byte(script), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunPrepareReturnsString(t *testing.T) {
	path := writeScript(t, `function prepare(text) return "rewritten: " .. text end`)

	result, err := RunPrepare(context.Background(), path, "plot the speed", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.SendToLLM {
		t.Error("SendToLLM should be true for string return")
	}
	if result.Content != "rewritten: plot the speed" {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestRunPrepareReceivesFilters(t *testing.T) {
	path := writeScript(t, `
function prepare(text, filters)
  local parts = { text }
  for i = 1, #filters do
    table.insert(parts, "Filter: " .. filters[i])
  end
  return table.concat(parts, " ")
end
`)

	result, err := RunPrepare(context.Background(), path, "Mean speed.", []string{"speed > 10", "gear == 3"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "Mean speed. Filter: speed > 10 Filter: gear == 3" {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestRunPrepareReturnsBlockMessage(t *testing.T) {
	path := writeScript(t, `
function prepare(text)
  return { send_to_llm = false, message = "Only MF4 questions are supported." }
end
`)

	result, err := RunPrepare(context.Background(), path, "tell me a joke", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.SendToLLM {
		t.Error("SendToLLM should be false")
	}
	if result.Content != "Only MF4 questions are supported." {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestRunPrepareReadsEnv(t *testing.T) {
	t.Setenv("SIGNALPILOT_QUERY_SUFFIX", " Use SI units.")
	path := writeScript(t, `
local os = require("os")
function prepare(text) return text .. os.getenv("SIGNALPILOT_QUERY_SUFFIX") end
`)

	result, err := RunPrepare(context.Background(), path, "Mean speed.", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "Mean speed. Use SI units." {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestRunPrepareErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"missing function", `x = 1`, "must define global function prepare"},
		{"not a function", `prepare = 3`, "prepare must be a function"},
		{"bad return", `function prepare(text) return 42 end`, "must return string or table"},
		{"runtime error", `function prepare(text) error("boom") end`, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScript(t, tt.script)
			_, err := RunPrepare(context.Background(), path, "q", nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestNewPreparerSyntaxError(t *testing.T) {
	path := writeScript(t, `function prepare(text) return text`)
	if _, err := NewPreparer(path); err == nil {
		t.Fatal("expected a parse error")
	}
	if _, err := NewPreparer(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Fatal("expected an error for a missing script")
	}
}

func TestPreparerCancelled(t *testing.T) {
	path := writeScript(t, `function prepare(text) while true do end end`)
	p, err := NewPreparer(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Prepare(ctx, "q", nil); err == nil {
		t.Fatal("expected the loop to be interrupted")
	}
}

func TestPreparerConcurrent(t *testing.T) {
	path := writeScript(t, `
counter = 0
function prepare(text)
  counter = counter + 1
  return text .. counter
end
`)
	p, err := NewPreparer(path)
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Prepare(context.Background(), "q", nil)
			if err != nil {
				t.Error(err)
				return
			}
			if res.Content != "q1" {
				t.Errorf("state leaked between calls: %q", res.Content)
			}
		}()
	}
	wg.Wait()
}
