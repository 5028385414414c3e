// Package lua runs the optional query preparation script. The script
// defines a global prepare(text, filters) function that rewrites the user
// query before it reaches the analysis pipeline, or answers it directly.
package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// PrepareResult is what prepare returned.
type PrepareResult struct {
	Content   string // rewritten query, or the reply when SendToLLM is false
	SendToLLM bool
}

// Preparer holds a compiled preparation script. Each call runs in a fresh
// Lua state, so a Preparer is safe for concurrent use.
type Preparer struct {
	path  string
	proto *lua.FunctionProto
}

// NewPreparer compiles the script at scriptPath.
func NewPreparer(scriptPath string) (*Preparer, error) {
	absPath, err := filepath.Abs(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("script path: %w", err)
	}
	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	chunk, err := parse.Parse(f, absPath)
	if err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	proto, err := lua.Compile(chunk, absPath)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}
	return &Preparer{path: absPath, proto: proto}, nil
}

func (p *Preparer) Path() string { return p.path }

// Prepare calls prepare(text, filters). filters is passed as a Lua array
// of strings. The function must return either a string, the new query,
// or a table { send_to_llm = bool, message = string }.
func (p *Preparer) Prepare(ctx context.Context, text string, filters []string) (*PrepareResult, error) {
	lState := lua.NewState()
	defer lState.Close()
	lState.SetContext(ctx)

	// Scripts may read env vars through os.getenv.
	lState.PreloadModule("os", osModuleLoader)

	lState.Push(lState.NewFunctionFromProto(p.proto))
	if err := lState.PCall(0, lua.MultRet, nil); err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}

	fn := lState.GetGlobal("prepare")
	if fn.Type() == lua.LTNil {
		return nil, fmt.Errorf("script must define global function prepare(text, filters)")
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("prepare must be a function, got %s", fn.Type().String())
	}

	tbl := lState.NewTable()
	for _, f := range filters {
		tbl.Append(lua.LString(f))
	}
	lState.Push(fn)
	lState.Push(lua.LString(text))
	lState.Push(tbl)
	if err := lState.PCall(2, 1, nil); err != nil {
		return nil, fmt.Errorf("prepare(): %w", err)
	}

	ret := lState.Get(-1)
	lState.Pop(1)

	switch ret.Type() {
	case lua.LTString:
		return &PrepareResult{Content: ret.String(), SendToLLM: true}, nil
	case lua.LTTable:
		out := &PrepareResult{SendToLLM: true}
		ret.(*lua.LTable).ForEach(func(k, v lua.LValue) {
			switch {
			case k.String() == "send_to_llm" && v.Type() == lua.LTBool:
				out.SendToLLM = v == lua.LTrue
			case k.String() == "message" && v.Type() == lua.LTString:
				out.Content = v.String()
			}
		})
		return out, nil
	default:
		return nil, fmt.Errorf("prepare() must return string or table { send_to_llm, message }, got %s", ret.Type().String())
	}
}

// RunPrepare compiles scriptPath and runs it once.
func RunPrepare(ctx context.Context, scriptPath, text string, filters []string) (*PrepareResult, error) {
	p, err := NewPreparer(scriptPath)
	if err != nil {
		return nil, err
	}
	return p.Prepare(ctx, text, filters)
}

// osModuleLoader provides a minimal os module: getenv and time.
func osModuleLoader(lState *lua.LState) int {
	mod := lState.NewTable()
	lState.SetField(mod, "getenv", lState.NewFunction(func(ls *lua.LState) int {
		ls.Push(lua.LString(os.Getenv(ls.CheckString(1))))
		return 1
	}))
	lState.SetField(mod, "time", lState.NewFunction(func(ls *lua.LState) int {
		ls.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	lState.Push(mod)
	return 1
}
