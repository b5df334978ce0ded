package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const (
	// wasmMemoryLimitBytes caps a plugin's linear memory.
	wasmMemoryLimitBytes = 64 << 20

	// wasmRunTimeout bounds a plugin's CPU time via context deadline.
	wasmRunTimeout = 10 * time.Second
)

// wasmInput is what a plugin reads from stdin: the name of the scan it is
// standing in for.
type wasmInput struct {
	Scan string `json:"scan"`
}

// WASMPlugin runs an external scan compiled to WASI. The module is
// sandboxed deny-by-default: no filesystem, no network, no environment,
// memory capped and execution time bounded. It reads the scan name as JSON
// on stdin and writes a findings JSON array on stdout; anything on stderr
// fails the run.
type WASMPlugin struct {
	name string
	wasm []byte
}

// NewWASMPlugin wraps raw WASM bytes as the plugin for scan name.
func NewWASMPlugin(name string, wasm []byte) *WASMPlugin {
	return &WASMPlugin{name: name, wasm: wasm}
}

// LoadWASMPlugin reads a WASM module from disk.
func LoadWASMPlugin(name, path string) (*WASMPlugin, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin %s: %w", path, err)
	}
	return NewWASMPlugin(name, wasm), nil
}

func (p *WASMPlugin) Name() string { return p.name }

func (p *WASMPlugin) Run(ctx context.Context) ([]Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, wasmRunTimeout)
	defer cancel()

	// wazero measures memory in 64 KiB pages.
	runtimeCfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(wasmMemoryLimitBytes / (64 * 1024)).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	defer func() { _ = runtime.Close(ctx) }()

	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	input, err := json.Marshal(wasmInput{Scan: p.name})
	if err != nil {
		return nil, fmt.Errorf("failed to encode plugin input: %w", err)
	}

	var stdout, stderr bytes.Buffer
	// Deny-by-default: no FS mounts, no env, no random source, no clocks
	// beyond the coarse default.
	modCfg := wazero.NewModuleConfig().
		WithName(p.name).
		WithStartFunctions("_start").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	compiled, err := runtime.CompileModule(ctx, p.wasm)
	if err != nil {
		return nil, fmt.Errorf("plugin compilation failed: %w", err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	mod, err := runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("plugin timed out after %v", wasmRunTimeout)
		}
		return nil, fmt.Errorf("plugin execution failed: %w", err)
	}
	defer func() { _ = mod.Close(ctx) }()

	if stderr.Len() > 0 {
		return nil, fmt.Errorf("plugin reported: %s", stderr.String())
	}

	if stdout.Len() == 0 {
		return nil, nil
	}
	var findings []Finding
	if err := json.Unmarshal(stdout.Bytes(), &findings); err != nil {
		return nil, fmt.Errorf("plugin produced malformed findings: %w", err)
	}
	return findings, nil
}
