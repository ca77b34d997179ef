package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
	"github.com/reglet-dev/lantern/internal/domain/extension"
	"github.com/reglet-dev/lantern/internal/domain/values"
	"github.com/reglet-dev/lantern/internal/infrastructure/hostapi"
	"github.com/reglet-dev/lantern/internal/infrastructure/modules"
	"github.com/reglet-dev/lantern/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingLoader records how often each locator is loaded.
type countingLoader struct {
	*modules.Loader
	mu    sync.Mutex
	loads map[string]int
}

func (c *countingLoader) Load(ctx context.Context, locator *url.URL) (*modules.ModuleSource, error) {
	c.mu.Lock()
	c.loads[locator.String()]++
	c.mu.Unlock()
	return c.Loader.Load(ctx, locator)
}

func (c *countingLoader) count(locator string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads[locator]
}

type harness struct {
	ext    *extension.Extension
	loader *countingLoader
	dir    string
	opens  atomic.Int32
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T, entry string, perms string, files map[string]string) *harness {
	t.Helper()
	dir := t.TempDir()
	manifest := fmt.Sprintf("name = \"sample\"\nentry_point = %q\n%s", entry, perms)
	require.NoError(t, os.WriteFile(filepath.Join(dir, extension.ManifestFileName), []byte(manifest), 0o600))
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o700))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}

	ext, err := extension.FromDir(dir)
	require.NoError(t, err)
	loader, err := modules.NewLoader(dir, modules.Options{})
	require.NoError(t, err)

	return &harness{
		ext:    ext,
		dir:    dir,
		loader: &countingLoader{Loader: loader, loads: map[string]int{}},
	}
}

func (h *harness) run(t *testing.T, args []string, opts Options) error {
	t.Helper()
	grant, err := h.ext.Grant()
	require.NoError(t, err)

	state := NewExtensionState(args, func(id values.RunID) (*hostapi.Backend, error) {
		h.opens.Add(1)
		return hostapi.New(grant, hostapi.Options{Cwd: h.dir, Extension: h.ext.Name(), RunID: id.String(), Version: "test"})
	})
	opts.Stdout = &h.stdout
	opts.Stderr = &h.stderr
	opts.Version = version.Info{Version: "test", Platform: "test/test"}
	return Run(context.Background(), state, h.ext, h.loader, opts)
}

func requireExecutionError(t *testing.T, err error) *apperrors.ExecutionError {
	t.Helper()
	require.Error(t, err)
	var execErr *apperrors.ExecutionError
	require.True(t, errors.As(err, &execErr), "expected ExecutionError, got %T: %v", err, err)
	return execErr
}

func TestRun_ArgsVerbatim(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "main.js", "", map[string]string{
		"main.js": `console.log(JSON.stringify(Lantern.args)); console.log(Object.isFrozen(Lantern.args));`,
	})

	require.NoError(t, h.run(t, []string{"--test", "-x", "a"}, Options{}))
	assert.Equal(t, "[\"--test\",\"-x\",\"a\"]\ntrue\n", h.stdout.String())
	assert.Equal(t, int32(0), h.opens.Load(), "backend is only opened on demand")
}

func TestRun_APIModuleLoadedOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "main.ts", "", map[string]string{
		"main.ts": `
import { hostInfo } from "lantern";
import api from "lantern";
import { name } from "./lib/a.ts";
const info: { extension: string } = hostInfo();
console.log(info.extension, name, api.hostInfo().runId === Lantern.runId);
import("lantern").then((again) => console.log(typeof again.fetch));
`,
		"lib/a.ts": `import { hostInfo } from "lantern"; export const name: string = hostInfo().extension;`,
	})

	require.NoError(t, h.run(t, nil, Options{}))
	assert.Equal(t, "sample sample true\nfunction\n", h.stdout.String())
	assert.Equal(t, 1, h.loader.count(modules.APILocator))
	assert.Equal(t, int32(1), h.opens.Load())
}

func TestRun_UncaughtException(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "main.js", "", map[string]string{
		"main.js": `console.log("before"); throw new Error("boom");`,
	})

	execErr := requireExecutionError(t, h.run(t, nil, Options{}))
	assert.Contains(t, execErr.Error(), "boom")
	assert.Equal(t, 1, execErr.ExitCode)
	assert.Equal(t, "before\n", h.stdout.String())
}

func TestRun_ExceptionInTimer(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "main.js", "", map[string]string{
		"main.js": `setTimeout(() => { throw new Error("late"); }, 1);`,
	})

	execErr := requireExecutionError(t, h.run(t, nil, Options{}))
	assert.Contains(t, execErr.Error(), "late")
}

func TestRun_Rejections(t *testing.T) {
	t.Parallel()

	t.Run("unhandled", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "main.js", "", map[string]string{
			"main.js": `async function main() { throw new Error("nope"); } main();`,
		})
		execErr := requireExecutionError(t, h.run(t, nil, Options{}))
		assert.Contains(t, execErr.Error(), "uncaught (in promise)")
		assert.Contains(t, execErr.Error(), "nope")
	})

	t.Run("handled", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "main.js", "", map[string]string{
			"main.js": `Promise.reject(new Error("x")).catch((e) => console.log("caught", e.message));`,
		})
		require.NoError(t, h.run(t, nil, Options{}))
		assert.Equal(t, "caught x\n", h.stdout.String())
	})
}

func TestRun_Timers(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "main.js", "", map[string]string{
		"main.js": `
const order = [];
setTimeout(() => order.push("slow"), 30);
setTimeout((tag) => order.push(tag), 0, "fast");
const cancelled = setTimeout(() => order.push("cancelled"), 5);
clearTimeout(cancelled);
queueMicrotask(() => order.push("micro"));
let ticks = 0;
const id = setInterval(() => {
  ticks++;
  if (ticks === 3) {
    clearInterval(id);
    setTimeout(() => console.log(order.join(","), ticks), 50);
  }
}, 5);
`,
	})

	require.NoError(t, h.run(t, nil, Options{}))
	assert.Equal(t, "micro,fast,slow 3\n", h.stdout.String())
}

func TestRun_DataAndImportMeta(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "main.js", "", map[string]string{
		"main.js": `
import config from "./config.json";
import { helper } from "./helper.js";
console.log(config.greeting, config.items.length);
console.log(import.meta.main, import.meta.url.endsWith("/main.js"), helper());
`,
		"helper.js":   `export function helper() { return import.meta.main; }`,
		"config.json": `{"greeting": "hello", "items": [1, 2, 3]}`,
	})

	require.NoError(t, h.run(t, nil, Options{}))
	assert.Equal(t, "hello 3\ntrue true false\n", h.stdout.String())
}

func TestRun_Exit(t *testing.T) {
	t.Parallel()

	t.Run("non-zero", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "main.js", "", map[string]string{
			"main.js": `console.log("a"); try { Lantern.exit(3); } catch (e) { console.log("caught"); } console.log("b");`,
		})
		execErr := requireExecutionError(t, h.run(t, nil, Options{}))
		assert.Equal(t, 3, execErr.ExitCode)
		assert.Equal(t, "a\n", h.stdout.String())
	})

	t.Run("zero stops pending work", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "main.js", "", map[string]string{
			"main.js": `setTimeout(() => console.log("never"), 1000); setTimeout(() => Lantern.exit(0), 1);`,
		})
		start := time.Now()
		require.NoError(t, h.run(t, nil, Options{}))
		assert.Empty(t, h.stdout.String())
		assert.Less(t, time.Since(start), 900*time.Millisecond)
	})
}

func TestRun_SandboxViolationIsFatal(t *testing.T) {
	t.Parallel()
	outside := filepath.Join(t.TempDir(), "outside.js")
	require.NoError(t, os.WriteFile(outside, []byte(`export default 1;`), 0o600))

	h := newHarness(t, "main.js", "", map[string]string{
		"main.js": fmt.Sprintf(`
async function main() {
  try {
    await import(%q);
  } catch (e) {
    console.log("caught");
  }
}
main();
`, modules.FileURL(outside).String()),
	})

	execErr := requireExecutionError(t, h.run(t, nil, Options{}))
	var sandboxErr *apperrors.SandboxError
	require.True(t, errors.As(execErr, &sandboxErr))
	assert.Equal(t, apperrors.ViolationOutsidePackage, sandboxErr.Violation)
	assert.NotContains(t, h.stdout.String(), "caught")
}

func TestRun_RemoteHostRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "main.js", "", map[string]string{
		"main.js": `import x from "https://example.com/mod.js"; console.log(x);`,
	})

	execErr := requireExecutionError(t, h.run(t, nil, Options{}))
	assert.Contains(t, execErr.Error(), "deno.land")
	assert.Empty(t, h.stdout.String())
}

func TestRun_Permissions(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "main.ts", "[permissions]\nread = [\"./data\"]\n", map[string]string{
		"main.ts": `
import { readTextFile, writeTextFile, getEnv } from "lantern";
async function main(): Promise<void> {
  console.log(await readTextFile("data/msg.txt"));
  for (const attempt of [
    () => readTextFile("LanternExt.toml"),
    () => writeTextFile("data/msg.txt", "x"),
    async () => getEnv("HOME"),
  ]) {
    try {
      await attempt();
      console.log("allowed");
    } catch (e) {
      console.log(e.name);
    }
  }
}
main();
`,
		"data/msg.txt": "hi",
	})

	require.NoError(t, h.run(t, nil, Options{}))
	assert.Equal(t, "hi\nPermissionDenied\nPermissionDenied\nPermissionDenied\n", h.stdout.String())
}

func TestRun_Fetch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	h := newHarness(t, "main.js", fmt.Sprintf("[permissions]\nnet = [%q]\n", u.Hostname()), map[string]string{
		"main.js": fmt.Sprintf(`
import { fetch } from "lantern";
fetch(%q).then((resp) => console.log(resp.status, resp.ok, resp.json().ok, resp.headers["content-type"]));
`, srv.URL),
	})

	require.NoError(t, h.run(t, nil, Options{}))
	assert.Equal(t, "200 true true application/json\n", h.stdout.String())
}

func TestRun_Timeout(t *testing.T) {
	t.Parallel()

	t.Run("idle loop", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "main.js", "", map[string]string{
			"main.js": `setInterval(() => {}, 10);`,
		})
		execErr := requireExecutionError(t, h.run(t, nil, Options{Timeout: 100 * time.Millisecond}))
		assert.Contains(t, execErr.Error(), "timed out")
	})

	t.Run("busy script", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "main.js", "", map[string]string{
			"main.js": `while (true) {}`,
		})
		execErr := requireExecutionError(t, h.run(t, nil, Options{Timeout: 100 * time.Millisecond}))
		assert.Contains(t, execErr.Error(), "timed out")
	})
}

func TestRun_TopLevelAwaitUnsupported(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "main.js", "", map[string]string{
		"main.js": `await Promise.resolve(1);`,
	})

	execErr := requireExecutionError(t, h.run(t, nil, Options{}))
	assert.Contains(t, strings.ToLower(execErr.Error()), "top-level await")
}

// add.wasm: (func (export "add") (param i32 i32) (result i32) local.get 0 local.get 1 i32.add)
var addWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

func TestRun_Wasm(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "main.js", "", map[string]string{
		"main.js":  `import { add } from "./add.wasm"; console.log(add(2, 3), add(-1, 1));`,
		"add.wasm": string(addWasm),
	})

	require.NoError(t, h.run(t, nil, Options{}))
	assert.Equal(t, "5 0\n", h.stdout.String())
}

func TestRun_ConsoleStreams(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "main.js", "", map[string]string{
		"main.js": `console.log("out", 1, {a: [1]}, null, undefined); console.error("err");`,
	})

	require.NoError(t, h.run(t, nil, Options{}))
	assert.Equal(t, "out 1 {\"a\":[1]} null undefined\n", h.stdout.String())
	assert.Equal(t, "err\n", h.stderr.String())
}

func TestRun_RestoresHostLogger(t *testing.T) {
	before := slog.Default()
	h := newHarness(t, "main.js", "", map[string]string{"main.js": `console.log(1);`})

	require.NoError(t, h.run(t, nil, Options{}))
	assert.Same(t, before, slog.Default())
}

func TestRunner(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "main.js", "[permissions]\nenv = [\"LANTERN_RUNNER_TEST\"]\n", map[string]string{
		"main.js": `import { hostInfo } from "lantern"; console.log(hostInfo().extension, Lantern.args.length);`,
	})
	grant, err := h.ext.Grant()
	require.NoError(t, err)

	var stdout bytes.Buffer
	runner := NewRunner(RunnerOptions{Stdout: &stdout, Stderr: &stdout, Version: version.Get()})
	require.NoError(t, runner.Run(context.Background(), h.ext, grant, []string{"x"}))
	assert.Equal(t, "sample 1\n", stdout.String())
}
