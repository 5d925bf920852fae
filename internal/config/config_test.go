package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const projectJSON = `{
	// shared settings
	"base": {
		"fridaVersion": "17.5.1",
		"entry": "src/main.js",
		"xz": true,
	},
	"arm64": {
		"inherit": "base",
		"type": "android-so",
		"platform": "arm64-v8a",
	},
	"x86": {
		"inherit": "arm64",
		"platform": "x86",
		"xz": false,
		"overridePrebuildFile": "/opt/inject-x86.so",
	},
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadJSONWithComments(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "fripack.json")
	writeFile(t, path, projectJSON)

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, f.Dir())
	require.Len(t, f.Targets, 3)
	require.NotNil(t, f.Targets["arm64"].Inherit)
	assert.Equal(t, "base", *f.Targets["arm64"].Inherit)
	assert.Nil(t, f.Targets["base"].Type)
	require.NotNil(t, f.Targets["base"].XZ)
	assert.True(t, *f.Targets["base"].XZ)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "fripack.yaml")
	writeFile(t, path, `
base:
  fridaVersion: "17.5.1"
  entry: main.js
agent:
  inherit: base
  type: android-so
  platform: arm64-v8a
  packageName: com.example
`)

	f, err := Load(path)
	require.NoError(t, err)
	resolved, err := Resolve(f)
	require.NoError(t, err)
	agent := resolved["agent"]
	assert.Equal(t, "17.5.1", agent.FridaVersion)
	assert.Equal(t, "com.example", agent.PackageName)
	assert.Equal(t, filepath.Join(dir, "main.js"), agent.Path(agent.Entry))
}

func TestLoadMalformed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "fripack.json")
	writeFile(t, path, `{"a": {"type": 3}}`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse "+path)

	writeFile(t, path, `{"a": {`)
	_, err = Load(path)
	assert.Error(t, err)
}

func TestResolveInheritance(t *testing.T) {
	t.Parallel()
	targets, err := Parse([]byte(projectJSON), false)
	require.NoError(t, err)

	resolved, err := Resolve(&File{Path: "/proj/fripack.json", Targets: targets})
	require.NoError(t, err)

	base := resolved["base"]
	assert.True(t, base.Abstract())

	arm := resolved["arm64"]
	assert.False(t, arm.Abstract())
	assert.Equal(t, Resolved{
		Name:         "arm64",
		Dir:          "/proj",
		Type:         TypeAndroidSO,
		Platform:     "arm64-v8a",
		FridaVersion: "17.5.1",
		Entry:        "src/main.js",
		XZ:           true,
	}, arm)

	x86 := resolved["x86"]
	assert.Equal(t, "x86", x86.Platform)
	assert.Equal(t, TypeAndroidSO, x86.Type, "inherited through two levels")
	assert.False(t, x86.XZ, "explicit false overrides inherited true")
	assert.Equal(t, "/opt/inject-x86.so", x86.Path(x86.OverridePrebuildFile))
	assert.Equal(t, filepath.Join("/proj", "src/main.js"), x86.Path(x86.Entry))
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		target error
		msg    string
	}{
		{
			name:   "self cycle",
			input:  `{"a": {"inherit": "a"}}`,
			target: ErrCycle,
			msg:    "a -> a",
		},
		{
			name:   "long cycle",
			input:  `{"a": {"inherit": "b"}, "b": {"inherit": "c"}, "c": {"inherit": "a"}}`,
			target: ErrCycle,
			msg:    "a -> b -> c -> a",
		},
		{
			name:   "missing parent",
			input:  `{"a": {"inherit": "ghost", "type": "android-so"}}`,
			target: ErrUnknownTarget,
			msg:    `"ghost" (inherited by "a")`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets, err := Parse([]byte(tt.input), false)
			require.NoError(t, err)
			_, err = Resolve(&File{Path: "fripack.json", Targets: targets})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestFindWalksUp(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	writeFile(t, filepath.Join(root, "a", "fripack.config.json"), "{}")
	got, err := Find(deep)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "fripack.config.json"), got)

	writeFile(t, filepath.Join(root, "a", "fripack.json"), "{}")
	got, err = Find(deep)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "fripack.json"), got, "fripack.json takes priority")

	writeFile(t, filepath.Join(deep, "fripack.yaml"), "{}")
	got, err = Find(deep)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(deep, "fripack.yaml"), got, "nearest directory wins")
}

func TestWriteTemplate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	path, err := WriteTemplate(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fripack.json"), path)

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Template(), f.Targets)

	resolved, err := Resolve(f)
	require.NoError(t, err)
	so := resolved["example-android-so"]
	assert.Equal(t, "17.5.1", so.FridaVersion)
	assert.Equal(t, "main.js", so.Entry)
	assert.Equal(t, TypeAndroidSO, so.Type)
	assert.True(t, resolved["base"].Abstract())

	_, err = WriteTemplate(dir)
	assert.True(t, errors.Is(err, ErrExists), "got %v", err)

	custom := filepath.Join(dir, "custom.json")
	path, err = WriteTemplate(custom)
	require.NoError(t, err)
	assert.Equal(t, custom, path)
}
