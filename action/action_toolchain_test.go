package action

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/stretchr/testify/assert"
)

func writeFakeToolchain(t *testing.T, name, versionLine string) string {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/bash\necho \"" + versionLine + "\"\n"
	err := os.WriteFile(filepath.Join(dir, name), []byte(script), 0755)
	assert.NoError(t, err)
	return dir
}

func TestToolchainActionPinsVersion(t *testing.T) {
	c, stack, o := testStackContext(t)
	binDir := writeFakeToolchain(t, "fakepython3.9", "Python 3.9.18")
	stack["env"] = []string{"PATH=" + binDir + ":" + os.Getenv("PATH")}

	a := NewToolchainAction(model.Step{
		Name: "setup python",
		Uses: "setup-toolchain",
		With: map[string]string{"toolchain": "fakepython", "version": "3.9"},
	}, c, o)

	assert.NoError(t, a.Pre())
	_, err := a.Hook()
	assert.NoError(t, err)

	// 解析到的目录要排在 PATH 最前面
	env := stack["env"].([]string)
	assert.Contains(t, env[0], "PATH="+binDir)
}

func TestToolchainActionVersionMismatch(t *testing.T) {
	c, stack, o := testStackContext(t)
	binDir := writeFakeToolchain(t, "fakepython", "Python 3.8.2")
	stack["env"] = []string{"PATH=" + binDir + ":" + os.Getenv("PATH")}

	a := NewToolchainAction(model.Step{
		Name: "setup python",
		Uses: "setup-toolchain",
		With: map[string]string{"toolchain": "fakepython", "version": "3.9"},
	}, c, o)

	assert.NoError(t, a.Pre())
	_, err := a.Hook()
	assert.Error(t, err)
}

func TestToolchainActionVersionPrefixNotEnough(t *testing.T) {
	c, stack, o := testStackContext(t)
	binDir := writeFakeToolchain(t, "fakepython", "Python 3.19.1")
	stack["env"] = []string{"PATH=" + binDir + ":" + os.Getenv("PATH")}

	// 3.19 不是 3.1，前缀命中不算版本一致
	a := NewToolchainAction(model.Step{
		Name: "setup python",
		Uses: "setup-toolchain",
		With: map[string]string{"toolchain": "fakepython", "version": "3.1"},
	}, c, o)

	assert.NoError(t, a.Pre())
	_, err := a.Hook()
	assert.Error(t, err)
}

func TestContainsVersion(t *testing.T) {
	assert.True(t, containsVersion("Python 3.9.18", "3.9"))
	assert.True(t, containsVersion("go version go1.19.5 linux/amd64", "1.19.5"))
	assert.True(t, containsVersion("3.9", "3.9"))
	assert.False(t, containsVersion("Python 3.19.1", "3.1"))
	assert.False(t, containsVersion("Python 13.1.0", "3.1"))
	assert.False(t, containsVersion("Python 3.9.18", ""))
}

func TestToolchainActionMissing(t *testing.T) {
	c, stack, o := testStackContext(t)
	stack["env"] = []string{"PATH=" + t.TempDir()}

	a := NewToolchainAction(model.Step{
		Name: "setup python",
		Uses: "setup-toolchain",
		With: map[string]string{"toolchain": "nosuchtool", "version": "1.0"},
	}, c, o)

	assert.NoError(t, a.Pre())
	_, err := a.Hook()
	assert.Error(t, err)
}

func TestToolchainActionRequiresPin(t *testing.T) {
	c, _, o := testStackContext(t)
	a := NewToolchainAction(model.Step{
		Name: "setup python",
		Uses: "setup-toolchain",
		With: map[string]string{"toolchain": "python"},
	}, c, o)
	assert.Error(t, a.Pre())
}
