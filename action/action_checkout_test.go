package action

import (
	"testing"

	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/stretchr/testify/assert"
)

func TestContainsBranch(t *testing.T) {
	branchOutput := `* (HEAD detached at 2cd8bcf) 2cd8bcf9f6ebcbaf6b1df5d90d2700a129b4d7db first commit
  main                       2cd8bcf9f6ebcbaf6b1df5d90d2700a129b4d7db first commit
  remotes/origin/main        2cd8bcf9f6ebcbaf6b1df5d90d2700a129b4d7db first commit
  remotes/origin/master      3ad8bcf9f6ebcbaf6b1df5d90d2700a129b4d7db second commit`

	assert.True(t, containsBranch(branchOutput, "main"))
	assert.True(t, containsBranch(branchOutput, "master"))
	assert.False(t, containsBranch(branchOutput, "develop"))
}

func TestCheckoutPreRequiresUrl(t *testing.T) {
	c, _, o := testStackContext(t)
	a := NewCheckoutAction(model.Step{Name: "checkout", Uses: "checkout"}, c, o)
	assert.Error(t, a.Pre())
}

func TestCheckoutPreDefaultsBranch(t *testing.T) {
	c, stack, o := testStackContext(t)
	a := NewCheckoutAction(model.Step{
		Name: "checkout",
		Uses: "checkout",
		With: map[string]string{"url": "https://example.com/repo.git"},
	}, c, o)
	assert.NoError(t, a.Pre())
	assert.Equal(t, "master", a.branch)

	// 事件带了分支就用事件的
	stack["branch"] = "develop"
	b := NewCheckoutAction(model.Step{
		Name: "checkout",
		Uses: "checkout",
		With: map[string]string{"url": "https://example.com/repo.git"},
	}, c, o)
	assert.NoError(t, b.Pre())
	assert.Equal(t, "develop", b.branch)
}
