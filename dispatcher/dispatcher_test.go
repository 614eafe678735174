package dispatcher

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ferrite-ci/ferrite-engine/api"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchNodeRoundRobin(t *testing.T) {
	d := NewHttpDispatcher()
	require.NoError(t, d.Register(&model.Node{Name: "n1", Address: "10.0.0.1:8700"}))
	require.NoError(t, d.Register(&model.Node{Name: "n2", Address: "10.0.0.2:8700"}))

	first, err := d.DispatchNode()
	require.NoError(t, err)
	second, err := d.DispatchNode()
	require.NoError(t, err)
	third, err := d.DispatchNode()
	require.NoError(t, err)

	assert.Equal(t, "n1", first.Name)
	assert.Equal(t, "n2", second.Name)
	assert.Equal(t, "n1", third.Name)
}

func TestRegisterDuplicateNode(t *testing.T) {
	d := NewHttpDispatcher()
	node := &model.Node{Name: "n1", Address: "10.0.0.1:8700"}
	require.NoError(t, d.Register(node))
	assert.Error(t, d.Register(node))
}

func TestUnRegisterNode(t *testing.T) {
	d := NewHttpDispatcher()
	node := &model.Node{Name: "n1", Address: "10.0.0.1:8700"}
	require.NoError(t, d.Register(node))
	require.NoError(t, d.UnRegister(node))

	_, err := d.DispatchNode()
	assert.Error(t, err)
	assert.Error(t, d.Ping(node))
}

func TestUnRegisterKeepsOtherNodesInRotation(t *testing.T) {
	d := NewHttpDispatcher()
	n1 := &model.Node{Name: "n1", Address: "10.0.0.1:8700"}
	n2 := &model.Node{Name: "n2", Address: "10.0.0.2:8700"}
	n3 := &model.Node{Name: "n3", Address: "10.0.0.3:8700"}
	require.NoError(t, d.Register(n1))
	require.NoError(t, d.Register(n2))
	require.NoError(t, d.Register(n3))

	// 先把 index 转起来，再摘掉中间的节点
	_, err := d.DispatchNode()
	require.NoError(t, err)
	require.NoError(t, d.UnRegister(n2))

	assert.False(t, d.IsValidNode(utils.GetNodeKey(n2.Name, n2.Address)))
	assert.True(t, d.IsValidNode(utils.GetNodeKey(n1.Name, n1.Address)))
	assert.True(t, d.IsValidNode(utils.GetNodeKey(n3.Name, n3.Address)))

	seen := make(map[string]bool)
	for i := 0; i < 4; i++ {
		node, err := d.DispatchNode()
		require.NoError(t, err)
		seen[node.Name] = true
	}
	assert.Equal(t, map[string]bool{"n1": true, "n3": true}, seen)
}

func TestPingRefreshesNode(t *testing.T) {
	d := NewHttpDispatcher()
	node := &model.Node{Name: "n1", Address: "10.0.0.1:8700"}
	require.NoError(t, d.Register(node))
	assert.NoError(t, d.Ping(node))
	assert.Error(t, d.Ping(&model.Node{Name: "ghost", Address: "10.0.0.9:8700"}))
}

func TestHealthcheckEvictsStaleNode(t *testing.T) {
	d := NewHttpDispatcher()
	node := &model.Node{Name: "n1", Address: "10.0.0.1:8700"}
	require.NoError(t, d.Register(node))

	key := utils.GetNodeKey(node.Name, node.Address)
	// 把心跳时间改到超时线之外
	d.nodes.Store(key, NodeInfo{node: node, lastPingTime: time.Now().Unix() - 600})
	d.HealthcheckNode()

	assert.False(t, d.IsValidNode(key))
	_, err := d.DispatchNode()
	assert.Error(t, err)
}

func TestSendRunAndCancelRun(t *testing.T) {
	recvChan := make(chan *api.Message, 10)
	srv := httptest.NewServer(api.NewServer("", recvChan).Router())
	defer srv.Close()
	address := strings.TrimPrefix(srv.URL, "http://")

	d := NewHttpDispatcher()
	node := &model.Node{Name: "n1", Address: address}
	require.NoError(t, d.Register(node))

	err := d.SendRun("demo", "version: 1", 3, node)
	require.NoError(t, err)

	msg := <-recvChan
	assert.Equal(t, api.MessageType_EXECUTE, msg.Type)
	assert.Equal(t, "demo", msg.ExecReq.Name)
	assert.Equal(t, 3, msg.ExecReq.RunId)
	assert.Equal(t, "version: 1", msg.ExecReq.WorkflowFile)

	latest, err := d.GetRunLatestNode("demo", 3)
	require.NoError(t, err)
	assert.Equal(t, "n1", latest.Name)

	require.NoError(t, d.CancelRun("demo", 3))
	msg = <-recvChan
	assert.Equal(t, api.MessageType_CANCEL, msg.Type)
}

func TestSendRunUnreachableNode(t *testing.T) {
	d := NewHttpDispatcher()
	node := &model.Node{Name: "gone", Address: "127.0.0.1:1"}
	err := d.SendRun("demo", "", 1, node)
	require.Error(t, err)

	var sendErr *model.SendRunError
	assert.ErrorAs(t, err, &sendErr)
}
