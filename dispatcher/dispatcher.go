package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ferrite-ci/ferrite-engine/api"
	"github.com/ferrite-ci/ferrite-engine/consts"
	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/utils"
)

type IDispatcher interface {
	// DispatchNode 选择节点
	DispatchNode() (*model.Node, error)
	// Register 节点注册
	Register(node *model.Node) error
	// UnRegister 节点注销
	UnRegister(node *model.Node) error
	UnRegisterWithKey(key string) error
	// Ping 节点心跳
	Ping(node *model.Node) error
	// HealthcheckNode 摘除心跳超时的节点
	HealthcheckNode()
	// SendRun 把 run 发给节点执行
	SendRun(name, yamlString string, runId int, node *model.Node) error
	// CancelRun 取消 run，发给最后执行它的节点
	CancelRun(name string, runId int) error
	// CancelRunWithNode 通过指定节点取消 run
	CancelRunWithNode(name string, runId int, node *model.Node) error
	// IsValidNode 判断有没有这个节点
	IsValidNode(n string) bool
}

type HttpDispatcher struct {
	nodes      sync.Map // key: node.Name + "@" + node.Address, value: NodeInfo
	poller     *Poller  // 轮询器，用来选择节点
	mu         sync.Mutex
	RunNodeMap sync.Map // key: name(id), value: []*node // 记录 run 在哪些节点上执行过，用来取消
	client     *api.Client
}

type NodeInfo struct {
	node         *model.Node
	lastPingTime int64
}

// Poller 轮询器
type Poller struct {
	index   int64
	keyList []string
}

func NewHttpDispatcher() *HttpDispatcher {
	return &HttpDispatcher{
		poller: &Poller{
			index:   0,
			keyList: make([]string, 0),
		},
		client: api.NewClient(),
	}
}

// DispatchNode 选择节点
func (d *HttpDispatcher) DispatchNode() (*model.Node, error) {
	// 加锁，防止多个 goroutine 同时修改 poller.index
	d.mu.Lock()
	if len(d.poller.keyList) == 0 {
		d.mu.Unlock()
		return nil, errors.New("no node available, len key list is 0")
	}
	key := d.poller.keyList[d.poller.index]
	d.poller.index = (d.poller.index + 1) % int64(len(d.poller.keyList))
	d.mu.Unlock()
	if value, ok := d.nodes.Load(key); ok {
		return value.(NodeInfo).node, nil
	}
	logger.Errorf("DispatchNode failed, node not exists: %s, index is %d", key, d.poller.index)
	return nil, errors.New("no node available")
}

// Register 节点注册
func (d *HttpDispatcher) Register(node *model.Node) error {
	key := utils.GetNodeKey(node.Name, node.Address)
	if _, ok := d.nodes.Load(key); !ok {
		d.nodes.Store(key, NodeInfo{
			node:         node,
			lastPingTime: time.Now().Unix(),
		})
		d.mu.Lock()
		d.poller.keyList = append(d.poller.keyList, key)
		d.mu.Unlock()
		logger.Tracef("Register node: %s, now have %d nodes", key, len(d.poller.keyList))
		return nil
	}
	logger.Tracef("Register node failed, node already exists: %s", key)
	return errors.New("node already exists")
}

// UnRegister 节点注销
func (d *HttpDispatcher) UnRegister(node *model.Node) error {
	key := utils.GetNodeKey(node.Name, node.Address)
	return d.unRegister(key)
}

func (d *HttpDispatcher) UnRegisterWithKey(key string) error {
	return d.unRegister(key)
}

func (d *HttpDispatcher) unRegister(key string) error {
	if _, ok := d.nodes.Load(key); ok {
		d.nodes.Delete(key)
		d.mu.Lock()
		// 按 key 定位再摘除，不能拿 index 推算位置
		for i, k := range d.poller.keyList {
			if k == key {
				d.poller.keyList = append(d.poller.keyList[:i], d.poller.keyList[i+1:]...)
				break
			}
		}
		if len(d.poller.keyList) == 0 {
			d.poller.index = 0
		} else {
			d.poller.index = d.poller.index % int64(len(d.poller.keyList))
		}
		d.mu.Unlock()
		logger.Tracef("UnRegister node: %s", key)
		return nil
	}
	return errors.New("node not exists")
}

// Ping 节点心跳
func (d *HttpDispatcher) Ping(node *model.Node) error {
	key := utils.GetNodeKey(node.Name, node.Address)
	if _, ok := d.nodes.Load(key); ok {
		d.nodes.Store(key, NodeInfo{
			node:         node,
			lastPingTime: time.Now().Unix(),
		})
		return nil
	}
	return errors.New("node not exists")
}

// HealthcheckNode 检查节点心跳
func (d *HttpDispatcher) HealthcheckNode() {
	d.nodes.Range(func(_, value any) bool {
		nodeInfo := value.(NodeInfo)
		if time.Now().Unix()-nodeInfo.lastPingTime > consts.NODE_PING_TIMEOUT_SECOND {
			d.UnRegister(nodeInfo.node)
		}
		return true
	})
}

// SendRun 发送 run，HTTP 响应即送达确认
func (d *HttpDispatcher) SendRun(name, yamlString string, runId int, node *model.Node) error {
	logger.Tracef("SendRun: %s(%d) to %s@%s", name, runId, node.Name, node.Address)
	msg := &api.Message{
		Name:    node.Name,
		Address: node.Address,
		Type:    api.MessageType_EXECUTE,
		ExecReq: &api.ExecuteReq{
			Name:         name,
			WorkflowFile: yamlString,
			RunId:        runId,
		},
	}
	if err := d.client.Send(context.Background(), node.Address, msg); err != nil {
		return &model.SendRunError{
			ErrorNode:    utils.GetNodeKey(node.Name, node.Address),
			WorkflowName: name,
			RunId:        runId,
			Err:          err,
		}
	}
	runKey := utils.FormatRunToString(name, runId)
	if nodes, ok := d.RunNodeMap.Load(runKey); ok {
		d.RunNodeMap.Store(runKey, append(nodes.([]*model.Node), node))
	} else {
		d.RunNodeMap.Store(runKey, []*model.Node{node})
	}
	return nil
}

// CancelRunWithNode 通过指定节点取消 run
func (d *HttpDispatcher) CancelRunWithNode(name string, runId int, node *model.Node) error {
	logger.Tracef("CancelRun: %s(%d) to %s@%s", name, runId, node.Name, node.Address)
	msg := &api.Message{
		Name:    node.Name,
		Address: node.Address,
		Type:    api.MessageType_CANCEL,
		ExecReq: &api.ExecuteReq{
			Name:  name,
			RunId: runId,
		},
	}
	return d.client.Send(context.Background(), node.Address, msg)
}

func (d *HttpDispatcher) CancelRun(name string, runId int) error {
	node, err := d.GetRunLatestNode(name, runId)
	if err != nil {
		return fmt.Errorf("run %s(%d) not found execute node", name, runId)
	}
	return d.CancelRunWithNode(name, runId, node)
}

// GetRunNode 获取 run 的执行节点
func (d *HttpDispatcher) GetRunNode(name string, runId int) []*model.Node {
	if nodes, ok := d.RunNodeMap.Load(utils.FormatRunToString(name, runId)); ok {
		return nodes.([]*model.Node)
	}
	return nil
}

func (d *HttpDispatcher) GetRunLatestNode(name string, id int) (*model.Node, error) {
	nodes := d.GetRunNode(name, id)
	if len(nodes) == 0 {
		return nil, errors.New("run node not found")
	}
	return nodes[len(nodes)-1], nil
}

func (d *HttpDispatcher) IsValidNode(n string) bool {
	_, ok := d.nodes.Load(n)
	return ok
}
