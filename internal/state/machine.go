package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 回填任务状态常量
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// 事件常量
const (
	EventStart    = "start"
	EventComplete = "complete"
	EventFail     = "fail"
)

// RunState 回填任务状态快照
type RunState struct {
	RunID         string         `json:"run_id"`
	SerialNumber  string         `json:"serial_number"`
	CurrentState  string         `json:"state"`
	Since         time.Time      `json:"since"`
	Generated     int            `json:"generated"`
	Inserted      int            `json:"inserted"`
	AnomalyCounts map[string]int `json:"anomaly_counts,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Machine 回填任务状态机
type Machine struct {
	mu            sync.RWMutex
	runID         string
	fsm           *fsm.FSM
	state         *RunState
	onStateChange func(runID string, from, to string)
}

// NewMachine 创建状态机，初始为 idle
func NewMachine(runID, serialNumber string, onStateChange func(runID string, from, to string)) *Machine {
	m := &Machine{
		runID:         runID,
		onStateChange: onStateChange,
		state: &RunState{
			RunID:        runID,
			SerialNumber: serialNumber,
			CurrentState: StateIdle,
			Since:        time.Now(),
		},
	}

	m.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventStart, Src: []string{StateIdle}, Dst: StateRunning},
			{Name: EventComplete, Src: []string{StateRunning}, Dst: StateCompleted},
			{Name: EventFail, Src: []string{StateIdle, StateRunning}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(m.runID, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// GetState 获取完整状态 (副本)
func (m *Machine) GetState() *RunState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stateCopy := *m.state
	stateCopy.CurrentState = m.fsm.Current()
	if m.state.AnomalyCounts != nil {
		stateCopy.AnomalyCounts = make(map[string]int, len(m.state.AnomalyCounts))
		for k, v := range m.state.AnomalyCounts {
			stateCopy.AnomalyCounts[k] = v
		}
	}
	return &stateCopy
}

// UpdateState 更新状态数据
func (m *Machine) UpdateState(update func(s *RunState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	update(m.state)
}

// Trigger 触发事件
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}

	m.state.CurrentState = m.fsm.Current()
	m.state.Since = time.Now()
	return nil
}

// IsTerminal 是否已结束
func (m *Machine) IsTerminal() bool {
	current := m.CurrentState()
	return current == StateCompleted || current == StateFailed
}

// Manager 状态机管理器
type Manager struct {
	mu       sync.RWMutex
	machines map[string]*Machine
	onChange func(runID string, from, to string)
}

// NewManager 创建管理器
func NewManager(onChange func(runID string, from, to string)) *Manager {
	return &Manager{
		machines: make(map[string]*Machine),
		onChange: onChange,
	}
}

// Create 为新任务创建状态机，runID 已存在时报错
func (m *Manager) Create(runID, serialNumber string) (*Machine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.machines[runID]; ok {
		return nil, fmt.Errorf("run %s already exists", runID)
	}

	machine := NewMachine(runID, serialNumber, m.onChange)
	m.machines[runID] = machine
	return machine, nil
}

// Get 获取状态机
func (m *Manager) Get(runID string) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.machines[runID]
	return machine, ok
}

// GetAllStates 获取所有任务状态
func (m *Manager) GetAllStates() map[string]*RunState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]*RunState)
	for runID, machine := range m.machines {
		states[runID] = machine.GetState()
	}
	return states
}

// HasRunning 该序列号是否有正在运行的任务
func (m *Manager) HasRunning(serialNumber string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, machine := range m.machines {
		if machine.CurrentState() == StateRunning && machine.GetState().SerialNumber == serialNumber {
			return true
		}
	}
	return false
}
