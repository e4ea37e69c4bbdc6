package types

import (
	"fmt"
	"sync"
)

// State 写路径状态机的状态
type State string

const (
	StateBuilt             State = "BUILT"
	StateSimulating        State = "SIMULATING"
	StatePrepared          State = "PREPARED"
	StateAwaitingSignature State = "AWAITING_SIGNATURE"
	StateSigned            State = "SIGNED"
	StateSubmitted         State = "SUBMITTED"
	StatePolling           State = "POLLING"
	StateSuccess           State = "SUCCESS"
	StateFailed            State = "FAILED"
	StateTimeout           State = "TIMEOUT"

	// 提前退出的终态
	StateAccountFetchFailed State = "ACCOUNT_FETCH_FAILED"
	StateSimulationFailed   State = "SIMULATION_FAILED"
	StateUserCancelled      State = "USER_CANCELLED"
	StateSigningFailed      State = "SIGNING_FAILED"
)

// transitions 允许的状态迁移
var transitions = map[State][]State{
	"":                     {StateBuilt, StateAccountFetchFailed},
	StateBuilt:             {StateSimulating},
	StateSimulating:        {StatePrepared, StateSimulationFailed, StateFailed},
	StatePrepared:          {StateAwaitingSignature},
	StateAwaitingSignature: {StateSigned, StateUserCancelled, StateSigningFailed},
	StateSigned:            {StateSubmitted, StateFailed, StateTimeout},
	StateSubmitted:         {StatePolling},
	StatePolling:           {StateSuccess, StateFailed, StateTimeout},
}

// Terminal 是否为终态
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateFailed, StateTimeout,
		StateAccountFetchFailed, StateSimulationFailed, StateUserCancelled, StateSigningFailed:
		return true
	}
	return false
}

// StateMachine 一次调用的状态跟踪器（状态不可重入，重试必须新建实例）
type StateMachine struct {
	mu       sync.Mutex
	current  State
	history  []State
	onChange func(from, to State)
}

// NewStateMachine 创建状态跟踪器
func NewStateMachine(onChange func(from, to State)) *StateMachine {
	return &StateMachine{onChange: onChange}
}

// Current 当前状态
func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History 已经过的状态
func (m *StateMachine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]State, len(m.history))
	copy(cp, m.history)
	return cp
}

// Transition 迁移到下一个状态
func (m *StateMachine) Transition(to State) error {
	m.mu.Lock()
	from := m.current
	allowed := false
	for _, next := range transitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		return fmt.Errorf("invalid state transition %q -> %q", from, to)
	}
	m.current = to
	m.history = append(m.history, to)
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(from, to)
	}
	return nil
}
