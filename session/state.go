package session

import "fmt"

// State 会话状态
type State int

const (
	StateInit State = iota
	StateConnecting
	StateConfigured
	StateListening
	StateProcessing
	StateResponding
	StateIdle
	StateError
	StateClosed
)

var stateNames = [...]string{
	StateInit:       "INIT",
	StateConnecting: "CONNECTING",
	StateConfigured: "CONFIGURED",
	StateListening:  "LISTENING",
	StateProcessing: "PROCESSING",
	StateResponding: "RESPONDING",
	StateIdle:       "IDLE",
	StateError:      "ERROR",
	StateClosed:     "CLOSED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText 以状态名序列化，便于日志与 JSON 输出
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the session has ended.
func (s State) Terminal() bool {
	return s == StateError || s == StateClosed
}

// connected 上游已完成配置，可以收发音频
func (s State) connected() bool {
	return s >= StateConfigured && s <= StateIdle
}
