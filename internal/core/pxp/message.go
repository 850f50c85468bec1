package pxp

import (
	"encoding/json"
	"fmt"

	"github.com/dep2p/go-pxp/pkg/types"
)

// Command 控制协议命令
type Command string

// 命令集合是封闭的
const (
	CmdHello    Command = "hello"
	CmdGetPeers Command = "getpeers"
	CmdRelay    Command = "relay"
	CmdIncoming Command = "incoming"
	CmdUpgrade  Command = "upgrade"
	CmdConnect  Command = "connect"
	CmdRes      Command = "res"
)

var commands = map[Command]struct{}{
	CmdHello:    {},
	CmdGetPeers: {},
	CmdRelay:    {},
	CmdIncoming: {},
	CmdUpgrade:  {},
	CmdConnect:  {},
	CmdRes:      {},
}

// Valid 是否为已知命令
func (c Command) Valid() bool {
	_, ok := commands[c]
	return ok
}

// Message 一条入站请求
type Message struct {
	Command Command
	Nonce   string
	// Args 原始参数，省略时为 nil
	Args json.RawMessage
}

// Decode 按位置解码参数
//
// 只传一个目标时直接解码折叠后的单值；多个目标时 Args 必须是数组，
// 多余的数组元素被忽略，缺失的元素保持零值。
func (m *Message) Decode(dst ...any) error {
	if len(dst) == 0 {
		return nil
	}
	if len(m.Args) == 0 {
		return fmt.Errorf("%w: %s has no args", types.ErrInvalidMessage, m.Command)
	}
	if len(dst) == 1 {
		if err := json.Unmarshal(m.Args, dst[0]); err != nil {
			return fmt.Errorf("%w: %s args: %v", types.ErrInvalidMessage, m.Command, err)
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(m.Args, &items); err != nil {
		return fmt.Errorf("%w: %s args: %v", types.ErrInvalidMessage, m.Command, err)
	}
	for i, d := range dst {
		if i >= len(items) {
			break
		}
		if err := json.Unmarshal(items[i], d); err != nil {
			return fmt.Errorf("%w: %s arg %d: %v", types.ErrInvalidMessage, m.Command, i, err)
		}
	}
	return nil
}

// collapse 单参数折叠为单值，无参数返回 nil
func collapse(args []any) (any, bool) {
	switch len(args) {
	case 0:
		return nil, false
	case 1:
		return args[0], true
	default:
		return args, true
	}
}

// response res 记录的参数
type response struct {
	Err    *types.RemoteError
	Result json.RawMessage
}

func (r response) MarshalJSON() ([]byte, error) {
	if r.Result == nil {
		return json.Marshal([]any{r.Err})
	}
	return json.Marshal([]any{r.Err, r.Result})
}

func decodeResponse(raw json.RawMessage) (response, error) {
	var out response
	if len(raw) == 0 {
		return out, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out, fmt.Errorf("%w: res args: %v", types.ErrInvalidMessage, err)
	}
	if len(items) > 0 && string(items[0]) != "null" {
		out.Err = &types.RemoteError{}
		if err := json.Unmarshal(items[0], out.Err); err != nil {
			return out, fmt.Errorf("%w: res error: %v", types.ErrInvalidMessage, err)
		}
	}
	if len(items) > 1 {
		out.Result = items[1]
	}
	return out, nil
}
