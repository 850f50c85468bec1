package types

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              错误分类
// ============================================================================

var (
	// ErrProtocolViolation 协议违规：对会话致命，连接被销毁
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrNotFound 资源不存在：仅报告给调用方，会话保持可用
	ErrNotFound = errors.New("resource not found")

	// ErrConflict 资源已被占用：仅报告给调用方，会话保持可用
	ErrConflict = errors.New("resource conflict")

	// ErrTransport 外部传输错误（拨号/监听/套接字）
	ErrTransport = errors.New("transport error")

	// ErrUpgradeFailed 升级失败：不作为顶层失败，回退到中继连接
	ErrUpgradeFailed = errors.New("upgrade failed")
)

// codedError 具体错误，errors.Is 同时匹配自身与其所属分类
type codedError struct {
	code  string
	msg   string
	class error
}

func (e *codedError) Error() string { return e.msg }

// Is 匹配所属分类
func (e *codedError) Is(target error) bool { return target == e.class }

var registry = map[string]*codedError{}

func define(class error, code, msg string) error {
	e := &codedError{code: code, msg: msg, class: class}
	registry[code] = e
	return e
}

// 协议违规
var (
	ErrInvalidMessage     = define(ErrProtocolViolation, "invalid_message", "peer sent invalid PXP message")
	ErrUnknownCommand     = define(ErrProtocolViolation, "unknown_command", "peer sent unknown PXP message")
	ErrUnexpectedResponse = define(ErrProtocolViolation, "unexpected_response", "peer sent response for unknown nonce")
	ErrDuplicateMessage   = define(ErrProtocolViolation, "duplicate_message", "peer sent duplicate handshake message")
	ErrVersionMismatch    = define(ErrProtocolViolation, "version_mismatch", "peer has an invalid protocol version")
	ErrNetworkMismatch    = define(ErrProtocolViolation, "network_mismatch", "peer shares no network with us")
	ErrNotReady           = define(ErrProtocolViolation, "not_ready", "peer sent command before handshake completed")
)

// 资源不存在
var (
	ErrUnknownCandidate = define(ErrNotFound, "unknown_candidate", "unknown candidate")
	ErrUnknownNetwork   = define(ErrNotFound, "unknown_network", "unknown network")
	ErrNoPeers          = define(ErrNotFound, "no_peers", "not connected to any peers")
	ErrNoCandidates     = define(ErrNotFound, "no_candidates", "peer did not return any candidates")
	ErrUnknownTransport = define(ErrNotFound, "unknown_transport", "unknown upgrade transport")
	ErrNotAccepting     = define(ErrNotFound, "not_accepting", "not accepting incoming relays")
)

// 资源冲突
var (
	ErrDuplicateConnect = define(ErrConflict, "duplicate_connect", "peer tried to connect to network twice")
)

// 分类编码（用于没有具体错误时的线上表示）
const (
	CodeProtocol  = "protocol"
	CodeNotFound  = "not_found"
	CodeConflict  = "conflict"
	CodeTransport = "transport"
	CodeUpgrade   = "upgrade"
	CodeInternal  = "internal"
)

var classByCode = map[string]error{
	CodeProtocol:  ErrProtocolViolation,
	CodeNotFound:  ErrNotFound,
	CodeConflict:  ErrConflict,
	CodeTransport: ErrTransport,
	CodeUpgrade:   ErrUpgradeFailed,
}

// ErrorCode 返回错误的线上编码
func ErrorCode(err error) string {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Code
	}
	for code, class := range classByCode {
		if errors.Is(err, class) {
			return code
		}
	}
	return CodeInternal
}

// ============================================================================
//                              RemoteError
// ============================================================================

// RemoteError 对端在 res 中返回的错误
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewRemoteError 从本地错误构造线上错误
func NewRemoteError(err error) *RemoteError {
	return &RemoteError{Code: ErrorCode(err), Message: err.Error()}
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote: %s", e.Message)
}

// Is 按编码匹配具体错误或其分类
func (e *RemoteError) Is(target error) bool {
	if known, ok := registry[e.Code]; ok {
		return target == error(known) || target == known.class
	}
	if class, ok := classByCode[e.Code]; ok {
		return target == class
	}
	return false
}
