package transport

// Registry 传输注册表接口
//
// 按名称管理传输提供者（名称 → 拨号/监听）与升级器。
type Registry interface {
	// AddTransport 添加传输，同名传输已存在时返回错误
	AddTransport(t Transport) error

	// Transport 按名称获取传输
	Transport(name string) (Transport, bool)

	// Transports 返回所有传输
	Transports() []Transport

	// AddUpgrader 添加升级器，同名升级器已存在时返回错误
	AddUpgrader(u Upgrader) error

	// Upgrader 按传输名称获取升级器
	Upgrader(name string) (Upgrader, bool)

	// Upgraders 返回所有升级器
	Upgraders() []Upgrader
}
