package transport

import "errors"

var (
	// ErrTransportExists 同名传输已登记
	ErrTransportExists = errors.New("transport already registered")

	// ErrUpgraderExists 同名升级器已登记
	ErrUpgraderExists = errors.New("upgrader already registered")
)
