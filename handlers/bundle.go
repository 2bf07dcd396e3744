// File: nomadpi/handlers/bundle.go
package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups the endpoint handlers handed to the router.
type HandlerBundle struct {
	JWTSecret []byte

	// Device endpoints
	CreateDeviceHandler   gin.HandlerFunc
	ListDevicesHandler    gin.HandlerFunc
	GetDeviceHandler      gin.HandlerFunc
	DownloadConfigHandler gin.HandlerFunc
	ReprovisionHandler    gin.HandlerFunc
	ListCommandsHandler   gin.HandlerFunc
}

// NewHandlerBundle wires a DeviceHandler into a bundle.
func NewHandlerBundle(devices *DeviceHandler, jwtSecret []byte) *HandlerBundle {
	return &HandlerBundle{
		JWTSecret:             jwtSecret,
		CreateDeviceHandler:   devices.CreateDevice,
		ListDevicesHandler:    devices.ListDevices,
		GetDeviceHandler:      devices.GetDevice,
		DownloadConfigHandler: devices.DownloadConfig,
		ReprovisionHandler:    devices.Reprovision,
		ListCommandsHandler:   devices.ListCommands,
	}
}
