package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"nomadpi/models"
	"nomadpi/services/provisioning"
	"nomadpi/services/tasks"
	"nomadpi/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Enqueuer is the part of *asynq.Client the handlers need.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DeviceHandler serves the device endpoints. When Async is set, provisioning
// runs on the worker queue instead of inside the request.
type DeviceHandler struct {
	Service     provisioning.ProvisioningService
	Queue       Enqueuer
	Async       bool
	TaskTimeout time.Duration
}

// DeviceResponse is the JSON shape of a device.
type DeviceResponse struct {
	ID                string                   `json:"id"`
	Name              string                   `json:"name"`
	UserID            string                   `json:"userId"`
	ProvisioningState models.ProvisioningState `json:"provisioningState"`
	ConfigGenerated   bool                     `json:"configGenerated"`
	ConfigPath        string                   `json:"configPath,omitempty"`
	PublicKey         string                   `json:"publicKey,omitempty"`
	LastError         *models.DeviceError      `json:"lastError,omitempty"`
	CreatedAt         time.Time                `json:"createdAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
}

func newDeviceResponse(d *models.Device) DeviceResponse {
	return DeviceResponse{
		ID:                d.ID,
		Name:              d.Name,
		UserID:            d.OwnerID,
		ProvisioningState: d.State,
		ConfigGenerated:   d.ConfigGenerated(),
		ConfigPath:        d.ArtifactPath,
		PublicKey:         d.PublicKey,
		LastError:         d.LastError,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

type createDeviceRequest struct {
	Name string `json:"name"`
}

// CreateDevice registers a device for the caller and provisions it.
func (h *DeviceHandler) CreateDevice(c *gin.Context) {
	logger := getLogger(c)
	userID := c.GetString("userID")

	var req createDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", string(models.KindInvalidRequest), err.Error())
		return
	}

	device, err := h.Service.CreateDevice(c.Request.Context(), userID, req.Name)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	if h.Async {
		if err := h.enqueue(device); err != nil {
			logger.Error("failed to queue provisioning", zap.String("deviceId", device.ID), zap.Error(err))
			utils.JSONError(c, http.StatusServiceUnavailable, "Failed to queue provisioning", string(models.KindInternal),
				fmt.Sprintf("device %s was created; retry with POST /api/devices/%s/provision", device.ID, device.ID))
			return
		}
		c.JSON(http.StatusCreated, newDeviceResponse(device))
		return
	}

	provisioned, err := h.Service.Provision(c.Request.Context(), device.ID)
	if err != nil {
		logger.Warn("provisioning failed on create", zap.String("deviceId", device.ID), zap.Error(err))
		if models.KindOf(err) == models.KindInternal {
			writeServiceError(c, err)
			return
		}
		if provisioned == nil {
			provisioned = device
		}
		c.JSON(http.StatusBadRequest, provisionFailure{
			ErrorResponse: utils.ErrorResponse{
				Error:   models.MessageOf(err),
				Kind:    string(models.KindOf(err)),
				Details: errorDetails(err),
			},
			Device: newDeviceResponse(provisioned),
		})
		return
	}
	c.JSON(http.StatusCreated, newDeviceResponse(provisioned))
}

// provisionFailure is the 400 body of a create whose provisioning failed.
type provisionFailure struct {
	utils.ErrorResponse
	Device DeviceResponse `json:"device"`
}

// ListDevices returns the caller's devices, newest first.
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices, err := h.Service.ListDevices(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	resp := make([]DeviceResponse, 0, len(devices))
	for i := range devices {
		resp = append(resp, newDeviceResponse(&devices[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DeviceHandler) GetDevice(c *gin.Context) {
	device, err := h.Service.GetDevice(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeviceResponse(device))
}

// DownloadConfig streams the generated WireGuard profile as an attachment.
func (h *DeviceHandler) DownloadConfig(c *gin.Context) {
	artifact, err := h.Service.DownloadConfig(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", artifact.Filename))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Content)
}

// Reprovision retries provisioning for a Failed device, or resumes a
// Pending one whose run was lost.
func (h *DeviceHandler) Reprovision(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString("userID")

	device, err := h.Service.GetDevice(ctx, userID, c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if device.State == models.StateFailed {
		if device, err = h.Service.ResetFailed(ctx, userID, device.ID); err != nil {
			writeServiceError(c, err)
			return
		}
	}
	if device.State == models.StateGenerated {
		writeServiceError(c, models.NewProvisionError(models.KindAlreadyProvisioned, "device configuration has already been generated", nil))
		return
	}

	if h.Async {
		if err := h.enqueue(device); err != nil {
			getLogger(c).Error("failed to queue provisioning", zap.String("deviceId", device.ID), zap.Error(err))
			utils.JSONError(c, http.StatusServiceUnavailable, "Failed to queue provisioning", string(models.KindInternal), err.Error())
			return
		}
		c.JSON(http.StatusAccepted, newDeviceResponse(device))
		return
	}

	provisioned, err := h.Service.Provision(ctx, device.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeviceResponse(provisioned))
}

// ListCommands returns the remote commands issued for a device.
func (h *DeviceHandler) ListCommands(c *gin.Context) {
	cmds, err := h.Service.ListCommands(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmds)
}

func (h *DeviceHandler) enqueue(device *models.Device) error {
	if h.Queue == nil {
		return errors.New("no provisioning queue configured")
	}
	task, opts, err := tasks.NewProvisionTask(device.ID, device.UpdatedAt, h.TaskTimeout)
	if err != nil {
		return err
	}
	if _, err := h.Queue.Enqueue(task, opts...); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	return nil
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindDeviceNotFound, models.KindArtifactNotFound:
		return http.StatusNotFound
	case models.KindConfigNotReady, models.KindInvalidDeviceName, models.KindDuplicateDeviceName, models.KindInvalidRequest:
		return http.StatusBadRequest
	case models.KindAlreadyProvisioned:
		return http.StatusConflict
	case models.KindRemoteUnavailable:
		return http.StatusServiceUnavailable
	case models.KindProvisioningTimeout:
		return http.StatusGatewayTimeout
	case models.KindRemoteCommandFailed:
		return http.StatusBadGateway
	case models.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(c *gin.Context, err error) {
	kind := models.KindOf(err)
	if kind == models.KindInternal {
		getLogger(c).Error("request failed", zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Internal Server Error", string(kind), "")
		return
	}
	utils.JSONError(c, statusFor(kind), models.MessageOf(err), string(kind), errorDetails(err))
}

// errorDetails is the wrapped cause of a typed error, or "" when it adds
// nothing to the message.
func errorDetails(err error) string {
	if err.Error() == models.MessageOf(err) {
		return ""
	}
	return err.Error()
}
