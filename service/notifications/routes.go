package notifications

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"github.com/gorilla/mux"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type NotificationHandler struct {
	db         *gorm.DB
	expoClient *expo.PushClient
	logger     *zap.Logger
}

func NewNotificationHandler(db *gorm.DB, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		db:         db,
		expoClient: expo.NewPushClient(nil),
		logger:     logger,
	}
}

func (h *NotificationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/devices", h.RegisterDevice).Methods("POST")
	router.HandleFunc("/devices/{id}", h.DeleteDevice).Methods("DELETE")
	router.HandleFunc("/users/{userId}/devices", h.GetUserDevices).Methods("GET")
	router.HandleFunc("/users/{userId}/history", h.GetUserNotificationHistory).Methods("GET")
}

func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var device models.Device
	if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}
	if device.UserID == "" || device.Token == "" {
		apperrors.WriteJSON(w, apperrors.Validation("userId and token are required"))
		return
	}
	if _, err := expo.NewExponentPushToken(device.Token); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid Expo push token format"))
		return
	}

	var existing models.Device
	result := h.db.Where("token = ? AND user_id = ?", device.Token, device.UserID).First(&existing)
	if result.Error == nil {
		existing.DeviceType = device.DeviceType
		existing.DeviceName = device.DeviceName
		if err := h.db.Save(&existing).Error; err != nil {
			apperrors.WriteJSON(w, apperrors.Internal("updating device", err))
			return
		}
		device = existing
	} else {
		if err := h.db.Create(&device).Error; err != nil {
			apperrors.WriteJSON(w, apperrors.Internal("registering device", err))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Device registered successfully",
		"device":  device,
	})
}

func (h *NotificationHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid device ID"))
		return
	}

	result := h.db.Delete(&models.Device{}, id)
	if result.Error != nil {
		apperrors.WriteJSON(w, apperrors.Internal("deleting device", result.Error))
		return
	}
	if result.RowsAffected == 0 {
		apperrors.WriteJSON(w, apperrors.NotFound("device"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) GetUserDevices(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	var devices []models.Device
	if err := h.db.Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("retrieving devices", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

func (h *NotificationHandler) GetUserNotificationHistory(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	var history []models.NotificationHistory
	if err := h.db.Where("user_id = ?", userID).Order("sent_at DESC").Limit(100).Find(&history).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("retrieving notification history", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

// PushToUser sends a push to every device the user has registered. Push
// delivery is best effort: failures are recorded in history and logged,
// never returned, so callers can fire and forget after state changes.
func (h *NotificationHandler) PushToUser(userID uint, title, body string, data map[string]interface{}) {
	userIDStr := strconv.FormatUint(uint64(userID), 10)

	var devices []models.Device
	if err := h.db.Where("user_id = ?", userIDStr).Find(&devices).Error; err != nil {
		h.logger.Warn("loading devices for push", zap.Uint("user_id", userID), zap.Error(err))
		return
	}
	if len(devices) == 0 {
		return
	}

	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		tokens = append(tokens, d.Token)
	}

	status := "sent"
	if err := h.sendExpoNotification(tokens, title, body, data); err != nil {
		status = "failed"
		h.logger.Warn("push notification failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	dataJSON, _ := json.Marshal(data)
	history := models.NotificationHistory{
		UserID: userIDStr,
		Title:  title,
		Body:   body,
		Data:   string(dataJSON),
		Status: status,
		SentAt: time.Now(),
	}
	if err := h.db.Create(&history).Error; err != nil {
		h.logger.Warn("recording notification history", zap.Error(err))
	}
}

func (h *NotificationHandler) sendExpoNotification(tokenStrings []string, title, body string, data map[string]interface{}) error {
	var validTokens []expo.ExponentPushToken
	var invalidTokens []string
	for _, tokenString := range tokenStrings {
		pushToken, err := expo.NewExponentPushToken(tokenString)
		if err != nil {
			invalidTokens = append(invalidTokens, tokenString)
			continue
		}
		validTokens = append(validTokens, pushToken)
	}
	if len(validTokens) == 0 {
		return fmt.Errorf("no valid push tokens found")
	}

	var stringData map[string]string
	if data != nil {
		stringData = make(map[string]string)
		for key, value := range data {
			stringData[key] = fmt.Sprintf("%v", value)
		}
	}

	pushMessage := &expo.PushMessage{
		To:       validTokens,
		Body:     body,
		Title:    title,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data:     stringData,
	}

	response, err := h.expoClient.Publish(pushMessage)
	if err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	if validationErr := response.ValidateResponse(); validationErr != nil {
		h.cleanupInvalidTokens(invalidTokens)
		return fmt.Errorf("notification validation failed: %w", validationErr)
	}

	if len(invalidTokens) > 0 {
		h.cleanupInvalidTokens(invalidTokens)
	}
	return nil
}

func (h *NotificationHandler) cleanupInvalidTokens(tokens []string) {
	if len(tokens) == 0 {
		return
	}
	if err := h.db.Where("token IN ?", tokens).Delete(&models.Device{}).Error; err != nil {
		h.logger.Warn("cleaning up invalid push tokens", zap.Error(err))
	}
}
