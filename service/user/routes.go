package user

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/cmd/utils"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour
)

type Handler struct {
	db       *gorm.DB
	logger   *zap.Logger
	validate *validator.Validate
}

func NewHandler(db *gorm.DB, logger *zap.Logger) *Handler {
	return &Handler{db: db, logger: logger, validate: validator.New()}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/register", h.HandleRegister).Methods("POST")
	router.HandleFunc("/login", h.HandleLogin).Methods("POST")
	router.HandleFunc("/refresh", h.HandleRefreshToken).Methods("POST")
	router.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	router.HandleFunc("/mentors", h.GetMentors).Methods("GET")
}

type registerRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Role      string `json:"role" validate:"required,oneof=mentor customer"`
	Phone     string `json:"phone" validate:"max=20"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation(err.Error()))
		return
	}

	var existing models.User
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		apperrors.WriteJSON(w, apperrors.Conflict("a user with this email already exists"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("hashing password", err))
		return
	}

	user := models.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         req.Role,
		Phone:        req.Phone,
		Tier:         models.TierFree,
		IsActive:     true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("creating user", err))
		return
	}

	h.logger.Info("user registered",
		zap.Uint("user_id", user.ID), zap.String("role", user.Role))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Unauthorized("invalid email or password"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		apperrors.WriteJSON(w, apperrors.Unauthorized("invalid email or password"))
		return
	}
	if !user.IsActive {
		apperrors.WriteJSON(w, apperrors.Forbidden("account is deactivated"))
		return
	}

	accessToken, err := utils.GenerateToken(user.ID, accessTokenTTL)
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("generating access token", err))
		return
	}
	refreshToken, err := utils.GenerateToken(user.ID, refreshTokenTTL)
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("generating refresh token", err))
		return
	}

	now := time.Now()
	user.Refresh = refreshToken
	user.RefreshTokenExpiredAt = now.Add(refreshTokenTTL)
	user.LastActive = now
	if err := h.db.Save(&user).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("saving refresh token", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user":          user,
	})
}

func (h *Handler) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}
	if req.RefreshToken == "" {
		apperrors.WriteJSON(w, apperrors.Unauthorized("invalid refresh token"))
		return
	}

	var user models.User
	if err := h.db.Where(&models.User{Refresh: req.RefreshToken}).First(&user).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Unauthorized("invalid refresh token"))
		return
	}
	if time.Now().After(user.RefreshTokenExpiredAt) {
		apperrors.WriteJSON(w, apperrors.Unauthorized("refresh token expired"))
		return
	}

	accessToken, err := utils.GenerateToken(user.ID, accessTokenTTL)
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("generating access token", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"access_token": accessToken})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid user ID"))
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.NotFound("user"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *Handler) GetMentors(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 20

	query := h.db.Model(&models.User{}).
		Where("role = ? AND is_active = ?", models.RoleMentor, true)
	if search := r.URL.Query().Get("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("first_name ILIKE ? OR last_name ILIKE ? OR about_me ILIKE ?", like, like, like)
	}

	var total int64
	query.Count(&total)

	var mentors []models.User
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).Find(&mentors).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("retrieving mentors", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"mentors":     mentors,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}
