// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"kijiwe/internal/apperrors"
	"kijiwe/internal/http/middleware"
	"kijiwe/internal/infra"
	"kijiwe/internal/modules/chat"
	"kijiwe/internal/modules/dispatch"
	"kijiwe/internal/modules/notify"
	"kijiwe/internal/modules/ride"
	"kijiwe/internal/modules/schedule"
	"kijiwe/internal/modules/user"
	"kijiwe/internal/types"
)

// AccountDeleter removes a user's profile and credentials.
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, id types.ID) error
}

// Notifier delivers a push to one user, best effort.
type Notifier interface {
	Send(ctx context.Context, userID types.ID, n notify.Notification)
}

// AlertRecorder persists a user alert and returns its notification ID.
type AlertRecorder interface {
	RecordAlert(ctx context.Context, userID types.ID, title, body string) (types.ID, error)
}

type ServerDeps struct {
	Dispatch *dispatch.Service
	Rides    *ride.Service
	Schedule *schedule.Service
	Chat     *chat.Service
	Accounts AccountDeleter
	Notifier Notifier
	Alerts   AlertRecorder
	Verifier infra.TokenVerifier
	Log      *slog.Logger
}

type Server struct {
	dispatch *dispatch.Service
	rides    *ride.Service
	schedule *schedule.Service
	chat     *chat.Service
	accounts AccountDeleter
	notifier Notifier
	alerts   AlertRecorder
	verifier infra.TokenVerifier
	log      *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		dispatch: deps.Dispatch,
		rides:    deps.Rides,
		schedule: deps.Schedule,
		chat:     deps.Chat,
		accounts: deps.Accounts,
		notifier: deps.Notifier,
		alerts:   deps.Alerts,
		verifier: deps.Verifier,
		log:      deps.Log,
	}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(s.log))
	r.Use(middleware.Logging(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(s.verifier))
	api.POST("/rides", s.handleCreateRide)
	api.POST("/rides/:id/action", s.handleRideAction)
	api.POST("/rides/:id/chat", s.handleChatMessage)
	api.POST("/scheduled-rides", s.handleCreateScheduledRide)
	api.POST("/scheduled-rides/:id/manage", s.handleManageScheduledRide)
	api.POST("/users/:id/notifications", s.handleUserNotification)
	api.DELETE("/account", s.handleDeleteAccount)

	return r
}

func (s *Server) handleCreateRide(c *gin.Context) {
	var req dispatch.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.New(apperrors.InvalidArgument, "invalid json body"))
		return
	}
	id, err := s.dispatch.Submit(c.Request.Context(), types.ID(middleware.CallerUID(c)), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "rideRequestId": id})
}

func (s *Server) handleRideAction(c *gin.Context) {
	var req ride.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.New(apperrors.InvalidArgument, "invalid json body"))
		return
	}
	req.RideRequestID = types.ID(c.Param("id"))
	if req.RideRequestID == "" || req.Action == "" {
		writeError(c, apperrors.New(apperrors.InvalidArgument, "missing rideRequestId or action"))
		return
	}
	res, err := s.rides.HandleDriverAction(c.Request.Context(), types.ID(middleware.CallerUID(c)), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleChatMessage(c *gin.Context) {
	var req chat.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.New(apperrors.InvalidArgument, "invalid json body"))
		return
	}
	m, err := s.chat.Send(c.Request.Context(), types.ID(middleware.CallerUID(c)), types.ID(c.Param("id")), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "messageId": m.ID})
}

func (s *Server) handleCreateScheduledRide(c *gin.Context) {
	var req schedule.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.New(apperrors.InvalidArgument, "invalid json body"))
		return
	}
	id, err := s.schedule.Create(c.Request.Context(), types.ID(middleware.CallerUID(c)), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "scheduledRideId": id})
}

func (s *Server) handleManageScheduledRide(c *gin.Context) {
	var req schedule.ManageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.New(apperrors.InvalidArgument, "invalid json body"))
		return
	}
	req.RideID = types.ID(c.Param("id"))
	if err := s.schedule.Manage(c.Request.Context(), types.ID(middleware.CallerUID(c)), req); err != nil {
		writeError(c, err)
		return
	}
	msg := "Scheduled ride updated successfully."
	if req.Action == "delete" {
		msg = "Scheduled ride deleted successfully."
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

type userNotificationReq struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *Server) handleUserNotification(c *gin.Context) {
	var req userNotificationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.New(apperrors.InvalidArgument, "invalid json body"))
		return
	}
	if req.Title == "" || req.Body == "" {
		writeError(c, apperrors.New(apperrors.InvalidArgument, "title and body are required"))
		return
	}
	targetID := types.ID(c.Param("id"))
	// Only admins may notify other users; everyone else can only write to
	// their own notification feed.
	if middleware.CallerRole(c) != string(user.RoleAdmin) && types.ID(middleware.CallerUID(c)) != targetID {
		writeError(c, apperrors.New(apperrors.PermissionDenied, "user is not authorized to notify this user"))
		return
	}
	notifID, err := s.alerts.RecordAlert(c.Request.Context(), targetID, req.Title, req.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	s.notifier.Send(c.Request.Context(), targetID, notify.UserAlert{
		NotificationID: string(notifID),
		NotifTitle:     req.Title,
		NotifBody:      req.Body,
	})
	c.JSON(http.StatusCreated, gin.H{"success": true, "notificationId": notifID})
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	if err := s.accounts.DeleteAccount(c.Request.Context(), uid); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Account deleted."})
}

func writeError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), gin.H{
		"success": false,
		"error":   string(apperrors.KindOf(err)),
		"message": apperrors.MessageOf(err),
	})
}
