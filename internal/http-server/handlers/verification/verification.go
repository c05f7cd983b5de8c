package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/skylinesee/reeQute/entity"
	"github.com/skylinesee/reeQute/internal/bridge"
	"github.com/skylinesee/reeQute/internal/verification"
	"github.com/skylinesee/reeQute/lib/api/response"
	"github.com/skylinesee/reeQute/lib/sl"
)

type Core interface {
	RequestCode(ctx context.Context, handle string) (*entity.Result, error)
	RedeemCode(ctx context.Context, handle, code string) (*entity.Result, error)
	CheckStatus(ctx context.Context, handle string) (*entity.Result, error)
}

func Request(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		var req entity.CodeRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Debug("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Discord username is required"))
			return
		}
		logger = logger.With(sl.Handle(req.DiscordUsername))

		result, err := handler.RequestCode(r.Context(), req.DiscordUsername)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}
		logger.Debug("code requested")
		render.JSON(w, r, response.Ok(result.Message))
	}
}

func Verify(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		var req entity.RedeemRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Debug("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Username and code are required"))
			return
		}
		logger = logger.With(sl.Handle(req.DiscordUsername))

		result, err := handler.RedeemCode(r.Context(), req.DiscordUsername, req.Code)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}
		logger.With(slog.Bool("temporary", result.Temporary)).Info("verification succeeded")
		render.JSON(w, r, resultResponse(result))
	}
}

func CheckStatus(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		var req entity.CodeRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Debug("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Discord username is required"))
			return
		}
		logger = logger.With(sl.Handle(req.DiscordUsername))

		result, err := handler.CheckStatus(r.Context(), req.DiscordUsername)
		if err != nil {
			renderError(w, r, logger, err)
			return
		}
		render.JSON(w, r, resultResponse(result))
	}
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.verification"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func resultResponse(result *entity.Result) response.Response {
	resp := response.Error(result.Message)
	if result.Success {
		resp = response.Ok(result.Message)
	}
	if result.Temporary {
		return resp.WithGrant(true, result.ExpiresIn, result.Expiry.Unix())
	}
	if result.Success {
		return resp.WithGrant(false, 0, 0)
	}
	return resp
}

func renderError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("verification request failed", sl.Err(err))
	} else {
		logger.Debug("verification request rejected", sl.Err(err))
	}
	render.Status(r, status)
	render.JSON(w, r, response.Error(message))
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, verification.ErrNoCode):
		return http.StatusBadRequest, "No verification code found for this user"
	case errors.Is(err, verification.ErrInvalidCode):
		return http.StatusBadRequest, "Invalid verification code"
	case errors.Is(err, verification.ErrValidation):
		return http.StatusBadRequest, fmt.Sprintf("Invalid request: %v", err)
	case errors.Is(err, verification.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, bridge.ErrQueueFull),
		errors.Is(err, bridge.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Service is busy, please try again later"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
