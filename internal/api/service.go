package api

import (
	"net/http"
	"strconv"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Service struct {
	storage *storage.Storage
}

// NewService accepts a nil storage; /journal then answers 503.
func NewService(storage *storage.Storage) *Service {
	return &Service{storage: storage}
}

func (s *Service) Register(e *echo.Echo, withMetrics bool) {
	e.GET("/healthz", s.HandleHealth())
	e.GET("/journal", s.HandleJournal())
	if withMetrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
}

func (s *Service) HandleHealth() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
}

type journalEntryResponse struct {
	ID       string         `json:"id"`
	Channel  string         `json:"channel"`
	ChatID   int64          `json:"chat_id"`
	Actor    string         `json:"actor"`
	TargetID int64          `json:"target_id,omitempty"`
	Action   string         `json:"action"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Time     string         `json:"time"`
}

func (s *Service) HandleJournal() echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.storage == nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "journal storage is not configured"})
		}

		filter := storage.EntryFilter{}

		if raw := c.QueryParam("chat_id"); raw != "" {
			chatID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "chat_id must be an integer"})
			}
			filter.ChatID = chatID
		}

		if raw := c.QueryParam("channel"); raw != "" {
			switch channel := models.JournalChannel(raw); channel {
			case models.JournalChannelAdmin, models.JournalChannelChat, models.JournalChannelError:
				filter.Channel = channel
			default:
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "channel must be one of admin, chat, error"})
			}
		}

		if raw := c.QueryParam("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be a positive integer"})
			}
			filter.Limit = limit
		}

		entries, err := s.storage.ListEntries(c.Request().Context(), filter)
		if err != nil {
			logrus.Errorf("failed to list journal: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list journal"})
		}

		resp := make([]journalEntryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, journalEntryResponse{
				ID:       e.ID,
				Channel:  string(e.Channel),
				ChatID:   e.ChatID,
				Actor:    e.Actor,
				TargetID: e.TargetID,
				Action:   e.Action,
				Message:  e.Message,
				Details:  e.Details,
				Time:     e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			})
		}
		return c.JSON(http.StatusOK, resp)
	}
}
