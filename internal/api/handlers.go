package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/models"
	"github.com/benbakir04-create/teachers-report/backend/internal/reports"
	"github.com/benbakir04-create/teachers-report/backend/internal/uuid"
)

const redacted = "***REDACTED***"

// idParam returns the :id path parameter, rejecting anything that is not
// a UUID before it reaches the store.
func idParam(c echo.Context) (string, error) {
	id := c.Param("id")
	if err := uuid.Validate(id); err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "invalid id", err)
	}
	return id, nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":   "ok",
		"service":  "teachers-report",
		"online":   s.deps.Observer.IsOnline(),
		"degraded": s.deps.Degraded(),
	})
}

// Reports

func (s *Server) createReport(c echo.Context) error {
	var report models.Report
	if err := c.Bind(&report); err != nil {
		return err
	}
	res, err := s.deps.Reports.Save(c.Request().Context(), report)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) listReports(c echo.Context) error {
	filter := reports.Filter{
		TeacherID: c.QueryParam("teacher"),
		From:      c.QueryParam("from"),
		To:        c.QueryParam("to"),
	}
	list, err := s.deps.Reports.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"reports": list, "count": len(list)})
}

func (s *Server) getReport(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	report, err := s.deps.Reports.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// Sync

type statusResponse struct {
	Pending   int         `json:"pending"`
	Online    bool        `json:"online"`
	Degraded  bool        `json:"degraded"`
	Scheduler interface{} `json:"scheduler"`
}

func (s *Server) syncStatus(c echo.Context) error {
	status, err := s.deps.Scheduler.Status(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{
		Pending:   status.PendingItems,
		Online:    status.IsOnline,
		Degraded:  s.deps.Degraded(),
		Scheduler: status,
	})
}

func (s *Server) drain(c echo.Context) error {
	result, err := s.deps.Scheduler.DrainNow(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) deadLetters(c echo.Context) error {
	items, err := s.deps.Queue.DeadLetters(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

func (s *Server) requeue(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	item, err := s.deps.Queue.Requeue(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if s.deps.Observer.IsOnline() {
		s.deps.Scheduler.TriggerDrain()
	}
	return c.JSON(http.StatusOK, item)
}

// Connectivity

type connectivityRequest struct {
	Online *bool `json:"online"`
}

func (s *Server) setConnectivity(c echo.Context) error {
	var req connectivityRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Online == nil {
		return apperrors.New(apperrors.ErrInvalid, "online is required")
	}
	s.deps.Observer.Set(*req.Online)
	return c.JSON(http.StatusOK, echo.Map{"online": s.deps.Observer.IsOnline()})
}

func (s *Server) getConnectivity(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"online": s.deps.Observer.IsOnline()})
}

// Settings

type settingRequest struct {
	Value  string `json:"value"`
	Secret bool   `json:"secret"`
}

func (s *Server) putSetting(c echo.Context) error {
	var req settingRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	key := c.Param("key")
	if err := s.deps.Reports.SetSetting(c.Request().Context(), key, req.Value, req.Secret); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getSetting(c echo.Context) error {
	setting, err := s.deps.Reports.GetSetting(c.Request().Context(), c.Param("key"))
	if err != nil {
		return err
	}
	if setting.Encrypted {
		setting.Value = redacted
	}
	return c.JSON(http.StatusOK, setting)
}
