package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/entities"
	"github.com/lucasrcezimbra/missas/geo"
	"github.com/lucasrcezimbra/missas/redis/tasks"
	"github.com/lucasrcezimbra/missas/resolver"
)

// Queue hands bulk resolution runs to the background worker. A nil queue
// means runs execute in-process.
type Queue interface {
	EnqueueResolve(ctx context.Context, payload []byte) error
}

type server struct {
	store    entities.Store
	resolver *resolver.Service
	geo      *geo.Service
	queue    Queue
	logger   *zap.Logger
}

func NewServer(store entities.Store, res *resolver.Service, geoSvc *geo.Service, queue Queue, logger *zap.Logger) Server {
	ans := server{
		store:    store,
		resolver: res,
		geo:      geoSvc,
		queue:    queue,
		logger:   logger,
	}

	return &ans
}

func (s *server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type nearbyLocation struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	PlusCode  string  `json:"plus_code,omitempty"`
}

type nearbySchedule struct {
	ID         string         `json:"id"`
	Parish     string         `json:"parish"`
	City       string         `json:"city"`
	State      string         `json:"state"`
	Day        int            `json:"day"`
	StartTime  string         `json:"start_time"`
	EndTime    string         `json:"end_time,omitempty"`
	Type       string         `json:"type"`
	Verified   bool           `json:"verified"`
	Location   nearbyLocation `json:"location"`
	DistanceKM float64        `json:"distance_km"`
}

// Nearby lists the schedules around a point, closest first. The query
// params mirror the public site: lat, long, distancia, dia, horario, tipo
// and verificado.
func (s *server) Nearby(c echo.Context) error {
	lat, err := strconv.ParseFloat(c.QueryParam("lat"), 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "lat is required")
	}

	lng, err := strconv.ParseFloat(c.QueryParam("long"), 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "long is required")
	}

	filters, err := parseFilters(c)
	if err != nil {
		return err
	}

	matches, err := s.geo.Nearby(c.Request().Context(), lat, lng, filters)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	items := make([]nearbySchedule, len(matches))

	for i, match := range matches {
		schedule := match.Schedule
		location := match.Location

		item := nearbySchedule{
			ID:         schedule.ID,
			Parish:     schedule.Parish.Name,
			City:       schedule.Parish.City.Name,
			State:      schedule.Parish.City.State.ShortName,
			Day:        schedule.Day,
			StartTime:  schedule.StartTime.Format("15:04"),
			Type:       schedule.Type,
			Verified:   schedule.VerifiedAt != nil,
			DistanceKM: match.DistanceKM,
			Location: nearbyLocation{
				ID:        location.ID,
				Name:      location.Name,
				Address:   location.Address,
				Latitude:  *location.Latitude,
				Longitude: *location.Longitude,
				PlusCode:  location.PlusCode,
			},
		}

		if schedule.EndTime != nil {
			item.EndTime = schedule.EndTime.Format("15:04")
		}

		items[i] = item
	}

	return c.JSON(http.StatusOK, map[string]any{"schedules": items})
}

func parseFilters(c echo.Context) (geo.Filters, error) {
	var filters geo.Filters

	if v := c.QueryParam("distancia"); v != "" {
		radius, err := strconv.ParseFloat(v, 64)
		if err != nil || radius <= 0 {
			return filters, echo.NewHTTPError(http.StatusBadRequest, "distancia must be a positive number")
		}

		filters.RadiusKM = radius
	}

	if v := c.QueryParam("dia"); v != "" {
		day, err := strconv.Atoi(v)
		if err != nil || day < entities.Sunday || day > entities.Saturday {
			return filters, echo.NewHTTPError(http.StatusBadRequest, "dia must be between 0 and 6")
		}

		filters.Day = &day
	}

	if v := c.QueryParam("horario"); v != "" {
		hour, err := strconv.Atoi(v)
		if err != nil || hour < 0 || hour > 23 {
			return filters, echo.NewHTTPError(http.StatusBadRequest, "horario must be between 0 and 23")
		}

		filters.Hour = &hour
	}

	if v := c.QueryParam("tipo"); v != "" {
		if v != entities.TypeMass && v != entities.TypeConfession {
			return filters, echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("tipo must be %q or %q", entities.TypeMass, entities.TypeConfession))
		}

		filters.Type = v
	}

	if v := c.QueryParam("verificado"); v != "" {
		filters.Verified = v == "true" || v == "1"
	}

	return filters, nil
}

type resolveForm struct {
	Concurrency int `json:"concurrency"`
}

type resolveSummary struct {
	Groups   int `json:"groups"`
	Resolved int `json:"resolved"`
	Pending  int `json:"pending"`
	Reported int `json:"reported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Resolve runs a full resolution pass and reports the outcome tally. With a
// queue configured the run goes to the worker instead and the request
// returns immediately.
func (s *server) Resolve(c echo.Context) error {
	var form resolveForm

	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if form.Concurrency < 1 {
		form.Concurrency = 4
	}

	if s.queue != nil {
		payload, err := json.Marshal(tasks.ResolvePayload{Concurrency: form.Concurrency})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to build task")
		}

		if err := s.queue.EnqueueResolve(c.Request().Context(), payload); err != nil {
			s.logger.Error("failed to enqueue resolve run", zap.Error(err))

			return echo.NewHTTPError(http.StatusServiceUnavailable, "queue unavailable")
		}

		return c.JSON(http.StatusAccepted, map[string]any{"enqueued": true})
	}

	results, err := s.resolver.ResolveAll(c.Request().Context(), form.Concurrency, nil)
	if err != nil {
		s.logger.Error("resolve run failed", zap.Error(err))

		return echo.NewHTTPError(http.StatusInternalServerError, "resolution failed")
	}

	summary := resolveSummary{Groups: len(results)}

	for _, result := range results {
		switch result.Outcome {
		case resolver.OutcomeResolved:
			summary.Resolved++
		case resolver.OutcomePending:
			summary.Pending++
		case resolver.OutcomeReported:
			summary.Reported++
		case resolver.OutcomeSkipped:
			summary.Skipped++
		case resolver.OutcomeFailed:
			summary.Failed++
		}
	}

	return c.JSON(http.StatusOK, summary)
}

type candidatePayload struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Address string `json:"address"`
	PlaceID string `json:"place_id"`
	Source  string `json:"source"`
}

type pendingSelection struct {
	ParishID     string             `json:"parish_id"`
	LocationName string             `json:"location_name"`
	Candidates   []candidatePayload `json:"candidates"`
}

// PendingSelections lists the groups waiting for an operator's choice.
func (s *server) PendingSelections(c echo.Context) error {
	pending := s.resolver.Pending()

	var items []pendingSelection

	for _, key := range pending.Keys() {
		candidates, ok := pending.Get(key)
		if !ok {
			continue
		}

		item := pendingSelection{
			ParishID:     key.ParishID,
			LocationName: key.LocationName,
			Candidates:   make([]candidatePayload, len(candidates)),
		}

		for i, candidate := range candidates {
			item.Candidates[i] = candidatePayload{
				Index:   i,
				Name:    candidate.Name,
				Address: candidate.Address,
				PlaceID: candidate.PlaceID,
				Source:  candidate.Source,
			}
		}

		items = append(items, item)
	}

	return c.JSON(http.StatusOK, map[string]any{"selections": items})
}

type selectionForm struct {
	ParishID     string `json:"parish_id"`
	LocationName string `json:"location_name"`
	Index        int    `json:"index"`
}

// ApplySelection finalizes an operator's choice. An expired selection is
// gone for good; the group goes back through a resolve run instead.
func (s *server) ApplySelection(c echo.Context) error {
	var form selectionForm

	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if form.ParishID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "parish_id is required")
	}

	key := entities.NewGroupKey(form.ParishID, form.LocationName)

	group, err := s.findGroup(c, key)
	if err != nil {
		return err
	}

	result, err := s.resolver.ApplySelection(c.Request().Context(), group, form.Index)
	if err != nil {
		if errors.Is(err, entities.ErrSelectionExpired) {
			return echo.NewHTTPError(http.StatusGone, "selection expired, run resolution again")
		}

		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"location_id": result.Location.ID,
		"attached":    result.Attached,
	})
}

func (s *server) findGroup(c echo.Context, key entities.GroupKey) (entities.Group, error) {
	groups, err := s.store.UnresolvedGroups(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to select unresolved groups", zap.Error(err))

		return entities.Group{}, echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}

	for _, group := range groups {
		if group.Key == key {
			return group, nil
		}
	}

	return entities.Group{}, echo.NewHTTPError(http.StatusNotFound, "no unresolved schedules for this group")
}
