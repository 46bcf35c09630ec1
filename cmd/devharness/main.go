// Command devharness wires the whole journey engine together behind a
// small echo HTTP surface, for local exercising and manual testing.
// It is not a public SDK: no client library targets these routes, and
// the shape of the request/response bodies is whatever is convenient
// for a developer to curl. Adapted from the teacher's
// cmd/orchestrator/main.go bootstrap-then-serve shape.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/journeyengine/common/config"
	"github.com/lyzr/journeyengine/common/db"
	"github.com/lyzr/journeyengine/common/logger"
	"github.com/lyzr/journeyengine/common/server"
	"github.com/lyzr/journeyengine/common/telemetry"
	"github.com/lyzr/journeyengine/internal/action"
	"github.com/lyzr/journeyengine/internal/analytics"
	"github.com/lyzr/journeyengine/internal/clock"
	"github.com/lyzr/journeyengine/internal/executor"
	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/predicate"
	"github.com/lyzr/journeyengine/internal/registrar"
	"github.com/lyzr/journeyengine/internal/router"
	"github.com/lyzr/journeyengine/internal/scheduler"
	"github.com/lyzr/journeyengine/internal/store"
	"github.com/lyzr/journeyengine/internal/store/filestore"
	"github.com/lyzr/journeyengine/internal/store/pgstore"
	"github.com/lyzr/journeyengine/internal/supervisor"
)

// advancerRef breaks the construction cycle between Router/Scheduler
// (which need an executor.Advancer) and Executor (which needs the
// Router/Scheduler they came from). Both are built against this
// forwarding shim; exec is set once the Executor itself exists.
type advancerRef struct {
	exec *executor.Executor
}

func (a *advancerRef) Advance(ctx context.Context, journeyID string, re *executor.ResumeEvent) error {
	return a.exec.Advance(ctx, journeyID, re)
}

func main() {
	log := logger.New("info", "text")

	cfg, err := config.Load("devharness")
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}
	log = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store.Store
	switch cfg.Store.Backend {
	case "postgres":
		preflight, err := db.New(ctx, cfg, log)
		if err != nil {
			log.Error("postgres preflight check failed", "error", err)
			os.Exit(1)
		}
		defer preflight.Close()

		pg, err := pgstore.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			log.Error("pgstore open failed", "error", err)
			os.Exit(1)
		}
		st = pg
	default:
		fs, err := filestore.New(cfg.Store.FileDir)
		if err != nil {
			log.Error("filestore open failed", "error", err)
			os.Exit(1)
		}
		st = fs
	}

	var tel *telemetry.Telemetry
	if cfg.Telemetry.EnableTracing {
		tel, err = telemetry.New(6060, cfg.Telemetry.MetricsPort, log)
		if err != nil {
			log.Error("telemetry build failed", "error", err)
			os.Exit(1)
		}
		if err := tel.Start(ctx); err != nil {
			log.Error("telemetry start failed", "error", err)
			os.Exit(1)
		}
		defer tel.Shutdown(context.Background())
	}

	evaluator, err := predicate.NewEvaluator()
	if err != nil {
		log.Error("predicate evaluator build failed", "error", err)
		os.Exit(1)
	}

	bus := analytics.NewBus()
	clk := clock.Real{}
	campaigns := executor.NewMapCampaignIndex()

	adv := &advancerRef{}
	rtr := router.New(adv, evaluator, log.Logger)
	rtr.Telemetry = tel
	sched := scheduler.New(st, adv, clk, log.Logger)
	sched.Telemetry = tel

	exec := executor.New(st, campaigns, sched, rtr, bus, evaluator, action.NewNoopAdapters(), clk, nil, log.Logger)
	exec.Telemetry = tel
	adv.exec = exec

	reg, err := registrar.New(st, exec, campaigns, evaluator, bus, clk, nil, log.Logger)
	if err != nil {
		log.Error("registrar build failed", "error", err)
		os.Exit(1)
	}

	super := supervisor.New(st, sched, rtr, log.Logger).
		WithCheckInterval(cfg.Supervisor.CheckInterval).
		WithTimeout(cfg.Supervisor.Timeout)

	if err := sched.Recover(ctx, time.Now().UTC().Add(100*365*24*time.Hour)); err != nil {
		log.Error("scheduler recover failed", "error", err)
	}
	go sched.Start(ctx)
	if cfg.Supervisor.Enabled {
		go super.Start(ctx)
	}

	events := bus.Subscribe(256)
	go func() {
		for e := range events {
			log.Info("analytics", "name", e.Name, "journey_id", e.JourneyID, "campaign_id", e.CampaignID)
		}
	}()

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/health", echo.WrapHandler(server.HealthHandler()))

	e.POST("/campaigns", func(c echo.Context) error {
		var raw map[string]interface{}
		if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		body, _ := json.Marshal(raw)
		var camp journey.Campaign
		if err := json.Unmarshal(body, &camp); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		if err := reg.ValidateWireFormat(camp.CampaignID, raw); err != nil {
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		}
		if err := reg.Register(&camp); err != nil {
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusCreated, map[string]string{"campaign_id": camp.CampaignID})
	})

	e.PATCH("/campaigns/:id", func(c echo.Context) error {
		ops, err := readBody(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		if err := reg.Patch(c.Param("id"), ops); err != nil {
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		}
		return c.NoContent(http.StatusNoContent)
	})

	e.DELETE("/campaigns/:id", func(c echo.Context) error {
		reg.Unregister(c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	})

	e.POST("/events", func(c echo.Context) error {
		var body struct {
			Name       string                 `json:"name"`
			DistinctID string                 `json:"distinct_id"`
			EventID    string                 `json:"event_id"`
			Properties map[string]interface{} `json:"properties"`
		}
		if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}

		reg.OnEvent(c.Request().Context(), registrar.Incoming{
			Name:       body.Name,
			Properties: body.Properties,
			DistinctID: body.DistinctID,
			EventID:    body.EventID,
		})
		rtr.OnEvent(c.Request().Context(), router.Incoming{
			Name:       body.Name,
			Properties: body.Properties,
			DistinctID: body.DistinctID,
		})
		return c.NoContent(http.StatusAccepted)
	})

	e.GET("/journeys/:id", func(c echo.Context) error {
		j, err := st.Load(c.Request().Context(), c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		if j == nil {
			return c.NoContent(http.StatusNotFound)
		}
		return c.JSON(http.StatusOK, j)
	})

	srv := server.New(cfg.Service.Name, cfg.Service.Port, e, log)
	if err := srv.Start(); err != nil {
		log.Error("devharness server error", "error", err)
	}
	cancel()
}

func readBody(c echo.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
