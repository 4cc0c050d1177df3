package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v2"

	"github.com/mbtatracker-data/internal/common/config"
	"github.com/mbtatracker-data/internal/common/credentials"
	"github.com/mbtatracker-data/internal/common/db"
	"github.com/mbtatracker-data/internal/common/discord"
	"github.com/mbtatracker-data/internal/common/health"
	"github.com/mbtatracker-data/internal/common/logger"
	"github.com/mbtatracker-data/internal/common/maintenance"
	mbta_realtime "github.com/mbtatracker-data/internal/mbta-realtime"
	"github.com/mbtatracker-data/internal/mbta-realtime/store"
	"github.com/mbtatracker-data/internal/schedule"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadFile(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig, file bool) logger.Logger {
	loggerConfig := logger.DefaultLoggerConfig()
	loggerConfig.Level = logger.ParseLogLevel(cfg.Level)
	loggerConfig.File = file
	loggerConfig.FilePath = cfg.FilePath
	if cfg.DiscordURL != "" {
		loggerConfig.Writers = append(loggerConfig.Writers, discord.NewAlertWriter(cfg.DiscordURL, zerolog.ErrorLevel))
	}
	return logger.NewFromConfig(loggerConfig)
}

func apiKeyProvider(cfg config.StreamConfig) credentials.Provider {
	return credentials.Chain{
		credentials.Static(cfg.APIKey),
		credentials.File{Path: cfg.CredentialsFile},
	}
}

func openStore(cfg config.DatabaseConfig, log logger.Logger) (*store.Store, *db.DB, error) {
	database, err := db.New(cfg.Driver, cfg.DSN(), log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return store.New(database, log), database, nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "stream vehicle updates and record departures",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			log := newLogger(cfg.Logging, true)

			log.Info("MBTA Tracker Data Service starting",
				"version", version,
				"log_level", cfg.Logging.Level,
				"db_driver", cfg.Database.Driver,
				"tracked_routes", len(cfg.Stream.TrackedRoutes))

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			apiKey, err := apiKeyProvider(cfg.Stream).APIKey(ctx)
			if err != nil {
				log.Error("Failed to load MBTA API key", "error", err)
				return err
			}

			s, database, err := openStore(cfg.Database, log)
			if err != nil {
				log.Error("Failed to open stop event store", "error", err)
				return err
			}
			defer database.Close()

			manager := mbta_realtime.NewManager(cfg.Stream, apiKey, s, log)
			reporter := maintenance.NewReportScheduler(s, log, maintenance.SchedulerConfig{
				ReportInterval: cfg.Reporter.Interval,
				InitialDelay:   time.Minute,
			})

			p := pool.New().WithContext(ctx).WithCancelOnError()

			p.Go(func(ctx context.Context) error {
				return manager.Run(ctx)
			})
			p.Go(func(ctx context.Context) error {
				return reporter.Run(ctx)
			})
			if cfg.Health.Addr != "" {
				srv := health.NewServer(cfg.Health.Addr, health.Sources{
					Streaming:    manager.Streaming,
					StreamStatus: func() interface{} { return manager.Status() },
					Reports:      reporter.GetStatus,
					Store:        s,
				}, log)
				p.Go(srv.Run)
			}

			if err := p.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("MBTA Tracker Data Service stopped with error", "error", err)
				return err
			}

			log.Info("MBTA Tracker Data Service stopped")
			return nil
		},
	}
}

// eventRow matches the stop_events columns for CSV export
type eventRow struct {
	StopID        string `csv:"stop_id"`
	RouteID       string `csv:"route_id"`
	TripID        string `csv:"trip_id"`
	DirectionID   int    `csv:"direction_id"`
	StopTimestamp string `csv:"stop_timestamp"`
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "print the most recent recorded departures for a route",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "route", Usage: "route id", Required: true},
			&cli.IntFlag{Name: "limit", Usage: "number of events", Value: 20},
			&cli.StringFlag{Name: "format", Usage: "table or csv", Value: "table"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			log := newLogger(cfg.Logging, false)

			s, database, err := openStore(cfg.Database, log)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := s.Init(c.Context); err != nil {
				return err
			}

			events, err := s.Recent(c.Context, c.String("route"), c.Int("limit"))
			if err != nil {
				return err
			}

			if c.String("format") == "csv" {
				rows := make([]eventRow, 0, len(events))
				for _, ev := range events {
					rows = append(rows, eventRow{
						StopID:        ev.StopID,
						RouteID:       ev.RouteID,
						TripID:        ev.TripIDWithDate,
						DirectionID:   ev.DirectionID,
						StopTimestamp: ev.DepartureTimestamp.Format(time.RFC3339),
					})
				}
				return gocsv.Marshal(rows, os.Stdout)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STOP\tROUTE\tTRIP\tDIRECTION\tDEPARTED")
			for _, ev := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					ev.StopID, ev.RouteID, ev.TripIDWithDate, ev.DirectionID,
					ev.DepartureTimestamp.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func stopsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stops",
		Usage: "look up the first and last stop of each route direction",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "route", Usage: "route id, repeatable (default: tracked routes)"},
			&cli.StringFlag{Name: "mode", Usage: "last stop mode: last or second_to_last"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			log := newLogger(cfg.Logging, false)

			if mode := c.String("mode"); mode != "" {
				if mode != config.LastStopModeLast && mode != config.LastStopModeSecondToLast {
					return fmt.Errorf("unknown last stop mode %q", mode)
				}
				cfg.Schedule.LastStopMode = mode
			}

			apiKey, err := apiKeyProvider(cfg.Stream).APIKey(c.Context)
			if err != nil {
				log.Warn("Querying schedules without an API key", "error", err)
			}

			routes := c.StringSlice("route")
			if len(routes) == 0 {
				routes = cfg.Stream.TrackedRoutes
			}

			client := schedule.NewClient(cfg.Schedule, apiKey, log)
			stops, err := client.FirstLastStops(c.Context, routes)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROUTE\tDIRECTION\tFIRST\tLAST")
			for _, routeID := range routes {
				for _, direction := range schedule.Directions {
					ep := stops[routeID][direction]
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", routeID, direction, ep.FirstStopID, ep.LastStopID)
				}
			}
			fmt.Fprintf(w, "\nmode: %s\troutes: %s\n", cfg.Schedule.LastStopMode, strings.Join(routes, ","))
			return w.Flush()
		},
	}
}
