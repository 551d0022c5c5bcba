package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ohowland/interconnect/internal/pkg/clock"
	"github.com/ohowland/interconnect/internal/pkg/config"
	"github.com/ohowland/interconnect/internal/pkg/datastreams"
	"github.com/ohowland/interconnect/internal/pkg/datastreams/influxdb"
	"github.com/ohowland/interconnect/internal/pkg/datastreams/mongodb"
	"github.com/ohowland/interconnect/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/interconnect/internal/pkg/datastreams/sqldb"
	"github.com/ohowland/interconnect/internal/pkg/logging"
	"github.com/ohowland/interconnect/internal/pkg/metrics"
	"github.com/ohowland/interconnect/internal/pkg/root"
	"github.com/ohowland/interconnect/internal/pkg/webservice"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newRunCmd(v *viper.Viper, settings func() (config.Settings, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [model]",
		Short: "Run a simulation",
		Long: `Run steps the model until the stop time, a fatal error or an interrupt.
Completed steps are served over HTTP and written to every configured recorder.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v.Set("model", args[0])
			}
			s, err := settings()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, s, cmd)
		},
	}

	cmd.Flags().String("model", "", "Model file")
	cmd.Flags().Int64("stop", 3600, "Stop time in seconds, 0 runs until interrupted")
	cmd.Flags().Int64("max-step", 60, "Longest step in seconds")
	cmd.Flags().Duration("pace", 0, "Wall-clock delay between steps")
	cmd.Flags().String("http", ":8080", "Reporting service address, empty disables it")
	_ = v.BindPFlag("model", cmd.Flags().Lookup("model"))
	_ = v.BindPFlag("step.stop", cmd.Flags().Lookup("stop"))
	_ = v.BindPFlag("step.max", cmd.Flags().Lookup("max-step"))
	_ = v.BindPFlag("step.pace", cmd.Flags().Lookup("pace"))
	_ = v.BindPFlag("http.addr", cmd.Flags().Lookup("http"))
	return cmd
}

type recorder struct {
	name string
	datastreams.Recorder
}

func run(ctx context.Context, s config.Settings, cmd *cobra.Command) error {
	if s.Model == "" {
		return fmt.Errorf("no model given")
	}
	logger, err := logging.New(s.Log.Level, s.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	model, err := config.Load(s.Model)
	if err != nil {
		return err
	}
	network, err := model.Build(logger, nil)
	if err != nil {
		return err
	}
	system, err := root.NewSystem(network, root.Config{
		MaxStep: s.Step.Max,
		Stop:    clock.Timestamp(s.Step.Stop),
		Pace:    s.Step.Pace,
	}, logger)
	if err != nil {
		return err
	}

	exporter := metrics.New()
	recorders, err := openRecorders(ctx, s.Recorders, time.Now())
	if err != nil {
		return err
	}
	recorders = append(recorders, recorder{name: "metrics", Recorder: exporter})

	// handlers subscribe before Init publishes the initial frame
	handlers := make([]*datastreams.Handler, 0, len(recorders))
	for _, r := range recorders {
		h, err := datastreams.New(r.name, r.Recorder, system, logger)
		if err != nil {
			return err
		}
		handlers = append(handlers, h)
	}

	if err := system.Init(); err != nil {
		return err
	}
	logger.Info("model loaded",
		zap.String("model", s.Model),
		zap.Int("areas", len(network.Areas)),
		zap.Int("interties", len(network.Interties)),
		zap.Int("recorders", len(handlers)))

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()

	g.Go(func() error {
		defer stopServe()
		return system.Run(gctx)
	})
	for _, h := range handlers {
		h := h
		g.Go(func() error { return h.Process(gctx) })
	}
	if s.HTTP.Addr != "" {
		app := webservice.New(system, exporter.Handler(), logger)
		g.Go(func() error { return app.Serve(serveCtx, s.HTTP.Addr) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "completed %d steps, t=%d s\n", system.Steps(), system.Now())
	return nil
}

// openRecorders connects every recorder with a configured endpoint. Any
// recorder already opened is closed if a later one fails.
func openRecorders(ctx context.Context, s config.RecorderSetting, start time.Time) (out []recorder, err error) {
	defer func() {
		if err != nil {
			for _, r := range out {
				_ = r.Close()
			}
			out = nil
		}
	}()

	if s.SQL.DSN != "" {
		r, err := sqldb.New(ctx, sqldb.Config{Driver: s.SQL.Driver, DSN: s.SQL.DSN})
		if err != nil {
			return out, err
		}
		out = append(out, recorder{name: "sql", Recorder: r})
	}
	if s.Influx.URL != "" {
		r, err := influxdb.New(influxdb.Config{
			URL:    s.Influx.URL,
			Token:  s.Influx.Token,
			Org:    s.Influx.Org,
			Bucket: s.Influx.Bucket,
		}, start)
		if err != nil {
			return out, err
		}
		out = append(out, recorder{name: "influx", Recorder: r})
	}
	if s.NATS.URL != "" {
		r, err := natshandler.New(natshandler.Config{URL: s.NATS.URL, Prefix: s.NATS.Prefix})
		if err != nil {
			return out, err
		}
		out = append(out, recorder{name: "nats", Recorder: r})
	}
	if s.Mongo.URI != "" {
		r, err := mongodb.New(ctx, mongodb.Config{
			URI:        s.Mongo.URI,
			Database:   s.Mongo.Database,
			Collection: s.Mongo.Collection,
		})
		if err != nil {
			return out, err
		}
		out = append(out, recorder{name: "mongo", Recorder: r})
	}
	return out, nil
}
