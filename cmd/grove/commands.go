package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ARTM2000/grove"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GROVE_DEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "grove",
		Short:         "Demo host for the grove provider orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to a grove TOML config file")
	root.PersistentFlags().String("region", "local", "Region reported by the settings provider")
	_ = v.BindPFlags(root.PersistentFlags())

	root.AddCommand(newRunCmd(v), newProvidersCmd(v))
	return root
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the demo providers and run until interrupted",
		Long: `Start the demo providers and run until interrupted.

The settings and cache providers initialise behind the init barrier, then the
clock starts firing a heartbeat lifecycle that the reporter is bound to.

Examples:
  # Ten beats, then shut down
  grove run --ticks 10

  # Serve Prometheus metrics while running
  grove run --metrics-addr :9090

  # Fail startup when init takes too long
  GROVE_INIT_TIMEOUT=100ms grove run --warmup 1s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, v)
		},
	}
	cmd.Flags().Duration("tick", time.Second, "Heartbeat interval")
	cmd.Flags().Int("ticks", 0, "Stop after this many beats (0 runs until interrupted)")
	cmd.Flags().Duration("warmup", 100*time.Millisecond, "Simulated cache warmup time")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	_ = v.BindPFlags(cmd.Flags())
	return cmd
}

func newProvidersCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the demo providers and their capabilities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := grove.New(grove.WithLogger(grove.NewLogger(cmd.ErrOrStderr(), "error", "text")))
			if _, err := compose(o, demoSettings{region: v.GetString("region")}, nil); err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Provider", "Init", "Start", "Close"})
			for _, p := range o.Providers() {
				table.Append([]string{
					p.ID,
					strconv.FormatBool(p.HasInit),
					strconv.FormatBool(p.HasStart),
					strconv.FormatBool(p.HasClose),
				})
			}
			table.Render()
			return nil
		},
	}
}

func runDemo(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := grove.LoadConfig(v.GetString("config"))
	if err != nil {
		return err
	}

	logger := cfg.Logger(cmd.ErrOrStderr())
	reg := prometheus.NewRegistry()
	o := grove.New(cfg.Options(logger, reg)...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := demoSettings{
		region: v.GetString("region"),
		tick:   v.GetDuration("tick"),
		ticks:  v.GetInt("ticks"),
		warmup: v.GetDuration("warmup"),
	}
	if _, err := compose(o, settings, stop); err != nil {
		return err
	}

	stopMetrics := func(context.Context) error { return nil }
	if addr := v.GetString("metrics-addr"); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		srv := &http.Server{
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		logger.Info("Serving metrics", "addr", ln.Addr().String())
		stopMetrics = srv.Shutdown
	}

	go func() {
		if err := o.AwaitStart(ctx); err == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "ready")
		}
	}()

	if err := o.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(fmt.Errorf("startup: %w", err), stopMetrics(shutdownCtx))
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := o.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := stopMetrics(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
