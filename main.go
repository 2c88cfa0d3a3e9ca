/*
Gridvalue solves small deterministic grid worlds by value iteration and shows the result:
the converged state values, the greedy policy with its ties, and optionally a chart of
how the largest per-sweep change fell toward the threshold. The serve command runs the
same solver slowly enough to watch the value surface form in the browser.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gridvalue/convergence_chart"
	"gridvalue/grid_world"
	"gridvalue/reinforcement"
	"gridvalue/server"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// newRootCmd builds the command tree. Every flag is also read from the environment
// as GRIDVALUE_<FLAG>, with dashes replaced by underscores.
func newRootCmd() *cobra.Command {
	vp := viper.New()

	rootCmd := &cobra.Command{
		Use:   "gridvalue",
		Short: "Value iteration for deterministic grid worlds",
		Long: `Gridvalue computes the optimal value function and greedy policy of a
square grid world by synchronous value iteration.

Problems and hyper parameters come from an optional yaml config; flags
override it.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a yaml run config")
	flags.Float64("theta", reinforcement.DefaultTheta, "Convergence threshold on the max change of a sweep")
	flags.Int("max-sweeps", reinforcement.DefaultMaxSweeps, "Cap on the number of sweeps")
	flags.Int("workers", 1, "Goroutines sharing the rows of each sweep")
	flags.String("terminal-value", reinforcement.Zero.String(), "Value held by terminal states (zero, reward)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("color", true, "Colour the console grids")

	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "Run value iteration to convergence and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, vp)
		},
	}
	solveCmd.Flags().Bool("ties", false, "Print every tied action instead of the first")
	solveCmd.Flags().String("chart", "", "Write an html convergence chart to this path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run value iteration while streaming its progress to a browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, vp)
		},
	}
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("sweep-interval", 200*time.Millisecond, "Pause between sweeps published to the browser")

	rootCmd.AddCommand(solveCmd, serveCmd)

	_ = vp.BindPFlags(flags)
	_ = vp.BindPFlags(solveCmd.Flags())
	_ = vp.BindPFlags(serveCmd.Flags())
	vp.SetEnvPrefix("GRIDVALUE")
	vp.SetEnvKeyReplacer(newEnvReplacer())
	vp.AutomaticEnv()

	return rootCmd
}

func newEnvReplacer() *strings.Replacer {
	return strings.NewReplacer("-", "_")
}

func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger(), nil
}

// loadConfig reads the config file, if any, and applies the flags or environment
// variables that were explicitly set on top of it.
func loadConfig(vp *viper.Viper) (cfg *reinforcement.TrainingConfig, err error) {
	cfg = reinforcement.DefaultConfig()
	if path := vp.GetString("config"); path != "" {
		if cfg, err = reinforcement.FromYaml(path); err != nil {
			return
		}
	}

	if vp.IsSet("theta") {
		cfg.SetHyperParam("theta", vp.GetFloat64("theta"))
	}
	if vp.IsSet("max-sweeps") {
		cfg.SetHyperParam("maxSweeps", float64(vp.GetInt("max-sweeps")))
	}
	if vp.IsSet("workers") {
		cfg.SetHyperParam("workers", float64(vp.GetInt("workers")))
	}
	if vp.IsSet("terminal-value") {
		cfg.SetAlgorithm("terminalValue", vp.GetString("terminal-value"))
	}
	return
}

// setup holds what both commands build before running the solver.
type setup struct {
	cfg    *reinforcement.TrainingConfig
	model  *grid_world.GridModel
	opts   []reinforcement.SolverOption
	logger zerolog.Logger
}

func newSetup(cmd *cobra.Command, vp *viper.Viper) (st setup, err error) {
	if st.logger, err = newLogger(cmd.ErrOrStderr(), vp.GetString("log-level")); err != nil {
		return
	}
	grid_world.Colors = vp.GetBool("color")

	if st.cfg, err = loadConfig(vp); err != nil {
		return
	}
	if st.model, err = st.cfg.Model(); err != nil {
		return
	}
	if st.opts, err = st.cfg.SolverOptions(); err != nil {
		return
	}
	st.opts = append(st.opts, reinforcement.WithLogger(st.logger))
	return
}

func runSolve(cmd *cobra.Command, vp *viper.Viper) (err error) {
	st, err := newSetup(cmd, vp)
	if err != nil {
		return
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel, err := st.cfg.WithTrainingDeadline(ctx)
	if err != nil {
		return
	}
	defer cancel()

	recorder := convergence_chart.NewRecorder()
	solver, err := reinforcement.NewSolver(st.model, append(st.opts, reinforcement.WithProgress(recorder.Record))...)
	if err != nil {
		return
	}

	result, err := solver.Run(ctx)
	if err != nil {
		return
	}
	st.logger.Info().
		Str("run", result.RunID.String()).
		Int("sweeps", result.Sweeps).
		Float64("delta", result.Delta).
		Str("status", result.Status.String()).
		Msg("run complete")

	policy, err := solver.Policy()
	if err != nil {
		return
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d sweeps, converged=%t\n\n", result.RunID, result.Sweeps, result.Converged)
	grid_world.ShowGrid(out, st.model)
	fmt.Fprintln(out)
	grid_world.ShowValues(out, st.model, result.Values.At)
	fmt.Fprintln(out)

	mode := reinforcement.FirstAction
	if vp.GetBool("ties") {
		mode = reinforcement.AllTies
	}
	if err = policy.Render(out, mode); err != nil {
		return
	}

	if path := vp.GetString("chart"); path != "" {
		err = writeChart(recorder, path)
	}
	return
}

func writeChart(recorder *convergence_chart.Recorder, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return recorder.Render(f, "value iteration")
}

// runServe runs the solver and the server side by side. Sweep reports are paced by
// the sweep interval; a report no viewer takes within one interval is dropped, so the
// run never waits on the browser. The server keeps serving the final values until
// the process is interrupted. An interrupt during the run is a clean shutdown.
func runServe(cmd *cobra.Command, vp *viper.Viper) (err error) {
	st, err := newSetup(cmd, vp)
	if err != nil {
		return
	}
	interval := vp.GetDuration("sweep-interval")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, groupCtx := errgroup.WithContext(ctx)

	reports := make(chan reinforcement.SweepReport)
	publish := func(ctx context.Context, report reinforcement.SweepReport) {
		select {
		case reports <- report:
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
		}
	}

	solver, err := reinforcement.NewSolver(st.model, append(st.opts, reinforcement.WithProgress(publish))...)
	if err != nil {
		return
	}

	srv, err := server.NewServer(
		groupCtx,
		vp.GetString("addr"),
		st.model,
		reinforcement.SweepReport{RunID: solver.RunID(), Values: solver.Values()},
		reports,
		st.logger)
	if err != nil {
		return
	}

	group.Go(srv.Serve)
	group.Go(func() error {
		defer close(reports)
		trainingCtx, cancel, err := st.cfg.WithTrainingDeadline(groupCtx)
		if err != nil {
			return err
		}
		defer cancel()

		result, err := solver.Run(trainingCtx)
		if err != nil {
			return err
		}
		st.logger.Info().
			Str("run", result.RunID.String()).
			Int("sweeps", result.Sweeps).
			Str("status", result.Status.String()).
			Msg("run complete, still serving")
		return nil
	})

	if err = group.Wait(); errors.Is(err, context.Canceled) {
		err = nil
	}
	return
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
