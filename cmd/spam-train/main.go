package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	clia "github.com/mikey/sms-spam-classifier/internal/adapters/cli"
	"github.com/mikey/sms-spam-classifier/internal/artifact"
	"github.com/mikey/sms-spam-classifier/internal/di"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
	"github.com/mikey/sms-spam-classifier/internal/factory"
	"github.com/mikey/sms-spam-classifier/internal/training"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			os.Exit(exit.ExitCode())
		}
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:    "spam-train",
		Usage:   "Train and evaluate an SMS spam model from a labeled CSV",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "CSV corpus path (overrides training.data_path)"},
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Value: artifact.DefaultModel, Usage: "Model name"},
			&cli.StringFlag{Name: "artifacts", Usage: "Artifact directory (overrides artifacts.dir)"},
			&cli.StringFlag{Name: "encoding", Usage: "Corpus encoding: latin-1 or utf-8"},
			&cli.BoolFlag{Name: "strict-labels", Usage: "Fail on labels other than ham/spam"},
			&cli.IntFlag{Name: "workers", Usage: "Normalization workers (default: number of CPUs)"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to config file"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Enable debug logging"},
			&cli.BoolFlag{Name: "json-log", Usage: "Output logs in JSON format"},
		},
		Action: run,
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func run(c *cli.Context) error {
	container, err := di.BuildCLIContainer(&di.CLIFlags{
		ConfigFile:   c.String("config"),
		ArtifactsDir: c.String("artifacts"),
		Verbose:      c.Bool("verbose"),
		JSONLog:      c.Bool("json-log"),
		DataPath:     c.String("data"),
		Encoding:     c.String("encoding"),
		StrictLabels: c.Bool("strict-labels"),
		Workers:      c.Int("workers"),
		Output:       c.App.Writer,
	})
	if err != nil {
		return outputError(err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = container.Invoke(func(logger *zap.Logger, models *factory.ModelFactory, pipeline *training.Pipeline) error {
		defer logger.Sync()

		opts := models.TrainingOptions()
		opts.ModelName = c.String("model")
		// Progress goes to stderr so stdout carries only the report
		pipeline.WithObserver(func(s training.State) {
			fmt.Fprintf(c.App.ErrWriter, "%s...\n", s)
		})

		result, err := pipeline.Run(ctx, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Warn("Training interrupted")
			}
			return err
		}
		clia.WriteReport(c.App.Writer, result)
		return nil
	})
	if err != nil {
		return outputError(err)
	}
	return nil
}

// outputError maps an error to a stderr message and exit code
func outputError(err error) error {
	if apperrors.Is(err, apperrors.KindValidation) {
		return cli.Exit(fmt.Sprintf("error: %s", apperrors.PublicMessage(err)), 2)
	}
	return cli.Exit(fmt.Sprintf("error: %v", err), 1)
}
