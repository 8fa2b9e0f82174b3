package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	clia "github.com/mikey/sms-spam-classifier/internal/adapters/cli"
	"github.com/mikey/sms-spam-classifier/internal/artifact"
	"github.com/mikey/sms-spam-classifier/internal/core"
	"github.com/mikey/sms-spam-classifier/internal/di"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
)

// Version is set via -ldflags at build time.
var Version = "dev"

const exitValidation = 2

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode returns the process exit code for an error returned by the app.
// Usage errors such as a missing required flag exit with 1.
func exitCode(err error) int {
	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}
	return 1
}

func newApp() *cli.App {
	app := &cli.App{
		Name:    "spam-predict",
		Usage:   "Classify one SMS message as spam or ham",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Required: true, Usage: "Message text to classify"},
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Value: artifact.DefaultModel, Usage: "Model name"},
			&cli.StringFlag{Name: "artifacts", Usage: "Artifact directory (overrides artifacts.dir)"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to config file"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Enable debug logging"},
			&cli.BoolFlag{Name: "json-log", Usage: "Output logs in JSON format"},
		},
		Action: run,
	}
	// Errors are printed by main so the exit code can follow the error kind
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func run(c *cli.Context) error {
	container, err := di.BuildCLIContainer(&di.CLIFlags{
		ConfigFile:   c.String("config"),
		ArtifactsDir: c.String("artifacts"),
		Verbose:      c.Bool("verbose"),
		JSONLog:      c.Bool("json-log"),
		Output:       c.App.Writer,
	})
	if err != nil {
		return outputError(err)
	}

	err = container.Invoke(func(logger *zap.Logger, service *core.ClassifierService, predictor *clia.Predictor) error {
		defer logger.Sync()
		return predict(c.Context, service, predictor, c.String("text"), c.String("model"))
	})
	if err != nil {
		return outputError(err)
	}
	return nil
}

func predict(ctx context.Context, service *core.ClassifierService, predictor *clia.Predictor, text, model string) error {
	if err := service.Reload(ctx); err != nil {
		return err
	}
	_, err := predictor.Predict(ctx, text, model)
	return err
}

// outputError maps an error to a stderr message and exit code
func outputError(err error) error {
	if apperrors.Is(err, apperrors.KindValidation) {
		return cli.Exit(fmt.Sprintf("error: %s", apperrors.PublicMessage(err)), exitValidation)
	}
	return cli.Exit(fmt.Sprintf("error: %v", err), 1)
}
