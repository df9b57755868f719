package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"instance-provision/src/config"
	"instance-provision/src/events"
	"instance-provision/src/logging"
	"instance-provision/src/metrics"
	"instance-provision/src/provision"
	"instance-provision/src/render"
	"instance-provision/src/result"
	"instance-provision/src/util/progress"
)

var log = logrus.WithField("pkg", "cli")

// app holds what one CLI run shares between commands: the loaded
// configuration and the lazily built engine with its collaborators.
type app struct {
	stdout, stderr io.Writer
	v              *viper.Viper
	cfg            config.Config

	showProgress bool
	tracker      *progress.Tracker
	eng          *provision.Engine
	metrics      *metrics.Metrics
	events       events.Publisher
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, v: config.NewViper()}
}

// load reads the configuration and configures logging.
func (a *app) load(cmd *cobra.Command) error {
	cfgFile, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(a.v, cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return logging.Configure(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Out: a.stderr})
}

func (a *app) engine() (*provision.Engine, error) {
	if a.eng != nil {
		return a.eng, nil
	}
	l, err := a.cfg.NetworkLayout()
	if err != nil {
		return nil, err
	}

	var renderers render.Chain
	if a.cfg.Render.Templates != "" {
		renderers = append(renderers, &render.TemplateRenderer{
			Dir:     a.cfg.Render.Templates,
			Network: map[string]string{"network_root": l.Root},
		})
	}
	if a.cfg.Render.Manifest {
		renderers = append(renderers, render.ManifestRenderer{})
	}

	a.events = events.Nop
	if url := a.cfg.Events.NATSURL; url != "" {
		pub, err := events.NewNATS(url, a.cfg.Events.SubjectPrefix)
		if err != nil {
			log.WithFields(logrus.Fields{"at": "cli.engine", "url": url, "error": err.Error()}).Warn("events_disabled")
		} else {
			a.events = pub
		}
	}
	if a.showProgress {
		a.tracker = progress.NewTracker(a.stderr, "copy")
	}
	a.metrics = metrics.New()

	eng, err := provision.New(provision.Config{
		Layout:   l,
		Renderer: renderers,
		Events:   a.events,
		Metrics:  a.metrics,
		Progress: a.tracker,
	})
	if err != nil {
		return nil, err
	}
	a.eng = eng
	return eng, nil
}

// finish flushes progress, writes the metrics textfile and closes the
// event publisher.
func (a *app) finish() error {
	a.tracker.Finish()
	if a.events != nil {
		a.events.Close()
	}
	return a.metrics.WriteTextfile(a.cfg.Metrics.Textfile)
}

// withEngine runs fn with the engine and always finishes the run.
func (a *app) withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *provision.Engine) error) (err error) {
	eng, err := a.engine()
	if err != nil {
		return err
	}
	defer func() {
		if ferr := a.finish(); err == nil {
			err = ferr
		}
	}()
	return fn(commandContext(cmd), eng)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// report prints a Success path, or turns a Fail into the command error.
func report(out io.Writer, r result.Result) error {
	if err := result.Err(r); err != nil {
		return err
	}
	fmt.Fprintln(out, result.Path(r))
	return nil
}
