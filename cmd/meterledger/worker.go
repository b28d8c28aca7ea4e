package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bher20/meterledger/internal/alerting"
	"github.com/bher20/meterledger/internal/config"
	"github.com/bher20/meterledger/internal/cron"
	"github.com/bher20/meterledger/internal/publisher"
	"github.com/bher20/meterledger/internal/storage"
	"github.com/bher20/meterledger/internal/usage"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the scheduled statistics worker",
	Long: `Computes a statistics snapshot for every owner on the configured schedule,
publishes each report over MQTT when a broker is configured and sends webhook
alerts for decreasing readings and failed owners.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "run the job once and exit")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := usage.NewService(usage.Config{Overflow: cfg.Overflow()}, st)
	w, closeWorker, err := newWorker(cfg, st, svc)
	if err != nil {
		return err
	}
	defer closeWorker()

	if workerOnce {
		if !w.RunLocked(ctx) {
			return errors.New("job did not run: advisory lock unavailable")
		}
		return nil
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newWorker builds the statistics worker and its optional MQTT publisher.
// The returned func releases the publisher.
func newWorker(cfg config.Config, st storage.Storage, svc *usage.Service) (*cron.Worker, func(), error) {
	var pub cron.ReportPublisher
	closeFn := func() {}
	if cfg.MQTT.Enabled() {
		p, err := publisher.New(cfg.MQTT)
		if err != nil {
			return nil, nil, fmt.Errorf("creating MQTT publisher: %w", err)
		}
		pub = p
		closeFn = p.Close
	} else {
		log.Printf("worker: MQTT broker not configured, reports will not be published")
	}

	w := cron.NewWorker(cron.Config{
		Interval:    cfg.Worker.Schedule,
		Concurrency: cfg.Worker.Concurrency,
		Driver:      cfg.DB.Driver,
	}, st, svc, pub, alerting.NewAlerter(cfg.Alerting))
	return w, closeFn, nil
}
