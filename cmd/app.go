package cmd

import (
	"fmt"

	"github.com/s0up4200/seedbrake/controller"
	"github.com/s0up4200/seedbrake/filter"
	"github.com/s0up4200/seedbrake/monitor"
	"github.com/s0up4200/seedbrake/qbittorrent"
)

// app holds the wired components behind the run, test and restore commands.
type app struct {
	collector *monitor.Collector
	actuator  *qbittorrent.Actuator
	ctrl      *controller.Controller
}

func newActuator() *qbittorrent.Actuator {
	cc := cfg.Controller
	return qbittorrent.NewActuator(logger,
		qbittorrent.WithTimeout(cc.RequestTimeout),
		qbittorrent.WithMaxRetries(cc.MaxRetries),
		qbittorrent.WithRetryDelay(cc.RetryBackoff),
		qbittorrent.WithSessionTTL(cc.SessionTTL),
		qbittorrent.WithUserAgent("seedbrake/"+version),
	)
}

func buildApp() (*app, error) {
	services := newServiceStore()

	collector, err := monitor.FromConfig(cfg.Sources, cfg.Controller, filter.New(services, logger), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up sources: %w", err)
	}

	actuator := newActuator()

	ctrl := controller.New(cfg, controller.Deps{
		Collector: collector,
		Actuator:  actuator,
		Services:  services,
		Failures:  newFailureLedger(),
	}, logger)

	return &app{collector: collector, actuator: actuator, ctrl: ctrl}, nil
}

func (a *app) Close() {
	a.collector.Close()
	a.actuator.Close()
}
