package main

import (
	main_config "github.com/hemiko/topup_reconciler/internal/config"
	"github.com/hemiko/topup_reconciler/internal/events"
	"github.com/hemiko/topup_reconciler/internal/logging"
	"github.com/hemiko/topup_reconciler/internal/reconciler"
	"github.com/hemiko/topup_reconciler/internal/repositories"
	"github.com/hemiko/topup_reconciler/internal/storage"
	"github.com/hemiko/topup_reconciler/internal/verification"
	"go.uber.org/fx"
)

func main() {
	fx.New(CreateApp()).Run()
}

func CreateApp() fx.Option {
	return fx.Options(
		fx.Provide(
			logging.NewZapLogger,
			logging.NewKafkaLogger,
			logging.NewKafkaErrorLogger,
			storage.NewStorage,

			reconciler.NewScheduler,
			reconciler.NewCycleLease,
			fx.Annotate(reconciler.NewEngine, fx.As(new(reconciler.CycleRunner))),
			fx.Annotate(verification.NewHTTPClient, fx.As(new(verification.Client))),
			fx.Annotate(repositories.NewTransactionsRepository, fx.As(new(reconciler.TransactionsRepository))),
			fx.Annotate(repositories.NewAccountsRepository, fx.As(new(reconciler.AccountsRepository))),
			fx.Annotate(events.NewPublisher, fx.As(new(reconciler.EventsPublisher))),
		),
		fx.Supply(
			main_config.MustNewConfig(),
		),
		fx.Invoke(
			startScheduler,
		),
	)
}

func startScheduler(*reconciler.Scheduler) {}
