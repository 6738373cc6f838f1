package main

import (
	"log"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/collection/internal/auth"
	"github.com/iurnickita/collection/internal/config"
	"github.com/iurnickita/collection/internal/handler"
	"github.com/iurnickita/collection/internal/logger"
	"github.com/iurnickita/collection/internal/notifier"
	"github.com/iurnickita/collection/internal/service"
	"github.com/iurnickita/collection/internal/store"
	"github.com/iurnickita/collection/internal/validator"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// суммы в JSON числами
	decimal.MarshalJSONWithoutQuotes = true

	cfg := config.GetConfig()

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier, err := notifier.NewNotifier(cfg.Notifier, zaplog)
	if err != nil {
		return err
	}
	defer notifier.Close()

	auth := auth.NewAuth(cfg.Auth)
	validator := validator.NewValidator(zaplog)
	service := service.NewService(cfg.Service, store, validator, notifier, zaplog)

	return handler.Serve(cfg.Handler, auth, service, zaplog)
}
