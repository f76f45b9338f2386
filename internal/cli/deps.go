package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/iliyamo/festival-registration/internal/alert"
	"github.com/iliyamo/festival-registration/internal/cms"
	"github.com/iliyamo/festival-registration/internal/config"
	"github.com/iliyamo/festival-registration/internal/database"
	"github.com/iliyamo/festival-registration/internal/queue"
	"github.com/iliyamo/festival-registration/internal/repository"
	"github.com/iliyamo/festival-registration/internal/service"
	"github.com/iliyamo/festival-registration/internal/sheets"
)

// DefaultDeps reads the server configuration from the environment.
func DefaultDeps() Deps {
	store := func() (*cms.Client, config.Config, error) {
		cfg, err := config.Parse()
		if err != nil {
			return nil, config.Config{}, err
		}
		hc := &http.Client{Timeout: time.Duration(cfg.CMS.Timeout) * time.Second}
		return cms.New(cfg.CMS.BaseURL, cfg.CMS.APIToken, hc), cfg, nil
	}
	return Deps{
		Exporter: func(context.Context) (Exporter, error) {
			c, _, err := store()
			if err != nil {
				return nil, err
			}
			return service.NewExporter(c), nil
		},
		Sheet: func(ctx context.Context) (service.SheetWriter, string, error) {
			cfg, err := config.Parse()
			if err != nil {
				return nil, "", err
			}
			if cfg.Sheets.CredentialsFile == "" || cfg.Sheets.SpreadsheetID == "" {
				return nil, "", errors.New("SHEETS_CREDENTIALS_FILE and SHEETS_SPREADSHEET_ID are required")
			}
			w, err := sheets.New(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID)
			if err != nil {
				return nil, "", err
			}
			return w, cfg.Sheets.Tab, nil
		},
		Retrier: func(ctx context.Context) (Retrier, func(), error) {
			c, cfg, err := store()
			if err != nil {
				return nil, nil, err
			}
			db, err := database.Open(cfg.DB)
			if err != nil {
				return nil, nil, err
			}
			if err := repository.EnsureSchema(ctx, db); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			r := service.NewReconciler(c, repository.NewPaymentEventRepo(db), queue.NewPublisher(cfg.AMQPURL), alert.New(cfg.Telegram))
			return r, func() { _ = db.Close() }, nil
		},
	}
}
