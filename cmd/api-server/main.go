// Command api-server serves the purchase API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	purchase "github.com/xenking/oolio-purchase/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := purchase.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		return purchase.Run(ctx, lg.Named("purchase"), m, cfg)
	})
}
