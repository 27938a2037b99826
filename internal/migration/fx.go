package migration

import (
	"github.com/densematrix/resumeforge/internal/config"
	entitlementdomain "github.com/densematrix/resumeforge/internal/entitlement/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// mysql/sqlite development setups rely on gorm's schema derivation.
		return conn.AutoMigrate(
			&entitlementdomain.Entitlement{},
			&entitlementdomain.DailyUsage{},
			&entitlementdomain.PaymentTransaction{},
		)
	}),
)
