package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/database"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/shipping/domain/port"
	"storefront/internal/service/shipping/infrastructure"
	settingsinfra "storefront/internal/service/sitesettings/infrastructure"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the shipping and site settings tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.Open(bootstrap.GetCurrentConfig().Infra.Database)
			if err != nil {
				return err
			}
			models := append(infrastructure.AllModels(), &settingsinfra.SiteSettingsModel{})
			if err := db.WithContext(cmd.Context()).AutoMigrate(models...); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			log.Info().Int("tables", len(models)).Msg("Migration finished")
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	var (
		snapshotPath string
		notify       bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert the rules, settings and cities of a snapshot file into the rule store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := loadSnapshotFile(snapshotPath)
			if err != nil {
				return err
			}
			cfg := bootstrap.GetCurrentConfig()
			db, err := database.Open(cfg.Infra.Database)
			if err != nil {
				return err
			}

			rows := file.rows()
			cities := make([]infrastructure.CityModel, 0, len(file.Cities))
			for _, c := range file.Cities {
				cities = append(cities, infrastructure.CityModel{ID: c.ID, Name: c.Name, ProvinceCode: c.ProvinceCode})
			}
			if err := infrastructure.NewGormRuleStore(db).ImportSnapshot(cmd.Context(), rows, cities); err != nil {
				return err
			}
			log.Info().Str("product_id", file.ProductID).Int("rules", len(rows.Rules)).Msg("Snapshot imported")

			if notify {
				return publishRulesChanged(cmd.Context(), cfg.Infra.Kafka, file.ProductID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "YAML snapshot file to import")
	cmd.Flags().BoolVar(&notify, "notify", false, "publish a rules-changed event so running services drop their cache")
	_ = cmd.MarkFlagRequired("snapshot")
	return cmd
}

// publishRulesChanged 同步写入一条规则变更事件。
func publishRulesChanged(ctx context.Context, kc bootstrap.KafkaConfig, productID string) error {
	writer := mq.NewKafkaWriter(kc.Brokers, kc.RulesChangedTopic, false)
	defer writer.Close()

	payload, err := json.Marshal(port.RulesChanged{ProductID: productID, ChangedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := mq.ProduceMessage(ctx, writer, []byte(productID), payload); err != nil {
		return fmt.Errorf("publish rules changed: %w", err)
	}
	log.Info().Str("product_id", productID).Str("topic", kc.RulesChangedTopic).Msg("Rules-changed event published")
	return nil
}
