package migrations

import (
	"github.com/pocketbase/pocketbase/core"
)

func init() {
	core.AppMigrations.Register(func(app core.App) error {
		collection := core.NewBaseCollection("scan_events")

		collection.Fields.Add(&core.TextField{
			Id:       "scan_event_id",
			Name:     "event_id",
			Required: true,
			Max:      64,
		})
		collection.Fields.Add(&core.TextField{
			Id:       "scan_code",
			Name:     "code",
			Required: true,
		})
		collection.Fields.Add(&core.SelectField{
			Id:        "scan_type",
			Name:      "scan_type",
			Values:    []string{"normal", "emergency"},
			MaxSelect: 1,
		})
		collection.Fields.Add(&core.SelectField{
			Id:        "scan_status",
			Name:      "status",
			Required:  true,
			Values:    []string{"pending", "in_flight", "delivered", "failed"},
			MaxSelect: 1,
		})
		collection.Fields.Add(&core.DateField{
			Id:       "scan_captured",
			Name:     "captured_at",
			Required: true,
		})
		collection.Fields.Add(&core.TextField{
			Id:   "scan_device",
			Name: "device_info",
			Max:  255,
		})
		collection.Fields.Add(&core.NumberField{
			Id:      "scan_latency",
			Name:    "latency_ms",
			OnlyInt: true,
		})
		collection.Fields.Add(&core.TextField{
			Id:   "scan_reason",
			Name: "failure_reason",
			Max:  64,
		})
		collection.Fields.Add(&core.AutodateField{
			Id:       "scan_created",
			Name:     "created",
			OnCreate: true,
		})

		collection.AddIndex("idx_scan_events_event_id", true, "event_id", "")
		collection.AddIndex("idx_scan_events_captured_at", false, "captured_at", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("scan_events")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
