// Command pocketbase runs an embedded PocketBase server with the scan_events migrations
package main

import (
	"os"
	"strings"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/sirupsen/logrus"

	_ "scan-relay/migrations"
)

func main() {
	app := pocketbase.New()

	// Automigrate only when running through "go run"
	isGoRun := strings.HasPrefix(os.Args[0], os.TempDir())

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Dir:         "migrations",
		Automigrate: isGoRun,
	})

	if err := app.Start(); err != nil {
		logrus.WithError(err).Fatal("pocketbase exited")
	}
}
