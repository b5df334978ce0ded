// agent is the CI-side scanner: it runs security check plugins and
// uploads findings reports to the control plane.
package main

import (
	"os"

	"github.com/alecthomas/kingpin/v2"
)

// Version is provided at compile time.
var Version = "dev"

func main() {
	app := kingpin.New("agent", "Security Agent CLI")
	app.Version(Version)

	ConfigureScanCommand(app)
	ConfigureReportCommand(app)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}
