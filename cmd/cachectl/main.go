// Command cachectl is the cache subsystem's standalone entry point: it
// can run the long-lived daemon that a compositor host would otherwise
// embed, or drive a demo session against a synthetic node sequence so
// the tiers, prefetch pipeline, and dashboard can be exercised without a
// real compositing graph attached.
package main

import (
	"fmt"
	"os"

	"github.com/compositor/cachecore/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		cmdStart(os.Args[2:])
	case "stop":
		cmdStop()
	case "status":
		cmdStatus()
	case "demo":
		cmdDemo(os.Args[2:])
	case "init-config":
		cmdInitConfig()
	case "install-service":
		cmdInstallService()
	case "uninstall-service":
		cmdUninstallService()
	case "config-export":
		cmdConfigExport(os.Args[2:])
	case "config-import":
		cmdConfigImport(os.Args[2:])
	case "version":
		fmt.Println(version.String())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: cachectl <command> [options]

Commands:
  start             Start the cache daemon (dashboard + background pruner)
  stop              Stop the running daemon
  status            Show daemon status and summary stats
  demo              Run one Optimize/Exec pass per frame against a synthetic node sequence
  init-config       Generate default config file
  config-export     Export current config to a TOML file
  config-import     Import config from a TOML file
  install-service   Install as a system service (launchd on macOS)
  uninstall-service Remove the installed system service
  version           Print version information
  help              Show this help message

Options:
  --foreground      Run in foreground (with 'start')
  --nodes <n>       Number of synthetic nodes to generate (with 'demo', default 32)
  --frames <n>      Number of frames to replay (with 'demo', default 3)`)
}
