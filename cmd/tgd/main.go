package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/caval92/tgd/internal/account"
	"github.com/caval92/tgd/internal/daemon"
)

func main() {
	accountFlag := flag.String("account", "", "account name (overrides config default)")
	driverFlag := flag.String("driver", "telegram", "remote-protocol driver")
	flag.Parse()

	name := account.Resolve(*accountFlag)
	if err := account.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Account: name, Driver: *driverFlag}),
	)

	app.Run()
}
