// Command jobgraph runs the ADTEx and MuSE sample pipelines on the
// jobgraph engine.
//
// Settings come from defaults, an optional TOML file (--config), a .env
// file in the working directory and JOBGRAPH_* environment variables, in
// that order; global flags override all of them.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	err := App().Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "jobgraph:", err)
	}
	os.Exit(exitCode(err))
}
