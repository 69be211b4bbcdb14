// Command http1-server runs the multi-threaded HTTP/1.1 server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/searchktools/http1-server/app"
	"github.com/searchktools/http1-server/config"
)

func main() {
	cmd := newRootCommand(func(ctx context.Context, cfg *config.Config) error {
		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		return a.Run(ctx)
	})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
