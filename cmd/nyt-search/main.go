// Command nyt-search queries the article search API from the command line.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	app := newApp(os.Stdout, os.Stderr)

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "nyt-search: %v\n", err)
		os.Exit(1)
	}
}
