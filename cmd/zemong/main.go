// Command zemong はソーシャルフィードクライアントの同期層サーバー。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/zemong/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "zemong: %v\n", err)
		os.Exit(1)
	}
}
