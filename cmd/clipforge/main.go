package main

import "github.com/berth-dev/clipforge/internal/cli"

func main() {
	cli.Execute()
}
