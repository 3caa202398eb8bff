package main

import "github.com/mcoot/scanogram/internal/cli"

func main() {
	cli.Execute()
}
