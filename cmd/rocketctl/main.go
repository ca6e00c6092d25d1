// Package main is the entry point for the rocketctl CLI.
package main

import "github.com/wolfdevsllc/rocketctl/internal/cli"

func main() {
	cli.Execute()
}
