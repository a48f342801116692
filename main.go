package main

import "github.com/azalea-rs/azalea-viaversion/internal/cli"

func main() {
	cli.Execute()
}
