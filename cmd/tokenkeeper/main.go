package main

import "github.com/tokenkeeper/tokenkeeper/internal/cli"

func main() {
	cli.Execute()
}
