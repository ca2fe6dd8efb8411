package main

import "github.com/rustyeddy/cryptobot/internal/cli"

func main() {
	cli.Execute()
}
