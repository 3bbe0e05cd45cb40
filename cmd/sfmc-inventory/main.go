package main

import "github.com/ayounce80/sfmc-inv2/internal/cli"

func main() {
	cli.Execute()
}
