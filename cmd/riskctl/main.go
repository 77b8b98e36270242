package main

import "github.com/xela07ax/usagerisk/internal/cli"

func main() {
	cli.Execute()
}
