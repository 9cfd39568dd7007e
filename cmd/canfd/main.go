package main

import "github.com/samsamfire/gocanfd/cmd/canfd/cmd"

func main() {
	cmd.Execute()
}
