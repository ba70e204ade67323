package main

import "github.com/bsakel/denbot/cmd"

func main() {
	cmd.Execute()
}
