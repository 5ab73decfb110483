package main

import "github.com/kozaktomas/vface/cmd"

func main() {
	cmd.Execute()
}
