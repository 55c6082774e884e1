package main

import "github.com/reelwatch/reelwatch/cmd"

func main() {
	cmd.Execute()
}
