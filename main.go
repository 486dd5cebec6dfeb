package main

import "coredbg/cmd"

func main() {
	cmd.Execute()
}
