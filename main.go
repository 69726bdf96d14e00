package main

import "messageboard/cmd"

func main() {
	cmd.Execute()
}
