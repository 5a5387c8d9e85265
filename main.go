package main

import "postfetch/cmd"

func main() {
	cmd.Execute()
}
