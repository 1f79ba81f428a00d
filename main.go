package main

import "cloudkb/cmd"

func main() {
	cmd.Execute()
}
