package main

import "listing-harvester/cmd"

func main() {
	cmd.Execute()
}
