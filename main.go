package main

import "github.com/mbartos/photon/cmd"

func main() {
	cmd.Execute()
}
