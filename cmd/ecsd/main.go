package main

import "github.com/evalgo-forge/ecsreplica/cli"

func main() {
	cli.Execute()
}
