package main

import "dripcrm/cli"

func main() {
	cli.Execute()
}
