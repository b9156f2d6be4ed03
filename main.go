package main

import "ah_scanner/cmd"

func main() {
	cmd.Execute()
}
