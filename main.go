package main

import "github.com/KaramelBytes/evinsights-cli/cmd"

func main() {
	cmd.Execute()
}
