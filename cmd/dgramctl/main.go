package main

import "github.com/opd-ai/dgram/cmd/dgramctl/cmd"

func main() {
	cmd.Execute()
}
