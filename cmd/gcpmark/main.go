package main

import "github.com/MeKo-Tech/gcpmark/cmd/gcpmark/cmd"

func main() {
	cmd.Execute()
}
