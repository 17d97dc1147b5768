package main

import "github.com/BradenHooton/tradeguard/cmd/tradeguardctl/cmd"

func main() {
	cmd.Execute()
}
