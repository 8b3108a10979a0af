package main

import "github.com/verdant-market/storecore/cmd/storecore/cmd"

func main() {
	cmd.Execute()
}
