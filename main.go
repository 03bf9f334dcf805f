package main

import "github.com/Layr-Labs/marketplace-indexer/cmd"

func main() {
	cmd.Execute()
}
