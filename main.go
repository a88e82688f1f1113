package main

import "SyncFM/cmd"

func main() {
	cmd.Execute()
}
