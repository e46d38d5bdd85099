package main

import "github.com/usherhq/usher/cmd"

func main() {
	cmd.Execute()
}
