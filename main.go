package main

import "github.com/anivault/anivault/cmd"

func main() {
	cmd.Execute()
}
