package main

import "github.com/example/class-settlement/cmd"

func main() {
	cmd.Execute()
}
