package main

import "github.com/starload/starload/cmd"

func main() {
	cmd.Execute()
}
