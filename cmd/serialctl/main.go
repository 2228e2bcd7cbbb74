package main

import "github.com/allbin/go-serialcore/cmd"

func main() {
	cmd.Execute()
}
